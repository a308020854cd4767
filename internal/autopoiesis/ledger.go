package autopoiesis

import (
	"fmt"
	"sort"
)

// BondID is the stable identity of a bond, allocated monotonically like
// particle handles and never reused.
type BondID uint64

// Bond is an undirected relation between two live links. The pair is stored
// in canonical order (smaller handle first) so (a,b) and (b,a) are the same
// bond, which makes duplicate detection and replay logs deterministic.
type Bond struct {
	ID  BondID `json:"id"`
	A   Handle `json:"a"`
	B   Handle `json:"b"`
	Age int64  `json:"age"`
}

// canonicalPair orders an unordered handle pair, smaller identity first.
func canonicalPair(h1, h2 Handle) (Handle, Handle) {
	if h2 < h1 {
		return h2, h1
	}
	return h1, h2
}

// Ledger owns the set of active bonds and enforces the bond invariants: two
// distinct live link endpoints, per-particle capacity, no duplicate pairs.
type Ledger struct {
	reg      *Registry
	capacity int
	next     BondID
	bonds    map[BondID]*Bond
	byPair   map[[2]Handle]BondID
	byPart   map[Handle]map[BondID]struct{}
	log      Logger
}

func newLedger(reg *Registry, bondCapacity int, log Logger) *Ledger {
	if log == nil {
		log = NewNoOpLogger()
	}
	return &Ledger{
		reg:      reg,
		capacity: bondCapacity,
		next:     1,
		bonds:    make(map[BondID]*Bond),
		byPair:   make(map[[2]Handle]BondID),
		byPart:   make(map[Handle]map[BondID]struct{}),
		log:      log,
	}
}

// Bond creates a bond between two link particles. It fails with
// ErrInvalidParticipant if either handle is not a live link, ErrAlreadyBonded
// if the unordered pair is already bonded, and ErrCapacityExceeded if either
// endpoint has no free bond slot.
func (l *Ledger) Bond(h1, h2 Handle) (BondID, error) {
	if h1 == h2 {
		return 0, fmt.Errorf("bond %d-%d: %w: endpoints must be distinct", h1, h2, ErrInvalidParticipant)
	}
	for _, h := range []Handle{h1, h2} {
		p, err := l.reg.Get(h)
		if err != nil {
			return 0, fmt.Errorf("bond %d-%d: %w: handle %d is not live", h1, h2, ErrInvalidParticipant, h)
		}
		if p.Kind != Link {
			return 0, fmt.Errorf("bond %d-%d: %w: handle %d is a %s", h1, h2, ErrInvalidParticipant, h, p.Kind)
		}
	}

	a, b := canonicalPair(h1, h2)
	if _, dup := l.byPair[[2]Handle{a, b}]; dup {
		return 0, fmt.Errorf("bond %d-%d: %w", a, b, ErrAlreadyBonded)
	}
	for _, h := range []Handle{a, b} {
		if l.Degree(h) >= l.capacity {
			return 0, fmt.Errorf("bond %d-%d: %w: handle %d has %d/%d slots used", a, b, ErrCapacityExceeded, h, l.Degree(h), l.capacity)
		}
	}

	id := l.next
	l.next++
	bond := &Bond{ID: id, A: a, B: b}
	l.bonds[id] = bond
	l.byPair[[2]Handle{a, b}] = id
	for _, h := range []Handle{a, b} {
		if l.byPart[h] == nil {
			l.byPart[h] = make(map[BondID]struct{})
		}
		l.byPart[h][id] = struct{}{}
	}
	l.log.Debugf("bond created: id=%d pair=%d-%d", id, a, b)
	return id, nil
}

// Unbond removes a bond by id, failing with ErrNotFound if the id is stale.
func (l *Ledger) Unbond(id BondID) error {
	bond, ok := l.bonds[id]
	if !ok {
		return fmt.Errorf("unbond %d: %w", id, ErrNotFound)
	}
	l.removeBond(bond)
	return nil
}

func (l *Ledger) removeBond(bond *Bond) {
	delete(l.bonds, bond.ID)
	delete(l.byPair, [2]Handle{bond.A, bond.B})
	for _, h := range []Handle{bond.A, bond.B} {
		delete(l.byPart[h], bond.ID)
		if len(l.byPart[h]) == 0 {
			delete(l.byPart, h)
		}
	}
	l.log.Debugf("bond removed: id=%d pair=%d-%d age=%d", bond.ID, bond.A, bond.B, bond.Age)
}

// Get returns a bond by id, or ErrNotFound for a stale id.
func (l *Ledger) Get(id BondID) (Bond, error) {
	bond, ok := l.bonds[id]
	if !ok {
		return Bond{}, fmt.Errorf("get bond %d: %w", id, ErrNotFound)
	}
	return *bond, nil
}

// BondsOf returns the ids of all bonds referencing the handle, ascending.
func (l *Ledger) BondsOf(h Handle) []BondID {
	set := l.byPart[h]
	out := make([]BondID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Degree returns the number of bond slots the handle currently uses.
func (l *Ledger) Degree(h Handle) int {
	return len(l.byPart[h])
}

// Bonded reports whether the unordered pair currently has a bond.
func (l *Ledger) Bonded(h1, h2 Handle) bool {
	a, b := canonicalPair(h1, h2)
	_, ok := l.byPair[[2]Handle{a, b}]
	return ok
}

// CascadeRemove removes every bond referencing the handle. It is called by
// the registry's destroy path before the handle is invalidated, so no bond
// ever dangles into a dead handle.
func (l *Ledger) CascadeRemove(h Handle) {
	for _, id := range l.BondsOf(h) {
		l.removeBond(l.bonds[id])
	}
}

// Len returns the active bond count.
func (l *Ledger) Len() int {
	return len(l.bonds)
}

// IDs returns all active bond ids in ascending order. Like Registry.Handles,
// the deterministic order matters for the bond-decay sweep.
func (l *Ledger) IDs() []BondID {
	out := make([]BondID, 0, len(l.bonds))
	for id := range l.bonds {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (l *Ledger) ageAll() {
	for _, bond := range l.bonds {
		bond.Age++
	}
}

// restore inserts a bond with an explicit id and age when rebuilding from a
// snapshot. The same invariants as Bond apply; the id counter never moves
// backwards.
func (l *Ledger) restore(b Bond) error {
	if b.ID == 0 {
		return fmt.Errorf("restore bond: id must not be zero")
	}
	if _, exists := l.bonds[b.ID]; exists {
		return fmt.Errorf("restore bond %d: duplicate id", b.ID)
	}
	if b.A == b.B {
		return fmt.Errorf("restore bond %d: %w: endpoints must be distinct", b.ID, ErrInvalidParticipant)
	}
	a, bb := canonicalPair(b.A, b.B)
	if _, dup := l.byPair[[2]Handle{a, bb}]; dup {
		return fmt.Errorf("restore bond %d: %w", b.ID, ErrAlreadyBonded)
	}
	for _, h := range []Handle{a, bb} {
		p, err := l.reg.Get(h)
		if err != nil || p.Kind != Link {
			return fmt.Errorf("restore bond %d: %w: handle %d is not a live link", b.ID, ErrInvalidParticipant, h)
		}
		if l.Degree(h) >= l.capacity {
			return fmt.Errorf("restore bond %d: %w: handle %d", b.ID, ErrCapacityExceeded, h)
		}
	}

	bond := &Bond{ID: b.ID, A: a, B: bb, Age: b.Age}
	l.bonds[b.ID] = bond
	l.byPair[[2]Handle{a, bb}] = b.ID
	for _, h := range []Handle{a, bb} {
		if l.byPart[h] == nil {
			l.byPart[h] = make(map[BondID]struct{})
		}
		l.byPart[h][b.ID] = struct{}{}
	}
	if b.ID >= l.next {
		l.next = b.ID + 1
	}
	return nil
}
