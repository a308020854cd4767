package autopoiesis

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Snapshot is a point-in-time capture of a world: every particle, every bond,
// the tick count and the identity counters. The counters are persisted so a
// restored world keeps allocating fresh handles and never resurrects a stale
// one. Particles and bonds are sorted, so equal worlds produce equal bytes.
type Snapshot struct {
	Tick       int64      `json:"tick"`
	NextHandle Handle     `json:"next_handle"`
	NextBond   BondID     `json:"next_bond"`
	Particles  []Particle `json:"particles"`
	Bonds      []Bond     `json:"bonds"`
}

// Snapshot captures the world state at the given tick.
func (w *World) Snapshot(tick int64) Snapshot {
	snap := Snapshot{
		Tick:       tick,
		NextHandle: w.reg.next,
		NextBond:   w.ledger.next,
		Particles:  make([]Particle, 0, w.reg.Len()),
		Bonds:      make([]Bond, 0, w.ledger.Len()),
	}
	for _, h := range w.reg.Handles() {
		p, _ := w.reg.Get(h)
		snap.Particles = append(snap.Particles, p)
	}
	for _, id := range w.ledger.IDs() {
		b, _ := w.ledger.Get(id)
		snap.Bonds = append(snap.Bonds, b)
	}
	return snap
}

// EncodeSnapshotJSON encodes a snapshot to JSON.
func EncodeSnapshotJSON(snap Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshotJSON decodes a snapshot from JSON.
func DecodeSnapshotJSON(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// ValidateSnapshot checks a snapshot against the world invariants before it
// is restored: unique handles and bond ids, bonds referencing distinct live
// links only, no duplicate pairs, per-link capacity respected, identity
// counters past every persisted identity.
func ValidateSnapshot(snap Snapshot, cfg Config) error {
	seen := make(map[Handle]Kind, len(snap.Particles))
	for i, p := range snap.Particles {
		if p.Handle == 0 {
			return fmt.Errorf("particle at index %d has zero handle", i)
		}
		if _, dup := seen[p.Handle]; dup {
			return fmt.Errorf("duplicate particle handle %d", p.Handle)
		}
		if !p.Kind.valid() {
			return fmt.Errorf("particle %d has invalid kind %d", p.Handle, int(p.Kind))
		}
		if p.Handle >= snap.NextHandle {
			return fmt.Errorf("particle %d is not below next_handle %d", p.Handle, snap.NextHandle)
		}
		seen[p.Handle] = p.Kind
	}
	if len(snap.Particles) > cfg.MaxParticles {
		return fmt.Errorf("%d particles exceed max_particles %d", len(snap.Particles), cfg.MaxParticles)
	}

	seenBonds := make(map[BondID]struct{}, len(snap.Bonds))
	seenPairs := make(map[[2]Handle]struct{}, len(snap.Bonds))
	degree := make(map[Handle]int)
	for i, b := range snap.Bonds {
		if b.ID == 0 {
			return fmt.Errorf("bond at index %d has zero id", i)
		}
		if _, dup := seenBonds[b.ID]; dup {
			return fmt.Errorf("duplicate bond id %d", b.ID)
		}
		seenBonds[b.ID] = struct{}{}
		if b.ID >= snap.NextBond {
			return fmt.Errorf("bond %d is not below next_bond %d", b.ID, snap.NextBond)
		}
		if b.A == b.B {
			return fmt.Errorf("bond %d has identical endpoints", b.ID)
		}
		a, bb := canonicalPair(b.A, b.B)
		if _, dup := seenPairs[[2]Handle{a, bb}]; dup {
			return fmt.Errorf("duplicate bond pair %d-%d", a, bb)
		}
		seenPairs[[2]Handle{a, bb}] = struct{}{}
		for _, h := range []Handle{a, bb} {
			kind, live := seen[h]
			if !live {
				return fmt.Errorf("bond %d references unknown handle %d", b.ID, h)
			}
			if kind != Link {
				return fmt.Errorf("bond %d references %s %d", b.ID, kind, h)
			}
			degree[h]++
			if degree[h] > cfg.BondCapacity {
				return fmt.Errorf("handle %d exceeds bond capacity %d", h, cfg.BondCapacity)
			}
		}
	}
	return nil
}

// RestoreWorld rebuilds a world from a snapshot. The snapshot is validated
// first; restore order is deterministic (ascending handles, ascending bond
// ids).
func RestoreWorld(cfg Config, snap Snapshot, log Logger) (*World, error) {
	if err := ValidateSnapshot(snap, cfg); err != nil {
		return nil, fmt.Errorf("restore world: %w", err)
	}
	w, err := NewWorld(cfg, log)
	if err != nil {
		return nil, err
	}

	particles := make([]Particle, len(snap.Particles))
	copy(particles, snap.Particles)
	sort.Slice(particles, func(i, j int) bool { return particles[i].Handle < particles[j].Handle })
	for _, p := range particles {
		if err := w.reg.restore(p); err != nil {
			return nil, fmt.Errorf("restore world: %w", err)
		}
	}

	bonds := make([]Bond, len(snap.Bonds))
	copy(bonds, snap.Bonds)
	sort.Slice(bonds, func(i, j int) bool { return bonds[i].ID < bonds[j].ID })
	for _, b := range bonds {
		if err := w.ledger.restore(b); err != nil {
			return nil, fmt.Errorf("restore world: %w", err)
		}
	}

	if snap.NextHandle > w.reg.next {
		w.reg.next = snap.NextHandle
	}
	if snap.NextBond > w.ledger.next {
		w.ledger.next = snap.NextBond
	}
	return w, nil
}
