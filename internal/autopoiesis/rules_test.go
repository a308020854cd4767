package autopoiesis

import (
	"errors"
	"reflect"
	"testing"
)

// scriptedPhysics feeds a fixed candidate-pair list to the stepper and
// records the body sync calls.
type scriptedPhysics struct {
	pairs     []Pair
	created   []CreatedBody
	destroyed []Handle
}

func (p *scriptedPhysics) ContactPairs() []Pair { return p.pairs }

func (p *scriptedPhysics) SyncBodies(created []CreatedBody, destroyed []Handle) {
	p.created = append(p.created, created...)
	p.destroyed = append(p.destroyed, destroyed...)
}

func TestCatalysis_ConservationScenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PCatalyze = 1.0
	w := newTestWorld(t, cfg)

	cat, _ := w.Registry().Create(Catalyst, 0)
	var subs []Handle
	for i := 0; i < 10; i++ {
		h, _ := w.Registry().Create(Substrate, 0)
		subs = append(subs, h)
	}

	// Every substrate is in contact with the catalyst this tick.
	ph := &scriptedPhysics{}
	for _, s := range subs {
		ph.pairs = append(ph.pairs, Pair{A: cat, B: s})
	}

	stepper := NewStepper(w, ph, nil)
	stats, err := stepper.Step()
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	// The catalyst participates in at most one reaction per tick: exactly one
	// substrate converted, nine untouched.
	counts := stats.Counts
	if counts.Substrates != 9 || counts.Links != 1 || counts.Catalysts != 1 {
		t.Errorf("unexpected counts after catalysis tick: %+v", counts)
	}
	if stats.Firings[RuleCatalysis] != 1 {
		t.Errorf("expected exactly 1 catalysis firing, got %d", stats.Firings[RuleCatalysis])
	}
	if !w.Registry().Live(cat) {
		t.Error("catalyst must survive catalysis")
	}

	// Physics was told about the new link and the lost substrate.
	if len(ph.created) != 1 || ph.created[0].Kind != Link {
		t.Errorf("expected one created link body, got %+v", ph.created)
	}
	if len(ph.destroyed) != 1 || ph.destroyed[0] != subs[0] {
		t.Errorf("expected substrate %d destroyed, got %v", subs[0], ph.destroyed)
	}
	// The spawn hints point at the contact pair.
	if ph.created[0].NearA != cat || ph.created[0].NearB != subs[0] {
		t.Errorf("unexpected spawn hints: %+v", ph.created[0])
	}
}

func TestBonding_Scenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PBond = 1.0
	cfg.BondCapacity = 2
	w := newTestWorld(t, cfg)

	a, _ := w.Registry().Create(Link, 0)
	b, _ := w.Registry().Create(Link, 0)

	ph := &scriptedPhysics{pairs: []Pair{{A: a, B: b}}}
	stepper := NewStepper(w, ph, nil)
	stats, err := stepper.Step()
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	if stats.Counts.Bonds != 1 {
		t.Fatalf("expected exactly 1 bond, got %d", stats.Counts.Bonds)
	}
	if w.Ledger().Degree(a) != 1 || w.Ledger().Degree(b) != 1 {
		t.Errorf("expected degree 1 on both links, got %d and %d", w.Ledger().Degree(a), w.Ledger().Degree(b))
	}

	// A second tick with the same pair must not duplicate the bond.
	if _, err := stepper.Step(); err != nil {
		t.Fatalf("second Step failed: %v", err)
	}
	if got := w.Ledger().Len(); got != 1 {
		t.Errorf("expected bond count to stay 1, got %d", got)
	}
}

func TestBonding_RespectsCapacityAcrossBatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PBond = 1.0
	cfg.BondCapacity = 1
	w := newTestWorld(t, cfg)

	a, _ := w.Registry().Create(Link, 0)
	b, _ := w.Registry().Create(Link, 0)
	c, _ := w.Registry().Create(Link, 0)

	// Both pairs share a; with one slot per link only the first can bond.
	ph := &scriptedPhysics{pairs: []Pair{{A: a, B: b}, {A: a, B: c}}}
	stepper := NewStepper(w, ph, nil)
	stats, err := stepper.Step()
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	if stats.Counts.Bonds != 1 {
		t.Errorf("expected 1 bond, got %d", stats.Counts.Bonds)
	}
	if stats.RuleErrors != 0 {
		t.Errorf("capacity must be honored during evaluation, got %d apply errors", stats.RuleErrors)
	}
	if !w.Ledger().Bonded(a, b) {
		t.Error("first pair in candidate order should have bonded")
	}
}

func TestDecay_Scenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PDecay = 1.0
	cfg.DecayThreshold = 10
	w := newTestWorld(t, cfg)

	link, _ := w.Registry().Create(Link, 11)

	ph := &scriptedPhysics{}
	stepper := NewStepper(w, ph, nil)
	stats, err := stepper.Step()
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	if w.Registry().Live(link) {
		t.Error("aged unbonded link should have decayed")
	}
	if stats.Counts.Links != 0 || stats.Counts.Substrates != 1 || stats.Counts.Bonds != 0 {
		t.Errorf("unexpected counts after decay: %+v", stats.Counts)
	}
	// Transmutation is destroy-old/create-new, never an in-place change.
	if len(ph.created) != 1 || ph.created[0].Handle == link {
		t.Errorf("expected a fresh substrate handle, got %+v", ph.created)
	}
	if ph.created[0].NearA != link {
		t.Errorf("substrate should spawn near the decayed link, got %+v", ph.created[0])
	}
}

func TestDecay_ProtectionLaw(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PDecay = 1.0
	cfg.PUnbond = 0
	cfg.DecayThreshold = 1
	w := newTestWorld(t, cfg)

	a, _ := w.Registry().Create(Link, 1000)
	b, _ := w.Registry().Create(Link, 1000)
	if _, err := w.Ledger().Bond(a, b); err != nil {
		t.Fatalf("Bond failed: %v", err)
	}

	stepper := NewStepper(w, &scriptedPhysics{}, nil)
	for i := 0; i < 50; i++ {
		if _, err := stepper.Step(); err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
	}

	// A bonded link never decays, no matter its age.
	if !w.Registry().Live(a) || !w.Registry().Live(b) {
		t.Fatal("bonded links must not decay")
	}
	if w.Ledger().Len() != 1 {
		t.Errorf("bond should have survived, ledger has %d", w.Ledger().Len())
	}
}

func TestBondDecay_FreesLinkForLaterDecay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PDecay = 1.0
	cfg.PUnbond = 1.0
	cfg.DecayThreshold = 0
	cfg.BondAgeLimit = 0
	w := newTestWorld(t, cfg)

	a, _ := w.Registry().Create(Link, 5)
	b, _ := w.Registry().Create(Link, 5)
	id, _ := w.Ledger().Bond(a, b)
	// Age the bond past its limit by hand.
	w.AgeTick()

	stepper := NewStepper(w, &scriptedPhysics{}, nil)

	// Tick 1: the bond breaks, but both links were still protected when the
	// decay sweep ran.
	stats, err := stepper.Step()
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if _, err := w.Ledger().Get(id); !errors.Is(err, ErrNotFound) {
		t.Fatal("bond should have decayed on tick 1")
	}
	if stats.Counts.Links != 2 {
		t.Fatalf("links must not decay on the tick their bond breaks, got %+v", stats.Counts)
	}

	// Tick 2: now unbonded and over-age, both links decay to substrate.
	stats, err = stepper.Step()
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if stats.Counts.Links != 0 || stats.Counts.Substrates != 2 {
		t.Errorf("expected both links decayed on tick 2, got %+v", stats.Counts)
	}
}

func TestRules_FirstMatchPerParticle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PCatalyze = 1.0
	w := newTestWorld(t, cfg)

	cat1, _ := w.Registry().Create(Catalyst, 0)
	cat2, _ := w.Registry().Create(Catalyst, 0)
	sub, _ := w.Registry().Create(Substrate, 0)

	// The same substrate touches two catalysts; only the first contact reacts.
	ph := &scriptedPhysics{pairs: []Pair{{A: cat1, B: sub}, {A: cat2, B: sub}}}
	stepper := NewStepper(w, ph, nil)
	stats, err := stepper.Step()
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	if stats.Firings[RuleCatalysis] != 1 {
		t.Errorf("expected 1 catalysis, got %d", stats.Firings[RuleCatalysis])
	}
	if stats.Counts.Links != 1 {
		t.Errorf("expected 1 link, got %+v", stats.Counts)
	}
	if stats.RuleErrors != 0 {
		t.Errorf("no apply errors expected, got %d", stats.RuleErrors)
	}
}

func TestCatalysis_WorksAtParticleCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PCatalyze = 1.0
	cfg.MaxParticles = 2
	w := newTestWorld(t, cfg)

	cat, _ := w.Registry().Create(Catalyst, 0)
	sub, _ := w.Registry().Create(Substrate, 0)

	ph := &scriptedPhysics{pairs: []Pair{{A: cat, B: sub}}}
	stepper := NewStepper(w, ph, nil)
	stats, err := stepper.Step()
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	// Net population change of catalysis is zero, so the rule still fires at
	// the cap: the substrate's slot is freed before the link is created.
	if stats.RuleErrors != 0 {
		t.Errorf("expected no apply errors at cap, got %d", stats.RuleErrors)
	}
	if stats.Counts.Links != 1 || stats.Counts.Substrates != 0 {
		t.Errorf("unexpected counts: %+v", stats.Counts)
	}
}

func TestApply_SecondDestroyRejectedWithoutCorruption(t *testing.T) {
	cfg := DefaultConfig()
	w := newTestWorld(t, cfg)

	a, _ := w.Registry().Create(Link, 0)
	b, _ := w.Registry().Create(Link, 0)
	w.Ledger().Bond(a, b)

	batch := newBatch()
	batch.add(Mutation{Op: OpDestroy, Target: a, Rule: "test"})
	batch.add(Mutation{Op: OpDestroy, Target: a, Rule: "test"})

	res := w.Apply(batch)
	if len(res.Destroyed) != 1 {
		t.Fatalf("expected 1 destroy applied, got %d", len(res.Destroyed))
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], ErrNotFound) {
		t.Fatalf("second destroy should fail with ErrNotFound, got %v", res.Errors)
	}

	// The ledger cascade ran exactly once and left a consistent state.
	if w.Ledger().Len() != 0 {
		t.Errorf("expected 0 bonds, got %d", w.Ledger().Len())
	}
	if w.Ledger().Degree(b) != 0 {
		t.Errorf("surviving link should have degree 0, got %d", w.Ledger().Degree(b))
	}
	if !w.Registry().Live(b) {
		t.Error("unrelated particle was destroyed")
	}
}

// allPairs lists every unordered pair of live handles, ascending, so a world
// can be stepped with a candidate order that is a pure function of its state.
func allPairs(w *World) []Pair {
	hs := w.Registry().Handles()
	var pairs []Pair
	for i := 0; i < len(hs); i++ {
		for j := i + 1; j < len(hs); j++ {
			pairs = append(pairs, Pair{A: hs[i], B: hs[j]})
		}
	}
	return pairs
}

func TestDeterminism_IdenticalRunsMatchBitForBit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PCatalyze = 0.4
	cfg.PBond = 0.5
	cfg.PDecay = 0.3
	cfg.PUnbond = 0.3
	cfg.DecayThreshold = 2
	cfg.BondAgeLimit = 3
	cfg.RNGSeed = 12345

	run := func() ([]string, Counts) {
		w := newTestWorld(t, cfg)
		if _, err := w.Seed(2, 20); err != nil {
			t.Fatalf("Seed failed: %v", err)
		}
		ph := &scriptedPhysics{}
		stepper := NewStepper(w, ph, nil)

		var log []string
		for i := 0; i < 40; i++ {
			ph.pairs = allPairs(w)
			stats, err := stepper.Step()
			if err != nil {
				t.Fatalf("Step failed: %v", err)
			}
			log = append(log, stats.BatchLog...)
		}
		return log, w.Counts()
	}

	log1, counts1 := run()
	log2, counts2 := run()

	if !reflect.DeepEqual(log1, log2) {
		t.Fatalf("mutation logs diverged:\nrun1: %v\nrun2: %v", log1, log2)
	}
	if counts1 != counts2 {
		t.Fatalf("final counts diverged: %+v vs %+v", counts1, counts2)
	}
	if len(log1) == 0 {
		t.Error("expected the runs to produce some mutations")
	}
}

func TestInvariants_HoldAcrossChurn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PCatalyze = 0.6
	cfg.PBond = 0.6
	cfg.PDecay = 0.4
	cfg.PUnbond = 0.4
	cfg.DecayThreshold = 1
	cfg.BondAgeLimit = 2
	w := newTestWorld(t, cfg)
	if _, err := w.Seed(3, 30); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	ph := &scriptedPhysics{}
	stepper := NewStepper(w, ph, nil)
	for i := 0; i < 60; i++ {
		ph.pairs = allPairs(w)
		stats, err := stepper.Step()
		if err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		if stats.RuleErrors != 0 {
			t.Fatalf("tick %d: engine queued invalid mutations: %d errors", i, stats.RuleErrors)
		}

		// Bond symmetry and capacity at every tick boundary.
		ledger := w.Ledger()
		for _, id := range ledger.IDs() {
			bond, err := ledger.Get(id)
			if err != nil {
				t.Fatalf("tick %d: stale bond id in IDs: %v", i, err)
			}
			for _, h := range []Handle{bond.A, bond.B} {
				p, err := w.Registry().Get(h)
				if err != nil {
					t.Fatalf("tick %d: bond %d dangles into handle %d", i, id, h)
				}
				if p.Kind != Link {
					t.Fatalf("tick %d: bond %d references a %s", i, id, p.Kind)
				}
				found := false
				for _, bid := range ledger.BondsOf(h) {
					if bid == id {
						found = true
					}
				}
				if !found {
					t.Fatalf("tick %d: bond %d missing from BondsOf(%d)", i, id, h)
				}
			}
		}
		for _, h := range w.Registry().Handles() {
			if d := ledger.Degree(h); d > cfg.BondCapacity {
				t.Fatalf("tick %d: handle %d exceeds bond capacity: %d", i, h, d)
			}
		}
	}
}
