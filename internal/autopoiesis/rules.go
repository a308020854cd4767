package autopoiesis

// Pair is an unordered candidate contact pair supplied by the physics
// collaborator. The engine processes pairs in the order the caller supplies
// them; that order is part of the reproducibility contract.
type Pair struct {
	A Handle `json:"a"`
	B Handle `json:"b"`
}

// Rule names, as they appear in mutation logs and firing counters.
const (
	RuleCatalysis = "catalysis"
	RuleBonding   = "bonding"
	RuleDecay     = "decay"
	RuleBondDecay = "bond-decay"
)

// Engine applies the reaction rules to one tick's candidate pairs and emits
// the mutation batch for the tick. It reads the world but never mutates it;
// liveness and capacity are checked against the pre-tick state adjusted by
// mutations already queued in the same batch.
//
// Rules fire in priority order and at most one rule fires per particle per
// tick: a catalyst that converted a substrate does not convert a second one
// on the same tick, and a link that just bonded is not considered again.
type Engine struct {
	cfg Config
	log Logger
}

func NewEngine(cfg Config, log Logger) *Engine {
	if log == nil {
		log = NewNoOpLogger()
	}
	return &Engine{cfg: cfg, log: log}
}

// tickState tracks the batch-local view the engine checks rules against:
// queued destroys, particles that already fired, and queued bond changes.
type tickState struct {
	ledger    *Ledger
	destroyed map[Handle]struct{}
	firedSet  map[Handle]struct{}
	degree    map[Handle]int
	queuedUp  map[[2]Handle]struct{}
}

func newTickState(w *World) *tickState {
	return &tickState{
		ledger:    w.ledger,
		destroyed: make(map[Handle]struct{}),
		firedSet:  make(map[Handle]struct{}),
		degree:    make(map[Handle]int),
		queuedUp:  make(map[[2]Handle]struct{}),
	}
}

func (st *tickState) isDestroyed(h Handle) bool {
	_, ok := st.destroyed[h]
	return ok
}

func (st *tickState) hasFired(h Handle) bool {
	_, ok := st.firedSet[h]
	return ok
}

func (st *tickState) fire(hs ...Handle) {
	for _, h := range hs {
		st.firedSet[h] = struct{}{}
	}
}

// degreeOf is the endpoint's bond count as of this point in the batch:
// ledger state plus queued bonds minus queued unbonds.
func (st *tickState) degreeOf(h Handle) int {
	return st.ledger.Degree(h) + st.degree[h]
}

func (st *tickState) bondedPair(h1, h2 Handle) bool {
	a, b := canonicalPair(h1, h2)
	if _, queued := st.queuedUp[[2]Handle{a, b}]; queued {
		return true
	}
	return st.ledger.Bonded(a, b)
}

func (st *tickState) queueBond(h1, h2 Handle) {
	a, b := canonicalPair(h1, h2)
	st.queuedUp[[2]Handle{a, b}] = struct{}{}
	st.degree[a]++
	st.degree[b]++
}

func (st *tickState) queueUnbond(bond Bond) {
	st.degree[bond.A]--
	st.degree[bond.B]--
}

// Evaluate runs one tick of rule evaluation. Candidate pairs are processed in
// the given order, then the decay sweep runs over particles in ascending
// handle order, then the bond-decay sweep over bonds in ascending id order.
// Every probability check consumes exactly one value from roll, so the whole
// evaluation is a pure function of world state, pair order and the stream.
func (e *Engine) Evaluate(w *World, pairs []Pair, roll func() float64) *Batch {
	batch := newBatch()
	st := newTickState(w)

	for _, p := range pairs {
		e.evalPair(w, st, batch, p, roll)
	}
	e.sweepDecay(w, st, batch, roll)
	e.sweepBondDecay(w, st, batch, roll)

	return batch
}

// evalPair dispatches a contact pair to the first matching pair rule.
// A pair where either participant is queued for destruction, or has already
// fired this tick, matches nothing.
func (e *Engine) evalPair(w *World, st *tickState, batch *Batch, p Pair, roll func() float64) {
	if p.A == p.B {
		return
	}
	if st.isDestroyed(p.A) || st.isDestroyed(p.B) {
		return
	}
	if st.hasFired(p.A) || st.hasFired(p.B) {
		return
	}
	pa, err := w.reg.Get(p.A)
	if err != nil {
		return
	}
	pb, err := w.reg.Get(p.B)
	if err != nil {
		return
	}

	switch {
	case pa.Kind == Catalyst && pb.Kind == Substrate:
		e.catalyze(st, batch, p.A, p.B, roll)
	case pa.Kind == Substrate && pb.Kind == Catalyst:
		e.catalyze(st, batch, p.B, p.A, roll)
	case pa.Kind == Link && pb.Kind == Link:
		e.tryBond(st, batch, p.A, p.B, roll)
	}
}

// catalyze implements the catalysis rule: the substrate is destroyed and a
// link appears at the contact point; the catalyst is untouched and reusable
// on later ticks. Net population change is zero, so the rule works even at
// the particle cap. The destroy is queued before the create, but both
// placement hints stay valid because hints resolve against pre-tick bodies.
func (e *Engine) catalyze(st *tickState, batch *Batch, catalyst, substrate Handle, roll func() float64) {
	if roll() >= e.cfg.PCatalyze {
		return
	}
	batch.add(Mutation{Op: OpDestroy, Target: substrate, Rule: RuleCatalysis})
	batch.add(Mutation{Op: OpCreate, Kind: Link, NearA: catalyst, NearB: substrate, Rule: RuleCatalysis})
	batch.fired(RuleCatalysis)
	st.destroyed[substrate] = struct{}{}
	st.fire(catalyst, substrate)
}

// tryBond implements the bonding rule for a link/link contact. Eligibility is
// checked before the roll, so an ineligible pair consumes no randomness.
func (e *Engine) tryBond(st *tickState, batch *Batch, h1, h2 Handle, roll func() float64) {
	if st.bondedPair(h1, h2) {
		return
	}
	if st.degreeOf(h1) >= e.cfg.BondCapacity || st.degreeOf(h2) >= e.cfg.BondCapacity {
		return
	}
	if roll() >= e.cfg.PBond {
		return
	}
	a, b := canonicalPair(h1, h2)
	batch.add(Mutation{Op: OpBond, A: a, B: b, Rule: RuleBonding})
	batch.fired(RuleBonding)
	st.queueBond(a, b)
	st.fire(a, b)
}

// sweepDecay implements the decay rule: an unbonded link past the age
// threshold reverts to substrate. Membership in any bond protects a link from
// decay regardless of age; that protection is what makes bonded chains
// self-maintaining.
func (e *Engine) sweepDecay(w *World, st *tickState, batch *Batch, roll func() float64) {
	for _, h := range w.reg.Handles() {
		if st.isDestroyed(h) || st.hasFired(h) {
			continue
		}
		p, err := w.reg.Get(h)
		if err != nil || p.Kind != Link {
			continue
		}
		if st.degreeOf(h) != 0 {
			continue
		}
		if p.Age <= e.cfg.DecayThreshold {
			continue
		}
		if roll() >= e.cfg.PDecay {
			continue
		}
		batch.add(Mutation{Op: OpDestroy, Target: h, Rule: RuleDecay})
		batch.add(Mutation{Op: OpCreate, Kind: Substrate, NearA: h, Rule: RuleDecay})
		batch.fired(RuleDecay)
		st.destroyed[h] = struct{}{}
		st.fire(h)
	}
}

// sweepBondDecay implements thermal bond breakage: each bond past the age
// limit rolls independently. A link dropping to zero bonds here becomes
// eligible for decay on a later tick, not this one; the sweeps run in fixed
// priority order.
func (e *Engine) sweepBondDecay(w *World, st *tickState, batch *Batch, roll func() float64) {
	for _, id := range w.ledger.IDs() {
		bond, err := w.ledger.Get(id)
		if err != nil {
			continue
		}
		// Bonds of a particle queued for destruction go away with the cascade.
		if st.isDestroyed(bond.A) || st.isDestroyed(bond.B) {
			continue
		}
		if bond.Age <= e.cfg.BondAgeLimit {
			continue
		}
		if roll() >= e.cfg.PUnbond {
			continue
		}
		batch.add(Mutation{Op: OpUnbond, Bond: id, Rule: RuleBondDecay})
		batch.fired(RuleBondDecay)
		st.queueUnbond(bond)
	}
}
