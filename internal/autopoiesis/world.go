package autopoiesis

import "fmt"

// World aggregates the particle registry and the bond ledger for one
// simulation. All mutation flows through Apply; external observers only ever
// see tick boundaries.
type World struct {
	cfg    Config
	reg    *Registry
	ledger *Ledger
	log    Logger
}

// NewWorld validates the configuration and builds an empty world.
func NewWorld(cfg Config, log Logger) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = NewNoOpLogger()
	}
	reg := newRegistry(cfg.MaxParticles, log)
	ledger := newLedger(reg, cfg.BondCapacity, log)
	// Ledger cleanup happens before handle invalidation, so destroying a
	// particle can never leave a bond dangling.
	reg.onDestroy = ledger.CascadeRemove
	return &World{cfg: cfg, reg: reg, ledger: ledger, log: log}, nil
}

// Config returns the configuration the world was built with.
func (w *World) Config() Config { return w.cfg }

// Registry exposes the particle registry.
func (w *World) Registry() *Registry { return w.reg }

// Ledger exposes the bond ledger.
func (w *World) Ledger() *Ledger { return w.ledger }

// Counts is the derived per-kind census of a world. It is computed by
// scanning on every call; nothing caches these numbers, so they cannot
// drift from the registry and ledger.
type Counts struct {
	Substrates int `json:"substrates"`
	Catalysts  int `json:"catalysts"`
	Links      int `json:"links"`
	Bonds      int `json:"bonds"`
}

// Particles returns the total live particle count.
func (c Counts) Particles() int {
	return c.Substrates + c.Catalysts + c.Links
}

// Counts derives the current census.
func (w *World) Counts() Counts {
	return Counts{
		Substrates: w.reg.Count(Substrate),
		Catalysts:  w.reg.Count(Catalyst),
		Links:      w.reg.Count(Link),
		Bonds:      w.ledger.Len(),
	}
}

// CreatedBody describes a particle created by a tick, with the placement
// hints the physics collaborator uses to position the new body.
type CreatedBody struct {
	Handle       Handle
	Kind         Kind
	NearA, NearB Handle
}

// ApplyResult reports what a batch actually did: the handle lists the physics
// collaborator needs to sync bodies, plus any per-op failures. A failed op is
// skipped and recorded, never aborting the rest of the batch.
type ApplyResult struct {
	Created   []CreatedBody
	Destroyed []Handle
	Bonded    []BondID
	Unbonded  []BondID
	Errors    []error
}

// Apply executes a mutation batch in order. Per-op failures (a second destroy
// of the same handle, a create at the particle cap) are collected into the
// result; the batch as a whole always runs to completion, and the registry
// and ledger stay consistent throughout.
func (w *World) Apply(batch *Batch) ApplyResult {
	var res ApplyResult
	for _, m := range batch.Ops {
		switch m.Op {
		case OpCreate:
			h, err := w.reg.Create(m.Kind, 0)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("apply %s: %w", m.Rule, err))
				continue
			}
			res.Created = append(res.Created, CreatedBody{Handle: h, Kind: m.Kind, NearA: m.NearA, NearB: m.NearB})
		case OpDestroy:
			if err := w.reg.Destroy(m.Target); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("apply %s: %w", m.Rule, err))
				continue
			}
			res.Destroyed = append(res.Destroyed, m.Target)
		case OpBond:
			id, err := w.ledger.Bond(m.A, m.B)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("apply %s: %w", m.Rule, err))
				continue
			}
			res.Bonded = append(res.Bonded, id)
		case OpUnbond:
			if err := w.ledger.Unbond(m.Bond); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("apply %s: %w", m.Rule, err))
				continue
			}
			res.Unbonded = append(res.Unbonded, m.Bond)
		default:
			res.Errors = append(res.Errors, fmt.Errorf("apply: unknown op %d", int(m.Op)))
		}
	}
	if len(res.Errors) > 0 {
		w.log.Warnf("batch applied with %d failed ops out of %d", len(res.Errors), batch.Len())
	}
	return res
}

// AgeTick advances the age counters of every live particle and bond by one.
// The stepper calls it once per tick, after the batch is applied.
func (w *World) AgeTick() {
	w.reg.ageAll()
	w.ledger.ageAll()
}

// Seed populates an empty-ish world with an initial population: catalysts
// first, then substrates, in handle order. It returns the created handles so
// the caller can register matching physics bodies.
func (w *World) Seed(catalysts, substrates int) ([]Handle, error) {
	handles := make([]Handle, 0, catalysts+substrates)
	for i := 0; i < catalysts; i++ {
		h, err := w.reg.Create(Catalyst, 0)
		if err != nil {
			return handles, fmt.Errorf("seed catalysts: %w", err)
		}
		handles = append(handles, h)
	}
	for i := 0; i < substrates; i++ {
		h, err := w.reg.Create(Substrate, 0)
		if err != nil {
			return handles, fmt.Errorf("seed substrates: %w", err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}
