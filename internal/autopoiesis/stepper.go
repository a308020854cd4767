package autopoiesis

import (
	"math/rand"
)

// State of a stepper. Stopped is terminal: a stopped stepper cannot be
// restarted, which prevents silent reuse of stale RNG state. Build a new
// stepper to run again.
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TickStats is the read-only snapshot published after each tick for the
// statistics/rendering collaborator.
type TickStats struct {
	Tick      int64          `json:"tick"`
	Counts    Counts         `json:"counts"`
	Firings   map[string]int `json:"firings,omitempty"`
	Created   int            `json:"created"`
	Destroyed int            `json:"destroyed"`
	Bonded    int            `json:"bonded"`
	Unbonded  int            `json:"unbonded"`
	// RuleErrors counts ops the world rejected while applying the batch.
	// Nonzero values point at an engine bug, not a user condition.
	RuleErrors int `json:"rule_errors,omitempty"`
	// BatchLog is the deterministic mutation log for this tick.
	BatchLog []string `json:"-"`
}

// Stepper advances a world one discrete tick per Step call. It owns the
// single seeded pseudo-random stream consumed by the rule engine; nothing
// else in the core draws randomness, which is what makes a run replayable
// from its seed. The stepper is single-step by design: the driving loop
// belongs to the host layer.
type Stepper struct {
	world   *World
	engine  *Engine
	physics Physics
	rng     *rand.Rand
	state   State
	tick    int64
	log     Logger

	notify      *NotificationManager
	notifierIDs []string
	simID       string
}

// NewStepper builds a stepper over the world, seeding the RNG stream from the
// world's configuration. physics may be nil for headless evaluation without a
// collaborator (no candidate pairs, sweeps only).
func NewStepper(world *World, physics Physics, log Logger) *Stepper {
	if log == nil {
		log = NewNoOpLogger()
	}
	return &Stepper{
		world:   world,
		engine:  NewEngine(world.Config(), log),
		physics: physics,
		rng:     rand.New(rand.NewSource(world.Config().RNGSeed)),
		state:   Idle,
		log:     log,
	}
}

// SetNotifications attaches a notification manager; after each tick an event
// is enqueued for the given notifier ids.
func (s *Stepper) SetNotifications(mgr *NotificationManager, notifierIDs []string, simID string) {
	s.notify = mgr
	s.notifierIDs = notifierIDs
	s.simID = simID
}

// State returns the current stepper state.
func (s *Stepper) State() State { return s.state }

// Tick returns the number of ticks applied so far.
func (s *Stepper) Tick() int64 { return s.tick }

// World returns the stepped world.
func (s *Stepper) World() *World { return s.world }

// Step advances the world by exactly one tick: pull candidates, evaluate the
// rules, apply the batch, sync the physics bodies, age the population, and
// publish statistics. It fails with ErrStopped after Stop.
func (s *Stepper) Step() (TickStats, error) {
	if s.state == Stopped {
		return TickStats{}, ErrStopped
	}
	s.state = Running

	var pairs []Pair
	if s.physics != nil {
		pairs = s.physics.ContactPairs()
	}

	batch := s.engine.Evaluate(s.world, pairs, s.rng.Float64)
	res := s.world.Apply(batch)

	if s.physics != nil {
		s.physics.SyncBodies(res.Created, res.Destroyed)
	}
	s.world.AgeTick()
	s.tick++

	stats := TickStats{
		Tick:       s.tick,
		Counts:     s.world.Counts(),
		Firings:    batch.Firings,
		Created:    len(res.Created),
		Destroyed:  len(res.Destroyed),
		Bonded:     len(res.Bonded),
		Unbonded:   len(res.Unbonded),
		RuleErrors: len(res.Errors),
		BatchLog:   batch.Log(),
	}
	for _, err := range res.Errors {
		s.log.Errorf("tick %d: %v", s.tick, err)
	}
	if batch.Len() > 0 {
		s.log.Debugf("tick %d: %d mutations, firings=%v", s.tick, batch.Len(), batch.Firings)
	}

	if s.notify != nil && len(s.notifierIDs) > 0 {
		s.notify.Enqueue(newTickEvent(s.simID, stats), s.notifierIDs)
	}
	return stats, nil
}

// Stop moves the stepper to its terminal state. Subsequent Step calls fail
// with ErrStopped.
func (s *Stepper) Stop() {
	s.state = Stopped
}
