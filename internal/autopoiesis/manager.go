package autopoiesis

import (
	"fmt"
	"sort"
	"sync"
)

// SimID names a simulation managed by a SimManager.
type SimID string

// Simulation bundles a world with its stepper and physics collaborator.
type Simulation struct {
	ID      SimID
	World   *World
	Stepper *Stepper
	Physics SteppablePhysics
}

// Tick advances the physics collaborator to the next tick boundary and then
// steps the world once.
func (s *Simulation) Tick() (TickStats, error) {
	if s.Physics != nil {
		s.Physics.Advance()
	}
	return s.Stepper.Step()
}

// SimManager owns a set of named, mutually isolated simulations. Each
// simulation is single-threaded internally; the manager only guards the map.
type SimManager struct {
	mu   sync.RWMutex
	sims map[SimID]*Simulation
	log  Logger
}

// NewSimManager creates an empty manager.
func NewSimManager(log Logger) *SimManager {
	if log == nil {
		log = NewNoOpLogger()
	}
	return &SimManager{
		sims: make(map[SimID]*Simulation),
		log:  log,
	}
}

// Create builds a world from the configuration and registers it under the
// given id. It fails if the id is taken or the config is invalid.
func (m *SimManager) Create(id SimID, cfg Config, physics SteppablePhysics) (*Simulation, error) {
	if id == "" {
		return nil, fmt.Errorf("simulation id must not be empty")
	}
	world, err := NewWorld(cfg, m.log)
	if err != nil {
		return nil, fmt.Errorf("create simulation %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sims[id]; exists {
		return nil, fmt.Errorf("simulation %s already exists", id)
	}
	sim := &Simulation{
		ID:      id,
		World:   world,
		Stepper: NewStepper(world, physics, m.log),
		Physics: physics,
	}
	m.sims[id] = sim
	m.log.Infof("simulation created: id=%s max_particles=%d seed=%d", id, cfg.MaxParticles, cfg.RNGSeed)
	return sim, nil
}

// Adopt registers an externally built simulation (e.g. restored from a
// snapshot) under its id.
func (m *SimManager) Adopt(sim *Simulation) error {
	if sim == nil || sim.ID == "" {
		return fmt.Errorf("simulation must have an id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sims[sim.ID]; exists {
		return fmt.Errorf("simulation %s already exists", sim.ID)
	}
	m.sims[sim.ID] = sim
	return nil
}

// Get returns a simulation by id.
func (m *SimManager) Get(id SimID) (*Simulation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sim, exists := m.sims[id]
	return sim, exists
}

// Delete stops and removes a simulation.
func (m *SimManager) Delete(id SimID) error {
	m.mu.Lock()
	sim, exists := m.sims[id]
	if exists {
		delete(m.sims, id)
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("simulation %s: %w", id, ErrNotFound)
	}
	sim.Stepper.Stop()
	m.log.Infof("simulation deleted: id=%s", id)
	return nil
}

// List returns the simulation ids in sorted order.
func (m *SimManager) List() []SimID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]SimID, 0, len(m.sims))
	for id := range m.sims {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
