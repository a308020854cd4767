package autopoiesis

import (
	"fmt"
	"sort"
)

// Registry owns the authoritative set of live particles. It assigns handles
// from a monotonic counter and holds kind/age per handle; positions live in
// the physics collaborator.
type Registry struct {
	max       int
	next      Handle
	particles map[Handle]*Particle

	// onDestroy runs before the handle is invalidated, so the bond ledger can
	// cascade-remove bonds while the particle is still resolvable.
	onDestroy func(Handle)

	log Logger
}

func newRegistry(maxParticles int, log Logger) *Registry {
	if log == nil {
		log = NewNoOpLogger()
	}
	return &Registry{
		max:       maxParticles,
		next:      1,
		particles: make(map[Handle]*Particle),
		log:       log,
	}
}

// Create allocates a fresh handle for a particle of the given kind and age.
// It fails with ErrCapacityExceeded once the world particle cap is reached.
func (r *Registry) Create(kind Kind, age int64) (Handle, error) {
	if !kind.valid() {
		return 0, fmt.Errorf("create particle: %w: kind %d", ErrInvalidParticipant, int(kind))
	}
	if len(r.particles) >= r.max {
		return 0, fmt.Errorf("create particle: %w: world cap %d reached", ErrCapacityExceeded, r.max)
	}
	h := r.next
	r.next++
	r.particles[h] = &Particle{Handle: h, Kind: kind, Age: age}
	r.log.Debugf("particle created: handle=%d kind=%s", h, kind)
	return h, nil
}

// Destroy removes a live particle. Destroying a stale handle fails with
// ErrNotFound; callers are expected to check liveness first, since a double
// destroy signals a logic error upstream. Bonds referencing the particle are
// cascade-removed before the handle is invalidated.
func (r *Registry) Destroy(h Handle) error {
	p, ok := r.particles[h]
	if !ok {
		return fmt.Errorf("destroy particle %d: %w", h, ErrNotFound)
	}
	if r.onDestroy != nil {
		r.onDestroy(h)
	}
	delete(r.particles, h)
	r.log.Debugf("particle destroyed: handle=%d kind=%s age=%d", h, p.Kind, p.Age)
	return nil
}

// Get returns the state of a live particle, or ErrNotFound for a stale handle.
func (r *Registry) Get(h Handle) (Particle, error) {
	p, ok := r.particles[h]
	if !ok {
		return Particle{}, fmt.Errorf("get particle %d: %w", h, ErrNotFound)
	}
	return *p, nil
}

// Live reports whether the handle refers to a live particle.
func (r *Registry) Live(h Handle) bool {
	_, ok := r.particles[h]
	return ok
}

// Len returns the live particle count.
func (r *Registry) Len() int {
	return len(r.particles)
}

// Count returns the number of live particles of the given kind. Counts are
// always derived by scanning, never cached, so they cannot drift.
func (r *Registry) Count(kind Kind) int {
	n := 0
	for _, p := range r.particles {
		if p.Kind == kind {
			n++
		}
	}
	return n
}

// Handles returns all live handles in ascending order. The deterministic
// order matters: the decay sweep iterates it and consumes random rolls.
func (r *Registry) Handles() []Handle {
	out := make([]Handle, 0, len(r.particles))
	for h := range r.particles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) ageAll() {
	for _, p := range r.particles {
		p.Age++
	}
}

// restore inserts a particle with an explicit handle, used when rebuilding a
// world from a snapshot. The identity counter never moves backwards.
func (r *Registry) restore(p Particle) error {
	if !p.Kind.valid() {
		return fmt.Errorf("restore particle %d: %w: kind %d", p.Handle, ErrInvalidParticipant, int(p.Kind))
	}
	if p.Handle == 0 {
		return fmt.Errorf("restore particle: handle must not be zero")
	}
	if _, exists := r.particles[p.Handle]; exists {
		return fmt.Errorf("restore particle %d: duplicate handle", p.Handle)
	}
	if len(r.particles) >= r.max {
		return fmt.Errorf("restore particle %d: %w: world cap %d reached", p.Handle, ErrCapacityExceeded, r.max)
	}
	cp := p
	r.particles[p.Handle] = &cp
	if p.Handle >= r.next {
		r.next = p.Handle + 1
	}
	return nil
}
