// Package brownian is a minimal physics collaborator for the simulation
// core: point bodies drifting in a viscous medium inside a circular
// confinement boundary, with a spatial-hash broad-phase producing the
// per-tick candidate contact pairs. It deliberately stops short of rigid-body
// dynamics; the chemistry only needs positions and proximity.
package brownian

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/protocell/autopoiesim/internal/autopoiesis"
)

// Config tunes the medium.
type Config struct {
	// CenterX/CenterY is the center of the confinement circle.
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`

	// ConfinementRadius is the boundary radius; bodies reflect off it.
	ConfinementRadius float64 `json:"confinement_radius"`

	// InteractionRadius is the contact distance for candidate pairs.
	InteractionRadius float64 `json:"interaction_radius"`

	// DriftSigma is the standard deviation of the per-tick Brownian velocity
	// kick.
	DriftSigma float64 `json:"drift_sigma"`

	// Damping is the fraction of velocity retained each tick, modelling the
	// viscosity of the medium.
	Damping float64 `json:"damping"`

	// Seed drives the medium's own random stream. It is separate from the
	// chemistry's stream, so both stay individually replayable.
	Seed int64 `json:"seed"`
}

// DefaultConfig describes an 800x800 arena with a 200-unit confinement
// circle and a moderately viscous medium.
func DefaultConfig() Config {
	return Config{
		CenterX:           400,
		CenterY:           400,
		ConfinementRadius: 200,
		InteractionRadius: 24,
		DriftSigma:        3,
		Damping:           0.8,
		Seed:              1,
	}
}

// Validate rejects a config the medium cannot run with.
func (c Config) Validate() error {
	if c.ConfinementRadius <= 0 {
		return fmt.Errorf("confinement_radius must be positive, got %g", c.ConfinementRadius)
	}
	if c.InteractionRadius <= 0 {
		return fmt.Errorf("interaction_radius must be positive, got %g", c.InteractionRadius)
	}
	if c.Damping < 0 || c.Damping > 1 {
		return fmt.Errorf("damping must be in [0,1], got %g", c.Damping)
	}
	if c.DriftSigma < 0 {
		return fmt.Errorf("drift_sigma must not be negative, got %g", c.DriftSigma)
	}
	return nil
}

type body struct {
	x, y     float64
	vx, vy   float64
	anchored bool
}

// Space holds the bodies and implements autopoiesis.SteppablePhysics. All
// iteration happens in ascending handle order so that, for a fixed seed and
// body set, Advance and ContactPairs are fully deterministic.
type Space struct {
	cfg    Config
	bodies map[autopoiesis.Handle]*body
	rng    *rand.Rand
}

// NewSpace creates an empty medium.
func NewSpace(cfg Config) (*Space, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("brownian space: %w", err)
	}
	return &Space{
		cfg:    cfg,
		bodies: make(map[autopoiesis.Handle]*body),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// AddBody registers a body for the handle at the given position.
func (s *Space) AddBody(h autopoiesis.Handle, x, y float64) {
	s.bodies[h] = &body{x: x, y: y}
}

// AddBodyScattered registers a body at a uniformly random point inside the
// confinement circle, used when seeding the initial population.
func (s *Space) AddBodyScattered(h autopoiesis.Handle) {
	angle := s.rng.Float64() * 2 * math.Pi
	// sqrt keeps the distribution uniform over the disc area
	r := s.cfg.ConfinementRadius * math.Sqrt(s.rng.Float64())
	s.AddBody(h, s.cfg.CenterX+r*math.Cos(angle), s.cfg.CenterY+r*math.Sin(angle))
}

// AnchorBody exempts a body from the motion pass. Catalysts are anchored so
// reaction networks form around a fixed point instead of chasing a drifting
// catalyst.
func (s *Space) AnchorBody(h autopoiesis.Handle) {
	if b, ok := s.bodies[h]; ok {
		b.anchored = true
		b.vx, b.vy = 0, 0
	}
}

// RemoveBody drops the body for a handle, if present.
func (s *Space) RemoveBody(h autopoiesis.Handle) {
	delete(s.bodies, h)
}

// Position reports the body position for a handle.
func (s *Space) Position(h autopoiesis.Handle) (x, y float64, ok bool) {
	b, ok := s.bodies[h]
	if !ok {
		return 0, 0, false
	}
	return b.x, b.y, true
}

// Count returns the number of bodies.
func (s *Space) Count() int {
	return len(s.bodies)
}

func (s *Space) handles() []autopoiesis.Handle {
	out := make([]autopoiesis.Handle, 0, len(s.bodies))
	for h := range s.bodies {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Advance runs one tick of motion: a gaussian velocity kick, viscous
// damping, integration, and reflection off the confinement boundary.
// Anchored bodies sit out the pass and consume no randomness.
func (s *Space) Advance() {
	for _, h := range s.handles() {
		b := s.bodies[h]
		if b.anchored {
			continue
		}
		b.vx = (b.vx + s.rng.NormFloat64()*s.cfg.DriftSigma) * s.cfg.Damping
		b.vy = (b.vy + s.rng.NormFloat64()*s.cfg.DriftSigma) * s.cfg.Damping
		b.x += b.vx
		b.y += b.vy

		dx := b.x - s.cfg.CenterX
		dy := b.y - s.cfg.CenterY
		dist := math.Hypot(dx, dy)
		if dist > s.cfg.ConfinementRadius && dist > 0 {
			scale := s.cfg.ConfinementRadius / dist
			b.x = s.cfg.CenterX + dx*scale
			b.y = s.cfg.CenterY + dy*scale
			b.vx = -b.vx
			b.vy = -b.vy
		}
	}
}

// ContactPairs returns every unordered pair of bodies within the interaction
// radius, canonical order (smaller handle first), sorted by pair. A
// spatial-hash grid with cells of one interaction radius keeps this near
// linear in the body count.
func (s *Space) ContactPairs() []autopoiesis.Pair {
	cell := s.cfg.InteractionRadius
	grid := make(map[[2]int][]autopoiesis.Handle)
	order := s.handles()
	for _, h := range order {
		b := s.bodies[h]
		key := [2]int{int(math.Floor(b.x / cell)), int(math.Floor(b.y / cell))}
		grid[key] = append(grid[key], h)
	}

	r2 := s.cfg.InteractionRadius * s.cfg.InteractionRadius
	var pairs []autopoiesis.Pair
	for _, h := range order {
		b := s.bodies[h]
		cx := int(math.Floor(b.x / cell))
		cy := int(math.Floor(b.y / cell))
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for _, other := range grid[[2]int{cx + dx, cy + dy}] {
					// Each pair is visited twice; keep only the h < other visit.
					if other <= h {
						continue
					}
					ob := s.bodies[other]
					ddx := b.x - ob.x
					ddy := b.y - ob.y
					if ddx*ddx+ddy*ddy <= r2 {
						pairs = append(pairs, autopoiesis.Pair{A: h, B: other})
					}
				}
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

// SyncBodies adds bodies for created particles and removes destroyed ones.
// Creations are resolved first, so placement hints referencing bodies
// destroyed in the same tick still land at the right spot. A created body is
// placed at the midpoint of its hints (or on its single hint) with a small
// jitter; with no resolvable hint it lands at the arena center.
func (s *Space) SyncBodies(created []autopoiesis.CreatedBody, destroyed []autopoiesis.Handle) {
	for _, c := range created {
		x, y := s.spawnPoint(c)
		s.AddBody(c.Handle, x, y)
	}
	for _, h := range destroyed {
		s.RemoveBody(h)
	}
}

func (s *Space) spawnPoint(c autopoiesis.CreatedBody) (float64, float64) {
	var xs, ys []float64
	if x, y, ok := s.Position(c.NearA); ok {
		xs, ys = append(xs, x), append(ys, y)
	}
	if x, y, ok := s.Position(c.NearB); ok {
		xs, ys = append(xs, x), append(ys, y)
	}
	if len(xs) == 0 {
		return s.cfg.CenterX, s.cfg.CenterY
	}
	var x, y float64
	for i := range xs {
		x += xs[i]
		y += ys[i]
	}
	x /= float64(len(xs))
	y /= float64(len(ys))
	// Small jitter so stacked spawns separate.
	x += s.rng.NormFloat64()
	y += s.rng.NormFloat64()
	return x, y
}
