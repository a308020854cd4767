package brownian

import (
	"math"
	"testing"

	"github.com/protocell/autopoiesim/internal/autopoiesis"
)

func newTestSpace(t *testing.T, cfg Config) *Space {
	t.Helper()
	s, err := NewSpace(cfg)
	if err != nil {
		t.Fatalf("NewSpace failed: %v", err)
	}
	return s
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate, got %v", err)
	}
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero confinement radius", func(c *Config) { c.ConfinementRadius = 0 }},
		{"zero interaction radius", func(c *Config) { c.InteractionRadius = 0 }},
		{"damping above one", func(c *Config) { c.Damping = 1.2 }},
		{"negative drift", func(c *Config) { c.DriftSigma = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if cfg.Validate() == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSpace_ContactPairsCanonicalAndSorted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InteractionRadius = 10
	s := newTestSpace(t, cfg)

	// A cluster of three within range and one far outlier.
	s.AddBody(3, 400, 400)
	s.AddBody(1, 404, 400)
	s.AddBody(2, 400, 405)
	s.AddBody(9, 500, 500)

	pairs := s.ContactPairs()
	want := []autopoiesis.Pair{{A: 1, B: 2}, {A: 1, B: 3}, {A: 2, B: 3}}
	if len(pairs) != len(want) {
		t.Fatalf("expected %d pairs, got %v", len(want), pairs)
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Fatalf("pairs not canonical/sorted: %v", pairs)
		}
	}
}

func TestSpace_ContactPairsAcrossGridCells(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InteractionRadius = 10
	s := newTestSpace(t, cfg)

	// Bodies within radius but in adjacent hash cells.
	s.AddBody(1, 399, 400)
	s.AddBody(2, 401, 400)

	pairs := s.ContactPairs()
	if len(pairs) != 1 || pairs[0] != (autopoiesis.Pair{A: 1, B: 2}) {
		t.Errorf("expected pair across cell boundary, got %v", pairs)
	}
}

func TestSpace_AdvanceIsDeterministic(t *testing.T) {
	run := func() []autopoiesis.Pair {
		cfg := DefaultConfig()
		cfg.Seed = 7
		s := newTestSpace(t, cfg)
		for h := autopoiesis.Handle(1); h <= 20; h++ {
			s.AddBodyScattered(h)
		}
		for i := 0; i < 50; i++ {
			s.Advance()
		}
		return s.ContactPairs()
	}

	p1 := run()
	p2 := run()
	if len(p1) != len(p2) {
		t.Fatalf("runs diverged: %d vs %d pairs", len(p1), len(p2))
	}
	for i := range p1 {
		if p1[i] != p2[i] {
			t.Fatalf("runs diverged at pair %d: %v vs %v", i, p1[i], p2[i])
		}
	}
}

func TestSpace_AnchoredBodySitsOutMotion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DriftSigma = 10
	s := newTestSpace(t, cfg)

	s.AddBody(1, 400, 400)
	s.AnchorBody(1)
	s.AddBody(2, 420, 400)

	for i := 0; i < 100; i++ {
		s.Advance()
	}

	x, y, ok := s.Position(1)
	if !ok {
		t.Fatal("anchored body vanished")
	}
	if x != 400 || y != 400 {
		t.Errorf("anchored body moved: %g,%g", x, y)
	}
	x, y, _ = s.Position(2)
	if x == 420 && y == 400 {
		t.Error("free body never moved")
	}
}

func TestSpace_AnchorUnknownHandleIsNoOp(t *testing.T) {
	s := newTestSpace(t, DefaultConfig())
	s.AnchorBody(42)
	if s.Count() != 0 {
		t.Errorf("expected empty space, got %d bodies", s.Count())
	}
}

func TestSpace_ConfinementHolds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DriftSigma = 20 // violent medium to probe the boundary
	s := newTestSpace(t, cfg)
	for h := autopoiesis.Handle(1); h <= 10; h++ {
		s.AddBodyScattered(h)
	}

	for i := 0; i < 200; i++ {
		s.Advance()
		for h := autopoiesis.Handle(1); h <= 10; h++ {
			x, y, ok := s.Position(h)
			if !ok {
				t.Fatalf("body %d vanished", h)
			}
			dist := math.Hypot(x-cfg.CenterX, y-cfg.CenterY)
			if dist > cfg.ConfinementRadius+1e-9 {
				t.Fatalf("body %d escaped confinement: dist=%g", h, dist)
			}
		}
	}
}

func TestSpace_SyncBodiesPlacesNearHints(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestSpace(t, cfg)
	s.AddBody(1, 300, 300)
	s.AddBody(2, 320, 300)

	// Hint B is destroyed in the same sync; its position must still be used.
	s.SyncBodies(
		[]autopoiesis.CreatedBody{{Handle: 5, Kind: autopoiesis.Link, NearA: 1, NearB: 2}},
		[]autopoiesis.Handle{2},
	)

	if s.Count() != 2 {
		t.Fatalf("expected 2 bodies after sync, got %d", s.Count())
	}
	if _, _, ok := s.Position(2); ok {
		t.Error("destroyed body still present")
	}
	x, y, ok := s.Position(5)
	if !ok {
		t.Fatal("created body has no position")
	}
	// Near the 310,300 midpoint, allowing for spawn jitter.
	if math.Hypot(x-310, y-300) > 10 {
		t.Errorf("spawn too far from hint midpoint: %g,%g", x, y)
	}
}

func TestSpace_SyncBodiesWithoutHintsUsesCenter(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestSpace(t, cfg)

	s.SyncBodies([]autopoiesis.CreatedBody{{Handle: 1, Kind: autopoiesis.Substrate}}, nil)
	x, y, ok := s.Position(1)
	if !ok {
		t.Fatal("created body has no position")
	}
	if math.Hypot(x-cfg.CenterX, y-cfg.CenterY) > 10 {
		t.Errorf("hintless spawn should land near center, got %g,%g", x, y)
	}
}
