package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/protocell/autopoiesim/internal/autopoiesis"
)

func openTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snapshots", "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshot(tick int64) autopoiesis.Snapshot {
	return autopoiesis.Snapshot{
		Tick:       tick,
		NextHandle: 4,
		NextBond:   2,
		Particles: []autopoiesis.Particle{
			{Handle: 1, Kind: autopoiesis.Link, Age: 3},
			{Handle: 2, Kind: autopoiesis.Link, Age: 3},
			{Handle: 3, Kind: autopoiesis.Catalyst},
		},
		Bonds: []autopoiesis.Bond{{ID: 1, A: 1, B: 2, Age: 1}},
	}
}

func TestSnapshotStore_SaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	snap := sampleSnapshot(10)
	if err := s.Save("sim-1", snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Load("sim-1", 10)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Tick != 10 || len(got.Particles) != 3 || len(got.Bonds) != 1 {
		t.Errorf("unexpected snapshot: %+v", got)
	}
	if got.NextHandle != 4 || got.NextBond != 2 {
		t.Errorf("identity counters lost: %+v", got)
	}
	if got.Particles[0].Kind != autopoiesis.Link {
		t.Errorf("kind not preserved: %+v", got.Particles[0])
	}
}

func TestSnapshotStore_SaveOverwritesSameTick(t *testing.T) {
	s := openTestStore(t)

	first := sampleSnapshot(5)
	if err := s.Save("sim-1", first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	second := sampleSnapshot(5)
	second.Particles = second.Particles[:1]
	second.Bonds = nil
	if err := s.Save("sim-1", second); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, err := s.Load("sim-1", 5)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Particles) != 1 || len(got.Bonds) != 0 {
		t.Errorf("overwrite did not take: %+v", got)
	}
}

func TestSnapshotStore_LoadMissingIsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load("sim-1", 99)
	if !errors.Is(err, autopoiesis.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotStore_LoadLatest(t *testing.T) {
	s := openTestStore(t)

	if _, ok, err := s.LoadLatest("sim-1"); err != nil || ok {
		t.Fatalf("empty store: got ok=%v err=%v", ok, err)
	}

	for _, tick := range []int64{10, 30, 20} {
		if err := s.Save("sim-1", sampleSnapshot(tick)); err != nil {
			t.Fatalf("Save tick %d failed: %v", tick, err)
		}
	}
	// A second simulation must not bleed into the first.
	if err := s.Save("sim-2", sampleSnapshot(99)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, ok, err := s.LoadLatest("sim-1")
	if err != nil || !ok {
		t.Fatalf("LoadLatest failed: ok=%v err=%v", ok, err)
	}
	if got.Tick != 30 {
		t.Errorf("expected latest tick 30, got %d", got.Tick)
	}
}

func TestSnapshotStore_TicksAndPrune(t *testing.T) {
	s := openTestStore(t)
	for _, tick := range []int64{5, 15, 25, 35} {
		if err := s.Save("sim-1", sampleSnapshot(tick)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	ticks, err := s.Ticks("sim-1")
	if err != nil {
		t.Fatalf("Ticks failed: %v", err)
	}
	want := []int64{5, 15, 25, 35}
	if len(ticks) != len(want) {
		t.Fatalf("expected %v, got %v", want, ticks)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Fatalf("ticks not ascending: %v", ticks)
		}
	}

	if err := s.Prune("sim-1", 20); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	ticks, err = s.Ticks("sim-1")
	if err != nil {
		t.Fatalf("Ticks after prune failed: %v", err)
	}
	if len(ticks) != 2 || ticks[0] != 25 || ticks[1] != 35 {
		t.Errorf("expected [25 35] after prune, got %v", ticks)
	}
}
