package main

import (
	"fmt"
	"sync"

	"github.com/protocell/autopoiesim/internal/autopoiesis"
	"github.com/protocell/autopoiesim/internal/autopoiesis/notifiers"
	"github.com/protocell/autopoiesim/internal/brownian"
	"github.com/protocell/autopoiesim/internal/store"
)

// worldSimID is the id of the single world this server exposes.
const worldSimID autopoiesis.SimID = "world"

// liveNotifierID is the websocket notifier backing the /live feed.
const liveNotifierID = "live"

// coreLoggerAdapter adapts the server's Logger to the autopoiesis.Logger
// interface.
type coreLoggerAdapter struct {
	logger *Logger
}

func (a *coreLoggerAdapter) Debugf(format string, v ...any) {
	a.logger.Debugf(format, v...)
}

func (a *coreLoggerAdapter) Infof(format string, v ...any) {
	a.logger.Infof(format, v...)
}

func (a *coreLoggerAdapter) Warnf(format string, v ...any) {
	a.logger.Warnf(format, v...)
}

func (a *coreLoggerAdapter) Errorf(format string, v ...any) {
	a.logger.Errorf(format, v...)
}

// Server is the HTTP control surface over one simulated world. The core is
// single threaded, so mu serializes every touch of the world: handlers hold
// the write lock across creation, deletion and stepping, and the read lock
// across scans of the registry and ledger.
type Server struct {
	mu sync.RWMutex

	manager   *autopoiesis.SimManager
	notifyMgr *autopoiesis.NotificationManager
	live      *notifiers.WebSocketNotifier
	snapshots *store.SnapshotStore
	metrics   *Metrics
	logger    *Logger

	snapshotEveryTicks int64
	lastStats          autopoiesis.TickStats
}

// NewServer wires the simulation manager, the notification fan-out with its
// websocket live feed, the snapshot store and the metrics registry.
func NewServer(logger *Logger, snapshots *store.SnapshotStore, snapshotEveryTicks int64) (*Server, error) {
	coreLogger := &coreLoggerAdapter{logger: logger}
	notifyMgr := autopoiesis.NewNotificationManager(coreLogger)

	live := notifiers.NewWebSocketNotifier(liveNotifierID)
	if err := notifyMgr.Register(live); err != nil {
		return nil, fmt.Errorf("register live notifier: %w", err)
	}

	return &Server{
		manager:            autopoiesis.NewSimManager(coreLogger),
		notifyMgr:          notifyMgr,
		live:               live,
		snapshots:          snapshots,
		metrics:            NewMetrics(),
		logger:             logger,
		snapshotEveryTicks: snapshotEveryTicks,
	}, nil
}

// createWorld builds a world from the spec and installs it as the server's
// world, replacing any existing one. The caller holds the write lock on s.mu.
func (s *Server) createWorld(spec worldSpec) (*autopoiesis.Simulation, error) {
	if _, exists := s.manager.Get(worldSimID); exists {
		if err := s.manager.Delete(worldSimID); err != nil {
			return nil, fmt.Errorf("replace world: %w", err)
		}
	}

	space, err := brownian.NewSpace(spec.Medium)
	if err != nil {
		return nil, err
	}
	sim, err := s.manager.Create(worldSimID, spec.Chemistry, space)
	if err != nil {
		return nil, err
	}

	handles, err := sim.World.Seed(spec.SeedCatalysts, spec.SeedSubstrates)
	if err != nil {
		s.manager.Delete(worldSimID)
		return nil, fmt.Errorf("seed world: %w", err)
	}
	for _, h := range handles {
		space.AddBodyScattered(h)
		if p, err := sim.World.Registry().Get(h); err == nil && p.Kind == autopoiesis.Catalyst {
			space.AnchorBody(h)
		}
	}

	sim.Stepper.SetNotifications(s.notifyMgr, []string{liveNotifierID}, string(worldSimID))
	s.lastStats = autopoiesis.TickStats{Counts: sim.World.Counts()}
	s.metrics.SetCounts(s.lastStats.Counts)
	return sim, nil
}

// world returns the current simulation, if one exists.
func (s *Server) world() (*autopoiesis.Simulation, bool) {
	return s.manager.Get(worldSimID)
}

// step advances the world n ticks, recording metrics and periodic snapshots.
// The caller holds the write lock on s.mu.
func (s *Server) step(sim *autopoiesis.Simulation, n int) (autopoiesis.TickStats, error) {
	var stats autopoiesis.TickStats
	for i := 0; i < n; i++ {
		var err error
		stats, err = sim.Tick()
		if err != nil {
			return stats, err
		}
		s.metrics.ObserveTick(stats)

		if s.snapshotEveryTicks > 0 && stats.Tick%s.snapshotEveryTicks == 0 {
			snap := sim.World.Snapshot(stats.Tick)
			if err := s.snapshots.Save(string(worldSimID), snap); err != nil {
				s.logger.Errorf("Periodic snapshot failed: tick=%d error=%v", stats.Tick, err)
			} else {
				s.logger.Debugf("Periodic snapshot saved: tick=%d", stats.Tick)
			}
		}
	}
	s.lastStats = stats
	return stats, nil
}

// Close releases the server's resources.
func (s *Server) Close() error {
	return s.notifyMgr.Close()
}
