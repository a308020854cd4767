package main

import (
	"net/http"

	"github.com/protocell/autopoiesim/internal/store"
)

func main() {
	cfg, err := loadServerConfig()
	if err != nil {
		NewLogger("error").Fatalf("Failed to load configuration: %v", err)
	}
	logger := NewLogger(cfg.LogLevel)

	snapshots, err := store.Open(cfg.SnapshotDB)
	if err != nil {
		logger.Fatalf("Failed to open snapshot store: path=%s error=%v", cfg.SnapshotDB, err)
	}
	defer snapshots.Close()

	srv, err := NewServer(logger, snapshots, cfg.SnapshotEveryTicks)
	if err != nil {
		logger.Fatalf("Failed to build server: %v", err)
	}
	defer srv.Close()

	if cfg.WorldFile != "" {
		spec, err := loadWorldSpecFromFile(cfg.WorldFile)
		if err != nil {
			logger.Fatalf("Failed to load world file: path=%s error=%v", cfg.WorldFile, err)
		}
		if _, err := srv.createWorld(spec); err != nil {
			logger.Fatalf("Failed to create initial world: %v", err)
		}
		logger.Infof("Initial world created from %s", cfg.WorldFile)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/world", srv.handleWorldRoutes)
	mux.HandleFunc("/world/", srv.handleWorldRoutes)
	mux.HandleFunc("/notifiers", srv.handleNotifiersRoutes)
	mux.HandleFunc("/notifiers/", srv.handleNotifiersRoutes)
	mux.HandleFunc("/live", srv.handleLive)
	mux.Handle("/metrics", srv.metrics.Handler())

	logger.Infof("autopoiesim-server listening on %s", cfg.Addr)
	logger.Fatalf("%v", http.ListenAndServe(cfg.Addr, mux))
}
