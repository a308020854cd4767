package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"

	"github.com/protocell/autopoiesim/internal/autopoiesis"
	"github.com/protocell/autopoiesim/internal/brownian"
)

// ServerConfig holds the server configuration. Values come from environment
// variables first, then CLI flags override them.
type ServerConfig struct {
	Addr               string `env:"AUTOPOIESIM_ADDR" envDefault:":8080"`
	LogLevel           string `env:"AUTOPOIESIM_LOG_LEVEL" envDefault:"info"`
	WorldFile          string `env:"AUTOPOIESIM_WORLD_FILE"`
	SnapshotDB         string `env:"AUTOPOIESIM_SNAPSHOT_DB" envDefault:"./data/autopoiesim.db"`
	SnapshotEveryTicks int64  `env:"AUTOPOIESIM_SNAPSHOT_EVERY_TICKS" envDefault:"1000"`
}

// loadServerConfig resolves the server configuration from environment
// variables and CLI flags.
func loadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse env: %w", err)
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address (e.g. :8080, 0.0.0.0:8080)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	flag.StringVar(&cfg.WorldFile, "world-file", cfg.WorldFile, "optional path to a world config JSON file to create at startup")
	flag.StringVar(&cfg.SnapshotDB, "snapshot-db", cfg.SnapshotDB, "path to the SQLite snapshot database")
	flag.Int64Var(&cfg.SnapshotEveryTicks, "snapshot-every-ticks", cfg.SnapshotEveryTicks, "how often to persist snapshots (in ticks); 0 disables periodic snapshots")
	flag.Parse()

	return cfg, nil
}

// worldSpec is the JSON body creating (or replacing) the world: chemistry
// config, medium config, and the initial population.
type worldSpec struct {
	Chemistry      autopoiesis.Config `json:"chemistry"`
	Medium         brownian.Config    `json:"medium"`
	SeedCatalysts  int                `json:"seed_catalysts"`
	SeedSubstrates int                `json:"seed_substrates"`
}

// defaultWorldSpec is the classic setup: one catalyst in a field of
// substrate.
func defaultWorldSpec() worldSpec {
	return worldSpec{
		Chemistry:      autopoiesis.DefaultConfig(),
		Medium:         brownian.DefaultConfig(),
		SeedCatalysts:  1,
		SeedSubstrates: 200,
	}
}

// loadWorldSpecFromFile reads a world spec from a JSON file, filling omitted
// sections with defaults.
func loadWorldSpecFromFile(path string) (worldSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return worldSpec{}, fmt.Errorf("reading world file: %w", err)
	}
	spec := defaultWorldSpec()
	if err := json.Unmarshal(data, &spec); err != nil {
		return worldSpec{}, fmt.Errorf("parsing world JSON: %w", err)
	}
	if err := spec.Chemistry.Validate(); err != nil {
		return worldSpec{}, fmt.Errorf("validating chemistry config: %w", err)
	}
	if err := spec.Medium.Validate(); err != nil {
		return worldSpec{}, fmt.Errorf("validating medium config: %w", err)
	}
	return spec, nil
}
