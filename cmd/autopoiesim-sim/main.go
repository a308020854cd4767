package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/protocell/autopoiesim/internal/autopoiesis"
	"github.com/protocell/autopoiesim/internal/brownian"
)

// worldSpec mirrors the server's world creation body, so the same JSON file
// drives both commands.
type worldSpec struct {
	Chemistry      autopoiesis.Config `json:"chemistry"`
	Medium         brownian.Config    `json:"medium"`
	SeedCatalysts  int                `json:"seed_catalysts"`
	SeedSubstrates int                `json:"seed_substrates"`
}

func main() {
	var (
		worldFile  = flag.String("world-file", "", "path to world config JSON file (optional)")
		ticks      = flag.Int("ticks", 1000, "number of ticks to run")
		catalysts  = flag.Int("catalysts", 1, "initial catalyst count (overridden by world file)")
		substrates = flag.Int("substrates", 200, "initial substrate count (overridden by world file)")
		seed       = flag.Int64("seed", 1, "chemistry RNG seed (overridden by world file)")
		outFile    = flag.String("snapshot-out", "", "path to write the final snapshot JSON (optional)")
	)
	flag.Parse()

	spec := worldSpec{
		Chemistry:      autopoiesis.DefaultConfig(),
		Medium:         brownian.DefaultConfig(),
		SeedCatalysts:  *catalysts,
		SeedSubstrates: *substrates,
	}
	spec.Chemistry.RNGSeed = *seed
	spec.Medium.Seed = *seed

	if *worldFile != "" {
		if err := loadWorldSpec(*worldFile, &spec); err != nil {
			fmt.Fprintf(os.Stderr, "error loading world file: %v\n", err)
			os.Exit(1)
		}
	}

	world, err := autopoiesis.NewWorld(spec.Chemistry, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating world: %v\n", err)
		os.Exit(1)
	}
	space, err := brownian.NewSpace(spec.Medium)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating medium: %v\n", err)
		os.Exit(1)
	}

	handles, err := world.Seed(spec.SeedCatalysts, spec.SeedSubstrates)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error seeding world: %v\n", err)
		os.Exit(1)
	}
	for _, h := range handles {
		space.AddBodyScattered(h)
		if p, err := world.Registry().Get(h); err == nil && p.Kind == autopoiesis.Catalyst {
			space.AnchorBody(h)
		}
	}

	sim := &autopoiesis.Simulation{
		ID:      "simulation",
		World:   world,
		Stepper: autopoiesis.NewStepper(world, space, nil),
		Physics: space,
	}

	firings := make(map[string]int)
	for i := 0; i < *ticks; i++ {
		stats, err := sim.Tick()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error at tick %d: %v\n", i, err)
			os.Exit(1)
		}
		for rule, n := range stats.Firings {
			firings[rule] += n
		}
	}

	printSummary(*ticks, world, firings)

	if *outFile != "" {
		if err := writeSnapshot(*outFile, world, sim.Stepper.Tick()); err != nil {
			fmt.Fprintf(os.Stderr, "error writing snapshot: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Snapshot written to %s\n", *outFile)
	}
}

func loadWorldSpec(path string, spec *worldSpec) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading world file: %w", err)
	}
	if err := json.Unmarshal(data, spec); err != nil {
		return fmt.Errorf("parsing world JSON: %w", err)
	}
	if err := spec.Chemistry.Validate(); err != nil {
		return fmt.Errorf("validating chemistry config: %w", err)
	}
	if err := spec.Medium.Validate(); err != nil {
		return fmt.Errorf("validating medium config: %w", err)
	}
	return nil
}

func writeSnapshot(path string, world *autopoiesis.World, tick int64) error {
	data, err := autopoiesis.EncodeSnapshotJSON(world.Snapshot(tick))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func printSummary(ticks int, world *autopoiesis.World, firings map[string]int) {
	counts := world.Counts()

	fmt.Printf("Simulation finished (ticks=%d)\n", ticks)
	fmt.Println("Population:")
	fmt.Printf("  %s: %d\n", autopoiesis.Substrate, counts.Substrates)
	fmt.Printf("  %s: %d\n", autopoiesis.Catalyst, counts.Catalysts)
	fmt.Printf("  %s: %d\n", autopoiesis.Link, counts.Links)
	fmt.Printf("  bonds: %d\n", counts.Bonds)
	fmt.Println("Rule firings:")
	for _, rule := range []string{
		autopoiesis.RuleCatalysis,
		autopoiesis.RuleBonding,
		autopoiesis.RuleDecay,
		autopoiesis.RuleBondDecay,
	} {
		fmt.Printf("  %s: %d\n", rule, firings[rule])
	}
}
