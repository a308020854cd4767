package autopoiesis

import "fmt"

// Config is the full tunable surface of a simulation. Probabilities are per
// roll, thresholds are in ticks. There are no other knobs: everything else
// the rules do is fixed behavior.
type Config struct {
	// PCatalyze is the chance a catalyst/substrate contact converts the
	// substrate into a link.
	PCatalyze float64 `json:"p_catalyze"`

	// PBond is the chance two eligible links in contact form a bond.
	PBond float64 `json:"p_bond"`

	// PDecay is the chance an unbonded link past DecayThreshold reverts to
	// substrate on a given tick.
	PDecay float64 `json:"p_decay"`

	// PUnbond is the chance a bond past BondAgeLimit breaks on a given tick.
	PUnbond float64 `json:"p_unbond"`

	// DecayThreshold is the age, in ticks, a link must exceed before it can
	// decay.
	DecayThreshold int64 `json:"decay_threshold"`

	// BondAgeLimit is the age, in ticks, a bond must exceed before it can
	// break.
	BondAgeLimit int64 `json:"bond_age_limit"`

	// BondCapacity is the number of bond slots per link.
	BondCapacity int `json:"bond_capacity"`

	// InteractionRadius is the contact distance handed to the physics
	// collaborator for candidate-pair detection.
	InteractionRadius float64 `json:"interaction_radius"`

	// MaxParticles caps the live population. Creation degrades gracefully at
	// the cap instead of failing the tick.
	MaxParticles int `json:"max_particles"`

	// RNGSeed seeds the single pseudo-random stream owned by the stepper.
	// Identical seed, population and candidate order reproduce a run
	// bit-for-bit.
	RNGSeed int64 `json:"rng_seed"`
}

// DefaultConfig favors chain formation: slow decay, moderately reactive
// catalysis, two bond slots per link.
func DefaultConfig() Config {
	return Config{
		PCatalyze:         0.15,
		PBond:             0.5,
		PDecay:            0.01,
		PUnbond:           0.005,
		DecayThreshold:    1000,
		BondAgeLimit:      1500,
		BondCapacity:      2,
		InteractionRadius: 24,
		MaxParticles:      2000,
		RNGSeed:           1,
	}
}

// Validate rejects malformed configurations at world construction time.
// It reports every issue found, not just the first.
func (c Config) Validate() error {
	errs := &ValidationError{}

	probs := []struct {
		name  string
		value float64
	}{
		{"p_catalyze", c.PCatalyze},
		{"p_bond", c.PBond},
		{"p_decay", c.PDecay},
		{"p_unbond", c.PUnbond},
	}
	for _, p := range probs {
		if p.value < 0 || p.value > 1 {
			errs.Add(fmt.Sprintf("%s must be in [0,1], got %g", p.name, p.value))
		}
	}

	if c.DecayThreshold < 0 {
		errs.Add(fmt.Sprintf("decay_threshold must not be negative, got %d", c.DecayThreshold))
	}
	if c.BondAgeLimit < 0 {
		errs.Add(fmt.Sprintf("bond_age_limit must not be negative, got %d", c.BondAgeLimit))
	}
	if c.BondCapacity < 1 {
		errs.Add(fmt.Sprintf("bond_capacity must be at least 1, got %d", c.BondCapacity))
	}
	if c.InteractionRadius <= 0 {
		errs.Add(fmt.Sprintf("interaction_radius must be positive, got %g", c.InteractionRadius))
	}
	if c.MaxParticles < 1 {
		errs.Add(fmt.Sprintf("max_particles must be at least 1, got %d", c.MaxParticles))
	}

	if errs.HasIssues() {
		return errs
	}
	return nil
}
