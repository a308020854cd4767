package autopoiesis

import (
	"encoding/json"
	"fmt"
)

// Handle is the stable identity of a particle. Handles are allocated from a
// monotonically increasing counter and are never reused, so a stale handle
// stays detectably stale forever.
type Handle uint64

// Kind classifies a particle. A particle's kind is immutable: transmutation
// (substrate becoming a link, a link breaking down into substrate) destroys
// the old handle and allocates a fresh one, which keeps identity and lifetime
// auditable in the mutation log.
type Kind int

const (
	// Substrate is a raw unbonded particle, convertible into a link by catalysis.
	Substrate Kind = iota
	// Catalyst enables substrate-to-link conversion without being consumed.
	Catalyst
	// Link is a structural particle capable of bonding to other links.
	Link
)

var kindNames = map[Kind]string{
	Substrate: "substrate",
	Catalyst:  "catalyst",
	Link:      "link",
}

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses a kind name as produced by String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown particle kind %q", s)
}

func (k Kind) valid() bool {
	_, ok := kindNames[k]
	return ok
}

// MarshalJSON encodes the kind as its name, keeping snapshots readable.
func (k Kind) MarshalJSON() ([]byte, error) {
	if !k.valid() {
		return nil, fmt.Errorf("cannot encode invalid kind %d", int(k))
	}
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind from its name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// bondCapacity returns how many bonds a particle of this kind may hold.
// Only links bond; the per-link limit comes from the configuration.
func (k Kind) bondCapacity(linkCapacity int) int {
	if k == Link {
		return linkCapacity
	}
	return 0
}

// Particle is the chemical state of one live particle. Position and velocity
// are owned by the physics collaborator and referenced via the handle only.
type Particle struct {
	Handle Handle `json:"handle"`
	Kind   Kind   `json:"kind"`
	Age    int64  `json:"age"`
}
