package autopoiesis

import "fmt"

// Op identifies the type of a queued mutation.
type Op int

const (
	OpCreate Op = iota
	OpDestroy
	OpBond
	OpUnbond
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpDestroy:
		return "destroy"
	case OpBond:
		return "bond"
	case OpUnbond:
		return "unbond"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Mutation is one queued world change. Only the fields relevant to its Op are
// set. Creates carry up to two placement hints, handles of particles near
// which the physics collaborator should place the new body; the hints always
// reference particles that were live when the tick began.
type Mutation struct {
	Op   Op
	Rule string

	// OpCreate
	Kind         Kind
	NearA, NearB Handle

	// OpDestroy
	Target Handle

	// OpBond
	A, B Handle

	// OpUnbond
	Bond BondID
}

// Batch is the ordered mutation set produced by one engine evaluation. It is
// accumulated during evaluation and applied to the world in one go at end of
// tick, so no rule ever observes a half-applied tick.
type Batch struct {
	Ops     []Mutation
	Firings map[string]int
}

func newBatch() *Batch {
	return &Batch{Firings: make(map[string]int)}
}

func (b *Batch) add(m Mutation) {
	b.Ops = append(b.Ops, m)
}

func (b *Batch) fired(rule string) {
	b.Firings[rule]++
}

// Len returns the number of queued mutations.
func (b *Batch) Len() int {
	return len(b.Ops)
}

// Log renders the batch as deterministic replay-log lines. Two runs with the
// same seed, population and candidate order produce identical logs.
func (b *Batch) Log() []string {
	out := make([]string, 0, len(b.Ops))
	for _, m := range b.Ops {
		switch m.Op {
		case OpCreate:
			out = append(out, fmt.Sprintf("create kind=%s near=%d/%d rule=%s", m.Kind, m.NearA, m.NearB, m.Rule))
		case OpDestroy:
			out = append(out, fmt.Sprintf("destroy handle=%d rule=%s", m.Target, m.Rule))
		case OpBond:
			out = append(out, fmt.Sprintf("bond pair=%d-%d rule=%s", m.A, m.B, m.Rule))
		case OpUnbond:
			out = append(out, fmt.Sprintf("unbond id=%d rule=%s", m.Bond, m.Rule))
		}
	}
	return out
}
