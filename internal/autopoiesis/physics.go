package autopoiesis

// Physics is the collaborator that owns particle positions, velocities and
// the spatial broad-phase. The core references bodies by handle only and must
// never observe a half-updated physics state: ContactPairs reflects exactly
// one consistent snapshot per tick boundary.
type Physics interface {
	// ContactPairs returns this tick's deduplicated, unordered candidate
	// pairs within the interaction radius, in a stable order. The engine
	// processes them in the order given, which makes the order part of the
	// reproducibility contract.
	ContactPairs() []Pair

	// SyncBodies reports the particles created and destroyed by the tick
	// just applied, so the collaborator can add and remove matching bodies.
	// Placement hints on created bodies reference particles that were live
	// when the tick began; implementations must resolve hints before
	// processing removals.
	SyncBodies(created []CreatedBody, destroyed []Handle)
}

// SteppablePhysics is a physics collaborator that also runs its own
// integration substeps. Advance brings the collaborator to the next tick
// boundary; the core never calls it mid-tick.
type SteppablePhysics interface {
	Physics
	Advance()
}
