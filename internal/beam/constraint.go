package beam

// Advance reports what happened to a constraint after consuming a token.
type Advance int

const (
	// Continue means the token was applied and the sequence may keep growing.
	Continue Advance = iota
	// Terminal means the token completed the sequence.
	Terminal
)

// Constraint restricts which tokens may extend a partial sequence. It is the
// decoder's view of an incrementally built syntax tree: the decoder never
// inspects the structure itself, it only asks which tokens are legal, applies
// one, and clones the state when a hypothesis branches.
//
// A Constraint instance is exclusively owned by one hypothesis. Clone must
// return a state that can be advanced without affecting the original; it is
// called up to (1+TerminalFanout())*beamSize times per step, so it should be
// cheap (share immutable structure, copy only the cursor).
type Constraint interface {
	// LegalTokens returns the ids that may be consumed next.
	LegalTokens() []int

	// Advance consumes a token, mutating the receiver. It reports whether
	// the sequence continues or just terminated. Advancing with a token
	// not in LegalTokens is undefined.
	Advance(token int) (Advance, error)

	// Clone returns an independent copy of the current state.
	Clone() Constraint

	// TerminalFanout is the maximum number of distinct tokens that can
	// terminate a sequence on a single step. The decoder over-selects
	// (1+TerminalFanout())*beamSize candidates so that terminations do not
	// starve the surviving beam.
	TerminalFanout() int
}
