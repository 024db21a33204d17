package beam

import "math"

// Hypothesis is one candidate token sequence tracked by the decoder, together
// with its structural state and cumulative log-probability.
type Hypothesis struct {
	// Tokens is the sequence generated so far, append-only.
	Tokens []int
	// Score is the unnormalized cumulative log-probability.
	Score float64
	// Constraint is the structural state after consuming Tokens. Owned
	// exclusively by this hypothesis.
	Constraint Constraint
	// Terminated is set once the constraint reported sequence completion.
	Terminated bool
}

// ScoreNorm holds the length-normalization knobs used to rank hypotheses of
// different lengths against each other.
type ScoreNorm struct {
	Base float64
	Pow  float64
}

// DefaultScoreNorm is the normalization used for generation-time scoring.
// Evaluation-time re-ranking typically uses EvalScoreNorm instead; the two are
// independent knobs.
var (
	DefaultScoreNorm = ScoreNorm{Base: 5.0, Pow: 0.7}
	EvalScoreNorm    = ScoreNorm{Base: 10.0, Pow: 0.7}
)

// Normalized maps a raw cumulative log-probability and a sequence length to a
// length-normalized score:
//
//	exp(raw / (((base+length)/(base+1)) ^ pow))
//
// It is monotonic in raw for a fixed length; for pow > 0 it divides the
// (negative) cumulative log-probability by a growing factor so longer
// sequences are not drowned out by the shorter ones. It is used only to rank
// a fixed set of hypotheses; beam pruning during decoding is driven by the
// raw score.
func (n ScoreNorm) Normalized(raw float64, length int) float64 {
	factor := math.Pow((n.Base+float64(length))/(n.Base+1), n.Pow)
	return math.Exp(raw / factor)
}

// NormalizedScore is the hypothesis's length-normalized score under n.
func (h Hypothesis) NormalizedScore(n ScoreNorm) float64 {
	return n.Normalized(h.Score, len(h.Tokens))
}

// LastToken returns the most recent token, or -1 for an empty hypothesis.
func (h Hypothesis) LastToken() int {
	if len(h.Tokens) == 0 {
		return -1
	}
	return h.Tokens[len(h.Tokens)-1]
}
