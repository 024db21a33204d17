package beam

import (
	"math"
	"testing"
)

// TestNormalizedMonotonicInScore: for a fixed length, a better raw score must
// rank higher.
func TestNormalizedMonotonicInScore(t *testing.T) {
	n := DefaultScoreNorm
	if n.Normalized(-1.0, 10) <= n.Normalized(-2.0, 10) {
		t.Error("normalized score is not monotonic in raw score")
	}
}

// TestNormalizedCompensatesLength: cumulative log-probability only falls as
// a sequence grows, so for a fixed negative raw score and pow > 0 the
// normalization must strictly favor the longer sequence.
func TestNormalizedCompensatesLength(t *testing.T) {
	n := DefaultScoreNorm
	prev := math.Inf(-1)
	for length := 1; length <= 32; length++ {
		cur := n.Normalized(-3.0, length)
		if cur <= prev {
			t.Fatalf("length %d: %g <= %g", length, cur, prev)
		}
		prev = cur
	}
}

// TestNormalizedIdentityAtUnitFactor: when the normalization factor is 1 the
// normalized score is exactly exp(raw).
func TestNormalizedIdentityAtUnitFactor(t *testing.T) {
	n := ScoreNorm{Base: 5.0, Pow: 0.7}
	got := n.Normalized(-1.5, 1) // (base+1)/(base+1) == 1
	want := math.Exp(-1.5)
	if math.Abs(got-want) > 1e-15 {
		t.Errorf("Normalized(-1.5, 1) = %g, want %g", got, want)
	}
}

func TestHypothesisLastToken(t *testing.T) {
	if got := (Hypothesis{}).LastToken(); got != -1 {
		t.Errorf("empty hypothesis last token = %d, want -1", got)
	}
	h := Hypothesis{Tokens: []int{4, 7, 2}}
	if got := h.LastToken(); got != 2 {
		t.Errorf("last token = %d, want 2", got)
	}
}

func TestHypothesisNormalizedScore(t *testing.T) {
	h := Hypothesis{Tokens: []int{1, 2, 3, 4}, Score: -2.0}
	n := ScoreNorm{Base: 10.0, Pow: 0.7}
	want := n.Normalized(-2.0, 4)
	if got := h.NormalizedScore(n); got != want {
		t.Errorf("NormalizedScore = %g, want %g", got, want)
	}
}
