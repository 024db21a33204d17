package eval

import (
	"math"
	"strings"
	"testing"

	"github.com/samcharles93/treebeam/internal/beam"
)

func TestEditSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"return x", "return x", 100},
		{"return  x", "return x", 100}, // spaces are ignored
		{"", "", 100},
		{"abcd", "", 0},
		{"abcd", "abce", 75},
		{"héllo", "héllo", 100}, // codepoints, not bytes
		{"日本語だ", "日本語で", 75},
	}
	for _, tc := range cases {
		if got := EditSimilarity(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("EditSimilarity(%q, %q) = %g, want %g", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"same", "same", 0},
		{"héllo", "hallo", 1}, // one codepoint substituted, not two bytes
		{"", "日本語", 3},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

// TestTopKRanksByNormalizedScore: raw cumulative log-probability alone would
// rank the short hypothesis first; length normalization must compensate the
// long one for the many steps it paid for and rank it on top.
func TestTopKRanksByNormalizedScore(t *testing.T) {
	p := Prediction{
		Target: "x",
		Hypotheses: []TextHypothesis{
			{Text: "short", Score: -2.0, Length: 2},
			{Text: "long", Score: -2.5, Length: 20},
		},
	}
	ranker := Ranker{Norm: beam.EvalScoreNorm}
	top := ranker.TopK(p, 1)
	if len(top) != 1 || top[0].Text != "long" {
		t.Errorf("TopK = %+v, want the long hypothesis first", top)
	}
	if p.Hypotheses[0].Text != "short" {
		t.Error("TopK reordered the input prediction")
	}
}

func TestTopKHonorsCutoff(t *testing.T) {
	p := Prediction{Hypotheses: make([]TextHypothesis, 7)}
	got := Ranker{Norm: beam.EvalScoreNorm}.TopK(p, 3)
	if len(got) != 3 {
		t.Errorf("TopK length = %d, want 3", len(got))
	}
	got = Ranker{Norm: beam.EvalScoreNorm}.TopK(p, 10)
	if len(got) != 7 {
		t.Errorf("TopK length = %d, want all 7", len(got))
	}
}

func TestReadPredictions(t *testing.T) {
	data := `{"target":"a.b()","hypotheses":[{"prediction":"a.b()","score":-1.5,"length":4}]}

{"target":"x = 1","hypotheses":[]}
`
	preds, err := ReadPredictions(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadPredictions: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("predictions = %d, want 2 (blank line skipped)", len(preds))
	}
	if preds[0].Hypotheses[0].Text != "a.b()" {
		t.Errorf("hypothesis = %+v", preds[0].Hypotheses[0])
	}
}

func TestReadPredictionsBadLine(t *testing.T) {
	if _, err := ReadPredictions(strings.NewReader("{not json}\n")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEvaluate(t *testing.T) {
	preds := []Prediction{
		{
			Target: "a.b()",
			Hypotheses: []TextHypothesis{
				{Text: "a.b()", Score: -1, Length: 4},
				{Text: "zzzzz", Score: -0.5, Length: 4},
			},
		},
		{Target: "x", Hypotheses: nil},
	}
	reports := Evaluate(preds, []int{1, 2}, Ranker{Norm: beam.EvalScoreNorm})
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}
	// At k=1 only the better-raw-scored garbage hypothesis is considered.
	if reports[0].Mean >= reports[1].Mean {
		t.Errorf("widening k did not help: k1 mean %g, k2 mean %g", reports[0].Mean, reports[1].Mean)
	}
	// At k=2 the exact match is found for the first example; the second
	// contributes zero.
	if math.Abs(reports[1].Mean-50) > 1e-9 {
		t.Errorf("k=2 mean = %g, want 50", reports[1].Mean)
	}
	if reports[1].Count != 2 {
		t.Errorf("count = %d, want 2", reports[1].Count)
	}
}
