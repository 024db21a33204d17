package eval

import (
	"math"
	"strings"
	"unicode/utf8"
)

// EditSimilarity scores how close a prediction is to the target on a 0..100
// scale: 100 minus the normalized Levenshtein distance, computed on the
// strings with spaces removed so formatting differences do not count.
func EditSimilarity(a, b string) float64 {
	a = strings.ReplaceAll(a, " ", "")
	b = strings.ReplaceAll(b, " ", "")
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 100
	}
	dist := levenshtein(a, b)
	return (1 - float64(dist)/float64(longest)) * 100
}

// levenshtein computes codepoint-level edit distance with a two-row table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// Report is the evaluation summary for one cutoff k: the mean and standard
// deviation over examples of the best edit similarity among the top-k
// re-ranked hypotheses.
type Report struct {
	K      int
	Mean   float64
	Stddev float64
	Count  int
}

// Evaluate scores predictions at each cutoff in ks using the given ranker.
// Examples without hypotheses score zero.
func Evaluate(preds []Prediction, ks []int, ranker Ranker) []Report {
	reports := make([]Report, 0, len(ks))
	for _, k := range ks {
		scores := make([]float64, 0, len(preds))
		for _, p := range preds {
			best := 0.0
			for _, h := range ranker.TopK(p, k) {
				if s := EditSimilarity(h.Text, p.Target); s > best {
					best = s
				}
			}
			scores = append(scores, best)
		}
		reports = append(reports, summarize(k, scores))
	}
	return reports
}

func summarize(k int, scores []float64) Report {
	r := Report{K: k, Count: len(scores)}
	if len(scores) == 0 {
		return r
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	r.Mean = sum / float64(len(scores))
	var sq float64
	for _, s := range scores {
		d := s - r.Mean
		sq += d * d
	}
	r.Stddev = math.Sqrt(sq / float64(len(scores)))
	return r
}
