// Package eval ranks and scores persisted completion predictions: the
// offline consumer of decoding output. It never touches a live decoder; it
// works from prediction records written by whatever produced them.
package eval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/treebeam/internal/beam"
)

// TextHypothesis is one decoded candidate for an input example: the rendered
// text plus the raw cumulative log-probability and token length the decoder
// reported.
type TextHypothesis struct {
	Text   string  `json:"prediction"`
	Score  float64 `json:"score"`
	Length int     `json:"length"`
}

// Prediction is one evaluation example: the ground-truth target line and the
// decoded hypotheses for it.
type Prediction struct {
	Target     string           `json:"target"`
	Hypotheses []TextHypothesis `json:"hypotheses"`
}

// ReadPredictions parses a JSONL stream, one Prediction per line.
func ReadPredictions(r io.Reader) ([]Prediction, error) {
	var out []Prediction
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var p Prediction
		if err := json.Unmarshal(scanner.Bytes(), &p); err != nil {
			return nil, fmt.Errorf("eval: line %d: %w", line, err)
		}
		out = append(out, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	return out, nil
}

// LoadPredictions reads a predictions JSONL file.
func LoadPredictions(path string) ([]Prediction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	defer f.Close()
	return ReadPredictions(f)
}

// Ranker orders hypotheses by length-normalized score. Evaluation uses its
// own normalization knobs, independent of whatever the decoder used.
type Ranker struct {
	Norm beam.ScoreNorm
}

// TopK returns the k best hypotheses of a prediction, best first. The input
// is not modified.
func (r Ranker) TopK(p Prediction, k int) []TextHypothesis {
	hyps := append([]TextHypothesis(nil), p.Hypotheses...)
	sort.SliceStable(hyps, func(i, j int) bool {
		return r.Norm.Normalized(hyps[i].Score, hyps[i].Length) >
			r.Norm.Normalized(hyps[j].Score, hyps[j].Length)
	})
	if k < len(hyps) {
		hyps = hyps[:k]
	}
	return hyps
}
