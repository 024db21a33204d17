// Package lm provides a small bigram language model implementing the scorer
// side of the decoding contract. It stands in for the neural model during
// tests, tooling and the bundled completion service; production callers plug
// their own scorer into the same interface.
package lm

import (
	"fmt"
	"math"
	"os"

	json "github.com/goccy/go-json"
)

// Bigram is an add-one-smoothed bigram model over token ids. It is stateless
// per hypothesis (the score of the next token depends only on the last one),
// so reordering the beam requires no work on its side.
type Bigram struct {
	vocab  int
	counts [][]int // (vocab+1) rows: context token, plus one start row
	totals []int
}

const startContext = -1

// Train builds a model from token sequences.
func Train(vocabSize int, seqs [][]int) (*Bigram, error) {
	if vocabSize <= 0 {
		return nil, fmt.Errorf("lm: vocab size must be positive, got %d", vocabSize)
	}
	m := &Bigram{
		vocab:  vocabSize,
		counts: make([][]int, vocabSize+1),
		totals: make([]int, vocabSize+1),
	}
	for i := range m.counts {
		m.counts[i] = make([]int, vocabSize)
	}
	for _, seq := range seqs {
		prev := startContext
		for _, tok := range seq {
			if tok < 0 || tok >= vocabSize {
				return nil, fmt.Errorf("lm: token %d out of vocabulary", tok)
			}
			row := m.row(prev)
			m.counts[row][tok]++
			m.totals[row]++
			prev = tok
		}
	}
	return m, nil
}

// row maps a context token to its count row; the extra last row is the
// sequence-start context.
func (m *Bigram) row(context int) int {
	if context < 0 || context >= m.vocab {
		return m.vocab
	}
	return context
}

// VocabSize is the width of every score row.
func (m *Bigram) VocabSize() int { return m.vocab }

// Scores returns one row of next-token log-probabilities per hypothesis; a
// hypothesis is identified by its token history, of which only the last token
// matters to a bigram.
func (m *Bigram) Scores(rows [][]int) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, hist := range rows {
		context := startContext
		if len(hist) > 0 {
			context = hist[len(hist)-1]
		}
		if context >= m.vocab {
			return nil, fmt.Errorf("lm: context token %d out of vocabulary", context)
		}
		out[i] = m.scoreRow(context)
	}
	return out, nil
}

// Reorder is a no-op: the model keeps no per-hypothesis state.
func (m *Bigram) Reorder([]int) {}

func (m *Bigram) scoreRow(context int) []float64 {
	r := m.row(context)
	total := float64(m.totals[r] + m.vocab)
	row := make([]float64, m.vocab)
	for tok := 0; tok < m.vocab; tok++ {
		row[tok] = math.Log(float64(m.counts[r][tok]+1) / total)
	}
	return row
}

// modelFile is the on-disk JSON form: sparse (context, token, count) triplets.
type modelFile struct {
	VocabSize int      `json:"vocab_size"`
	Counts    [][3]int `json:"counts"`
}

// Save writes the model as JSON.
func (m *Bigram) Save(path string) error {
	f := modelFile{VocabSize: m.vocab}
	for ctx, row := range m.counts {
		context := ctx
		if ctx == m.vocab {
			context = startContext
		}
		for tok, n := range row {
			if n > 0 {
				f.Counts = append(f.Counts, [3]int{context, tok, n})
			}
		}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("lm: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("lm: %w", err)
	}
	return nil
}

// Load reads a model saved by Save.
func Load(path string) (*Bigram, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lm: %w", err)
	}
	var f modelFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("lm: parse %s: %w", path, err)
	}
	m, err := Train(f.VocabSize, nil)
	if err != nil {
		return nil, err
	}
	for _, c := range f.Counts {
		context, tok, n := c[0], c[1], c[2]
		if tok < 0 || tok >= f.VocabSize || n < 0 {
			return nil, fmt.Errorf("lm: bad count entry %v in %s", c, path)
		}
		r := m.row(context)
		m.counts[r][tok] += n
		m.totals[r] += n
	}
	return m, nil
}
