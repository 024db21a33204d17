// Package inference drives whole decoding sessions: the loop of scoring the
// active beam, stepping the decoder, and re-synchronizing the scorer's
// per-hypothesis state through the sort mask.
package inference

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samcharles93/treebeam/internal/beam"
	"github.com/samcharles93/treebeam/internal/logger"
)

// Scorer produces next-token log-probabilities for the active beam. Scores
// receives one row per active hypothesis (its token history so far) and must
// return a matrix with matching rows and a fixed vocabulary width.
//
// Reorder is the caller-state half of the decoder contract: after every step
// the scorer's per-hypothesis state (a recurrent cache, for instance) must be
// gathered by the sort mask so row j holds what row sortMask[j] held before.
// Stateless scorers implement it as a no-op.
type Scorer interface {
	Scores(rows [][]int) ([][]float64, error)
	Reorder(sortMask []int)
}

// Config configures a decoding session.
type Config struct {
	VocabSize int
	BeamSize  int
	// MaxLen stops the session after this many tokens even if hypotheses
	// are still alive.
	MaxLen int
	// Norm ranks the terminated hypotheses in the result.
	Norm beam.ScoreNorm
	Log  logger.Logger
}

// Stats describes one finished session.
type Stats struct {
	Steps      int
	Terminated int
	Underflows int
	Duration   time.Duration
}

// Result is the ranked outcome of one session.
type Result struct {
	// Hypotheses holds every terminated hypothesis, best normalized score
	// first.
	Hypotheses []beam.Hypothesis
	Stats      Stats
}

// Run decodes one session to completion: until the beam is exhausted or
// MaxLen tokens have been generated. The context is checked between steps.
func Run(ctx context.Context, scorer Scorer, initial beam.Constraint, cfg Config) (Result, error) {
	if cfg.MaxLen <= 0 {
		return Result{}, fmt.Errorf("inference: max length must be positive, got %d", cfg.MaxLen)
	}
	norm := cfg.Norm
	if norm == (beam.ScoreNorm{}) {
		norm = beam.DefaultScoreNorm
	}

	dec, err := beam.New(beam.Config{
		VocabSize: cfg.VocabSize,
		BeamSize:  cfg.BeamSize,
		Log:       cfg.Log,
	}, initial)
	if err != nil {
		return Result{}, err
	}

	var stats Stats
	start := time.Now()
	for dec.ActiveSize() > 0 && dec.Len() < cfg.MaxLen {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		scores, err := scorer.Scores(histories(dec.Active()))
		if err != nil {
			return Result{}, fmt.Errorf("inference: scorer: %w", err)
		}
		res, err := dec.Step(scores)
		if err != nil {
			return Result{}, err
		}
		stats.Steps++
		if res.Underflow {
			stats.Underflows++
		}
		if res.Exhausted {
			break
		}
		scorer.Reorder(res.SortMask)
	}
	stats.Duration = time.Since(start)

	hyps := dec.Terminated()
	sort.SliceStable(hyps, func(i, j int) bool {
		return hyps[i].NormalizedScore(norm) > hyps[j].NormalizedScore(norm)
	})
	stats.Terminated = len(hyps)

	if cfg.Log != nil {
		cfg.Log.Debug("session finished",
			"steps", stats.Steps,
			"terminated", stats.Terminated,
			"duration", stats.Duration)
	}
	return Result{Hypotheses: hyps, Stats: stats}, nil
}

func histories(active []beam.Hypothesis) [][]int {
	rows := make([][]int, len(active))
	for i, h := range active {
		rows[i] = h.Tokens
	}
	return rows
}
