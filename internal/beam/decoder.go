package beam

import (
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/treebeam/internal/logger"
)

var (
	// ErrShape is returned when the score matrix does not match the active
	// beam and vocabulary dimensions.
	ErrShape = errors.New("beam: score matrix shape mismatch")
	// ErrExhausted is returned by Step once the beam has collapsed to zero
	// active hypotheses.
	ErrExhausted = errors.New("beam: decoder exhausted")
	// ErrNoSteps is returned by LastTokens before the first step has run.
	ErrNoSteps = errors.New("beam: no steps have been performed")
)

// Config configures a Decoder.
type Config struct {
	// VocabSize is the number of columns in every score matrix.
	VocabSize int
	// BeamSize is the maximum number of active hypotheses carried between
	// steps.
	BeamSize int
	// Log receives the beam-underflow diagnostic. Optional.
	Log logger.Logger
}

// Decoder runs constrained beam search over externally supplied per-step
// log-probabilities. The caller owns the scoring model; the decoder owns the
// beam: which hypotheses survive, which terminate, and how the caller must
// permute its own per-hypothesis state to stay aligned (the sort mask).
//
// A Decoder is a single decoding session and is not safe for concurrent use.
// Independent sessions share nothing and may run in parallel.
type Decoder struct {
	cfg Config

	active     []Hypothesis
	terminated []Hypothesis
	steps      int

	// scratch, reused across steps
	work    [][]float64
	rowMask []bool
	topIdx  []int
	topVal  []float64
}

// StepResult reports the outcome of one search step.
type StepResult struct {
	// SortMask maps each surviving beam row to the row of its parent in
	// the previous beam. The caller must apply the same gather to any
	// per-hypothesis state it holds (e.g. a recurrent cache) before the
	// next Step.
	SortMask []int
	// Tokens is the token appended to each surviving row this step,
	// aligned with SortMask.
	Tokens []int
	// NewlyTerminated is the number of hypotheses that completed this step.
	NewlyTerminated int
	// Underflow is set when fewer than BeamSize hypotheses survived. This
	// is expected near the natural end of generation, not an error.
	Underflow bool
	// Exhausted is set when no hypothesis survived; the session is over
	// and further Step calls return ErrExhausted.
	Exhausted bool
}

// New creates a decoder seeded with a single empty hypothesis wrapping the
// given structural state.
func New(cfg Config, initial Constraint) (*Decoder, error) {
	if cfg.VocabSize <= 0 {
		return nil, fmt.Errorf("beam: vocab size must be positive, got %d", cfg.VocabSize)
	}
	if cfg.BeamSize <= 0 {
		return nil, fmt.Errorf("beam: beam size must be positive, got %d", cfg.BeamSize)
	}
	if initial == nil {
		return nil, errors.New("beam: initial constraint is nil")
	}
	return &Decoder{
		cfg:     cfg,
		active:  []Hypothesis{{Constraint: initial}},
		rowMask: make([]bool, cfg.VocabSize),
	}, nil
}

// ActiveSize is the current number of active hypotheses: 1 before the first
// step, at most BeamSize afterwards.
func (d *Decoder) ActiveSize() int { return len(d.active) }

// Len is the token length shared by every active hypothesis.
func (d *Decoder) Len() int { return d.steps }

// Active returns a snapshot of the current hypotheses, row-aligned with the
// score matrix expected by the next Step call.
func (d *Decoder) Active() []Hypothesis {
	out := make([]Hypothesis, len(d.active))
	copy(out, d.active)
	return out
}

// Terminated returns the hypotheses that have completed so far, in the order
// they terminated. The collection only ever grows; ranking and top-k pruning
// are the consumer's job (see ScoreNorm).
func (d *Decoder) Terminated() []Hypothesis {
	out := make([]Hypothesis, len(d.terminated))
	copy(out, d.terminated)
	return out
}

// LastTokens returns the most recent token of each active hypothesis, the
// batch to feed the scorer for the next step. It fails before the first step:
// there is no last token yet.
func (d *Decoder) LastTokens() ([]int, error) {
	if d.steps == 0 {
		return nil, ErrNoSteps
	}
	out := make([]int, len(d.active))
	for i, h := range d.active {
		out[i] = h.Tokens[len(h.Tokens)-1]
	}
	return out, nil
}

// Step advances the beam by one token using the caller-supplied
// log-probabilities, one row per active hypothesis, VocabSize columns each.
//
// The step masks structurally illegal tokens, renormalizes each row over its
// legal tokens, scores every (hypothesis, token) pair by cumulative
// log-probability, and keeps the best continuations up to BeamSize.
// Candidates whose token completes a sequence move to the terminated
// collection without consuming a beam slot. The returned sort mask tells the
// caller how surviving rows map onto the rows it just scored.
func (d *Decoder) Step(logProbs [][]float64) (StepResult, error) {
	if len(d.active) == 0 {
		return StepResult{Exhausted: true}, ErrExhausted
	}
	if err := d.checkShape(logProbs); err != nil {
		return StepResult{}, err
	}

	d.maskAndRenormalize(logProbs)

	rows := len(d.active)
	limit := d.selectionLimit()
	topIdx, topVal := d.topK(rows*d.cfg.VocabSize, limit)

	var (
		sortMask   []int
		tokens     []int
		scores     []float64
		next       []Constraint
		terminated int
	)
	for i := 0; i < len(topIdx) && len(sortMask) < d.cfg.BeamSize; i++ {
		score := topVal[i]
		if math.IsNaN(score) {
			// A selection over IEEE-754 values gives NaNs no defined
			// order; treat the first one as end of valid candidates.
			break
		}
		row := topIdx[i] / d.cfg.VocabSize
		token := topIdx[i] % d.cfg.VocabSize

		clone := d.active[row].Constraint.Clone()
		adv, err := clone.Advance(token)
		if err != nil {
			// This candidate only; the rest of the step is unaffected.
			if d.cfg.Log != nil {
				d.cfg.Log.Debug("constraint advance failed", "token", token, "err", err)
			}
			continue
		}
		if adv == Terminal {
			d.terminated = append(d.terminated, Hypothesis{
				Tokens:     appendToken(d.active[row].Tokens, token),
				Score:      score,
				Constraint: clone,
				Terminated: true,
			})
			terminated++
			continue
		}
		sortMask = append(sortMask, row)
		tokens = append(tokens, token)
		scores = append(scores, score)
		next = append(next, clone)
	}

	if len(sortMask) == 0 {
		d.active = nil
		return StepResult{NewlyTerminated: terminated, Exhausted: true}, nil
	}

	underflow := len(sortMask) < d.cfg.BeamSize
	if underflow && d.cfg.Log != nil {
		d.cfg.Log.Warn("beam underflow",
			"survivors", len(sortMask), "beam_size", d.cfg.BeamSize)
	}

	d.commit(sortMask, tokens, scores, next)

	return StepResult{
		SortMask:        sortMask,
		Tokens:          tokens,
		NewlyTerminated: terminated,
		Underflow:       underflow,
	}, nil
}

func (d *Decoder) checkShape(logProbs [][]float64) error {
	if len(logProbs) != len(d.active) {
		return fmt.Errorf("%w: got %d rows, want %d", ErrShape, len(logProbs), len(d.active))
	}
	for i, row := range logProbs {
		if len(row) != d.cfg.VocabSize {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(row), d.cfg.VocabSize)
		}
	}
	return nil
}

// selectionLimit is the over-selection margin: enough candidates that even if
// every possible terminal token fires this step, BeamSize continuations can
// still be drafted.
func (d *Decoder) selectionLimit() int {
	fanout := 0
	for _, h := range d.active {
		if f := h.Constraint.TerminalFanout(); f > fanout {
			fanout = f
		}
	}
	return (1 + fanout) * d.cfg.BeamSize
}

// maskAndRenormalize copies each row into scratch with structurally illegal
// tokens set to -Inf, applies a stable log-softmax over the legal tokens, and
// adds the row's running score. The caller's matrix is left untouched.
func (d *Decoder) maskAndRenormalize(logProbs [][]float64) {
	if len(d.work) < len(logProbs) {
		d.work = make([][]float64, len(logProbs))
	}
	negInf := math.Inf(-1)
	for i, src := range logProbs {
		if d.work[i] == nil {
			d.work[i] = make([]float64, d.cfg.VocabSize)
		}
		row := d.work[i]

		for j := range d.rowMask {
			d.rowMask[j] = false
		}
		for _, id := range d.active[i].Constraint.LegalTokens() {
			if id >= 0 && id < d.cfg.VocabSize {
				d.rowMask[id] = true
			}
		}

		maxv := negInf
		for j, v := range src {
			if !d.rowMask[j] {
				row[j] = negInf
				continue
			}
			row[j] = v
			if v > maxv {
				maxv = v
			}
		}

		// log-softmax: x - max - log(sum(exp(x - max))). A row with no
		// legal tokens stays all -Inf and drafts no candidates.
		if math.IsInf(maxv, -1) {
			continue
		}
		var sum float64
		for _, v := range row {
			if !math.IsInf(v, -1) {
				sum += math.Exp(v - maxv)
			}
		}
		shift := maxv + math.Log(sum) - d.active[i].Score
		for j, v := range row {
			if !math.IsInf(v, -1) {
				row[j] = v - shift
			}
		}
	}
}

// topK selects the k best flat candidates from the scratch matrix, ordered
// from best to worst. Bounded insertion keeps this O(n*k), fine for the small
// k a beam needs. Non-finite scores never enter the shortlist: -Inf marks a
// masked token and NaN has no defined order.
func (d *Decoder) topK(n, k int) ([]int, []float64) {
	if cap(d.topIdx) < k+1 {
		d.topIdx = make([]int, 0, k+1)
		d.topVal = make([]float64, 0, k+1)
	}
	topIdx := d.topIdx[:0]
	topVal := d.topVal[:0]

	for flat := 0; flat < n; flat++ {
		v := d.work[flat/d.cfg.VocabSize][flat%d.cfg.VocabSize]
		if math.IsNaN(v) || math.IsInf(v, -1) {
			continue
		}

		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = flat
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	d.topIdx = topIdx
	d.topVal = topVal
	return topIdx, topVal
}

// commit replaces the beam with the drafted continuations: token history is
// gathered through the sort mask, the chosen token appended, and each row
// takes ownership of its advanced constraint clone. Rejected clones are
// simply dropped.
func (d *Decoder) commit(sortMask, tokens []int, scores []float64, next []Constraint) {
	fresh := make([]Hypothesis, len(sortMask))
	for i, parent := range sortMask {
		fresh[i] = Hypothesis{
			Tokens:     appendToken(d.active[parent].Tokens, tokens[i]),
			Score:      scores[i],
			Constraint: next[i],
		}
	}
	d.active = fresh
	d.steps++
}

// appendToken copies the parent history and appends one token. Hypotheses
// share no backing arrays: several children of one parent each get their own.
func appendToken(parent []int, token int) []int {
	out := make([]int, len(parent)+1)
	copy(out, parent)
	out[len(parent)] = token
	return out
}
