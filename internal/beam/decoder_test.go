package beam

import (
	"errors"
	"math"
	"testing"
)

// openConstraint allows every token; ids listed in terminals end the sequence.
type openConstraint struct {
	vocab     int
	terminals []int
	done      bool
}

func (c *openConstraint) LegalTokens() []int {
	ids := make([]int, c.vocab)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func (c *openConstraint) Advance(token int) (Advance, error) {
	for _, t := range c.terminals {
		if token == t {
			c.done = true
			return Terminal, nil
		}
	}
	return Continue, nil
}

func (c *openConstraint) Clone() Constraint {
	dup := *c
	return &dup
}

func (c *openConstraint) TerminalFanout() int { return len(c.terminals) }

// fixedConstraint permits exactly the given ids.
type fixedConstraint struct {
	legal []int
}

func (c *fixedConstraint) LegalTokens() []int { return c.legal }

func (c *fixedConstraint) Advance(int) (Advance, error) { return Continue, nil }

func (c *fixedConstraint) Clone() Constraint { dup := *c; return &dup }

func (c *fixedConstraint) TerminalFanout() int { return 1 }

// failingConstraint rejects a specific token at Advance time.
type failingConstraint struct {
	vocab int
	bad   int
}

func (c *failingConstraint) LegalTokens() []int {
	ids := make([]int, c.vocab)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func (c *failingConstraint) Advance(token int) (Advance, error) {
	if token == c.bad {
		return Continue, errors.New("rejected")
	}
	return Continue, nil
}

func (c *failingConstraint) Clone() Constraint { dup := *c; return &dup }

func (c *failingConstraint) TerminalFanout() int { return 1 }

func mustDecoder(t *testing.T, vocab, beam int, c Constraint) *Decoder {
	t.Helper()
	d, err := New(Config{VocabSize: vocab, BeamSize: beam}, c)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

// TestStepSelectsBestCandidates replays the canonical first step: a single
// parent row with four unconstrained tokens must branch into the two best
// scoring children, both mapped back to parent row 0.
func TestStepSelectsBestCandidates(t *testing.T) {
	d := mustDecoder(t, 4, 2, &openConstraint{vocab: 4})

	res, err := d.Step([][]float64{{-0.1, -2.0, -0.05, -3.0}})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if got, want := len(res.SortMask), 2; got != want {
		t.Fatalf("sort mask length = %d, want %d", got, want)
	}
	if res.SortMask[0] != 0 || res.SortMask[1] != 0 {
		t.Errorf("sort mask = %v, want [0 0]", res.SortMask)
	}
	if res.Tokens[0] != 2 || res.Tokens[1] != 0 {
		t.Errorf("tokens = %v, want [2 0]", res.Tokens)
	}
	if len(d.Terminated()) != 0 {
		t.Errorf("terminated = %d hypotheses, want none", len(d.Terminated()))
	}
	if res.Underflow || res.Exhausted {
		t.Errorf("unexpected underflow/exhausted: %+v", res)
	}
}

// TestStepShapeMismatch checks that a wrong score matrix is rejected before
// any state changes.
func TestStepShapeMismatch(t *testing.T) {
	d := mustDecoder(t, 4, 2, &openConstraint{vocab: 4})

	if _, err := d.Step([][]float64{{-1, -1, -1, -1}, {-1, -1, -1, -1}}); !errors.Is(err, ErrShape) {
		t.Fatalf("wrong row count: err = %v, want ErrShape", err)
	}
	if _, err := d.Step([][]float64{{-1, -1, -1}}); !errors.Is(err, ErrShape) {
		t.Fatalf("wrong column count: err = %v, want ErrShape", err)
	}
	if got := d.ActiveSize(); got != 1 {
		t.Errorf("active size after rejected steps = %d, want 1", got)
	}
}

// TestMaskingExcludesIllegalTokens ensures selection never picks a token the
// constraint did not offer, even when the model scores it highest.
func TestMaskingExcludesIllegalTokens(t *testing.T) {
	d := mustDecoder(t, 4, 2, &fixedConstraint{legal: []int{1, 3}})

	res, err := d.Step([][]float64{{100, -5, 100, -6}})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	for _, tok := range res.Tokens {
		if tok != 1 && tok != 3 {
			t.Errorf("selected illegal token %d", tok)
		}
	}
	if res.Tokens[0] != 1 {
		t.Errorf("best legal token = %d, want 1", res.Tokens[0])
	}
}

// TestTerminalTokenDoesNotConsumeBeamSlot: terminating candidates are moved
// aside so the next-best continuations still fill the beam.
func TestTerminalTokenDoesNotConsumeBeamSlot(t *testing.T) {
	d := mustDecoder(t, 4, 2, &openConstraint{vocab: 4, terminals: []int{3}})

	// Token 3 scores best, terminates, and must leave both beam slots for
	// tokens 0 and 1.
	res, err := d.Step([][]float64{{-1.0, -1.5, -4.0, -0.1}})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.NewlyTerminated != 1 {
		t.Fatalf("newly terminated = %d, want 1", res.NewlyTerminated)
	}
	term := d.Terminated()
	if len(term) != 1 || term[0].LastToken() != 3 || !term[0].Terminated {
		t.Fatalf("terminated = %+v, want one hypothesis ending in 3", term)
	}
	if len(res.Tokens) != 2 || res.Tokens[0] != 0 || res.Tokens[1] != 1 {
		t.Errorf("continuing tokens = %v, want [0 1]", res.Tokens)
	}
}

// TestBeamUnderflow: a step with a single legal continuation under a wide
// beam must commit the reduced beam and flag the underflow.
func TestBeamUnderflow(t *testing.T) {
	d := mustDecoder(t, 4, 4, &fixedConstraint{legal: []int{2}})

	res, err := d.Step([][]float64{{-1, -1, -1, -1}})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !res.Underflow {
		t.Error("expected underflow diagnostic")
	}
	if res.Exhausted {
		t.Error("underflow must not report exhaustion")
	}
	if got := d.ActiveSize(); got != 1 {
		t.Errorf("active size = %d, want 1", got)
	}
}

// TestBeamExhaustion: once every candidate terminates the beam collapses and
// further steps are refused.
func TestBeamExhaustion(t *testing.T) {
	d := mustDecoder(t, 2, 2, &openConstraint{vocab: 2, terminals: []int{0, 1}})

	res, err := d.Step([][]float64{{-0.5, -0.9}})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !res.Exhausted {
		t.Fatal("expected exhaustion when every candidate terminates")
	}
	if got := len(d.Terminated()); got != 2 {
		t.Errorf("terminated = %d, want 2", got)
	}
	if d.ActiveSize() != 0 {
		t.Errorf("active size = %d, want 0", d.ActiveSize())
	}
	if _, err := d.Step([][]float64{{-1, -1}}); !errors.Is(err, ErrExhausted) {
		t.Errorf("step after collapse: err = %v, want ErrExhausted", err)
	}
}

// TestSortMaskBounds verifies the sort-mask contract over a multi-step run:
// length equals the new beam, values index the previous beam, and all active
// rows advance in lock step.
func TestSortMaskBounds(t *testing.T) {
	d := mustDecoder(t, 8, 3, &openConstraint{vocab: 8})

	scores := [][]float64{{-0.3, -1.1, -0.2, -2.5, -0.7, -1.9, -3.0, -0.9}}
	for step := 1; step <= 5; step++ {
		prev := d.ActiveSize()
		res, err := d.Step(scores)
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if len(res.SortMask) != d.ActiveSize() {
			t.Fatalf("step %d: sort mask length %d != active size %d", step, len(res.SortMask), d.ActiveSize())
		}
		if d.ActiveSize() > 3 {
			t.Fatalf("step %d: beam grew past beam size: %d", step, d.ActiveSize())
		}
		for _, m := range res.SortMask {
			if m < 0 || m >= prev {
				t.Fatalf("step %d: sort mask value %d out of [0,%d)", step, m, prev)
			}
		}
		for _, h := range d.Active() {
			if len(h.Tokens) != step {
				t.Fatalf("step %d: hypothesis length %d", step, len(h.Tokens))
			}
		}
		scores = make([][]float64, d.ActiveSize())
		for i := range scores {
			scores[i] = []float64{-0.3, -1.1, -0.2, -2.5, -0.7, -1.9, -3.0, -0.9}
		}
	}
}

// TestSingleLegalTokenScore: with exactly one legal continuation the child's
// raw score is the parent's plus that token's (renormalized) log-probability,
// which is 0 when it is the only legal token.
func TestSingleLegalTokenScore(t *testing.T) {
	d := mustDecoder(t, 3, 1, &fixedConstraint{legal: []int{1}})

	res, err := d.Step([][]float64{{-5, -2, -9}})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Tokens[0] != 1 {
		t.Fatalf("token = %d, want 1", res.Tokens[0])
	}
	h := d.Active()[0]
	// log-softmax over a single legal token yields log(1) = 0.
	if math.Abs(h.Score) > 1e-12 {
		t.Errorf("score = %g, want 0", h.Score)
	}
}

// TestAdvanceFailureSkipsCandidate: a constraint error excludes only that
// candidate, the rest of the step proceeds.
func TestAdvanceFailureSkipsCandidate(t *testing.T) {
	d := mustDecoder(t, 4, 2, &failingConstraint{vocab: 4, bad: 2})

	res, err := d.Step([][]float64{{-1.0, -1.5, -0.1, -3.0}})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	for _, tok := range res.Tokens {
		if tok == 2 {
			t.Errorf("rejected token 2 made it into the beam")
		}
	}
	if len(res.Tokens) != 2 {
		t.Errorf("continuing tokens = %v, want two survivors", res.Tokens)
	}
}

// TestNaNScoresNeverSelected: a NaN entry in a legal column poisons its whole
// row's renormalization, so that row drafts no candidates; other rows are
// unaffected and nothing NaN-scored is ever committed.
func TestNaNScoresNeverSelected(t *testing.T) {
	d := mustDecoder(t, 4, 2, &openConstraint{vocab: 4})

	if _, err := d.Step([][]float64{{-0.1, -0.2, -5, -5}}); err != nil {
		t.Fatalf("Step: %v", err)
	}

	nan := math.NaN()
	res, err := d.Step([][]float64{
		{nan, -0.5, -1.0, -2.0},
		{-0.4, -0.8, -1.2, -2.4},
	})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(res.SortMask) != 2 {
		t.Fatalf("sort mask = %v, want two survivors from the clean row", res.SortMask)
	}
	for _, m := range res.SortMask {
		if m != 1 {
			t.Errorf("candidate drafted from poisoned row: sort mask = %v", res.SortMask)
		}
	}
	for _, h := range d.Active() {
		if math.IsNaN(h.Score) {
			t.Errorf("NaN score committed: %+v", h)
		}
	}
	if res.Underflow || res.Exhausted {
		t.Errorf("unexpected underflow/exhausted: %+v", res)
	}
}

// TestAllNaNScoresExhaustBeam: when every row is poisoned no candidate
// survives and the session ends cleanly instead of advancing on NaN.
func TestAllNaNScoresExhaustBeam(t *testing.T) {
	d := mustDecoder(t, 2, 2, &openConstraint{vocab: 2})

	res, err := d.Step([][]float64{{math.NaN(), -1}})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !res.Exhausted {
		t.Fatal("expected exhaustion when the only row scores NaN")
	}
	if d.ActiveSize() != 0 {
		t.Errorf("active size = %d, want 0", d.ActiveSize())
	}
	if got := len(d.Terminated()); got != 0 {
		t.Errorf("terminated = %d, want none", got)
	}
}

// TestBranchesDoNotShareState: siblings forked from one parent must own
// independent constraint clones and token slices.
func TestBranchesDoNotShareState(t *testing.T) {
	d := mustDecoder(t, 4, 2, &openConstraint{vocab: 4})

	if _, err := d.Step([][]float64{{-0.1, -0.2, -5, -5}}); err != nil {
		t.Fatalf("Step: %v", err)
	}
	active := d.Active()
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}
	if active[0].Constraint == active[1].Constraint {
		t.Error("siblings alias one constraint instance")
	}
	active[0].Tokens[0] = 99
	if active[1].Tokens[0] == 99 {
		t.Error("siblings share token storage")
	}
}

// TestLastTokensPrecondition: no last predictions exist before the first step.
func TestLastTokensPrecondition(t *testing.T) {
	d := mustDecoder(t, 4, 2, &openConstraint{vocab: 4})

	if _, err := d.LastTokens(); !errors.Is(err, ErrNoSteps) {
		t.Fatalf("err = %v, want ErrNoSteps", err)
	}
	if got := d.ActiveSize(); got != 1 {
		t.Errorf("initial active size = %d, want 1", got)
	}

	if _, err := d.Step([][]float64{{-0.1, -0.2, -0.3, -0.4}}); err != nil {
		t.Fatalf("Step: %v", err)
	}
	last, err := d.LastTokens()
	if err != nil {
		t.Fatalf("LastTokens: %v", err)
	}
	if len(last) != 2 || last[0] != 0 {
		t.Errorf("last tokens = %v, want best token 0 first", last)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name  string
		vocab int
		beam  int
	}{
		{"zero vocab", 0, 2},
		{"negative beam", 4, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(Config{VocabSize: tc.vocab, BeamSize: tc.beam}, &openConstraint{vocab: tc.vocab}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := New(Config{VocabSize: 4, BeamSize: 2}, nil); err == nil {
		t.Fatal("expected error for nil constraint")
	}
}
