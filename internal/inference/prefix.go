package inference

// WithPrefix adapts a scorer so hypotheses are scored as continuations of a
// fixed context: the decoder's histories are appended to the prefix before
// reaching the underlying scorer. Reorder passes through untouched.
func WithPrefix(scorer Scorer, prefix []int) Scorer {
	return &prefixedScorer{inner: scorer, prefix: prefix}
}

type prefixedScorer struct {
	inner  Scorer
	prefix []int
}

func (p *prefixedScorer) Scores(rows [][]int) ([][]float64, error) {
	full := make([][]int, len(rows))
	for i, row := range rows {
		full[i] = append(append([]int(nil), p.prefix...), row...)
	}
	return p.inner.Scores(full)
}

func (p *prefixedScorer) Reorder(sortMask []int) {
	p.inner.Reorder(sortMask)
}
