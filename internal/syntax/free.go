// Package syntax provides structural constraints for the beam decoder: the
// component that decides which tokens may legally extend a partial sequence
// and when a sequence is complete.
package syntax

import (
	"fmt"

	"github.com/samcharles93/treebeam/internal/beam"
)

// Free is the unconstrained grammar: every token is always legal, and the
// listed terminal ids (newline-style end markers) close a sequence.
type Free struct {
	legal     []int
	terminals map[int]bool
	fanout    int
}

// NewFree builds a Free constraint over a vocabulary of the given size.
func NewFree(vocabSize int, terminals []int) *Free {
	legal := make([]int, vocabSize)
	for i := range legal {
		legal[i] = i
	}
	set := make(map[int]bool, len(terminals))
	for _, id := range terminals {
		set[id] = true
	}
	return &Free{legal: legal, terminals: set, fanout: len(set)}
}

func (f *Free) LegalTokens() []int { return f.legal }

func (f *Free) Advance(token int) (beam.Advance, error) {
	if token < 0 || token >= len(f.legal) {
		return beam.Continue, fmt.Errorf("syntax: token %d out of vocabulary", token)
	}
	if f.terminals[token] {
		return beam.Terminal, nil
	}
	return beam.Continue, nil
}

// Clone shares everything: Free holds no per-sequence state.
func (f *Free) Clone() beam.Constraint { return f }

func (f *Free) TerminalFanout() int { return f.fanout }
