package syntax

import (
	"fmt"
	"sort"

	"github.com/samcharles93/treebeam/internal/beam"
)

// Trie is a token-trie grammar: the legal continuations of a partial sequence
// are the children of the trie node it has reached, and a sequence may close
// with any terminal id at a node where an inserted sequence ends.
//
// The trie itself is immutable once built; a hypothesis's structural state is
// a Cursor, a single node pointer, so branching the beam clones in O(1) and
// shares the whole structure.
type Trie struct {
	root      *trieNode
	terminals []int
}

type trieNode struct {
	children map[int]*trieNode
	end      bool
}

// NewTrie creates an empty trie whose sequences end with one of the given
// terminal ids.
func NewTrie(terminals []int) *Trie {
	return &Trie{
		root:      &trieNode{},
		terminals: append([]int(nil), terminals...),
	}
}

// Insert adds one token sequence to the grammar. Sequences must not contain
// terminal ids; termination is implied by the end of the sequence.
func (t *Trie) Insert(seq []int) error {
	node := t.root
	for _, id := range seq {
		for _, term := range t.terminals {
			if id == term {
				return fmt.Errorf("syntax: terminal id %d inside sequence", id)
			}
		}
		if node.children == nil {
			node.children = make(map[int]*trieNode)
		}
		child, ok := node.children[id]
		if !ok {
			child = &trieNode{}
			node.children[id] = child
		}
		node = child
	}
	node.end = true
	return nil
}

// Start returns the structural state of an empty sequence.
func (t *Trie) Start() *Cursor {
	return &Cursor{trie: t, node: t.root}
}

// Cursor is a position in the trie; it implements beam.Constraint.
type Cursor struct {
	trie *Trie
	node *trieNode
}

func (c *Cursor) LegalTokens() []int {
	ids := make([]int, 0, len(c.node.children)+len(c.trie.terminals))
	for id := range c.node.children {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	if c.node.end {
		ids = append(ids, c.trie.terminals...)
	}
	return ids
}

func (c *Cursor) Advance(token int) (beam.Advance, error) {
	if c.node.end {
		for _, term := range c.trie.terminals {
			if token == term {
				return beam.Terminal, nil
			}
		}
	}
	child, ok := c.node.children[token]
	if !ok {
		return beam.Continue, fmt.Errorf("syntax: token %d not legal here", token)
	}
	c.node = child
	return beam.Continue, nil
}

func (c *Cursor) Clone() beam.Constraint {
	return &Cursor{trie: c.trie, node: c.node}
}

func (c *Cursor) TerminalFanout() int { return len(c.trie.terminals) }
