// Package vocab maps token ids to strings for rendering decoded hypotheses.
// Building a vocabulary (tokenizer training) happens upstream; this is only
// the lookup table a decoding consumer needs.
package vocab

import (
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
)

// Vocabulary is an id-indexed token table plus the set of terminal ids that
// close a sequence.
type Vocabulary struct {
	Tokens    []string `json:"tokens"`
	Terminals []int    `json:"terminals"`

	index map[string]int
}

// Load reads a vocabulary JSON file.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: %w", err)
	}
	var v Vocabulary
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("vocab: parse %s: %w", path, err)
	}
	if len(v.Tokens) == 0 {
		return nil, fmt.Errorf("vocab: %s holds no tokens", path)
	}
	for _, id := range v.Terminals {
		if id < 0 || id >= len(v.Tokens) {
			return nil, fmt.Errorf("vocab: terminal id %d out of range", id)
		}
	}
	v.buildIndex()
	return &v, nil
}

// New builds a vocabulary in memory.
func New(tokens []string, terminals []int) *Vocabulary {
	v := &Vocabulary{Tokens: tokens, Terminals: terminals}
	v.buildIndex()
	return v
}

func (v *Vocabulary) buildIndex() {
	v.index = make(map[string]int, len(v.Tokens))
	for id, tok := range v.Tokens {
		v.index[tok] = id
	}
}

// Size is the number of tokens, i.e. the decoder's vocab dimension.
func (v *Vocabulary) Size() int { return len(v.Tokens) }

// Token returns the string for an id, or "" if out of range.
func (v *Vocabulary) Token(id int) string {
	if id < 0 || id >= len(v.Tokens) {
		return ""
	}
	return v.Tokens[id]
}

// ID looks up a token string.
func (v *Vocabulary) ID(token string) (int, bool) {
	id, ok := v.index[token]
	return id, ok
}

// IsTerminal reports whether id closes a sequence.
func (v *Vocabulary) IsTerminal(id int) bool {
	for _, t := range v.Terminals {
		if t == id {
			return true
		}
	}
	return false
}

// Render joins the token strings of a sequence, dropping terminal markers.
func (v *Vocabulary) Render(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		if v.IsTerminal(id) {
			continue
		}
		b.WriteString(v.Token(id))
	}
	return b.String()
}

// Encode maps token strings to ids, failing on unknown tokens.
func (v *Vocabulary) Encode(tokens []string) ([]int, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		id, ok := v.index[tok]
		if !ok {
			return nil, fmt.Errorf("vocab: unknown token %q", tok)
		}
		ids[i] = id
	}
	return ids, nil
}
