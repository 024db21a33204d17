package api

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/treebeam/internal/inference"
	"github.com/samcharles93/treebeam/internal/lm"
	"github.com/samcharles93/treebeam/internal/syntax"
)

var _ inference.Scorer = (*lm.Bigram)(nil)

// CompleteRequest asks for beam-search completions of a token prefix.
type CompleteRequest struct {
	// Prefix is the context, as token strings resolved against the
	// server's vocabulary.
	Prefix   []string `json:"prefix"`
	BeamSize int      `json:"beam_size,omitempty"`
	MaxLen   int      `json:"max_len,omitempty"`
	K        int      `json:"k,omitempty"`
}

// Completion is one ranked completion.
type Completion struct {
	Text   string  `json:"text"`
	Tokens []int   `json:"tokens"`
	Score  float64 `json:"score"`
}

type CompleteResponse struct {
	ID          string       `json:"id"`
	Completions []Completion `json:"completions"`
	Steps       int          `json:"steps"`
}

func (s *Server) handleComplete(c *echo.Context) error {
	if s.model == nil || s.vocab == nil {
		return writeError(c, http.StatusServiceUnavailable, "not_configured",
			"no model or vocabulary loaded")
	}
	req, err := decodeJSON[CompleteRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.BeamSize <= 0 {
		req.BeamSize = s.beamSize
	}
	if req.MaxLen <= 0 {
		req.MaxLen = s.maxLen
	}
	if req.K <= 0 {
		req.K = req.BeamSize
	}

	prefix, err := s.vocab.Encode(req.Prefix)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	scorer := inference.WithPrefix(s.model, prefix)
	res, err := inference.Run(c.Request().Context(), scorer,
		syntax.NewFree(s.vocab.Size(), s.vocab.Terminals),
		inference.Config{
			VocabSize: s.vocab.Size(),
			BeamSize:  req.BeamSize,
			MaxLen:    req.MaxLen,
			Log:       s.log,
		})
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "decode_error", err.Error())
	}

	completions := make([]Completion, 0, req.K)
	for _, h := range res.Hypotheses {
		if len(completions) == req.K {
			break
		}
		completions = append(completions, Completion{
			Text:   s.vocab.Render(h.Tokens),
			Tokens: h.Tokens,
			Score:  h.Score,
		})
	}

	id := requestID()
	s.log.Info("completion served",
		"id", id,
		"prefix_tokens", len(prefix),
		"completions", len(completions),
		"steps", res.Stats.Steps)
	return c.JSON(http.StatusOK, CompleteResponse{
		ID:          id,
		Completions: completions,
		Steps:       res.Stats.Steps,
	})
}
