package api

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/treebeam/internal/beam"
	"github.com/samcharles93/treebeam/internal/eval"
)

// RankRequest re-ranks hypotheses for one or more prediction records by
// length-normalized score.
type RankRequest struct {
	Predictions []eval.Prediction `json:"predictions"`
	K           int               `json:"k"`
	LenNormBase *float64          `json:"len_norm_base,omitempty"`
	LenNormPow  *float64          `json:"len_norm_pow,omitempty"`
}

type RankResponse struct {
	ID      string                  `json:"id"`
	Results [][]eval.TextHypothesis `json:"results"`
}

func (s *Server) handleRank(c *echo.Context) error {
	req, err := decodeJSON[RankRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if len(req.Predictions) == 0 {
		return writeBadRequest(c, "predictions must not be empty")
	}
	if req.K <= 0 {
		return writeBadRequest(c, "k must be positive")
	}

	norm := beam.EvalScoreNorm
	if req.LenNormBase != nil {
		norm.Base = *req.LenNormBase
	}
	if req.LenNormPow != nil {
		norm.Pow = *req.LenNormPow
	}

	ranker := eval.Ranker{Norm: norm}
	results := make([][]eval.TextHypothesis, len(req.Predictions))
	for i, p := range req.Predictions {
		results[i] = ranker.TopK(p, req.K)
	}

	id := requestID()
	s.log.Debug("ranked predictions", "id", id, "predictions", len(req.Predictions), "k", req.K)
	return c.JSON(http.StatusOK, RankResponse{ID: id, Results: results})
}
