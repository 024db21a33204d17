// Package api exposes ranking and constrained completion over HTTP.
package api

import (
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/treebeam/internal/logger"
	"github.com/samcharles93/treebeam/internal/lm"
	"github.com/samcharles93/treebeam/internal/vocab"
)

// Server holds the artifacts a request needs: the scoring model and the
// vocabulary. Both are immutable after load, so handlers share them freely.
type Server struct {
	model *lm.Bigram
	vocab *vocab.Vocabulary
	log   logger.Logger

	// Completion defaults, overridable per request.
	beamSize int
	maxLen   int
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Model    *lm.Bigram
	Vocab    *vocab.Vocabulary
	Log      logger.Logger
	BeamSize int
	MaxLen   int
}

// NewServer creates a server. Model and Vocab are only required for the
// completion endpoint; a ranking-only deployment may omit them.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		model:    cfg.Model,
		vocab:    cfg.Vocab,
		log:      cfg.Log,
		beamSize: cfg.BeamSize,
		maxLen:   cfg.MaxLen,
	}
	if s.log == nil {
		s.log = logger.Default()
	}
	if s.beamSize <= 0 {
		s.beamSize = 6
	}
	if s.maxLen <= 0 {
		s.maxLen = 48
	}
	return s
}

// Register mounts the API routes.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.POST("/v1/rank", s.handleRank)
	e.POST("/v1/complete", s.handleComplete)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"completer": s.model != nil && s.vocab != nil,
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var v T
	data, err := io.ReadAll(io.LimitReader(r, 1<<22))
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("invalid JSON body: %w", err)
	}
	return v, nil
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": map[string]string{
			"type":    errType,
			"message": msg,
		},
	})
}

func requestID() string { return "req_" + uuid.NewString() }
