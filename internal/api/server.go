// Package api exposes translation over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/convseq/convseq/internal/logger"
)

// Translator is the generation surface the server needs.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Server handles translation requests.
type Server struct {
	translator Translator
	log        logger.Logger
}

// NewServer builds a server around a translator.
func NewServer(t Translator, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{translator: t, log: log}
}

// Register mounts the API routes.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/translate", s.handleTranslate)
	e.GET("/v1/health", s.handleHealth)
}

// TranslateRequest is the body of POST /v1/translate.
type TranslateRequest struct {
	Text string `json:"text"`
}

// TranslateResponse is the reply to a translation request.
type TranslateResponse struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Translation string `json:"translation"`
}

func (s *Server) handleTranslate(c *echo.Context) error {
	if s.translator == nil {
		return writeError(c, http.StatusInternalServerError, "translator not configured")
	}
	req, err := decodeJSON[TranslateRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if strings.TrimSpace(req.Text) == "" {
		return writeError(c, http.StatusBadRequest, "text must not be empty")
	}

	id := "tr_" + uuid.NewString()
	out, err := s.translator.Translate(c.Request().Context(), req.Text)
	if err != nil {
		s.log.Error("translation failed", "id", id, "error", err)
		return writeError(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, TranslateResponse{
		ID:          id,
		Text:        req.Text,
		Translation: out,
	})
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(c *echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]any{
		"error": map[string]string{"message": msg},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	err := dec.Decode(&out)
	return out, err
}
