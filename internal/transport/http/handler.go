// Package http provides the gateway's HTTP handlers: the streaming chat
// endpoint plus session and timing diagnostics.
package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hvlab/guardchat/internal/adapter/foundry"
	"github.com/hvlab/guardchat/internal/domain"
	"github.com/hvlab/guardchat/internal/session"
	"github.com/hvlab/guardchat/internal/timing"
)

// Processor runs one chat request through the moderation-gated pipeline.
type Processor interface {
	Process(ctx context.Context, req domain.Request, trace *timing.Trace) <-chan domain.OutputEvent
}

// Handler handles gateway HTTP requests.
type Handler struct {
	processor Processor
	platform  foundry.Platform
	sessions  *session.Manager
	timings   *timing.Log
}

// NewHandler creates a new gateway handler.
func NewHandler(processor Processor, platform foundry.Platform, sessions *session.Manager, timings *timing.Log) *Handler {
	return &Handler{
		processor: processor,
		platform:  platform,
		sessions:  sessions,
		timings:   timings,
	}
}

// RegisterRoutes registers gateway routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/chat", h.Chat)
	e.GET("/history", h.History)
	e.GET("/clear", h.Clear)
	e.GET("/set-instructions", h.SetInstructions)
	e.GET("/timings", h.Timings)
	e.GET("/timings/latest", h.LatestTiming)
	e.GET("/timings/clear", h.ClearTimings)
	e.GET("/healthz", h.Health)
}

// History returns the session transcript and current instructions.
// GET /history
func (h *Handler) History(c echo.Context) error {
	sess := h.sessions.Get(sessionID(c))
	return c.JSON(http.StatusOK, map[string]any{
		"history":      sess.Transcript(),
		"instructions": sess.Instructions(),
	})
}

// Clear resets the session transcript and both conversation handles.
// GET /clear
func (h *Handler) Clear(c echo.Context) error {
	sess := h.sessions.Get(sessionID(c))
	sess.Reset()
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": "History cleared",
	})
}

// SetInstructions replaces the session's system instructions.
// GET /set-instructions?instructions=...
func (h *Handler) SetInstructions(c echo.Context) error {
	sess := h.sessions.Get(sessionID(c))
	sess.SetInstructions(c.QueryParam("instructions"))
	return c.JSON(http.StatusOK, map[string]string{
		"status":       "success",
		"instructions": sess.Instructions(),
	})
}

// Timings returns all timing records.
// GET /timings
func (h *Handler) Timings(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"timings": h.timings.Records()})
}

// LatestTiming returns the most recent timing record.
// GET /timings/latest
func (h *Handler) LatestTiming(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"timing": h.timings.Latest()})
}

// ClearTimings drops all timing records.
// GET /timings/clear
func (h *Handler) ClearTimings(c echo.Context) error {
	h.timings.Clear()
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Timing logs cleared",
	})
}

// Health is the liveness probe.
// GET /healthz
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func sessionID(c echo.Context) string {
	if id := c.QueryParam("session"); id != "" {
		return id
	}
	return "default"
}
