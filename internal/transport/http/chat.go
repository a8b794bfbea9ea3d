package http

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hvlab/guardchat/internal/domain"
	"github.com/hvlab/guardchat/internal/timing"
)

// messageFrame is the SSE wire shape for message events.
type messageFrame struct {
	Type    string `json:"type"`
	Start   bool   `json:"start,omitempty"`
	Content string `json:"content,omitempty"`
	End     bool   `json:"end,omitempty"`
}

// doneFrame closes the SSE stream and carries the request's timing trace.
type doneFrame struct {
	Type   string        `json:"type"`
	Timing timing.Record `json:"timing"`
}

// Chat streams one moderated chat turn as server-sent events.
// GET /chat?msg=...&session=...
func (h *Handler) Chat(c echo.Context) error {
	msg := c.QueryParam("msg")
	if msg == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "msg is required"})
	}

	sess := h.sessions.Get(sessionID(c))
	// One coordinator invocation in flight per session.
	sess.Acquire()
	defer sess.Release()

	ctx := c.Request().Context()
	requestID := "req_" + uuid.New().String()[:8]
	trace := timing.NewTrace(requestID)
	trace.Add(timing.CategoryRequest, "start", nil)

	moderationConv, generationConv, err := sess.GetOrCreateHandles(ctx, h.platform)
	if err != nil {
		log.Printf("ERROR: failed to prepare conversations: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	trace.Add(timing.CategoryRequest, "conversations.ready", map[string]any{
		"moderation": moderationConv,
		"generation": generationConv,
	})

	sess.AppendTurn("user", msg)

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming not supported")
	}

	req := domain.Request{
		ID:               requestID,
		SessionID:        sess.ID(),
		Message:          msg,
		ModerationHandle: moderationConv,
		GenerationHandle: generationConv,
	}

	var fullText string
	for ev := range h.processor.Process(ctx, req, trace) {
		switch ev.Type {
		case domain.OutputMessageStart:
			writeFrame(c, flusher, messageFrame{Type: "message", Start: true})
		case domain.OutputMessageContent:
			writeFrame(c, flusher, messageFrame{Type: "message", Content: ev.Content})
		case domain.OutputMessageEnd:
			writeFrame(c, flusher, messageFrame{Type: "message", End: true})
		case domain.OutputDone:
			// Consumed here; the gateway emits its own done frame with the
			// timing trace attached.
			fullText = ev.FullText
		}
	}

	sess.AppendTurn("assistant", fullText)

	record := trace.Snapshot()
	writeFrame(c, flusher, doneFrame{Type: "done", Timing: record})
	h.timings.Append(record)

	// Keep the guardrail conversation aware of what was actually said, so
	// the next turn's check sees prior assistant output. Best effort.
	if err := h.platform.AddConversationItem(ctx, moderationConv, "assistant", fullText); err != nil {
		log.Printf("WARN: [CONVERSATION] failed to add assistant reply to moderation conversation: %v", err)
	}

	return nil
}

func writeFrame(c echo.Context, flusher http.Flusher, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: failed to marshal SSE frame: %v", err)
		return
	}
	if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data); err != nil {
		log.Printf("WARN: failed to write SSE frame: %v", err)
		return
	}
	flusher.Flush()
}
