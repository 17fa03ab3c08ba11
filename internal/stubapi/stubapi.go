// Package stubapi is a minimal Anthropic Messages API look-alike used to
// exercise the launch contract and the worker call without a real backend.
package stubapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// MessagesRequest is the subset of the request body the stub understands.
type MessagesRequest struct {
	Model     string          `json:"model"`
	MaxTokens int64           `json:"max_tokens"`
	System    json.RawMessage `json:"system,omitempty"`
	Messages  []Message       `json:"messages"`
	Stream    bool            `json:"stream"`
}

type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SystemText flattens the system field, which may be a string or a list of text blocks.
func (r MessagesRequest) SystemText() string { return flatten(r.System) }

// LastUserText returns the text of the final user message.
func (r MessagesRequest) LastUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return flatten(r.Messages[i].Content)
		}
	}
	return ""
}

func flatten(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []textBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" || b.Type == "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Responder produces the assistant text for a request.
type Responder func(req MessagesRequest) (string, error)

// Options configures the stub.
type Options struct {
	Name      string        // reported in the default reply and /healthz
	Delay     time.Duration // wait before answering
	Responder Responder
	Chunk     int // stream text in pieces of this many runes; default 16
}

// New builds the echo app.
func New(opts Options) *echo.Echo {
	if opts.Responder == nil {
		name := opts.Name
		opts.Responder = func(req MessagesRequest) (string, error) {
			return fmt.Sprintf("[%s] %s", name, req.LastUserText()), nil
		}
	}
	if opts.Chunk <= 0 {
		opts.Chunk = 16
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "name": opts.Name})
	})
	e.POST("/v1/messages", func(c echo.Context) error {
		var req MessagesRequest
		if err := c.Bind(&req); err != nil {
			return apiError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		}
		if len(req.Messages) == 0 {
			return apiError(c, http.StatusBadRequest, "invalid_request_error", "messages: at least one message is required")
		}
		if opts.Delay > 0 {
			select {
			case <-time.After(opts.Delay):
			case <-c.Request().Context().Done():
				return nil
			}
		}
		text, err := opts.Responder(req)
		if err != nil {
			return apiError(c, http.StatusInternalServerError, "api_error", err.Error())
		}
		if req.Stream {
			return stream(c, req.Model, text, opts.Chunk)
		}
		return c.JSON(http.StatusOK, message(req.Model, text))
	})
	return e
}

func apiError(c echo.Context, status int, typ, msg string) error {
	return c.JSON(status, map[string]any{
		"type":  "error",
		"error": map[string]string{"type": typ, "message": msg},
	})
}

func message(model, text string) map[string]any {
	return map[string]any{
		"id":            "msg_" + uuid.NewString(),
		"type":          "message",
		"role":          "assistant",
		"model":         model,
		"content":       []textBlock{{Type: "text", Text: text}},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]int{"input_tokens": 1, "output_tokens": len(strings.Fields(text))},
	}
}

type sseEvent struct {
	name string
	data any
}

func stream(c echo.Context, model, text string, chunk int) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	start := message(model, "")
	start["content"] = []textBlock{}
	start["stop_reason"] = nil
	events := []sseEvent{
		{"message_start", map[string]any{"type": "message_start", "message": start}},
		{"content_block_start", map[string]any{"type": "content_block_start", "index": 0, "content_block": textBlock{Type: "text", Text: ""}}},
	}
	// chunk on rune boundaries so multi-byte text survives
	runes := []rune(text)
	for i := 0; i < len(runes); i += chunk {
		end := min(i+chunk, len(runes))
		events = append(events, sseEvent{"content_block_delta", map[string]any{
			"type": "content_block_delta", "index": 0,
			"delta": map[string]string{"type": "text_delta", "text": string(runes[i:end])},
		}})
	}
	events = append(events,
		sseEvent{"content_block_stop", map[string]any{"type": "content_block_stop", "index": 0}},
		sseEvent{"message_delta", map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": "end_turn", "stop_sequence": nil},
			"usage": map[string]int{"output_tokens": len(strings.Fields(text))},
		}},
		sseEvent{"message_stop", map[string]any{"type": "message_stop"}},
	)

	for _, ev := range events {
		b, err := json.Marshal(ev.data)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, b); err != nil {
			return err
		}
		w.Flush()
	}
	return nil
}
