package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/loykin/mca/internal/config"
	"github.com/loykin/mca/internal/orchestrator"
	"github.com/loykin/mca/internal/tracing"
)

// ErrEmptyResponse is returned when the stream carried no text.
var ErrEmptyResponse = errors.New("empty response from worker")

// Client calls a worker through its local proxy using the Messages API.
type Client struct {
	host      string
	model     string
	maxTokens int64
	apiKey    string
	hc        *http.Client
}

var _ orchestrator.Caller = (*Client)(nil)

// New builds a client from the agent settings. The HTTP client has no
// overall timeout; the orchestrator's per-worker deadline bounds each call.
func New(cfg config.Agent) *Client {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxTokens
	}
	// local proxies hold the real credentials; the key only has to be present
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		apiKey = "mca-local"
	}
	return &Client{
		host:      host,
		model:     model,
		maxTokens: maxTokens,
		apiKey:    apiKey,
		hc:        &http.Client{},
	}
}

// BaseURL is the proxy endpoint for a worker port.
func (c *Client) BaseURL(port int) string {
	return "http://" + net.JoinHostPort(c.host, strconv.Itoa(port))
}

// SystemPrompt combines the worker prompt with the working directory.
func SystemPrompt(prompt, dir string) string {
	prompt = strings.TrimSpace(prompt)
	if dir == "" {
		return prompt
	}
	ctxLine := "Working directory: " + dir
	if prompt == "" {
		return ctxLine
	}
	return prompt + "\n\n" + ctxLine
}

// Call streams one completion and returns the concatenated text.
func (c *Client) Call(ctx context.Context, req orchestrator.Request) (string, error) {
	opts := []option.RequestOption{
		option.WithBaseURL(c.BaseURL(req.Worker.Port)),
		option.WithHTTPClient(c.hc),
		option.WithMaxRetries(0),
		option.WithMiddleware(traceHeaders),
		option.WithAPIKey(c.apiKey),
	}
	client := anthropic.NewClient(opts...)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Query)),
		},
	}
	if sp := SystemPrompt(req.Worker.SystemPrompt, req.Dir); sp != "" {
		params.System = []anthropic.TextBlockParam{{Text: sp}}
	}

	stream := client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var b strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if d, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
				b.WriteString(d.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%s: %w", req.Worker.Name, err)
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

func traceHeaders(r *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	tracing.InjectHeaders(r.Context(), r.Header)
	return next(r)
}
