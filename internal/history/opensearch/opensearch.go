package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loykin/mca/internal/history"
)

// DefaultIndex receives events when Options.Index is empty.
const DefaultIndex = "mca-history"

type Options struct {
	URL      string // scheme://host:port
	Index    string
	Username string // basic auth, optional
	Password string
}

// Sink indexes each event as one document through the REST API
// (POST {url}/{index}/_doc).
type Sink struct {
	client *http.Client
	docURL string
	user   string
	pass   string
}

func New(opts Options) *Sink {
	if opts.Index == "" {
		opts.Index = DefaultIndex
	}
	return &Sink{
		client: &http.Client{Timeout: 5 * time.Second},
		docURL: strings.TrimRight(opts.URL, "/") + "/" + url.PathEscape(opts.Index) + "/_doc",
		user:   opts.Username,
		pass:   opts.Password,
	}
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.docURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.user != "" {
		req.SetBasicAuth(s.user, s.pass)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("opensearch index %s: status %d: %s", e.Type, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *Sink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
