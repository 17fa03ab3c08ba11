package stubapi

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/messages", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestNonStreaming(t *testing.T) {
	srv := httptest.NewServer(New(Options{Name: "cortex-15"}))
	defer srv.Close()

	resp := post(t, srv, `{"model":"m","max_tokens":10,"system":"sys","messages":[{"role":"user","content":"hi there"}]}`)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msg struct {
		Content []textBlock `json:"content"`
		Model   string      `json:"model"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	require.Len(t, msg.Content, 1)
	assert.Equal(t, "[cortex-15] hi there", msg.Content[0].Text)
	assert.Equal(t, "m", msg.Model)
}

func TestStreamingChunksRunes(t *testing.T) {
	var seenSystem string
	srv := httptest.NewServer(New(Options{Chunk: 2, Responder: func(req MessagesRequest) (string, error) {
		seenSystem = req.SystemText()
		return "分析结果ok", nil
	}}))
	defer srv.Close()

	resp := post(t, srv, `{"model":"m","max_tokens":10,"stream":true,"system":[{"type":"text","text":"a"},{"type":"text","text":"b"}],"messages":[{"role":"user","content":[{"type":"text","text":"q"}]}]}`)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var text strings.Builder
	var names []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev struct {
			Type  string `json:"type"`
			Delta struct {
				Text string `json:"text"`
			} `json:"delta"`
		}
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		if ev.Type == "content_block_delta" {
			text.WriteString(ev.Delta.Text)
		}
	}
	assert.Equal(t, "分析结果ok", text.String())
	assert.Equal(t, "a\nb", seenSystem)
	assert.Equal(t, "message_start", names[0])
	assert.Equal(t, "message_stop", names[len(names)-1])
	assert.Equal(t, 3, strings.Count(strings.Join(names, ","), "content_block_delta"))
}

func TestBadRequests(t *testing.T) {
	srv := httptest.NewServer(New(Options{}))
	defer srv.Close()

	resp := post(t, srv, `{"model":"m","messages":[]}`)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	h, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = h.Body.Close()
	assert.Equal(t, http.StatusOK, h.StatusCode)
}
