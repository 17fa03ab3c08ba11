package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParseArgs(t *testing.T) {
	s, err := parseArgs([]string{"BIG_MODEL=cortex-15", "MIDDLE_MODEL=cortex-15", "PORT=4902", "-auto"}, env(nil))
	require.NoError(t, err)
	assert.Equal(t, settings{Model: "cortex-15", Port: 4902, Host: "127.0.0.1", Auto: true}, s)

	s, err = parseArgs(nil, env(map[string]string{"BIG_MODEL": "lyra-flash-6", "PORT": "4901", "STUB_DELAY": "250ms"}))
	require.NoError(t, err)
	assert.Equal(t, "lyra-flash-6", s.Model)
	assert.Equal(t, 4901, s.Port)
	assert.Equal(t, 250*time.Millisecond, s.Delay)
	assert.False(t, s.Auto)

	// args win over env
	s, err = parseArgs([]string{"PORT=5000"}, env(map[string]string{"PORT": "4901"}))
	require.NoError(t, err)
	assert.Equal(t, 5000, s.Port)
	assert.Equal(t, "stub", s.Model)
}

func TestParseArgsErrors(t *testing.T) {
	cases := map[string][]string{
		"no port":      nil,
		"bad port":     {"PORT=abc"},
		"out of range": {"PORT=70000"},
		"bad flag":     {"PORT=1", "--verbose"},
		"not kv":       {"PORT=1", "cortex"},
		"bad delay":    {"PORT=1", "STUB_DELAY=soon"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseArgs(args, env(nil))
			assert.Error(t, err)
		})
	}
}

func TestServeAnswersUntilCanceled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, settings{Model: "cortex-12", Port: port, Host: "127.0.0.1"}) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/v1/messages", port)
	body := `{"model":"m","max_tokens":16,"messages":[{"role":"user","content":"ping"}]}`
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Post(url, "application/json", strings.NewReader(body))
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
