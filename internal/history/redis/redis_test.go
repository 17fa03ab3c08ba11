package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/mca/internal/history"
)

func TestRedisSink_XAdd(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	sink, err := New(ctx, Options{Addr: mr.Addr(), Stream: "runs"})
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	assert.Equal(t, "runs", sink.Stream())

	events := []history.Event{
		{Type: history.EventProxyReady, OccurredAt: time.Now(), RunID: "r", Worker: "cortex-12", Port: 4903, PID: 9},
		{Type: history.EventOutcome, OccurredAt: time.Now(), RunID: "r", Worker: "cortex-12", Status: "timeout", Error: "execution timed out after 500s"},
	}
	for _, e := range events {
		require.NoError(t, sink.Send(ctx, e))
	}

	c := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = c.Close() }()
	msgs, err := c.XRange(ctx, "runs", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "proxy_ready", msgs[0].Values["type"])
	assert.Equal(t, "4903", msgs[0].Values["port"])
	assert.Equal(t, "timeout", msgs[1].Values["status"])
}

func TestRedisSink_DefaultStream(t *testing.T) {
	mr := miniredis.RunT(t)
	sink, err := New(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	assert.Equal(t, DefaultStream, sink.Stream())
}

func TestRedisSink_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := New(context.Background(), Options{Addr: addr})
	assert.Error(t, err)

	_, err = New(context.Background(), Options{})
	assert.Error(t, err)
}
