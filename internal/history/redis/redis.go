package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	goredis "github.com/go-redis/redis/v8"

	"github.com/loykin/mca/internal/history"
)

// DefaultStream is used when the DSN names no stream.
const DefaultStream = "mca:history"

// Sink appends events to a Redis stream with XADD.
type Sink struct {
	client *goredis.Client
	stream string
	maxLen int64
}

// Options configures a Sink.
type Options struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64 // approximate cap; 0 keeps everything
}

func New(ctx context.Context, opts Options) (*Sink, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, fmt.Errorf("redis history sink: empty address")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	stream := opts.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return &Sink{client: client, stream: stream, maxLen: opts.MaxLen}, nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	args := &goredis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"type":        string(e.Type),
			"occurred_at": e.OccurredAt.UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
			"run_id":      e.RunID,
			"worker":      e.Worker,
			"port":        strconv.Itoa(e.Port),
			"pid":         strconv.Itoa(e.PID),
			"status":      e.Status,
			"error":       e.Error,
			"duration_ms": strconv.FormatInt(e.DurationMS, 10),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis xadd %s: %w", s.stream, err)
	}
	return nil
}

func (s *Sink) Stream() string { return s.stream }

func (s *Sink) Close() error { return s.client.Close() }
