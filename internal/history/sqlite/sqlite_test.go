package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/mca/internal/history"
)

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	events := []history.Event{
		{Type: history.EventProxyStart, OccurredAt: time.Now().UTC(), RunID: "r1", Worker: "cortex-15", Port: 4902, PID: 1234},
		{Type: history.EventProxyReady, OccurredAt: time.Now().UTC(), RunID: "r1", Worker: "cortex-15", Port: 4902, PID: 1234},
		{Type: history.EventOutcome, OccurredAt: time.Now().UTC(), RunID: "r1", Worker: "cortex-15", Status: "timeout", Error: "execution timed out after 500s", DurationMS: 500000},
		{Type: history.EventOutcome, OccurredAt: time.Now().UTC(), RunID: "r2", Worker: "other", Status: "success"},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send %s event: %v", e.Type, err)
		}
	}

	n, err := sink.Count(ctx, "r1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows for r1, got %d", n)
	}
}

func TestSQLiteSink_Memory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()
	if err := sink.Send(context.Background(), history.Event{Type: history.EventProxyStop, RunID: "m", Worker: "w"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if n, _ := sink.Count(context.Background(), "m"); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
