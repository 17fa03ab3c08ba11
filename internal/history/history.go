package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of run event.
type EventType string

const (
	EventProxyStart  EventType = "proxy_start"
	EventProxyReady  EventType = "proxy_ready"
	EventProxyFailed EventType = "proxy_failed"
	EventProxyStop   EventType = "proxy_stop"
	EventOutcome     EventType = "outcome"
)

// Event is one row of run history. Proxy events carry Port/PID; outcome
// events carry Status and Duration.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	RunID      string    `json:"run_id"`
	Worker     string    `json:"worker"`
	Port       int       `json:"port,omitempty"`
	PID        int       `json:"pid,omitempty"`
	Status     string    `json:"status,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// DefaultSendTimeout bounds a single Send on each sink.
const DefaultSendTimeout = 3 * time.Second

// NewRunID returns a fresh identifier shared by every event of one invocation.
func NewRunID() string { return uuid.NewString() }

// Recorder stamps events with the run id and forwards them to every sink.
// Sink errors are logged and otherwise ignored; history never affects a run.
type Recorder struct {
	runID   string
	timeout time.Duration

	mu    sync.RWMutex
	sinks []Sink
}

func NewRecorder(runID string, sinks ...Sink) *Recorder {
	if runID == "" {
		runID = NewRunID()
	}
	return &Recorder{runID: runID, timeout: DefaultSendTimeout, sinks: sinks}
}

func (r *Recorder) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

// Record delivers e to all sinks. A nil Recorder is a no-op.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if r == nil {
		return
	}
	r.mu.RLock()
	sinks := append([]Sink(nil), r.sinks...)
	r.mu.RUnlock()
	if len(sinks) == 0 {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	e.RunID = r.runID
	// detach from the caller: stop events are recorded while the run is being torn down
	ctx = context.WithoutCancel(ctx)
	for _, s := range sinks {
		sctx, cancel := context.WithTimeout(ctx, r.timeout)
		if err := s.Send(sctx, e); err != nil {
			slog.Warn("history sink send failed", "type", e.Type, "worker", e.Worker, "error", err)
		}
		cancel()
	}
}

// Close closes every sink and returns the joined errors.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	sinks := r.sinks
	r.sinks = nil
	r.mu.Unlock()
	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
