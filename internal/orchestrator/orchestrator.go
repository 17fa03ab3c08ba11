package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/loykin/mca/internal/config"
	"github.com/loykin/mca/internal/history"
	"github.com/loykin/mca/internal/metrics"
	"github.com/loykin/mca/internal/tracing"
)

// Request is what a Caller receives for one worker.
type Request struct {
	Worker config.Worker
	Dir    string // absolute working directory passed as context
	Query  string
}

// Caller performs the actual worker call. It must honor ctx cancellation;
// a call that ignores it is abandoned at the deadline.
type Caller interface {
	Call(ctx context.Context, req Request) (string, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, req Request) (string, error)

func (f CallerFunc) Call(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// Orchestrator fans one query out to many workers.
type Orchestrator struct {
	caller    Caller
	timeout   time.Duration
	log       *slog.Logger
	rec       *history.Recorder
	observers []func(Outcome)
}

type Option func(*Orchestrator)

// WithDefaultTimeout sets the per-worker timeout used when RunAll gets none.
func WithDefaultTimeout(d time.Duration) Option { return func(o *Orchestrator) { o.timeout = d } }

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

// WithRecorder records one outcome event per worker.
func WithRecorder(r *history.Recorder) Option { return func(o *Orchestrator) { o.rec = r } }

// WithObserver registers f to be called as each outcome is produced.
// f runs on the worker's goroutine and must be safe for concurrent use.
func WithObserver(f func(Outcome)) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, f) }
}

func New(caller Caller, opts ...Option) *Orchestrator {
	o := &Orchestrator{caller: caller, timeout: config.DefaultAgentTimeout, log: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.timeout <= 0 {
		o.timeout = config.DefaultAgentTimeout
	}
	return o
}

type runConfig struct {
	timeout time.Duration
	dir     string
}

// RunOption adjusts a single RunAll call.
type RunOption func(*runConfig)

// WithTimeout overrides the per-worker timeout for one run.
func WithTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithWorkDir sets the working directory handed to every call.
func WithWorkDir(dir string) RunOption { return func(c *runConfig) { c.dir = dir } }

// RunAll calls every worker concurrently and returns exactly one Outcome per
// worker, in input order. One worker's failure or timeout never affects the
// others. An empty worker list yields an empty slice.
func (o *Orchestrator) RunAll(ctx context.Context, workers []config.Worker, query string, opts ...RunOption) []Outcome {
	cfg := runConfig{timeout: o.timeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(workers) == 0 {
		o.log.Warn("no workers to run")
		return []Outcome{}
	}

	ctx, span := tracing.Tracer().Start(ctx, "orchestrator.RunAll")
	defer span.End()
	span.SetAttributes(attribute.Int("workers", len(workers)), attribute.String("timeout", cfg.timeout.String()))

	o.log.Info("dispatching query", "workers", len(workers), "timeout", cfg.timeout)
	out := make([]Outcome, len(workers))
	// plain Group: a failing worker must not cancel its siblings
	var g errgroup.Group
	for i, w := range workers {
		g.Go(func() error {
			out[i] = o.runOne(ctx, w, query, cfg)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

type callResult struct {
	payload string
	err     error
}

func (o *Orchestrator) runOne(ctx context.Context, w config.Worker, query string, cfg runConfig) Outcome {
	ctx, span := tracing.Tracer().Start(ctx, "worker.call")
	defer span.End()
	span.SetAttributes(attribute.String("worker", w.Name), attribute.Int("port", w.Port))

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	ch := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- callResult{err: fmt.Errorf("worker call panicked: %v", r)}
			}
		}()
		p, err := o.caller.Call(cctx, Request{Worker: w, Dir: cfg.dir, Query: query})
		ch <- callResult{payload: p, err: err}
	}()

	var res Outcome
	select {
	case r := <-ch:
		res = o.fromResult(w.Name, r, cctx, ctx, cfg.timeout, time.Since(start))
	case <-cctx.Done():
		// a result that raced the deadline still counts
		select {
		case r := <-ch:
			res = o.fromResult(w.Name, r, cctx, ctx, cfg.timeout, time.Since(start))
		default:
			res = o.fromDone(w.Name, ctx, cfg.timeout, time.Since(start))
		}
	}

	if !res.OK() {
		span.SetStatus(codes.Error, res.Error)
	}
	span.SetAttributes(attribute.String("status", string(res.Status)))
	o.finish(ctx, w, res)
	return res
}

func (o *Orchestrator) fromResult(name string, r callResult, cctx, parent context.Context, timeout, d time.Duration) Outcome {
	if r.err == nil {
		return Succeeded(name, r.payload, d)
	}
	// callers that return ctx.Err() on our deadline are timeouts, not errors
	if errors.Is(r.err, context.DeadlineExceeded) && errors.Is(cctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return TimedOut(name, timeout, d)
	}
	return Failed(name, errorText(r.err), d)
}

// errorText never returns "": an Error outcome always carries a message.
func errorText(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fmt.Sprintf("%T", err)
}

func (o *Orchestrator) fromDone(name string, parent context.Context, timeout, d time.Duration) Outcome {
	if err := parent.Err(); err != nil {
		return Failed(name, "run canceled: "+err.Error(), d)
	}
	return TimedOut(name, timeout, d)
}

func (o *Orchestrator) finish(ctx context.Context, w config.Worker, res Outcome) {
	switch res.Status {
	case StatusSuccess:
		o.log.Info("worker finished", "name", w.Name, "elapsed", res.Duration.Round(time.Millisecond))
	case StatusTimeout:
		o.log.Warn("worker timed out", "name", w.Name, "error", res.Error)
	default:
		o.log.Warn("worker failed", "name", w.Name, "error", res.Error)
	}
	metrics.ObserveOutcome(w.Name, string(res.Status), res.Duration.Seconds())
	o.rec.Record(ctx, history.Event{
		Type:       history.EventOutcome,
		Worker:     w.Name,
		Port:       w.Port,
		Status:     string(res.Status),
		Error:      res.Error,
		DurationMS: res.Duration.Milliseconds(),
	})
	for _, f := range o.observers {
		f(res)
	}
}
