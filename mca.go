// Package mca starts one local proxy per configured worker, fans a query out
// to every ready worker concurrently and collects one outcome per worker.
package mca

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/mca/internal/agent"
	"github.com/loykin/mca/internal/config"
	"github.com/loykin/mca/internal/env"
	"github.com/loykin/mca/internal/history"
	"github.com/loykin/mca/internal/history/factory"
	"github.com/loykin/mca/internal/metrics"
	"github.com/loykin/mca/internal/orchestrator"
	"github.com/loykin/mca/internal/proxy"
	"github.com/loykin/mca/internal/server"
	"github.com/loykin/mca/internal/tracing"
)

// Re-export core types for external consumers.

type Config = config.Config

type Worker = config.Worker

type Handle = proxy.Handle

type Outcome = orchestrator.Outcome

type Status = orchestrator.Status

type Request = orchestrator.Request

type Caller = orchestrator.Caller

type CallerFunc = orchestrator.CallerFunc

type RunOption = orchestrator.RunOption

const (
	StatusSuccess = orchestrator.StatusSuccess
	StatusError   = orchestrator.StatusError
	StatusTimeout = orchestrator.StatusTimeout
)

var (
	// ErrNoReadyProxies is returned by Analyze when no proxy passed its probe.
	ErrNoReadyProxies = errors.New("no proxy is ready")

	ErrSpawn          = proxy.ErrSpawn
	ErrStartupTimeout = proxy.ErrStartupTimeout
	ErrExited         = proxy.ErrExited
)

// WithTimeout overrides the per-worker timeout for one Analyze call.
func WithTimeout(d time.Duration) RunOption { return orchestrator.WithTimeout(d) }

// WithWorkDir sets the directory passed to every worker as context.
func WithWorkDir(dir string) RunOption { return orchestrator.WithWorkDir(dir) }

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

func ResolveConfig(explicit, cwd string) (string, error) { return config.ResolvePath(explicit, cwd) }

func WriteDefaultConfig(path, cwd string, force bool) (string, error) {
	return config.WriteDefault(path, cwd, force)
}

// Option customizes a Session.
type Option func(*options)

type options struct {
	log       *slog.Logger
	caller    Caller
	observers []func(Outcome)
	proxyOpts []proxy.Option
	registry  prometheus.Registerer
}

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// WithCaller replaces the default Anthropic-protocol client.
func WithCaller(c Caller) Option { return func(o *options) { o.caller = c } }

// WithObserver is called as each outcome is produced, from the worker's goroutine.
func WithObserver(f func(Outcome)) Option {
	return func(o *options) { o.observers = append(o.observers, f) }
}

// WithProxyOptions passes extra options to the proxy manager.
func WithProxyOptions(opts ...proxy.Option) Option {
	return func(o *options) { o.proxyOpts = append(o.proxyOpts, opts...) }
}

// WithRegisterer sets where metrics are registered; prometheus.DefaultRegisterer otherwise.
func WithRegisterer(r prometheus.Registerer) Option { return func(o *options) { o.registry = r } }

// Session owns the proxies, history sinks, metrics endpoint and tracer of
// one run. Close must be called, typically deferred, to stop every proxy.
type Session struct {
	cfg  *Config
	log  *slog.Logger
	mgr  *proxy.Manager
	orch *orchestrator.Orchestrator
	rec  *history.Recorder

	sampler       *metrics.ResourceSampler
	srv           *http.Server
	shutdownTrace func(context.Context) error
	cancel        context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// Open wires a Session from cfg. No process is started until StartProxies.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("mca: nil config")
	}
	o := options{log: slog.Default(), registry: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{cfg: cfg, log: o.log, cancel: cancel}

	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, o.log)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("tracing: %w", err)
	}
	s.shutdownTrace = shutdown

	if cfg.History.Enabled && len(cfg.History.DSNs) > 0 {
		sinks, err := factory.OpenAll(cfg.History.DSNs)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("history: %w", err)
		}
		s.rec = history.NewRecorder(history.NewRunID(), sinks...)
		o.log.Info("recording run history", "run_id", s.rec.RunID(), "sinks", len(sinks))
	}

	fileEnv, err := config.LoadEnvFiles(cfg.Proxy.EnvFiles)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	mopts := []proxy.Option{
		proxy.WithLogger(o.log),
		proxy.WithRecorder(s.rec),
		proxy.WithEnv(env.New().WithKVs(fileEnv)),
	}
	s.mgr = proxy.NewManager(cfg.Proxy, append(mopts, o.proxyOpts...)...)

	if cfg.Metrics.Enabled {
		if err := metrics.Register(o.registry); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("metrics: %w", err)
		}
		s.sampler = metrics.NewResourceSampler(cfg.Metrics.SampleInterval, s.mgr.Targets)
		if err := s.sampler.RegisterMetrics(o.registry); err != nil {
			o.log.Warn("resource metrics unavailable", "error", err)
		}
		go s.sampler.Run(bg)
		if cfg.Metrics.Listen != "" {
			srv, err := server.NewServer(cfg.Metrics.Listen, "", s.mgr, s.sampler)
			if err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("metrics listen %s: %w", cfg.Metrics.Listen, err)
			}
			s.srv = srv
			o.log.Info("status endpoint listening", "addr", srv.Addr)
		}
	}

	caller := o.caller
	if caller == nil {
		caller = agent.New(cfg.Agent)
	}
	oopts := []orchestrator.Option{
		orchestrator.WithDefaultTimeout(cfg.Agent.Timeout),
		orchestrator.WithLogger(o.log),
		orchestrator.WithRecorder(s.rec),
	}
	for _, f := range o.observers {
		oopts = append(oopts, orchestrator.WithObserver(f))
	}
	s.orch = orchestrator.New(caller, oopts...)
	return s, nil
}

// Config returns the configuration the session was opened with.
func (s *Session) Config() *Config { return s.cfg }

// RunID identifies this session in run history; empty when history is off.
func (s *Session) RunID() string { return s.rec.RunID() }

// StartProxies starts a proxy for every enabled worker and waits for each to
// become ready or fail. It also installs the SIGINT/SIGTERM cleanup hook.
func (s *Session) StartProxies(ctx context.Context) map[string]Handle {
	return s.mgr.StartAll(ctx, s.cfg.Enabled())
}

// Ready returns the proxies that passed their probe, sorted by name.
func (s *Session) Ready() []Handle { return s.mgr.Ready() }

// Failed returns the proxies that did not, sorted by name.
func (s *Session) Failed() []Handle { return s.mgr.Failed() }

// Handles returns every managed proxy.
func (s *Session) Handles() []Handle { return s.mgr.Handles() }

// ReadyWorkers returns the enabled workers whose proxy is ready, in config order.
func (s *Session) ReadyWorkers() []Worker {
	ready := make(map[string]bool)
	for _, h := range s.mgr.Ready() {
		ready[h.Name] = true
	}
	var out []Worker
	for _, w := range s.cfg.Enabled() {
		if ready[w.Name] {
			out = append(out, w)
		}
	}
	return out
}

// Analyze sends query to every ready worker and returns one outcome per
// worker in config order.
func (s *Session) Analyze(ctx context.Context, query string, opts ...RunOption) ([]Outcome, error) {
	workers := s.ReadyWorkers()
	if len(workers) == 0 {
		return nil, ErrNoReadyProxies
	}
	return s.orch.RunAll(ctx, workers, query, opts...), nil
}

// Close stops every proxy, then shuts down the status endpoint, history
// sinks and tracer. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.mgr != nil {
			s.mgr.Close()
		}
		s.cancel()
		var errs []error
		if err := server.Shutdown(s.srv, 2*time.Second); err != nil {
			errs = append(errs, err)
		}
		if err := s.rec.Close(); err != nil {
			errs = append(errs, err)
		}
		if s.shutdownTrace != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.shutdownTrace(ctx); err != nil {
				errs = append(errs, err)
			}
			cancel()
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
