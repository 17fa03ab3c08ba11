package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/loykin/mca/internal/config"
	"github.com/loykin/mca/internal/detector"
	"github.com/loykin/mca/internal/env"
	"github.com/loykin/mca/internal/history"
	"github.com/loykin/mca/internal/metrics"
	"github.com/loykin/mca/internal/process"
	"github.com/loykin/mca/internal/tracing"
)

// Manager spawns, probes and tears down one proxy per worker. It is the only
// owner of the child processes.
type Manager struct {
	launch config.Launch
	env    *env.Env
	log    *slog.Logger
	rec    *history.Recorder
	probe  func(port int) detector.Detector

	mu       sync.Mutex
	procs    map[string]*process.Process
	spawning map[*process.Process]chan struct{} // closed once Start has returned

	stopMu sync.Mutex // serializes StopAll so a second caller waits for the first

	hooksOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	raise     func(os.Signal)
	onSignal  func(os.Signal)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

// WithRecorder sends lifecycle events to run history.
func WithRecorder(r *history.Recorder) Option { return func(m *Manager) { m.rec = r } }

// WithEnv sets the environment composer used for every child.
func WithEnv(e *env.Env) Option { return func(m *Manager) { m.env = e } }

// WithDetector replaces the readiness detector factory.
func WithDetector(f func(port int) detector.Detector) Option {
	return func(m *Manager) { m.probe = f }
}

// WithSignalRaise replaces how a signal is re-delivered after cleanup.
func WithSignalRaise(f func(os.Signal)) Option { return func(m *Manager) { m.raise = f } }

// WithSignalNotice is called when a termination signal arrives, before cleanup.
func WithSignalNotice(f func(os.Signal)) Option { return func(m *Manager) { m.onSignal = f } }

func NewManager(launch config.Launch, opts ...Option) *Manager {
	m := &Manager{
		launch: launch,
		env:    env.New(),
		log:    slog.Default(),
		procs:    make(map[string]*process.Process),
		spawning: make(map[*process.Process]chan struct{}),
		done:   make(chan struct{}),
		raise:  raiseSelf,
		probe: func(port int) detector.Detector {
			return detector.TCPDetector{Host: "localhost", Port: port, Timeout: detector.DefaultDialTimeout}
		},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// StartAll spawns and probes every worker's proxy concurrently and returns
// once each attempt has resolved. Failures are recorded on the handle and
// never abort the batch.
func (m *Manager) StartAll(ctx context.Context, workers []config.Worker) map[string]Handle {
	m.RegisterCleanupHooks()

	ctx, span := tracing.Tracer().Start(ctx, "proxy.StartAll")
	defer span.End()
	span.SetAttributes(attribute.Int("workers", len(workers)))

	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error {
			m.startOne(ctx, w)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Handle, len(workers))
	m.mu.Lock()
	for _, w := range workers {
		if p, ok := m.procs[w.Name]; ok {
			out[w.Name] = handleOf(p)
		}
	}
	ready := 0
	for _, p := range m.procs {
		if p.Ready() {
			ready++
		}
	}
	m.mu.Unlock()
	metrics.SetProxiesReady(ready)
	span.SetAttributes(attribute.Int("ready", ready))
	return out
}

func (m *Manager) startOne(ctx context.Context, w config.Worker) {
	ctx, span := tracing.Tracer().Start(ctx, "proxy.start")
	defer span.End()
	span.SetAttributes(attribute.String("worker", w.Name), attribute.Int("port", w.Port))

	p := process.New(m.specFor(w))
	m.mu.Lock()
	if _, dup := m.procs[w.Name]; dup {
		m.mu.Unlock()
		m.log.Warn("proxy already managed, keeping existing", "name", w.Name)
		return
	}
	m.procs[w.Name] = p
	resolved := make(chan struct{})
	m.spawning[p] = resolved
	m.mu.Unlock()

	metrics.IncProxyStart(w.Name)
	err := m.spawn(p)
	m.mu.Lock()
	delete(m.spawning, p)
	owned := m.procs[w.Name] == p
	m.mu.Unlock()
	close(resolved)
	if err != nil {
		m.fail(ctx, p, err)
		span.SetStatus(codes.Error, failureReason(err))
		return
	}
	m.log.Info("proxy started", "name", w.Name, "port", w.Port, "pid", p.PID())
	m.rec.Record(ctx, history.Event{Type: history.EventProxyStart, Worker: w.Name, Port: w.Port, PID: p.PID()})
	if !owned {
		// a StopAll took the set while we were spawning; it blocks on resolved
		// and stops this child itself
		return
	}

	started := time.Now()
	if err := m.waitReady(ctx, p); err != nil {
		m.fail(ctx, p, err)
		span.SetStatus(codes.Error, failureReason(err))
		return
	}
	p.MarkReady()
	elapsed := time.Since(started)
	metrics.ObserveProxyReady(w.Name, elapsed.Seconds())
	m.log.Info("proxy ready", "name", w.Name, "port", w.Port, "elapsed", elapsed.Round(time.Millisecond))
	m.rec.Record(ctx, history.Event{
		Type: history.EventProxyReady, Worker: w.Name, Port: w.Port, PID: p.PID(),
		DurationMS: elapsed.Milliseconds(),
	})
}

// spawn starts p unless a StopAll already took it out of the managed set.
func (m *Manager) spawn(p *process.Process) error {
	m.mu.Lock()
	owned := m.procs[p.Name()] == p
	m.mu.Unlock()
	if !owned {
		return ErrStopped
	}
	if err := p.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	return nil
}

func (m *Manager) fail(ctx context.Context, p *process.Process, err error) {
	p.SetLastError(err)
	metrics.IncProxyFailure(p.Name(), failureReason(err))
	m.log.Warn("proxy not ready", "name", p.Name(), "port", p.Port(), "error", err)
	m.rec.Record(ctx, history.Event{
		Type: history.EventProxyFailed, Worker: p.Name(), Port: p.Port(), PID: p.PID(), Error: err.Error(),
	})
}

// waitReady polls until the port accepts connections, the child exits, the
// retry budget runs out, or ctx is done.
func (m *Manager) waitReady(ctx context.Context, p *process.Process) error {
	det := m.probe(p.Port())
	interval := m.launch.HealthInterval
	retries := m.launch.HealthMaxRetries
	t := time.NewTimer(interval)
	defer t.Stop()

	for i := 0; i < retries; i++ {
		if code, exited := p.ExitCode(); exited {
			return fmt.Errorf("%w with code %d", ErrExited, code)
		}
		if ok, err := det.Alive(); ok {
			return nil
		} else if err != nil {
			m.log.Debug("probe error", "name", p.Name(), "detector", det.Describe(), "error", err)
		}
		t.Reset(interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.Exited():
		case <-t.C:
		}
	}
	return fmt.Errorf("%w (%s)", ErrStartupTimeout, m.launch.StartupTimeout())
}

// specFor applies the launch contract: the worker name under every model
// variable, the port variable, then the fixed flags.
func (m *Manager) specFor(w config.Worker) process.Spec {
	port := strconv.Itoa(w.Port)
	assigns := make([]string, 0, len(m.launch.ModelEnv)+1)
	for _, k := range m.launch.ModelEnv {
		assigns = append(assigns, k+"="+w.Name)
	}
	if m.launch.PortEnv != "" {
		assigns = append(assigns, m.launch.PortEnv+"="+port)
	}

	args := make([]string, 0, len(assigns)+len(m.launch.Args))
	if m.launch.AssignmentArgs {
		args = append(args, assigns...)
	}
	args = append(args, m.launch.Args...)

	command := m.launch.Command
	if w.Launcher != "" {
		command = w.Launcher
	}
	perProc := append(append([]string(nil), m.launch.Env...), assigns...)
	return process.Spec{
		Name:    w.Name,
		Port:    w.Port,
		Command: command,
		Args:    args,
		Env:     m.env.Merge(perProc),
		WorkDir: m.launch.WorkDir,
		Log:     m.launch.Log,
	}
}

// Ready returns the proxies that passed their probe, sorted by name.
func (m *Manager) Ready() []Handle { return m.filter(true) }

// Failed returns the proxies that did not pass their probe, sorted by name.
func (m *Manager) Failed() []Handle { return m.filter(false) }

// Handles returns every managed proxy, sorted by name.
func (m *Manager) Handles() []Handle {
	m.mu.Lock()
	out := make([]Handle, 0, len(m.procs))
	for _, p := range m.procs {
		out = append(out, handleOf(p))
	}
	m.mu.Unlock()
	sortHandles(out)
	return out
}

func (m *Manager) filter(ready bool) []Handle {
	m.mu.Lock()
	out := make([]Handle, 0, len(m.procs))
	for _, p := range m.procs {
		if p.Ready() == ready {
			out = append(out, handleOf(p))
		}
	}
	m.mu.Unlock()
	sortHandles(out)
	return out
}

func sortHandles(hs []Handle) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].Name < hs[j].Name })
}

// Targets lists live proxies for resource sampling.
func (m *Manager) Targets() []metrics.Target {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]metrics.Target, 0, len(m.procs))
	for _, p := range m.procs {
		if pid := p.PID(); pid > 0 && !p.HasExited() {
			out = append(out, metrics.Target{Worker: p.Name(), PID: pid})
		}
	}
	return out
}

// StopOne terminates one proxy's process group: SIGTERM, wait stop_grace,
// then SIGKILL. Errors are logged, never returned.
func (m *Manager) StopOne(h Handle) {
	m.mu.Lock()
	p, ok := m.procs[h.Name]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.stop(p)
}

func (m *Manager) stop(p *process.Process) {
	m.mu.Lock()
	resolved := m.spawning[p]
	m.mu.Unlock()
	if resolved != nil {
		<-resolved
	}
	if p.PID() == 0 {
		return // never spawned
	}
	if p.HasExited() {
		m.log.Debug("proxy already exited", "name", p.Name())
		return
	}
	start := time.Now()
	err := p.Stop(m.launch.StopGrace)
	mode := "term"
	if time.Since(start) >= m.launch.StopGrace {
		mode = "kill"
	}
	metrics.IncProxyStop(p.Name(), mode)
	ev := history.Event{Type: history.EventProxyStop, Worker: p.Name(), Port: p.Port(), PID: p.PID(), Status: mode}
	if err != nil {
		ev.Error = err.Error()
		m.log.Error("failed to stop proxy", "name", p.Name(), "pid", p.PID(), "error", err)
	} else {
		m.log.Info("proxy stopped", "name", p.Name(), "pid", p.PID(), "mode", mode)
	}
	m.rec.Record(context.Background(), ev)
}

// StopAll stops every managed proxy concurrently and empties the set. It is
// idempotent and safe to call from the signal goroutine and a deferred call
// at the same time; the later caller blocks until teardown completes.
func (m *Manager) StopAll() {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()

	m.mu.Lock()
	procs := m.procs
	m.procs = make(map[string]*process.Process)
	m.mu.Unlock()
	if len(procs) == 0 {
		return
	}

	var g errgroup.Group
	for _, p := range procs {
		g.Go(func() error {
			m.stop(p)
			return nil
		})
	}
	_ = g.Wait()
	metrics.SetProxiesReady(0)
}

// Close stops every proxy and removes the signal handler. Owners defer it.
func (m *Manager) Close() {
	m.StopAll()
	m.closeOnce.Do(func() { close(m.done) })
}
