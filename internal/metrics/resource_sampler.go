package metrics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// Target names one live proxy to sample.
type Target struct {
	Worker string
	PID    int
}

// Usage is one sample of a proxy's resource consumption.
type Usage struct {
	Worker     string    `json:"worker"`
	PID        int       `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// ResourceSampler periodically reads CPU and memory of the live proxies
// and exports them as gauges labelled by worker.
type ResourceSampler struct {
	interval time.Duration
	targets  func() []Target

	mu     sync.RWMutex
	last   map[string]Usage
	procs  map[int]*process.Process // cached so CPU percent is computed between samples
	cpu    *prometheus.GaugeVec
	rss    *prometheus.GaugeVec
	thread *prometheus.GaugeVec
}

// NewResourceSampler creates a sampler. targets is called on every tick.
func NewResourceSampler(interval time.Duration, targets func() []Target) *ResourceSampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ResourceSampler{
		interval: interval,
		targets:  targets,
		last:     make(map[string]Usage),
		procs:    make(map[int]*process.Process),
		cpu: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mca", Subsystem: "proxy", Name: "cpu_percent",
			Help: "CPU usage percentage of proxy processes.",
		}, []string{"worker"}),
		rss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mca", Subsystem: "proxy", Name: "rss_bytes",
			Help: "Resident memory of proxy processes.",
		}, []string{"worker"}),
		thread: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mca", Subsystem: "proxy", Name: "num_threads",
			Help: "Thread count of proxy processes.",
		}, []string{"worker"}),
	}
}

// RegisterMetrics registers the sampler gauges with r.
func (s *ResourceSampler) RegisterMetrics(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{s.cpu, s.rss, s.thread} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Run samples until ctx is cancelled.
func (s *ResourceSampler) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.Sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sample(ctx)
		}
	}
}

// Sample takes one reading of every target. Targets that vanished since the
// previous sample are dropped from the gauges.
func (s *ResourceSampler) Sample(ctx context.Context) {
	targets := s.targets()
	seen := make(map[string]bool, len(targets))
	livePIDs := make(map[int]bool, len(targets))

	for _, tg := range targets {
		if tg.PID <= 0 {
			continue
		}
		u, err := s.read(ctx, tg)
		if err != nil {
			slog.Debug("resource sample failed", "worker", tg.Worker, "pid", tg.PID, "error", err)
			continue
		}
		seen[tg.Worker] = true
		livePIDs[tg.PID] = true
		s.cpu.WithLabelValues(tg.Worker).Set(u.CPUPercent)
		s.rss.WithLabelValues(tg.Worker).Set(float64(u.RSSBytes))
		s.thread.WithLabelValues(tg.Worker).Set(float64(u.NumThreads))
		s.mu.Lock()
		s.last[tg.Worker] = u
		s.mu.Unlock()
	}

	s.mu.Lock()
	for w := range s.last {
		if !seen[w] {
			delete(s.last, w)
			s.cpu.DeleteLabelValues(w)
			s.rss.DeleteLabelValues(w)
			s.thread.DeleteLabelValues(w)
		}
	}
	for pid := range s.procs {
		if !livePIDs[pid] {
			delete(s.procs, pid)
		}
	}
	s.mu.Unlock()
}

func (s *ResourceSampler) read(ctx context.Context, tg Target) (Usage, error) {
	s.mu.Lock()
	p, ok := s.procs[tg.PID]
	s.mu.Unlock()
	if !ok {
		np, err := process.NewProcessWithContext(ctx, int32(tg.PID))
		if err != nil {
			return Usage{}, err
		}
		s.mu.Lock()
		s.procs[tg.PID] = np
		s.mu.Unlock()
		p = np
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return Usage{}, err
	}
	// first call on a fresh handle reports usage since process start
	cpu, err := p.PercentWithContext(ctx, 0)
	if err != nil {
		return Usage{}, err
	}
	threads, _ := p.NumThreadsWithContext(ctx)
	return Usage{
		Worker:     tg.Worker,
		PID:        tg.PID,
		CPUPercent: cpu,
		RSSBytes:   mem.RSS,
		NumThreads: threads,
		Timestamp:  time.Now(),
	}, nil
}

// Latest returns the most recent sample per worker.
func (s *ResourceSampler) Latest() map[string]Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Usage, len(s.last))
	for k, v := range s.last {
		out[k] = v
	}
	return out
}
