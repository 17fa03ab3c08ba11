package metrics

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func seriesCount(t *testing.T, reg *prometheus.Registry, name string) int {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return len(mf.GetMetric())
		}
	}
	return 0
}

func TestResourceSamplerSelf(t *testing.T) {
	var mu sync.Mutex
	targets := []Target{{Worker: "self", PID: os.Getpid()}, {Worker: "none", PID: 0}}
	s := NewResourceSampler(time.Second, func() []Target {
		mu.Lock()
		defer mu.Unlock()
		return append([]Target(nil), targets...)
	})
	reg := prometheus.NewRegistry()
	if err := s.RegisterMetrics(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.RegisterMetrics(reg); err != nil {
		t.Fatalf("second register should be tolerated: %v", err)
	}

	s.Sample(context.Background())
	latest := s.Latest()
	u, ok := latest["self"]
	if !ok {
		t.Fatalf("expected sample for self, got %v", latest)
	}
	if u.RSSBytes == 0 || u.PID != os.Getpid() {
		t.Fatalf("unexpected usage %+v", u)
	}
	if _, ok := latest["none"]; ok {
		t.Fatalf("pid 0 must be skipped")
	}
	if n := seriesCount(t, reg, "mca_proxy_rss_bytes"); n != 1 {
		t.Fatalf("expected 1 rss series, got %d", n)
	}

	mu.Lock()
	targets = nil
	mu.Unlock()
	s.Sample(context.Background())
	if len(s.Latest()) != 0 {
		t.Fatalf("vanished targets should be dropped")
	}
	if n := seriesCount(t, reg, "mca_proxy_rss_bytes"); n != 0 {
		t.Fatalf("expected rss series removed, got %d", n)
	}
}

func TestResourceSamplerRunStops(t *testing.T) {
	s := NewResourceSampler(10*time.Millisecond, func() []Target { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
