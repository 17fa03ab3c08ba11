//go:build !windows

package proxy

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/mca/internal/config"
	"github.com/loykin/mca/internal/history"
	"github.com/loykin/mca/internal/process"
)

func TestCleanupHookOnRealSignal(t *testing.T) {
	raised := make(chan os.Signal, 1)
	m := NewManager(helperLaunch(), WithSignalRaise(func(s os.Signal) { raised <- s }))
	defer m.Close()

	w := worker(t, "serve-real")
	m.StartAll(context.Background(), []config.Worker{w})
	require.Len(t, m.Ready(), 1)
	m.RegisterCleanupHooks() // second call is a no-op

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	select {
	case s := <-raised:
		assert.Equal(t, os.Interrupt, s)
	case <-time.After(10 * time.Second):
		t.Fatal("signal was not handled")
	}
	assert.Empty(t, m.Handles())
	assert.False(t, portOpen(w.Port))
}

func (s *memSink) startedPIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, e := range s.events {
		if e.Type == history.EventProxyStart && e.PID > 0 {
			out = append(out, e.PID)
		}
	}
	return out
}

func TestStopAllDuringStartAllLeavesNoChild(t *testing.T) {
	l := helperLaunch()
	l.HealthMaxRetries = 4
	l.StopGrace = time.Second

	for round := 0; round < 12; round++ {
		sink := &memSink{}
		m := NewManager(l, WithRecorder(history.NewRecorder("race", sink)), WithSignalRaise(func(os.Signal) {}))

		workers := make([]config.Worker, 0, 8)
		for i := 0; i < 8; i++ {
			workers = append(workers, worker(t, "hang-"+itoa(round)+"-"+itoa(i)))
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.StartAll(context.Background(), workers)
		}()
		go func() {
			defer wg.Done()
			time.Sleep(time.Duration(round*150) * time.Microsecond)
			m.StopAll()
		}()
		wg.Wait()
		m.Close()

		assert.Empty(t, m.Handles(), "round %d", round)
		for _, pid := range sink.startedPIDs() {
			assert.Eventually(t, func() bool {
				return errors.Is(syscall.Kill(pid, 0), syscall.ESRCH)
			}, 5*time.Second, 20*time.Millisecond, "round %d: pid %d outlived StopAll", round, pid)
		}
	}
}

func TestStopAllBeforeSpawnSkipsLaunch(t *testing.T) {
	sink := &memSink{}
	m := NewManager(helperLaunch(), WithRecorder(history.NewRecorder("pre", sink)), WithSignalRaise(func(os.Signal) {}))
	defer m.Close()

	w := worker(t, "serve-pre")
	p := process.New(m.specFor(w))
	m.mu.Lock()
	m.procs[w.Name] = p
	m.mu.Unlock()
	m.StopAll()

	err := m.spawn(p)
	assert.True(t, errors.Is(err, ErrStopped), "got %v", err)
	assert.Zero(t, p.PID())
	assert.Equal(t, "stopped", failureReason(err))
}
