package proxy

import (
	"os"
	"os/signal"
	"syscall"
)

var cleanupSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// RegisterCleanupHooks installs the SIGINT/SIGTERM handler once. On the first
// signal every proxy is stopped, the default disposition is restored and the
// signal is delivered again so the process ends the way it would have.
func (m *Manager) RegisterCleanupHooks() {
	m.hooksOnce.Do(func() {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, cleanupSignals...)
		go m.watchSignals(ch)
	})
}

// watchSignals handles at most one signal. Deliveries that arrive while
// cleanup runs land in the still-registered channel and are dropped.
func (m *Manager) watchSignals(ch chan os.Signal) {
	select {
	case <-m.done:
		signal.Stop(ch)
	case sig := <-ch:
		m.handleSignal(sig)
		signal.Stop(ch)
	}
}

func (m *Manager) handleSignal(sig os.Signal) {
	m.log.Warn("received signal, stopping proxies", "signal", sig.String())
	if m.onSignal != nil {
		m.onSignal(sig)
	}
	m.StopAll()
	signal.Reset(cleanupSignals...)
	m.raise(sig)
}
