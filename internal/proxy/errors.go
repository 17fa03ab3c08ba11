package proxy

import "errors"

var (
	// ErrSpawn marks a launcher that could not be executed. Never retried.
	ErrSpawn = errors.New("failed to start proxy")
	// ErrStartupTimeout marks a proxy whose port never opened within the probe budget.
	ErrStartupTimeout = errors.New("proxy startup timeout")
	// ErrExited marks a proxy that exited during the readiness probe.
	ErrExited = errors.New("proxy exited")
	// ErrStopped marks a proxy whose spawn was abandoned because the manager
	// was stopping.
	ErrStopped = errors.New("proxy manager stopped before spawn")
)

// failureReason maps a probe error to a short metrics label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrSpawn):
		return "spawn"
	case errors.Is(err, ErrExited):
		return "exited"
	case errors.Is(err, ErrStartupTimeout):
		return "timeout"
	case errors.Is(err, ErrStopped):
		return "stopped"
	default:
		return "canceled"
	}
}
