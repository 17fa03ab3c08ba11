package process

import "time"

// Status is a point-in-time copy of a Process.
type Status struct {
	Name      string    `json:"name"`
	Port      int       `json:"port"`
	PID       int       `json:"pid"`
	Running   bool      `json:"running"`
	Ready     bool      `json:"ready"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitCode  int       `json:"exit_code"`
	LastError string    `json:"last_error,omitempty"`
}
