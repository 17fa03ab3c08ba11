package proxy

import (
	"time"

	"github.com/loykin/mca/internal/process"
)

// Handle is a read-only view of one managed proxy.
type Handle struct {
	Name      string    `json:"name"`
	Port      int       `json:"port"`
	PID       int       `json:"pid"`
	Ready     bool      `json:"ready"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
	LastError string    `json:"last_error,omitempty"`
	Err       error     `json:"-"`
}

func handleOf(p *process.Process) Handle {
	st := p.Snapshot()
	return Handle{
		Name:      st.Name,
		Port:      st.Port,
		PID:       st.PID,
		Ready:     st.Ready,
		Running:   st.Running,
		StartedAt: st.StartedAt,
		LastError: st.LastError,
		Err:       p.LastError(),
	}
}
