package orchestrator

import (
	"strconv"
	"time"
)

// Status is the closed set of per-worker results.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Outcome is the immutable result of one worker call. Payload is set only
// for success, Error only for error and timeout. Build it with Succeeded,
// Failed or TimedOut.
type Outcome struct {
	Worker   string        `json:"agent_name" yaml:"agent_name"`
	Status   Status        `json:"status" yaml:"status"`
	Payload  string        `json:"result,omitempty" yaml:"result,omitempty"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

func Succeeded(worker, payload string, d time.Duration) Outcome {
	return Outcome{Worker: worker, Status: StatusSuccess, Payload: payload, Duration: d}
}

func Failed(worker, msg string, d time.Duration) Outcome {
	return Outcome{Worker: worker, Status: StatusError, Error: msg, Duration: d}
}

func TimedOut(worker string, timeout, d time.Duration) Outcome {
	return Outcome{Worker: worker, Status: StatusTimeout, Error: "execution timed out after " + seconds(timeout), Duration: d}
}

func (o Outcome) OK() bool { return o.Status == StatusSuccess }

// seconds renders d as a plain second count ("500s", "0.25s").
func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}
