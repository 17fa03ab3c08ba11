package client

import "time"

// Health is the /healthz response.
type Health struct {
	OK      bool `json:"ok"`
	Ready   int  `json:"ready"`
	Proxies int  `json:"proxies"`
}

// Usage is the latest resource sample of one proxy.
type Usage struct {
	Worker     string    `json:"worker"`
	PID        int       `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// Proxy is one managed proxy as reported by /proxies.
type Proxy struct {
	Name      string    `json:"name"`
	Port      int       `json:"port"`
	PID       int       `json:"pid"`
	Ready     bool      `json:"ready"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
	LastError string    `json:"last_error,omitempty"`
	Usage     *Usage    `json:"usage,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
