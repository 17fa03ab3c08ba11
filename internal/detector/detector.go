package detector

// Detector probes whether a proxy accepts traffic. Implementations are
// called from one goroutine per proxy and must not share mutable state.
type Detector interface {
	Alive() (bool, error)
	// Describe names the probe target for logs, e.g. "tcp:localhost:4900".
	Describe() string
}
