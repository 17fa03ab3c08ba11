package detector

import (
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"
)

// DefaultDialTimeout bounds a single TCP probe.
const DefaultDialTimeout = time.Second

// TCPDetector reports a port as alive when a TCP connection to Host:Port
// succeeds. It is a liveness proxy, not an application-level health check.
type TCPDetector struct {
	Host    string // defaults to localhost
	Port    int
	Timeout time.Duration // defaults to DefaultDialTimeout
}

func (d TCPDetector) addr() string {
	host := d.Host
	if host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(d.Port))
}

// Alive dials the port once. Refused or timed out connections are reported
// as (false, nil); only unexpected dial errors are returned.
func (d TCPDetector) Alive() (bool, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	conn, err := net.DialTimeout("tcp", d.addr(), timeout)
	if err == nil {
		_ = conn.Close()
		return true, nil
	}
	if errors.Is(err, syscall.ECONNREFUSED) || isTimeout(err) {
		return false, nil
	}
	return false, err
}

func (d TCPDetector) Describe() string { return "tcp:" + d.addr() }

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
