// Package probe checks reachability of charger endpoints.
package probe

import (
	"context"
	"net"
	"time"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// TCPProber reports whether a TCP connection can be opened.
type TCPProber struct {
	Timeout time.Duration
}

// NewTCPProber returns a prober using timeout, or DefaultTimeout when zero.
func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TCPProber{Timeout: timeout}
}

// Probe dials addr and closes the connection immediately.
func (p *TCPProber) Probe(ctx context.Context, addr string) bool {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
