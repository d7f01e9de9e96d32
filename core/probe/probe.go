// Package probe measures how quickly a server answers.
package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/gocircum/nordconnect/core/catalog"
	"golang.org/x/net/proxy"
)

//go:generate mockgen -package=mocks -destination=../../mocks/mock_prober.go github.com/gocircum/nordconnect/core/probe Prober

// Prober measures the latency to host in milliseconds. It never fails: any
// error or timeout is reported as catalog.Unreachable.
type Prober interface {
	Measure(ctx context.Context, host string, timeout time.Duration) float64
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, host string, timeout time.Duration) float64

// Measure calls f.
func (f ProberFunc) Measure(ctx context.Context, host string, timeout time.Duration) float64 {
	return f(ctx, host, timeout)
}

// DefaultPort is the port dialled by TCP when none is configured.
const DefaultPort = 443

// TCP measures the time to complete a TCP handshake with the server.
type TCP struct {
	port   int
	dialer proxy.ContextDialer
}

// NewTCP creates a TCP prober for port. A nil dialer uses the proxy settings
// of the environment (ALL_PROXY, NO_PROXY).
func NewTCP(port int, dialer proxy.ContextDialer) *TCP {
	if port <= 0 {
		port = DefaultPort
	}
	if dialer == nil {
		dialer = environmentDialer()
	}
	return &TCP{port: port, dialer: dialer}
}

func environmentDialer() proxy.ContextDialer {
	if cd, ok := proxy.FromEnvironment().(proxy.ContextDialer); ok {
		return cd
	}
	return proxy.Direct
}

// Measure dials host and returns the handshake time.
func (t *TCP) Measure(ctx context.Context, host string, timeout time.Duration) float64 {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	conn, err := t.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(t.port)))
	elapsed := time.Since(start)
	if err != nil {
		return catalog.Unreachable
	}
	_ = conn.Close()
	return float64(elapsed.Microseconds()) / 1000
}
