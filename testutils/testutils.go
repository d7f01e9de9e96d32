package testutils

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gocircum/nordconnect/core/catalog"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/proxy"
)

// TestTimeout is the default timeout for operations in tests.
const TestTimeout = 5 * time.Second

// TestInterval is the default interval for polling in tests.
const TestInterval = 100 * time.Millisecond

// MockEchoServer is a simple TCP server that echoes back any data it receives.
type MockEchoServer struct {
	listener net.Listener
	addr     string
}

// NewMockEchoServer creates and starts a new MockEchoServer.
func NewMockEchoServer() *MockEchoServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	s := &MockEchoServer{
		listener: listener,
		addr:     listener.Addr().String(),
	}
	go s.run()
	return s
}

func (s *MockEchoServer) run() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // Listener was closed
		}
		go func(c net.Conn) {
			defer c.Close()
			_, _ = io.Copy(c, c)
		}(conn)
	}
}

// Addr returns the address of the server.
func (s *MockEchoServer) Addr() string {
	return s.addr
}

// Host returns the host part of the server address.
func (s *MockEchoServer) Host() string {
	host, _, _ := net.SplitHostPort(s.addr)
	return host
}

// Port returns the port the server listens on.
func (s *MockEchoServer) Port() int {
	_, port, _ := net.SplitHostPort(s.addr)
	n, _ := strconv.Atoi(port)
	return n
}

// Close stops the server.
func (s *MockEchoServer) Close() {
	s.listener.Close()
}

// CheckEcho dials addr through dialer and verifies the payload comes back.
func CheckEcho(dialer proxy.ContextDialer, addr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	payload := "hello"
	if _, err := conn.Write([]byte(payload)); err != nil {
		return err
	}

	response := make([]byte, len(payload))
	if _, err := io.ReadFull(conn, response); err != nil {
		return fmt.Errorf("failed to read echo response: %w", err)
	}
	if string(response) != payload {
		return fmt.Errorf("unexpected response: got %q, want %q", string(response), payload)
	}
	return nil
}

// ClosedPort returns a local port with no listener behind it.
func ClosedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// NewServer builds a catalog server for tests. A negative ping leaves the
// server unmeasured.
func NewServer(domain, country string, ping float64, load int) *catalog.Server {
	s := &catalog.Server{
		Domain:     domain,
		FQDN:       domain + ".nordvpn.com",
		Name:       domain,
		Country:    country,
		Categories: []string{"standard"},
		Features:   []string{"openvpn_tcp", "openvpn_udp"},
		Load:       load,
		IPAddress:  "192.0.2.1",
		Ping:       catalog.Unreachable,
	}
	if ping >= 0 {
		s.SetPing(ping)
	}
	return s
}

// Domains returns the domains of servers, in order.
func Domains(servers []*catalog.Server) []string {
	out := make([]string, 0, len(servers))
	for _, s := range servers {
		out = append(out, s.Domain)
	}
	return out
}

// WriteScript writes an executable shell script named name into dir and returns its path.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// Eventually polls cond until it is true or TestTimeout elapses.
func Eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, TestTimeout, TestInterval/10)
}
