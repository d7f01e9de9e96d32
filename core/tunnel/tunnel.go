// Package tunnel runs openvpn as an external process.
package tunnel

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gocircum/nordconnect/core/config"
)

//go:generate mockgen -package=mocks -destination=../../mocks/mock_launcher.go github.com/gocircum/nordconnect/core/tunnel Launcher

// Launcher starts and stops tunnel processes.
type Launcher interface {
	// Launch blocks until the tunnel is up, has failed, or ctx is done. A
	// process that did not come up is always killed before Launch returns.
	Launch(ctx context.Context, req Request) (Result, error)
	// Terminate stops the tunnel process pid.
	Terminate(pid int) error
}

// Request describes one tunnel to start.
type Request struct {
	Host     string // FQDN of the server
	IP       string
	Protocol string // "udp" or "tcp"
	Options  string // extra openvpn arguments, shell quoted
	Daemon   bool
}

// Result reports a launch.
type Result struct {
	Success bool
	PID     int
	// Exited delivers the exit status of a foreground process. It is nil in
	// daemon mode.
	Exited <-chan error
}

// InitializedMarker is printed by openvpn once the tunnel is up.
const InitializedMarker = "Initialization Sequence Completed"

// Settings configure the openvpn launcher.
type Settings struct {
	Binary         string
	ConfigDir      string
	RuntimeDir     string
	StartupTimeout time.Duration
	Options        map[string]interface{}

	CredentialsFile string // used for auth-user-pass built-in
	ScriptsDir      string // holds the built-in up/down and ipchange scripts
}

// SettingsFromConfig converts the openvpn config section.
func SettingsFromConfig(c config.OpenVPNConfig) Settings {
	return Settings{
		Binary:          c.Binary,
		ConfigDir:       c.ConfigDir,
		RuntimeDir:      c.RuntimeDir,
		StartupTimeout:  c.StartupTimeout,
		Options:         c.Options,
		CredentialsFile: c.CredentialsFile,
		ScriptsDir:      c.ScriptsDir,
	}
}

// PidPath is where openvpn writes its pid.
func PidPath(runtimeDir string) string {
	return filepath.Join(runtimeDir, "openvpn.pid")
}
