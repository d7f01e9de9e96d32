// Package app holds process-level preconditions checked once at startup.
package app

import (
	"errors"
	"fmt"

	"github.com/gocircum/nordconnect/pkg/logging"
	"golang.org/x/sys/unix"
)

// ErrNotRoot is returned when a command needs root and the process lacks it.
var ErrNotRoot = errors.New("this command must be run as root")

var geteuid = unix.Geteuid

// RequireRoot checks that the process runs with an effective uid of 0.
// openvpn needs it to create the tun device and change routes.
func RequireRoot(command string) error {
	logger := logging.GetLogger()
	if uid := geteuid(); uid != 0 {
		logger.Debug("Privilege check failed", "command", command, "euid", uid)
		return fmt.Errorf("%s: %w (try sudo)", command, ErrNotRoot)
	}
	return nil
}
