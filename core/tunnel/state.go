package tunnel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// State records the active tunnel so that a later invocation can report or kill it.
type State struct {
	Domain      string    `yaml:"domain"`
	FQDN        string    `yaml:"fqdn"`
	Protocol    string    `yaml:"protocol"`
	PID         int       `yaml:"pid"`
	Daemon      bool      `yaml:"daemon"`
	Attempts    int       `yaml:"attempts"`
	ConnectedAt time.Time `yaml:"connected_at"`
}

// ErrNoState is returned by ReadState when no tunnel is recorded.
var ErrNoState = errors.New("no active tunnel recorded")

// StatePath is the state file inside runtimeDir.
func StatePath(runtimeDir string) string {
	return filepath.Join(runtimeDir, "state.yaml")
}

// WriteState replaces the state file atomically.
func WriteState(runtimeDir string, s State) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode tunnel state: %w", err)
	}
	if err := os.MkdirAll(runtimeDir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(runtimeDir, ".state-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), StatePath(runtimeDir))
}

// ReadState loads the state file. It returns ErrNoState when there is none.
func ReadState(runtimeDir string) (*State, error) {
	data, err := os.ReadFile(StatePath(runtimeDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, err
	}
	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse tunnel state: %w", err)
	}
	return &s, nil
}

// RemoveState deletes the state file. A missing file is not an error.
func RemoveState(runtimeDir string) error {
	err := os.Remove(StatePath(runtimeDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
