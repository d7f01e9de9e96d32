package nordconnect

import (
	"github.com/gocircum/nordconnect/core"
	"github.com/gocircum/nordconnect/core/config"
	"github.com/gocircum/nordconnect/interfaces"
	"github.com/gocircum/nordconnect/pkg/logging"
)

// NewEngine creates a connection engine wired to the NordVPN API, TCP probes
// and the openvpn binary described by cfg.
func NewEngine(cfg *config.FileConfig, logger logging.Logger) (interfaces.Engine, error) {
	return core.NewEngine(cfg, core.Collaborators{}, logger)
}

// NewEngineWith creates an engine with caller-supplied collaborators. Nil
// fields are built from cfg.
func NewEngineWith(cfg *config.FileConfig, collab core.Collaborators, logger logging.Logger) (interfaces.Engine, error) {
	return core.NewEngine(cfg, collab, logger)
}

var _ interfaces.Engine = (*core.Engine)(nil)
