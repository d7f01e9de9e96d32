package interfaces

import (
	"context"

	"github.com/gocircum/nordconnect/core"
	"github.com/gocircum/nordconnect/core/catalog"
	"github.com/gocircum/nordconnect/core/connect"
	"github.com/gocircum/nordconnect/core/filter"
)

// Engine defines the public interface for the connection engine.
type Engine interface {
	// Connect selects a server and brings up a tunnel.
	Connect(ctx context.Context, req core.ConnectRequest) (*connect.Result, error)
	// ListServers returns the ranked servers matching criteria.
	ListServers(ctx context.Context, criteria filter.Criteria) ([]*catalog.Server, error)
	// Catalog loads the full server list.
	Catalog(ctx context.Context) (*catalog.Catalog, error)
	// Wait blocks until a foreground tunnel exits.
	Wait(ctx context.Context) error
	// Stop terminates the tunnel started by this engine.
	Stop() error
	// Kill terminates the tunnel recorded on disk.
	Kill(ctx context.Context) error
	// Status returns the current tunnel status.
	Status() (string, error)
}
