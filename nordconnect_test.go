package nordconnect_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gocircum/nordconnect"
	"github.com/gocircum/nordconnect/core"
	"github.com/gocircum/nordconnect/core/catalog"
	"github.com/gocircum/nordconnect/core/config"
	"github.com/gocircum/nordconnect/core/connerr"
	"github.com/gocircum/nordconnect/core/filter"
	"github.com/gocircum/nordconnect/core/probe"
	"github.com/gocircum/nordconnect/core/prompt"
	"github.com/gocircum/nordconnect/core/tunnel"
	"github.com/gocircum/nordconnect/mocks"
	"github.com/gocircum/nordconnect/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestNewEngine_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Ping.Workers = 0
	_, err := nordconnect.NewEngine(cfg, testutils.NewTestLogger())
	assert.ErrorContains(t, err, "ping.workers")
}

func TestEngineLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockSource(ctrl)
	launcher := mocks.NewMockLauncher(ctrl)
	display := mocks.NewMockDisplay(ctrl)

	cfg := config.Default()
	cfg.OpenVPN.RuntimeDir = t.TempDir()
	cfg.Connect.RetryDelay = 0

	source.EXPECT().Fetch(gomock.Any()).Return([]catalog.RawServer{
		{Domain: "ch4.nordvpn.com", IPAddress: "192.0.2.4", Flag: "CH", Load: 20,
			Categories: []catalog.RawCategory{{Name: "Standard VPN servers"}}},
		{Domain: "ch7.nordvpn.com", IPAddress: "192.0.2.7", Flag: "CH", Load: 5,
			Categories: []catalog.RawCategory{{Name: "Standard VPN servers"}}},
	}, nil).AnyTimes()
	launcher.EXPECT().Launch(gomock.Any(), gomock.Any()).Return(tunnel.Result{Success: true, PID: 99}, nil)
	launcher.EXPECT().Terminate(99).Return(nil)
	display.EXPECT().Show(gomock.Any()).Return(nil)

	prober := probe.ProberFunc(func(context.Context, string, time.Duration) float64 {
		return 12
	})

	engine, err := nordconnect.NewEngineWith(cfg, core.Collaborators{
		Source:    source,
		Prober:    prober,
		Launcher:  launcher,
		Confirmer: prompt.Always(false),
		Display:   display,
	}, testutils.NewTestLogger())
	require.NoError(t, err)

	servers, err := engine.ListServers(context.Background(), filter.Criteria{Countries: []string{"ch"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ch7", "ch4"}, testutils.Domains(servers))

	res, err := engine.Connect(context.Background(), core.ConnectRequest{Server: core.BestServer, Daemon: true})
	require.NoError(t, err)
	assert.Equal(t, "ch7", res.Outcome.Candidate.Domain)

	status, err := engine.Status()
	require.NoError(t, err)
	assert.Contains(t, status, "Connected to ch7")

	require.NoError(t, engine.Stop())
	status, err = engine.Status()
	require.NoError(t, err)
	assert.Equal(t, "Disconnected", status)
}

func TestEngine_UnavailableCatalog(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockSource(ctrl)
	source.EXPECT().Fetch(gomock.Any()).Return(nil, errors.New("dial tcp: i/o timeout"))

	engine, err := nordconnect.NewEngineWith(config.Default(), core.Collaborators{
		Source:    source,
		Launcher:  mocks.NewMockLauncher(ctrl),
		Confirmer: prompt.Always(false),
		Display:   mocks.NewMockDisplay(ctrl),
	}, testutils.NewTestLogger())
	require.NoError(t, err)

	_, err = engine.Catalog(context.Background())
	assert.ErrorIs(t, err, connerr.ErrCatalogUnavailable)
}
