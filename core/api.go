package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gocircum/nordconnect/core/catalog"
	"github.com/gocircum/nordconnect/core/config"
	"github.com/gocircum/nordconnect/core/connect"
	"github.com/gocircum/nordconnect/core/connerr"
	"github.com/gocircum/nordconnect/core/filter"
	"github.com/gocircum/nordconnect/core/ranker"
	"github.com/gocircum/nordconnect/core/tunnel"
	"github.com/gocircum/nordconnect/pkg/logging"
	"go.uber.org/multierr"
)

// BestServer selects the server by ranking instead of by name.
const BestServer = "best"

// ConnectRequest is one connect invocation.
type ConnectRequest struct {
	Server string // BestServer, "" or a server domain
	// Criteria select the candidates when Server is not a domain. With
	// neither Best nor TopN set every reachable match, fastest first, is
	// tried in turn rather than only the single best one.
	Criteria   filter.Criteria
	Protocol   string // "" uses connect.protocol
	Daemon     bool
	Options    string // extra openvpn arguments
	MaxRetries *int   // nil uses connect.max_retries; 0 is unbounded
}

// Bypass reports whether the request names one server.
func (r ConnectRequest) Bypass() bool {
	s := strings.TrimSpace(r.Server)
	return s != "" && !strings.EqualFold(s, BestServer)
}

type session struct {
	server   *catalog.Server
	pid      int
	protocol string
	daemon   bool
	since    time.Time
	done     chan struct{}
	err      error
}

// Engine is the main controller: it loads the catalog, selects servers and
// supervises the tunnel.
type Engine struct {
	config *config.FileConfig
	collab Collaborators
	ranker *ranker.Ranker
	runner *connect.Runner
	logger logging.Logger

	mu         sync.Mutex
	active     *session
	connecting bool
	lastErr    error
}

// NewEngine creates an engine from cfg. Collaborators left nil are built from cfg.
func NewEngine(cfg *config.FileConfig, collab Collaborators, logger logging.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine requires a configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger = logging.OrDefault(logger)
	collab = collab.withDefaults(cfg, logger)

	attempter := connect.NewAttempter(collab.Launcher, collab.Confirmer, collab.Display, cfg.Connect.RiskCategories, logger)
	return &Engine{
		config: cfg,
		collab: collab,
		ranker: ranker.New(collab.Prober, ranker.Options{
			Workers:      cfg.Ping.Workers,
			Timeout:      cfg.Ping.Timeout,
			BestPoolSize: cfg.Connect.BestPoolSize,
		}, logger),
		runner: connect.NewRunner(attempter, logger),
		logger: logger.With("component", "engine"),
	}, nil
}

// Catalog loads a fresh server catalog.
func (e *Engine) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	return catalog.Load(ctx, e.collab.Source, e.config.Servers.ParentDomain, e.logger)
}

// Connect selects a server and brings up a tunnel, falling back to the next
// candidate on failure. A foreground tunnel keeps running after Connect
// returns; use Wait and Stop to supervise it.
func (e *Engine) Connect(ctx context.Context, req ConnectRequest) (*connect.Result, error) {
	if err := e.reserve(); err != nil {
		return nil, err
	}
	defer func() {
		e.mu.Lock()
		e.connecting = false
		e.mu.Unlock()
	}()

	cat, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	var candidates connect.CandidateSource
	if req.Bypass() {
		server, err := cat.FindByDomain(req.Server)
		if err != nil {
			return nil, err
		}
		e.logger.Info("Connecting to the requested server", "domain", server.Domain)
		candidates = connect.Repeat(server)
	} else {
		ranked, err := e.rank(ctx, cat, e.withDefaults(req.Criteria))
		if err != nil {
			return nil, err
		}
		candidates = connect.Sequence(ranked)
	}

	maxRetries := e.config.Connect.MaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	protocol := req.Protocol
	if protocol == "" {
		protocol = e.config.Connect.Protocol
	}

	res, err := e.runner.Run(ctx, connect.Request{
		Source: candidates,
		Budget: connect.NewBudget(maxRetries),
		Params: connect.LaunchParams{
			Protocol: protocol,
			Options:  req.Options,
			Daemon:   req.Daemon,
		},
		RetryDelay: e.config.Connect.RetryDelay,
	})
	if err != nil {
		e.logger.Error("Connect failed", "kind", connerr.KindOf(err).String(), "error", err)
		return nil, err
	}

	e.track(res, protocol, req.Daemon)
	return res, nil
}

// reserve claims the engine for one Connect call at a time.
func (e *Engine) reserve() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		return fmt.Errorf("a tunnel is already running (pid %d)", e.active.pid)
	}
	if e.connecting {
		return fmt.Errorf("a connect is already in progress")
	}
	e.connecting = true
	return nil
}

// ListServers filters and ranks servers without connecting. With neither TopN
// nor Best set every reachable match is returned.
func (e *Engine) ListServers(ctx context.Context, criteria filter.Criteria) ([]*catalog.Server, error) {
	cat, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return e.rank(ctx, cat, e.withDefaults(criteria))
}

// rank filters the catalog and ranks the matches. When the criteria ask for
// neither best nor a top n, all reachable matches are kept so that a connect
// run can fall back through them.
func (e *Engine) rank(ctx context.Context, cat *catalog.Catalog, criteria filter.Criteria) ([]*catalog.Server, error) {
	candidates, err := filter.Filter(cat, criteria)
	if err != nil {
		return nil, fmt.Errorf("invalid filter criteria: %w", err)
	}
	if len(candidates) == 0 {
		return nil, connerr.NoServerFound(0)
	}
	if !criteria.Best && criteria.TopN <= 0 {
		criteria.TopN = len(candidates)
	}

	ranked, err := e.ranker.Rank(ctx, candidates, criteria)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, connerr.NoServerFound(len(candidates))
	}
	e.logger.Info("Candidates ranked", "matched", len(candidates), "ranked", len(ranked), "first", ranked[0].Domain)
	return ranked, nil
}

// withDefaults fills criteria fields the user left unset from the connect section.
func (e *Engine) withDefaults(c filter.Criteria) filter.Criteria {
	if len(c.Categories) == 0 {
		c.Categories = e.config.Connect.DefaultCategories
	}
	if c.LoadThreshold == nil && e.config.Connect.Load > 0 {
		c.LoadThreshold = filter.Threshold(e.config.Connect.Load)
		if c.LoadMatch == "" {
			c.LoadMatch = filter.LoadMatch(e.config.Connect.Match)
		}
	}
	return c
}

func (e *Engine) track(res *connect.Result, protocol string, daemon bool) {
	out := res.Outcome
	s := &session{
		server:   out.Candidate,
		pid:      out.PID,
		protocol: protocol,
		daemon:   daemon,
		since:    time.Now(),
		done:     make(chan struct{}),
	}

	e.mu.Lock()
	e.active = s
	e.lastErr = nil
	e.mu.Unlock()

	state := tunnel.State{
		Domain:      s.server.Domain,
		FQDN:        s.server.FQDN,
		Protocol:    protocol,
		PID:         s.pid,
		Daemon:      daemon,
		Attempts:    res.Attempts,
		ConnectedAt: s.since.UTC(),
	}
	if err := tunnel.WriteState(e.config.OpenVPN.RuntimeDir, state); err != nil {
		e.logger.Warn("Failed to record tunnel state", "error", err)
	}

	if out.Exited == nil {
		close(s.done)
		return
	}
	go func() {
		err := <-out.Exited
		e.logger.Info("Tunnel process exited", "domain", s.server.Domain, "pid", s.pid, "error", err)
		if rmErr := tunnel.RemoveState(e.config.OpenVPN.RuntimeDir); rmErr != nil {
			e.logger.Warn("Failed to remove tunnel state", "error", rmErr)
		}
		e.mu.Lock()
		s.err = err
		if e.active == s {
			e.active = nil
			e.lastErr = err
		}
		e.mu.Unlock()
		close(s.done)
	}()
}

// Wait blocks until the foreground tunnel exits or ctx is done. It returns
// immediately for daemon tunnels and when nothing runs, reporting the exit
// error of the last tunnel if there was one.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	s := e.active
	lastErr := e.lastErr
	e.mu.Unlock()
	if s == nil {
		return lastErr
	}
	select {
	case <-s.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop terminates the tunnel started by this engine.
func (e *Engine) Stop() error {
	e.mu.Lock()
	s := e.active
	e.active = nil
	e.mu.Unlock()

	if s == nil {
		return fmt.Errorf("no tunnel is running")
	}
	e.logger.Info("Stopping tunnel", "domain", s.server.Domain, "pid", s.pid)

	var errs error
	if err := e.collab.Launcher.Terminate(s.pid); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := tunnel.RemoveState(e.config.OpenVPN.RuntimeDir); err != nil {
		errs = multierr.Append(errs, err)
	}
	if errs != nil {
		return fmt.Errorf("failed to stop tunnel: %w", errs)
	}
	return nil
}

// Kill terminates the tunnel recorded in the state file, typically started by
// another invocation in daemon mode.
func (e *Engine) Kill(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := e.config.OpenVPN.RuntimeDir
	state, err := tunnel.ReadState(dir)
	if errors.Is(err, tunnel.ErrNoState) {
		return e.killFromPidFile(dir)
	}
	if err != nil {
		return err
	}
	e.logger.Info("Killing recorded tunnel", "domain", state.Domain, "pid", state.PID)

	errs := e.collab.Launcher.Terminate(state.PID)
	errs = multierr.Append(errs, tunnel.RemoveState(e.config.OpenVPN.RuntimeDir))
	if errs != nil {
		return fmt.Errorf("failed to kill tunnel to %s: %w", state.Domain, errs)
	}
	return nil
}

// killFromPidFile handles a tunnel that left a pid file but no state file.
// Other openvpn processes are never touched.
func (e *Engine) killFromPidFile(dir string) error {
	pidFile := tunnel.PidPath(dir)
	pid, err := tunnel.ReadPid(pidFile)
	if err != nil {
		return tunnel.ErrNoState
	}
	e.logger.Info("Killing openvpn from its pid file", "pid", pid)

	errs := e.collab.Launcher.Terminate(pid)
	if err := os.Remove(pidFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = multierr.Append(errs, err)
	}
	if errs != nil {
		return fmt.Errorf("failed to kill openvpn (pid %d): %w", pid, errs)
	}
	return nil
}

// Status describes the current tunnel.
func (e *Engine) Status() (string, error) {
	e.mu.Lock()
	s := e.active
	lastErr := e.lastErr
	e.mu.Unlock()

	if s != nil {
		mode := "foreground"
		if s.daemon {
			mode = "daemon"
		}
		return fmt.Sprintf("Connected to %s over %s (pid %d, %s) since %s",
			s.server.Domain, s.protocol, s.pid, mode, s.since.Format(time.RFC3339)), nil
	}
	if lastErr != nil {
		return "Tunnel failed", lastErr
	}

	state, err := tunnel.ReadState(e.config.OpenVPN.RuntimeDir)
	if errors.Is(err, tunnel.ErrNoState) {
		return "Disconnected", nil
	}
	if err != nil {
		return "Unknown", err
	}
	return fmt.Sprintf("Tunnel to %s recorded (pid %d, %s) since %s",
		state.Domain, state.PID, state.Protocol, state.ConnectedAt.Format(time.RFC3339)), nil
}
