// Package connect drives connection attempts over a candidate list.
package connect

import (
	"context"
	"fmt"
	"strings"

	"github.com/gocircum/nordconnect/core/catalog"
	"github.com/gocircum/nordconnect/core/connerr"
	"github.com/gocircum/nordconnect/core/tunnel"
	"github.com/gocircum/nordconnect/pkg/logging"
)

//go:generate mockgen -package=mocks -destination=../../mocks/mock_connect.go github.com/gocircum/nordconnect/core/connect Confirmer,Display

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Ask(ctx context.Context, message string) (bool, error)
}

// Display shows the server a tunnel was established to.
type Display interface {
	Show(server *catalog.Server) error
}

// AttemptState is the position of one attempt in its state machine.
type AttemptState int

const (
	Pending AttemptState = iota
	ConfirmRequired
	Confirmed
	Declined
	Launching
	Succeeded
	Failed
)

func (s AttemptState) String() string {
	switch s {
	case Pending:
		return "pending"
	case ConfirmRequired:
		return "confirm_required"
	case Confirmed:
		return "confirmed"
	case Declined:
		return "declined"
	case Launching:
		return "launching"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the result of one attempt.
type Outcome struct {
	Candidate   *catalog.Server
	Attempt     int // 1-based
	State       AttemptState
	Succeeded   bool
	UserAborted bool
	Kind        connerr.Kind // KindLaunchFailed when the launch failed
	Err         error
	PID         int
	Exited      <-chan error // foreground tunnels only
}

// LaunchParams are the tunnel settings shared by every attempt of a run.
type LaunchParams struct {
	Protocol string
	Options  string
	Daemon   bool
}

// Attempter performs single connection attempts.
type Attempter struct {
	Launcher       tunnel.Launcher
	Confirmer      Confirmer
	Display        Display
	RiskCategories []string
	Logger         logging.Logger
}

// NewAttempter creates an Attempter. Confirmer and Display may be nil: without
// a Confirmer risky servers are declined, without a Display nothing is shown.
func NewAttempter(launcher tunnel.Launcher, confirmer Confirmer, display Display, riskCategories []string, logger logging.Logger) *Attempter {
	return &Attempter{
		Launcher:       launcher,
		Confirmer:      confirmer,
		Display:        display,
		RiskCategories: riskCategories,
		Logger:         logging.ForComponent(logger, "connect.attempt"),
	}
}

// Attempt tries to bring up a tunnel to server.
func (a *Attempter) Attempt(ctx context.Context, server *catalog.Server, number int, params LaunchParams) Outcome {
	out := Outcome{Candidate: server, Attempt: number, State: Pending}
	log := a.Logger.With("domain", server.Domain, "attempt", number)

	if risk := a.riskOf(server); risk != "" {
		out.State = ConfirmRequired
		if !a.confirm(ctx, log, server, risk) {
			out.State = Declined
			out.UserAborted = true
			log.Info("Connection declined by user", "category", risk)
			return out
		}
		out.State = Confirmed
	}

	out.State = Launching
	log.Info("Connecting", "host", server.Host(), "protocol", params.Protocol, "ping_ms", server.Ping, "load", server.Load)
	res, err := a.Launcher.Launch(ctx, tunnel.Request{
		Host:     server.Host(),
		IP:       server.IPAddress,
		Protocol: params.Protocol,
		Options:  params.Options,
		Daemon:   params.Daemon,
	})
	if err == nil && !res.Success {
		err = fmt.Errorf("openvpn reported failure")
	}
	if err != nil {
		out.State = Failed
		out.Kind = connerr.KindLaunchFailed
		out.Err = connerr.LaunchFailed(server.Domain, err)
		log.Warn("Connection attempt failed", "error", err)
		return out
	}

	out.State = Succeeded
	out.Succeeded = true
	out.PID = res.PID
	out.Exited = res.Exited
	log.Info("Connected", "pid", res.PID)

	if a.Display != nil {
		if err := a.Display.Show(server); err != nil {
			log.Warn("Failed to display connection status", "error", err)
		}
	}
	return out
}

// riskOf returns the first risk category of server, or "".
func (a *Attempter) riskOf(server *catalog.Server) string {
	for _, c := range a.RiskCategories {
		if server.HasCategory(catalog.CategoryTag(c)) {
			return catalog.CategoryTag(c)
		}
	}
	return ""
}

func (a *Attempter) confirm(ctx context.Context, log logging.Logger, server *catalog.Server, risk string) bool {
	if a.Confirmer == nil {
		return false
	}
	ok, err := a.Confirmer.Ask(ctx, riskMessage(server, risk))
	if err != nil {
		log.Warn("Confirmation prompt failed, treating it as a decline", "error", err)
		return false
	}
	return ok
}

func riskMessage(server *catalog.Server, risk string) string {
	name := strings.ReplaceAll(risk, "_", " ")
	return fmt.Sprintf("%s (%s) is a %s server. These servers are meant for restrictive networks "+
		"and may be slower or less stable. Connect anyway?", server.Domain, server.Country, name)
}
