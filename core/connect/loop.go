package connect

import (
	"context"
	"time"

	"github.com/gocircum/nordconnect/core/catalog"
	"github.com/gocircum/nordconnect/core/connerr"
	"github.com/gocircum/nordconnect/pkg/logging"
)

// CandidateSource yields the servers to attempt, in order.
type CandidateSource interface {
	Next() (*catalog.Server, bool)
}

type repeatSource struct {
	server *catalog.Server
}

func (r *repeatSource) Next() (*catalog.Server, bool) {
	return r.server, true
}

// Repeat yields server forever. It is used when the user named one server.
func Repeat(server *catalog.Server) CandidateSource {
	return &repeatSource{server: server}
}

type sequenceSource struct {
	servers []*catalog.Server
	next    int
}

func (s *sequenceSource) Next() (*catalog.Server, bool) {
	if s.next >= len(s.servers) {
		return nil, false
	}
	server := s.servers[s.next]
	s.next++
	return server, true
}

// Sequence yields each of servers once, in order.
func Sequence(servers []*catalog.Server) CandidateSource {
	return &sequenceSource{servers: servers}
}

// Budget bounds the number of attempts. Max 0 means unbounded.
type Budget struct {
	Max  int
	Made int
}

// NewBudget creates a budget of max attempts.
func NewBudget(max int) *Budget {
	if max < 0 {
		max = 0
	}
	return &Budget{Max: max}
}

// Exhausted reports whether no attempt is left.
func (b *Budget) Exhausted() bool {
	return b.Max > 0 && b.Made >= b.Max
}

// Take consumes one attempt. It refuses once Max attempts were made, so Made
// never exceeds Max.
func (b *Budget) Take() bool {
	if b.Exhausted() {
		return false
	}
	b.Made++
	return true
}

// Request describes one connect run.
type Request struct {
	Source     CandidateSource
	Budget     *Budget
	Params     LaunchParams
	RetryDelay time.Duration
}

// Result describes a successful run.
type Result struct {
	Outcome  Outcome
	Attempts int
	Tried    []string
}

// Runner drives attempts until one succeeds or the run has to stop.
type Runner struct {
	attempter *Attempter
	logger    logging.Logger
}

// NewRunner creates a Runner.
func NewRunner(attempter *Attempter, logger logging.Logger) *Runner {
	return &Runner{attempter: attempter, logger: logging.ForComponent(logger, "connect")}
}

// Run attempts candidates one at a time. It stops on the first success, when
// the user declines a server, when the source has no candidate left, when the
// budget is spent or when ctx is done.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	budget := req.Budget
	if budget == nil {
		budget = NewBudget(0)
	}
	var (
		tried   []string
		lastErr error
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if budget.Exhausted() {
			e := connerr.New(connerr.KindMaxRetriesExceeded, lastErr, "giving up: the limit of %d retries was reached", budget.Max)
			e.Attempts, e.Tried = budget.Made, tried
			return nil, e
		}
		server, ok := req.Source.Next()
		if !ok {
			e := connerr.New(connerr.KindNoServerLeft, lastErr, "every matching server was tried and none connected")
			e.Attempts, e.Tried = budget.Made, tried
			return nil, e
		}
		budget.Take()

		tried = append(tried, server.Domain)
		out := r.attempter.Attempt(ctx, server, budget.Made, req.Params)

		switch {
		case out.Succeeded:
			return &Result{Outcome: out, Attempts: budget.Made, Tried: tried}, nil
		case out.UserAborted:
			e := connerr.New(connerr.KindUserAborted, nil, "connection to %s declined; nothing else was tried", server.Domain)
			e.Attempts, e.Tried = budget.Made, tried
			return nil, e
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lastErr = out.Err
		r.logger.Info("Trying next candidate", "failed", server.Domain, "attempt", budget.Made, "max_retries", budget.Max)
		if !sleep(ctx, req.RetryDelay) {
			return nil, ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
