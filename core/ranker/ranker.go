// Package ranker measures and orders filtered candidates.
package ranker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gocircum/nordconnect/core/catalog"
	"github.com/gocircum/nordconnect/core/filter"
	"github.com/gocircum/nordconnect/core/probe"
	"github.com/gocircum/nordconnect/pkg/logging"
)

const (
	defaultWorkers = 16
	defaultTimeout = time.Second
)

// LessFunc orders two candidates.
type LessFunc func(a, b *catalog.Server) bool

// ByPingThenLoad orders by ping ascending, then load ascending.
func ByPingThenLoad(a, b *catalog.Server) bool {
	if a.Ping != b.Ping {
		return a.Ping < b.Ping
	}
	return a.Load < b.Load
}

// Options tune the measurement pass.
type Options struct {
	Workers int           // concurrent probes
	Timeout time.Duration // per probe

	// BestPoolSize, when positive, restricts best mode to the lowest-load
	// candidates before any of them is measured.
	BestPoolSize int

	// BestLess orders candidates in best mode. Defaults to ByPingThenLoad.
	BestLess LessFunc
}

// Ranker measures candidates and orders them.
type Ranker struct {
	prober probe.Prober
	opts   Options
	Logger logging.Logger
}

// New creates a Ranker.
func New(prober probe.Prober, opts Options, logger logging.Logger) *Ranker {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.BestLess == nil {
		opts.BestLess = ByPingThenLoad
	}
	return &Ranker{
		prober: prober,
		opts:   opts,
		Logger: logging.ForComponent(logger, "ranker"),
	}
}

// Rank measures every candidate without a finite ping, drops the unreachable
// ones and returns the rest sorted, truncated to criteria.Limit(). Ties keep
// the order of candidates. An empty result is not an error.
func (r *Ranker) Rank(ctx context.Context, candidates []*catalog.Server, criteria filter.Criteria) ([]*catalog.Server, error) {
	pool := candidates
	if criteria.Best && r.opts.BestPoolSize > 0 {
		pool = lowestLoad(candidates, r.opts.BestPoolSize)
	}

	r.Logger.Info("Ranking candidates", "candidates", len(candidates), "measured", len(pool))
	if err := r.measure(ctx, pool); err != nil {
		return nil, err
	}

	reachable := make([]*catalog.Server, 0, len(pool))
	for _, s := range pool {
		if s.Reachable() {
			reachable = append(reachable, s)
		}
	}
	if dropped := len(pool) - len(reachable); dropped > 0 {
		r.Logger.Debug("Dropped unreachable candidates", "dropped", dropped)
	}

	less := LessFunc(ByPingThenLoad)
	if criteria.Best {
		less = r.opts.BestLess
	}
	sort.SliceStable(reachable, func(i, j int) bool {
		return less(reachable[i], reachable[j])
	})

	if limit := criteria.Limit(); len(reachable) > limit {
		reachable = reachable[:limit]
	}
	return reachable, nil
}

// measure pings the candidates lacking a finite ping with a bounded worker
// pool. Results are collected by index and applied only after every worker
// has finished. Pacing, if any, belongs to the prober (probe.WithThrottle).
func (r *Ranker) measure(ctx context.Context, servers []*catalog.Server) error {
	var pending []int
	for i, s := range servers {
		if !s.Reachable() {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	results := make([]float64, len(servers))
	for _, i := range pending {
		results[i] = catalog.Unreachable
	}

	workers := r.opts.Workers
	if workers > len(pending) {
		workers = len(pending)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.prober.Measure(ctx, servers[i].Host(), r.opts.Timeout)
			}
		}()
	}

dispatch:
	for _, i := range pending {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	for _, i := range pending {
		servers[i].SetPing(results[i])
	}
	return nil
}

// lowestLoad returns the n least loaded servers, in their original order.
func lowestLoad(servers []*catalog.Server, n int) []*catalog.Server {
	if len(servers) <= n {
		return servers
	}
	idx := make([]int, len(servers))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return servers[idx[a]].Load < servers[idx[b]].Load
	})
	keep := make([]bool, len(servers))
	for _, i := range idx[:n] {
		keep[i] = true
	}
	out := make([]*catalog.Server, 0, n)
	for i, s := range servers {
		if keep[i] {
			out = append(out, s)
		}
	}
	return out
}
