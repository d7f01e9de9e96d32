package probe

import (
	"context"
	"math"
	"time"

	"github.com/gocircum/nordconnect/core/catalog"
	"github.com/gocircum/nordconnect/pkg/logging"
	"golang.org/x/time/rate"
)

// Middleware wraps a Prober with extra behaviour.
type Middleware func(Prober) Prober

// Chain creates a single Middleware from a series of middlewares.
// The first middleware is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(base Prober) Prober {
		for i := len(middlewares) - 1; i >= 0; i-- {
			base = middlewares[i](base)
		}
		return base
	}
}

type timeoutProber struct {
	Prober
	timeout time.Duration
}

// Measure caps the measurement of the wrapped prober. Time spent in outer
// middlewares, such as waiting for a throttle, does not count.
func (p *timeoutProber) Measure(ctx context.Context, host string, timeout time.Duration) float64 {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if timeout <= 0 || timeout > p.timeout {
			timeout = p.timeout
		}
	}
	return p.Prober.Measure(ctx, host, timeout)
}

// WithTimeout caps every measurement at timeout. Only the middlewares listed
// after it in a Chain run under the cap.
func WithTimeout(timeout time.Duration) Middleware {
	return func(base Prober) Prober {
		return &timeoutProber{Prober: base, timeout: timeout}
	}
}

type throttlingProber struct {
	Prober
	limiter *rate.Limiter
}

func (p *throttlingProber) Measure(ctx context.Context, host string, timeout time.Duration) float64 {
	if err := p.limiter.Wait(ctx); err != nil {
		return catalog.Unreachable
	}
	return p.Prober.Measure(ctx, host, timeout)
}

// WithThrottle limits measurements to r per second with burst b. The limiter
// is shared by every prober the middleware wraps.
func WithThrottle(r rate.Limit, b int) Middleware {
	if b <= 0 {
		b = 1
	}
	limiter := rate.NewLimiter(r, b)
	return func(base Prober) Prober {
		return &throttlingProber{Prober: base, limiter: limiter}
	}
}

type loggingProber struct {
	Prober
	logger logging.Logger
}

func (p *loggingProber) Measure(ctx context.Context, host string, timeout time.Duration) float64 {
	ms := p.Prober.Measure(ctx, host, timeout)
	if math.IsInf(ms, 1) {
		p.logger.Debug("Server unreachable", "host", host, "timeout", timeout)
	} else {
		p.logger.Debug("Server answered", "host", host, "ping_ms", ms)
	}
	return ms
}

// WithLogging logs every measurement at debug level.
func WithLogging(logger logging.Logger) Middleware {
	logger = logging.ForComponent(logger, "probe")
	return func(base Prober) Prober {
		return &loggingProber{Prober: base, logger: logger}
	}
}
