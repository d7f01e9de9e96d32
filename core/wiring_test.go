package core

import (
	"context"
	"testing"
	"time"

	"github.com/gocircum/nordconnect/core/config"
	"github.com/gocircum/nordconnect/core/probe"
	"github.com/gocircum/nordconnect/testutils"
	"github.com/stretchr/testify/assert"
)

func TestProberChain_ThrottleWaitDoesNotConsumeTimeout(t *testing.T) {
	cfg := config.PingConfig{Timeout: 30 * time.Millisecond, Rate: 10, Burst: 1}
	base := probe.ProberFunc(func(ctx context.Context, _ string, timeout time.Duration) float64 {
		assert.LessOrEqual(t, timeout, cfg.Timeout)
		if ctx.Err() != nil {
			return -1
		}
		return 1
	})
	p := proberChain(cfg, testutils.NewTestLogger())(base)

	start := time.Now()
	assert.Equal(t, 1.0, p.Measure(context.Background(), "us1.nordvpn.com", time.Second))
	assert.Equal(t, 1.0, p.Measure(context.Background(), "us2.nordvpn.com", time.Second))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
