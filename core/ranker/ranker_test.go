package ranker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocircum/nordconnect/core/catalog"
	"github.com/gocircum/nordconnect/core/filter"
	"github.com/gocircum/nordconnect/core/probe"
	"github.com/gocircum/nordconnect/mocks"
	"github.com/gocircum/nordconnect/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func noProbe(t *testing.T) probe.Prober {
	return probe.ProberFunc(func(_ context.Context, host string, _ time.Duration) float64 {
		t.Errorf("unexpected probe of %s", host)
		return catalog.Unreachable
	})
}

// pings answers from a table keyed by host; unknown hosts are unreachable.
func pings(table map[string]float64) probe.Prober {
	var mu sync.Mutex
	return probe.ProberFunc(func(_ context.Context, host string, _ time.Duration) float64 {
		mu.Lock()
		defer mu.Unlock()
		if ms, ok := table[host]; ok {
			return ms
		}
		return catalog.Unreachable
	})
}

func TestRank_PingDecidesBeforeLoad(t *testing.T) {
	us1 := testutils.NewServer("us1", "us", 50, 10)
	us2 := testutils.NewServer("us2", "us", 20, 90)

	r := New(noProbe(t), Options{}, testutils.NewTestLogger())
	out, err := r.Rank(context.Background(), []*catalog.Server{us1, us2}, filter.Criteria{TopN: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"us2", "us1"}, testutils.Domains(out))
}

func TestRank_BestBreaksPingTieByLoad(t *testing.T) {
	a := testutils.NewServer("a1", "us", 30, 50)
	b := testutils.NewServer("b1", "us", 30, 20)

	r := New(noProbe(t), Options{}, testutils.NewTestLogger())
	out, err := r.Rank(context.Background(), []*catalog.Server{a, b}, filter.Criteria{Best: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b1", out[0].Domain)
}

func TestRank_StableOnFullTie(t *testing.T) {
	in := []*catalog.Server{
		testutils.NewServer("c3", "us", 10, 5),
		testutils.NewServer("a1", "us", 10, 5),
		testutils.NewServer("x9", "us", 5, 50),
		testutils.NewServer("b2", "us", 10, 5),
	}

	r := New(noProbe(t), Options{}, testutils.NewTestLogger())
	out, err := r.Rank(context.Background(), in, filter.Criteria{TopN: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"x9", "c3", "a1", "b2"}, testutils.Domains(out))

	// Reversing the tied servers reverses them in the output too.
	rev := []*catalog.Server{in[3], in[2], in[1], in[0]}
	out, err = r.Rank(context.Background(), rev, filter.Criteria{TopN: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"x9", "b2", "a1", "c3"}, testutils.Domains(out))
}

func TestRank_TopNBounds(t *testing.T) {
	var in []*catalog.Server
	for i, d := range []string{"us1", "us2", "us3", "us4", "us5"} {
		in = append(in, testutils.NewServer(d, "us", float64(10+i), 10))
	}
	r := New(noProbe(t), Options{}, testutils.NewTestLogger())

	for _, k := range []int{1, 3, 5, 8} {
		out, err := r.Rank(context.Background(), in, filter.Criteria{TopN: k})
		require.NoError(t, err)
		assert.Len(t, out, min(k, len(in)))
	}

	out, err := r.Rank(context.Background(), in, filter.Criteria{})
	require.NoError(t, err)
	assert.Equal(t, []string{"us1"}, testutils.Domains(out), "top n defaults to one")
}

func TestRank_MeasuresAndDropsUnreachable(t *testing.T) {
	in := []*catalog.Server{
		testutils.NewServer("us1", "us", -1, 10),
		testutils.NewServer("us2", "us", -1, 10),
		testutils.NewServer("us3", "us", -1, 10),
		testutils.NewServer("us4", "us", 3, 99),
	}
	p := pings(map[string]float64{
		"us1.nordvpn.com": 40,
		"us3.nordvpn.com": 25,
	})

	r := New(p, Options{Workers: 2}, testutils.NewTestLogger())
	out, err := r.Rank(context.Background(), in, filter.Criteria{TopN: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"us4", "us3", "us1"}, testutils.Domains(out))

	assert.True(t, in[1].PingMeasured)
	assert.False(t, in[1].Reachable())
	assert.Equal(t, 25.0, in[2].Ping)
}

func TestRank_AllUnreachable(t *testing.T) {
	in := []*catalog.Server{
		testutils.NewServer("us1", "us", -1, 10),
		testutils.NewServer("us2", "us", -1, 20),
	}
	r := New(pings(nil), Options{}, testutils.NewTestLogger())

	out, err := r.Rank(context.Background(), in, filter.Criteria{Best: true})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRank_WorkerBound(t *testing.T) {
	var active, peak atomic.Int32
	p := probe.ProberFunc(func(context.Context, string, time.Duration) float64 {
		n := active.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return 10
	})

	var in []*catalog.Server
	for _, d := range []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9"} {
		in = append(in, testutils.NewServer(d, "us", -1, 1))
	}
	r := New(p, Options{Workers: 3}, testutils.NewTestLogger())
	out, err := r.Rank(context.Background(), in, filter.Criteria{TopN: 9})
	require.NoError(t, err)
	assert.Len(t, out, 9)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRank_BestPoolSize(t *testing.T) {
	in := []*catalog.Server{
		testutils.NewServer("us1", "us", -1, 80),
		testutils.NewServer("us2", "us", -1, 10),
		testutils.NewServer("us3", "us", -1, 30),
		testutils.NewServer("us4", "us", -1, 5),
	}
	var probed sync.Map
	p := probe.ProberFunc(func(_ context.Context, host string, _ time.Duration) float64 {
		probed.Store(host, true)
		if host == "us1.nordvpn.com" {
			return 1
		}
		return 20
	})

	r := New(p, Options{BestPoolSize: 2}, testutils.NewTestLogger())
	out, err := r.Rank(context.Background(), in, filter.Criteria{Best: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "us4", out[0].Domain)

	_, measured := probed.Load("us1.nordvpn.com")
	assert.False(t, measured, "high-load servers are not measured in best mode")
}

func TestRank_BestLessHook(t *testing.T) {
	a := testutils.NewServer("us1", "us", 10, 90)
	b := testutils.NewServer("us2", "us", 50, 1)
	byLoad := func(x, y *catalog.Server) bool { return x.Load < y.Load }

	r := New(noProbe(t), Options{BestLess: byLoad}, testutils.NewTestLogger())
	out, err := r.Rank(context.Background(), []*catalog.Server{a, b}, filter.Criteria{Best: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"us2"}, testutils.Domains(out))

	out, err = r.Rank(context.Background(), []*catalog.Server{a, b}, filter.Criteria{TopN: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"us1", "us2"}, testutils.Domains(out), "top n ignores the best hook")
}

func TestRank_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := []*catalog.Server{testutils.NewServer("us1", "us", -1, 10)}
	r := New(pings(map[string]float64{"us1.nordvpn.com": 5}), Options{}, testutils.NewTestLogger())
	_, err := r.Rank(ctx, in, filter.Criteria{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRank_UsesProberWithHostAndTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mocks.NewMockProber(ctrl)
	p.EXPECT().Measure(gomock.Any(), "de7.nordvpn.com", 250*time.Millisecond).Return(12.0).Times(1)

	in := []*catalog.Server{testutils.NewServer("de7", "de", -1, 10)}
	r := New(p, Options{Timeout: 250 * time.Millisecond}, testutils.NewTestLogger())
	out, err := r.Rank(context.Background(), in, filter.Criteria{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 12.0, out[0].Ping)
}
