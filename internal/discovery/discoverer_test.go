package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/archive"
)

// fakeProber simulates a legislature with sessions 1..limit; dates grow one
// day per session from base. errAt injects a probe failure for one session.
type fakeProber struct {
	mu    sync.Mutex
	limit int
	base  time.Time
	errAt int
	calls []int
}

func (p *fakeProber) Check(_ context.Context, _ archive.Legislature, session int) (archive.ProbeResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, session)
	p.mu.Unlock()

	if p.errAt != 0 && session == p.errAt {
		return archive.ProbeResult{}, errors.New("connection reset")
	}
	if session > p.limit {
		return archive.ProbeResult{Exists: false}, nil
	}
	return archive.ProbeResult{Exists: true, Date: p.base.AddDate(0, 0, session-1)}, nil
}

func TestDiscoverEstimatesRange(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{limit: 350, base: archive.Day(2018, time.March, 23)}
	d := New(prober, archive.Pacer{}, nil, zap.NewNop())

	info := d.Discover(context.Background(), 18)
	require.True(t, info.Exists)
	require.Equal(t, archive.Legislature(18), info.ID)
	// 300 is the largest sample index at or below the real session count.
	require.Equal(t, 300, info.MaxKnownIndex)
	require.Equal(t, archive.Day(2018, time.March, 23), info.EarliestDate)
	require.Equal(t, archive.Day(2018, time.March, 23).AddDate(0, 0, 299), info.LatestDate)
	require.Equal(t, DefaultSampleIndices, prober.calls)
}

func TestDiscoverAbsentLegislature(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{limit: 0}
	d := New(prober, archive.Pacer{}, nil, zap.NewNop())

	info := d.Discover(context.Background(), 25)
	require.False(t, info.Exists)
	require.False(t, info.HasDates())
	require.Zero(t, info.MaxKnownIndex)
}

func TestDiscoverProbeErrorCountsAsAbsent(t *testing.T) {
	t.Parallel()

	// Session 1 errors out; later samples still establish existence.
	prober := &fakeProber{limit: 60, base: archive.Day(2022, time.October, 13), errAt: 1}
	d := New(prober, archive.Pacer{}, nil, zap.NewNop())

	info := d.Discover(context.Background(), 19)
	require.True(t, info.Exists)
	require.Equal(t, 50, info.MaxKnownIndex)
	// Earliest comes from session 5, since session 1 failed.
	require.Equal(t, archive.Day(2022, time.October, 13).AddDate(0, 0, 4), info.EarliestDate)
}

func TestDiscoverMemoizes(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{limit: 10, base: archive.Day(2020, time.January, 1)}
	d := New(prober, archive.Pacer{}, nil, zap.NewNop())

	first := d.Discover(context.Background(), 17)
	callsAfterFirst := len(prober.calls)
	second := d.Discover(context.Background(), 17)

	require.Equal(t, first, second)
	require.Equal(t, callsAfterFirst, len(prober.calls))
}

func TestDiscoverCancelledPassIsNotCached(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{limit: 350, base: archive.Day(2018, time.March, 23)}
	d := New(prober, archive.Pacer{}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	partial := d.Discover(ctx, 18)
	require.False(t, partial.Exists)
	require.Empty(t, prober.calls)

	// A fresh call with a live context probes for real instead of returning
	// the cancelled pass's empty estimate.
	info := d.Discover(context.Background(), 18)
	require.True(t, info.Exists)
	require.Equal(t, 300, info.MaxKnownIndex)
	require.Equal(t, DefaultSampleIndices, prober.calls)
}

func TestDiscoverCustomSchedule(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{limit: 100, base: archive.Day(2020, time.January, 1)}
	d := New(prober, archive.Pacer{}, []int{1, 50, 99}, zap.NewNop())

	info := d.Discover(context.Background(), 16)
	require.Equal(t, []int{1, 50, 99}, prober.calls)
	require.Equal(t, 99, info.MaxKnownIndex)
}
