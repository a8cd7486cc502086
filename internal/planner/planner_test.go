package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/archive"
)

type mapDiscoverer struct {
	infos map[archive.Legislature]archive.LegislatureInfo
	calls []archive.Legislature
}

func (d *mapDiscoverer) Discover(_ context.Context, id archive.Legislature) archive.LegislatureInfo {
	d.calls = append(d.calls, id)
	info, ok := d.infos[id]
	if !ok {
		return archive.LegislatureInfo{ID: id}
	}
	return info
}

func leg(id archive.Legislature, from, to time.Time) archive.LegislatureInfo {
	return archive.LegislatureInfo{ID: id, Exists: true, EarliestDate: from, LatestDate: to}
}

func TestPlanSpansTwoLegislatures(t *testing.T) {
	t.Parallel()

	disc := &mapDiscoverer{infos: map[archive.Legislature]archive.LegislatureInfo{
		18: leg(18, archive.Day(2018, time.March, 23), archive.Day(2022, time.October, 12)),
		19: leg(19, archive.Day(2022, time.October, 13), archive.Day(2025, time.June, 30)),
	}}
	p := New(disc, Config{}, zap.NewNop())

	// The interval straddles the 18 -> 19 boundary.
	plan := p.Plan(context.Background(), 19,
		archive.Day(2022, time.January, 1), archive.Day(2023, time.December, 31))

	require.Empty(t, plan.Uncovered)
	require.Len(t, plan.Units, 2)

	require.Equal(t, archive.Legislature(18), plan.Units[0].Legislature)
	require.Equal(t, archive.Day(2022, time.January, 1), plan.Units[0].Start)
	require.Equal(t, archive.Day(2022, time.October, 12), plan.Units[0].End)

	require.Equal(t, archive.Legislature(19), plan.Units[1].Legislature)
	require.Equal(t, archive.Day(2022, time.October, 13), plan.Units[1].Start)
	require.Equal(t, archive.Day(2023, time.December, 31), plan.Units[1].End)
}

func TestPlanSingleLegislatureClipsToTarget(t *testing.T) {
	t.Parallel()

	disc := &mapDiscoverer{infos: map[archive.Legislature]archive.LegislatureInfo{
		19: leg(19, archive.Day(2022, time.October, 13), archive.Day(2025, time.June, 30)),
	}}
	p := New(disc, Config{MaxStepsBack: 2, MaxStepsForward: 2}, zap.NewNop())

	plan := p.Plan(context.Background(), 19,
		archive.Day(2023, time.January, 1), archive.Day(2023, time.December, 31))

	require.Empty(t, plan.Uncovered)
	require.Len(t, plan.Units, 1)
	require.Equal(t, archive.Day(2023, time.January, 1), plan.Units[0].Start)
	require.Equal(t, archive.Day(2023, time.December, 31), plan.Units[0].End)
}

func TestPlanWalkContinuesPastMissingLegislature(t *testing.T) {
	t.Parallel()

	// 18 does not exist at all; the backward walk must reach 17.
	disc := &mapDiscoverer{infos: map[archive.Legislature]archive.LegislatureInfo{
		19: leg(19, archive.Day(2022, time.October, 13), archive.Day(2025, time.June, 30)),
		17: leg(17, archive.Day(2013, time.March, 15), archive.Day(2018, time.March, 22)),
	}}
	p := New(disc, Config{}, zap.NewNop())

	plan := p.Plan(context.Background(), 19,
		archive.Day(2017, time.January, 1), archive.Day(2023, time.January, 1))

	require.Len(t, plan.Units, 2)
	require.Equal(t, archive.Legislature(17), plan.Units[0].Legislature)
	require.Equal(t, archive.Legislature(19), plan.Units[1].Legislature)

	// The span between 17 ending and 19 starting is a reported gap.
	require.Len(t, plan.Uncovered, 1)
	require.Equal(t, archive.Day(2018, time.March, 23), plan.Uncovered[0].Start)
	require.Equal(t, archive.Day(2022, time.October, 12), plan.Uncovered[0].End)
}

func TestPlanReportsUncoveredWhenWalkExhausted(t *testing.T) {
	t.Parallel()

	disc := &mapDiscoverer{infos: map[archive.Legislature]archive.LegislatureInfo{
		19: leg(19, archive.Day(2022, time.October, 13), archive.Day(2025, time.June, 30)),
	}}
	p := New(disc, Config{MaxStepsBack: 3, MaxStepsForward: 3}, zap.NewNop())

	plan := p.Plan(context.Background(), 19,
		archive.Day(2020, time.January, 1), archive.Day(2023, time.January, 1))

	require.Len(t, plan.Units, 1)
	require.Len(t, plan.Uncovered, 1)
	require.Equal(t, archive.Day(2020, time.January, 1), plan.Uncovered[0].Start)
	require.Equal(t, archive.Day(2022, time.October, 12), plan.Uncovered[0].End)

	// The walk stopped at the configured bound.
	require.Contains(t, disc.calls, archive.Legislature(16))
	require.NotContains(t, disc.calls, archive.Legislature(15))
}

func TestPlanBackwardWalkStopsOnceCovered(t *testing.T) {
	t.Parallel()

	disc := &mapDiscoverer{infos: map[archive.Legislature]archive.LegislatureInfo{
		19: leg(19, archive.Day(2022, time.October, 13), archive.Day(2025, time.June, 30)),
		18: leg(18, archive.Day(2018, time.March, 23), archive.Day(2022, time.October, 12)),
		17: leg(17, archive.Day(2013, time.March, 15), archive.Day(2018, time.March, 22)),
	}}
	p := New(disc, Config{}, zap.NewNop())

	p.Plan(context.Background(), 19,
		archive.Day(2019, time.January, 1), archive.Day(2023, time.January, 1))

	// 18 already reaches the target start; 17 must never be probed.
	require.NotContains(t, disc.calls, archive.Legislature(17))
}

func TestPlanIncludesDatelessLegislatureOnlyForGaps(t *testing.T) {
	t.Parallel()

	dateless := archive.LegislatureInfo{ID: 18, Exists: true, MaxKnownIndex: 100}
	disc := &mapDiscoverer{infos: map[archive.Legislature]archive.LegislatureInfo{
		19: leg(19, archive.Day(2022, time.October, 13), archive.Day(2025, time.June, 30)),
		18: dateless,
	}}
	p := New(disc, Config{MaxStepsBack: 2, MaxStepsForward: 1}, zap.NewNop())

	plan := p.Plan(context.Background(), 19,
		archive.Day(2020, time.January, 1), archive.Day(2023, time.January, 1))

	// The dateless legislature is assigned the uncovered gap speculatively.
	require.Len(t, plan.Units, 2)
	require.Equal(t, archive.Legislature(18), plan.Units[0].Legislature)
	require.Equal(t, archive.Day(2020, time.January, 1), plan.Units[0].Start)
	require.Equal(t, archive.Day(2022, time.October, 12), plan.Units[0].End)

	// Fully covered target: the same dateless legislature is left out.
	plan = p.Plan(context.Background(), 19,
		archive.Day(2023, time.January, 1), archive.Day(2024, time.January, 1))
	require.Len(t, plan.Units, 1)
	require.Equal(t, archive.Legislature(19), plan.Units[0].Legislature)
}

func TestPlanUnitsSortedAscending(t *testing.T) {
	t.Parallel()

	disc := &mapDiscoverer{infos: map[archive.Legislature]archive.LegislatureInfo{
		17: leg(17, archive.Day(2013, time.March, 15), archive.Day(2018, time.March, 22)),
		18: leg(18, archive.Day(2018, time.March, 23), archive.Day(2022, time.October, 12)),
		19: leg(19, archive.Day(2022, time.October, 13), archive.Day(2025, time.June, 30)),
	}}
	p := New(disc, Config{}, zap.NewNop())

	plan := p.Plan(context.Background(), 19,
		archive.Day(2014, time.January, 1), archive.Day(2024, time.January, 1))

	require.Len(t, plan.Units, 3)
	for i := 1; i < len(plan.Units); i++ {
		require.Less(t, plan.Units[i-1].Legislature, plan.Units[i].Legislature)
	}
}
