package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/archive"
	"github.com/openparl/stenosync/internal/fetch"
	"github.com/openparl/stenosync/internal/journal"
	"github.com/openparl/stenosync/internal/planner"
	pubmemory "github.com/openparl/stenosync/internal/publisher/memory"
	"github.com/openparl/stenosync/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakePlanner struct {
	plan planner.Plan

	mu   sync.Mutex
	from time.Time
	to   time.Time
}

func (p *fakePlanner) Plan(_ context.Context, _ archive.Legislature, targetStart, targetEnd time.Time) planner.Plan {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.from = targetStart
	p.to = targetEnd
	return p.plan
}

type fakeExecutor struct {
	results map[archive.Legislature]fetch.UnitResult

	mu       sync.Mutex
	executed []archive.Legislature
}

func (e *fakeExecutor) Execute(_ context.Context, unit archive.WorkUnit) fetch.UnitResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = append(e.executed, unit.Legislature)
	return e.results[unit.Legislature]
}

type capturingJournal struct {
	mu      sync.Mutex
	entries []journal.RunEntry
}

func (j *capturingJournal) RecordRun(_ context.Context, entry journal.RunEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

func (j *capturingJournal) Close() {}

func unitLeg(id archive.Legislature, start, end time.Time) archive.WorkUnit {
	return archive.WorkUnit{Legislature: id, Start: start, End: end}
}

func TestRunExecutesPlanAndReportsTotals(t *testing.T) {
	t.Parallel()

	now := archive.Day(2024, time.June, 15)
	units := []archive.WorkUnit{
		unitLeg(18, archive.Day(2022, time.January, 1), archive.Day(2022, time.October, 12)),
		unitLeg(19, archive.Day(2022, time.October, 13), now),
	}
	pl := &fakePlanner{plan: planner.Plan{Units: units}}
	ex := &fakeExecutor{results: map[archive.Legislature]fetch.UnitResult{
		18: {Status: fetch.UnitCompleted, Counters: archive.Counters{Stored: 10, AlreadyPresent: 3}},
		19: {Status: fetch.UnitCompleted, Counters: archive.Counters{Stored: 5, Skipped: 1}},
	}}
	jn := &capturingJournal{}
	events := pubmemory.New()

	eng := New(pl, ex, memory.New(), jn, events, fixedClock{now: now}, Config{
		Source:           "camera",
		Prefix:           "transcripts",
		StartLegislature: 19,
		From:             archive.Day(2022, time.January, 1),
		To:               now,
		Topic:            "sync-events",
	}, zap.NewNop())

	summary, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []archive.Legislature{18, 19}, ex.executed)

	totals := summary.Totals()
	require.Equal(t, 15, totals.Stored)
	require.Equal(t, 3, totals.AlreadyPresent)
	require.Equal(t, 1, totals.Skipped)

	status := eng.Status()
	require.Equal(t, "done", status.State)
	require.Equal(t, 2, status.Units)
	require.Equal(t, 2, status.UnitsDone)
	require.Equal(t, int64(15), status.Stored)
	require.Empty(t, status.CurrentUnit)

	require.Len(t, jn.entries, 1)
	entry := jn.entries[0]
	require.Equal(t, journal.StatusSuccess, entry.Status)
	require.Equal(t, 2, entry.Units)
	require.Equal(t, int64(15), entry.Stored)

	msgs := events.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "sync-events", msgs[0].Topic)
	event, ok := msgs[0].Payload.(RunEvent)
	require.True(t, ok)
	require.Equal(t, "camera", event.Source)
	require.Equal(t, "success", event.Status)
	require.Equal(t, 15, event.Stored)
}

func TestRunResumesFromLedger(t *testing.T) {
	t.Parallel()

	store := memory.New()
	line := `{"id":"a","content":{"uri":"u/a"},"structData":{"title":"a","date":"2024-03-12"}}` + "\n"
	_, err := store.Put(context.Background(), "transcripts/ingest/metadata.jsonl", "application/json", []byte(line))
	require.NoError(t, err)

	now := archive.Day(2024, time.June, 15)
	pl := &fakePlanner{}
	eng := New(pl, &fakeExecutor{}, store, nil, nil, fixedClock{now: now}, Config{
		Prefix:      "transcripts",
		DefaultFrom: archive.Day(2013, time.March, 15),
	}, zap.NewNop())

	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	// The day after the latest ledger record, up to today.
	require.Equal(t, archive.Day(2024, time.March, 13), pl.from)
	require.Equal(t, now, pl.to)
}

func TestRunResumeAdvancesConfiguredStart(t *testing.T) {
	t.Parallel()

	store := memory.New()
	line := `{"id":"a","content":{"uri":"u/a"},"structData":{"title":"a","date":"2024-05-10"}}` + "\n"
	_, err := store.Put(context.Background(), "transcripts/ingest/metadata.jsonl", "application/json", []byte(line))
	require.NoError(t, err)

	now := archive.Day(2024, time.June, 15)
	pl := &fakePlanner{}
	eng := New(pl, &fakeExecutor{}, store, nil, nil, fixedClock{now: now}, Config{
		Prefix: "transcripts",
		From:   archive.Day(2024, time.January, 1),
		To:     now,
	}, zap.NewNop())

	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	// Everything up to the latest ledger record is already ingested; the
	// configured start is only a floor.
	require.Equal(t, archive.Day(2024, time.May, 11), pl.from)
}

func TestRunKeepsConfiguredStartWhenLedgerIsOlder(t *testing.T) {
	t.Parallel()

	store := memory.New()
	line := `{"id":"a","content":{"uri":"u/a"},"structData":{"title":"a","date":"2023-02-01"}}` + "\n"
	_, err := store.Put(context.Background(), "transcripts/ingest/metadata.jsonl", "application/json", []byte(line))
	require.NoError(t, err)

	now := archive.Day(2024, time.June, 15)
	pl := &fakePlanner{}
	eng := New(pl, &fakeExecutor{}, store, nil, nil, fixedClock{now: now}, Config{
		Prefix: "transcripts",
		From:   archive.Day(2024, time.January, 1),
		To:     now,
	}, zap.NewNop())

	_, err = eng.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, archive.Day(2024, time.January, 1), pl.from)
}

func TestRunFallsBackToDefaultFrom(t *testing.T) {
	t.Parallel()

	now := archive.Day(2024, time.June, 15)
	pl := &fakePlanner{}
	eng := New(pl, &fakeExecutor{}, memory.New(), nil, nil, fixedClock{now: now}, Config{
		Prefix:      "transcripts",
		DefaultFrom: archive.Day(2013, time.March, 15),
	}, zap.NewNop())

	_, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, archive.Day(2013, time.March, 15), pl.from)
}

func TestRunRejectsEmptyInterval(t *testing.T) {
	t.Parallel()

	eng := New(&fakePlanner{}, &fakeExecutor{}, memory.New(), nil, nil,
		fixedClock{now: archive.Day(2024, time.June, 15)}, Config{
			From: archive.Day(2024, time.May, 1),
			To:   archive.Day(2024, time.April, 1),
		}, zap.NewNop())

	_, err := eng.Run(context.Background())
	require.ErrorContains(t, err, "target interval is empty")
	require.Equal(t, "failed", eng.Status().State)
}

func TestRunContinuesPastAbandonedUnit(t *testing.T) {
	t.Parallel()

	now := archive.Day(2024, time.June, 15)
	units := []archive.WorkUnit{
		unitLeg(18, archive.Day(2022, time.January, 1), archive.Day(2022, time.October, 12)),
		unitLeg(19, archive.Day(2022, time.October, 13), now),
	}
	pl := &fakePlanner{plan: planner.Plan{Units: units}}
	ex := &fakeExecutor{results: map[archive.Legislature]fetch.UnitResult{
		18: {Status: fetch.UnitAborted},
		19: {Status: fetch.UnitCompleted, Counters: archive.Counters{Stored: 2}},
	}}

	eng := New(pl, ex, memory.New(), nil, nil, fixedClock{now: now}, Config{
		From: archive.Day(2022, time.January, 1),
		To:   now,
	}, zap.NewNop())

	summary, err := eng.Run(context.Background())
	require.NoError(t, err)
	// A rate-limited legislature does not sink the rest of the run.
	require.Equal(t, []archive.Legislature{18, 19}, ex.executed)
	require.Equal(t, 2, summary.Totals().Stored)
}

func TestRunStopsOnCancellation(t *testing.T) {
	t.Parallel()

	now := archive.Day(2024, time.June, 15)
	units := []archive.WorkUnit{
		unitLeg(18, archive.Day(2022, time.January, 1), archive.Day(2022, time.October, 12)),
		unitLeg(19, archive.Day(2022, time.October, 13), now),
	}
	pl := &fakePlanner{plan: planner.Plan{Units: units}}

	ctx, cancel := context.WithCancel(context.Background())
	ex := &fakeExecutor{results: map[archive.Legislature]fetch.UnitResult{
		18: {Status: fetch.UnitAborted},
	}}
	cancel()

	eng := New(pl, ex, memory.New(), nil, nil, fixedClock{now: now}, Config{
		From: archive.Day(2022, time.January, 1),
		To:   now,
	}, zap.NewNop())

	_, err := eng.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, "failed", eng.Status().State)
}

func TestRunClassifiesPartialRuns(t *testing.T) {
	t.Parallel()

	now := archive.Day(2024, time.June, 15)
	gap := archive.DateRange{
		Start: archive.Day(2018, time.March, 23),
		End:   archive.Day(2022, time.October, 12),
	}
	pl := &fakePlanner{plan: planner.Plan{
		Units:     []archive.WorkUnit{unitLeg(19, archive.Day(2022, time.October, 13), now)},
		Uncovered: []archive.DateRange{gap},
	}}
	ex := &fakeExecutor{results: map[archive.Legislature]fetch.UnitResult{
		19: {Status: fetch.UnitCompleted, Counters: archive.Counters{Stored: 1}},
	}}
	jn := &capturingJournal{}

	eng := New(pl, ex, memory.New(), jn, nil, fixedClock{now: now}, Config{
		From: archive.Day(2018, time.January, 1),
		To:   now,
	}, zap.NewNop())

	_, err := eng.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, jn.entries, 1)
	entry := jn.entries[0]
	require.Equal(t, journal.StatusPartial, entry.Status)
	require.Equal(t, []journal.DateSpan{{From: "2018-03-23", To: "2022-10-12"}}, entry.Uncovered)
}

func TestRunStatusTransitions(t *testing.T) {
	t.Parallel()

	now := archive.Day(2024, time.June, 15)
	eng := New(&fakePlanner{}, &fakeExecutor{}, memory.New(), nil, nil, fixedClock{now: now}, Config{
		From: archive.Day(2024, time.January, 1),
		To:   now,
	}, zap.NewNop())

	require.Equal(t, "idle", eng.Status().State)

	_, err := eng.Run(context.Background())
	require.NoError(t, err)

	status := eng.Status()
	require.Equal(t, "done", status.State)
	require.NotNil(t, status.StartedAt)
	require.NotNil(t, status.FinishedAt)
	require.True(t, strings.HasPrefix(status.StartedAt.Format(time.RFC3339), "2024-06-15"))
}
