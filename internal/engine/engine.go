// Package engine orchestrates one full synchronization run: resume point,
// coverage planning, unit execution, and result reporting.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/api"
	"github.com/openparl/stenosync/internal/archive"
	"github.com/openparl/stenosync/internal/fetch"
	"github.com/openparl/stenosync/internal/journal"
	"github.com/openparl/stenosync/internal/ledger"
	"github.com/openparl/stenosync/internal/planner"
	"github.com/openparl/stenosync/internal/publisher"
	"github.com/openparl/stenosync/internal/storage"
)

// Planner produces the covering set for a target interval.
type Planner interface {
	Plan(ctx context.Context, start archive.Legislature, targetStart, targetEnd time.Time) planner.Plan
}

// Executor runs one work unit to completion.
type Executor interface {
	Execute(ctx context.Context, unit archive.WorkUnit) fetch.UnitResult
}

// Config controls one run.
type Config struct {
	Source string
	Prefix string
	// StartLegislature seeds the planner's outward walk.
	StartLegislature archive.Legislature
	// From/To bound the target interval. The run resumes from the day after
	// the latest ledger record whenever that is later than From; a zero From
	// falls back to DefaultFrom when the ledger is empty. A zero To means
	// today.
	From        time.Time
	To          time.Time
	DefaultFrom time.Time
	// Topic is the run-summary event destination. Empty disables publishing.
	Topic string
}

// Engine ties the pipeline stages together and executes work units
// sequentially so the per-unit miss accounting stays deterministic.
type Engine struct {
	planner  Planner
	executor Executor
	store    storage.ObjectStore
	journal  journal.Journal
	events   publisher.Publisher
	clock    archive.Clock
	cfg      Config
	logger   *zap.Logger

	mu     sync.Mutex
	status api.RunStatus
}

// New builds an Engine. Journal and events may be nil; those stages are
// skipped.
func New(
	pl Planner,
	ex Executor,
	store storage.ObjectStore,
	jn journal.Journal,
	events publisher.Publisher,
	clock archive.Clock,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if jn == nil {
		jn = journal.NoOp{}
	}
	return &Engine{
		planner:  pl,
		executor: ex,
		store:    store,
		journal:  jn,
		events:   events,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		status:   api.RunStatus{State: "idle"},
	}
}

// Status implements api.StatusReporter.
func (e *Engine) Status() api.RunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Run executes one synchronization pass. The returned summary is valid even
// when err is non-nil; it covers whatever completed before the failure.
func (e *Engine) Run(ctx context.Context) (archive.RunSummary, error) {
	started := e.clock.Now()
	summary := archive.RunSummary{
		StartedAt: started,
		PerUnit:   make(map[archive.Legislature]archive.Counters),
	}

	e.setStatus(func(s *api.RunStatus) {
		*s = api.RunStatus{State: "planning", StartedAt: &started}
	})

	from, to, err := e.targetInterval(ctx)
	if err != nil {
		return e.finish(summary, err)
	}
	e.logger.Info("target interval resolved",
		zap.String("from", from.Format("2006-01-02")),
		zap.String("to", to.Format("2006-01-02")),
	)

	plan := e.planner.Plan(ctx, e.cfg.StartLegislature, from, to)
	summary.Plan = plan.Units
	summary.Uncovered = plan.Uncovered
	if err := ctx.Err(); err != nil {
		return e.finish(summary, err)
	}
	for _, gap := range plan.Uncovered {
		e.logger.Warn("interval not fully covered",
			zap.String("from", gap.Start.Format("2006-01-02")),
			zap.String("to", gap.End.Format("2006-01-02")),
		)
	}

	e.setStatus(func(s *api.RunStatus) {
		s.State = "running"
		s.Units = len(plan.Units)
	})

	var runErr error
	for i, unit := range plan.Units {
		e.setStatus(func(s *api.RunStatus) {
			s.CurrentUnit = fmt.Sprintf("legislatura %d", unit.Legislature)
		})
		e.logger.Info("executing work unit",
			zap.Int("legislature", int(unit.Legislature)),
			zap.Int("position", i+1),
			zap.Int("of", len(plan.Units)),
		)

		result := e.executor.Execute(ctx, unit)
		summary.PerUnit[unit.Legislature] = result.Counters
		e.recordUnit(result)

		if result.Status == fetch.UnitAborted {
			if err := ctx.Err(); err != nil {
				runErr = err
				break
			}
			e.logger.Warn("work unit abandoned, continuing with remaining units",
				zap.Int("legislature", int(unit.Legislature)),
			)
		}
	}

	return e.finish(summary, runErr)
}

// targetInterval resolves the [from, to] the run must cover. The ledger's
// latest record always wins over a configured start when it is later, so an
// already-ingested span is never re-scanned; the configured From only floors
// the interval.
func (e *Engine) targetInterval(ctx context.Context) (time.Time, time.Time, error) {
	from := e.cfg.From
	latest, ok, err := ledger.LatestDate(ctx, e.store, e.cfg.Prefix, e.logger)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("resolve resume point: %w", err)
	}
	if ok {
		if resume := latest.AddDate(0, 0, 1); resume.After(from) {
			from = resume
			e.logger.Info("resuming after latest ledger record",
				zap.String("latest", latest.Format("2006-01-02")),
			)
		}
	}
	if from.IsZero() {
		from = e.cfg.DefaultFrom
	}

	to := e.cfg.To
	if to.IsZero() {
		now := e.clock.Now()
		to = archive.Day(now.Year(), now.Month(), now.Day())
	}
	if !from.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("target interval is empty: from %s is after to %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return from, to, nil
}

func (e *Engine) recordUnit(result fetch.UnitResult) {
	e.setStatus(func(s *api.RunStatus) {
		s.UnitsDone++
		s.Stored += int64(result.Counters.Stored)
		s.Present += int64(result.Counters.AlreadyPresent)
		s.Skipped += int64(result.Counters.Skipped)
		s.Failed += int64(result.Counters.Failed)
	})
}

// finish closes out the summary, emits the run event, journals the run, and
// returns. Reporting failures are logged, not returned: the sync outcome is
// decided by the units, not by the bookkeeping.
func (e *Engine) finish(summary archive.RunSummary, runErr error) (archive.RunSummary, error) {
	summary.FinishedAt = e.clock.Now()
	totals := summary.Totals()

	state := "done"
	if runErr != nil {
		state = "failed"
	}
	e.setStatus(func(s *api.RunStatus) {
		s.State = state
		s.FinishedAt = &summary.FinishedAt
		s.CurrentUnit = ""
		if runErr != nil {
			s.LastError = runErr.Error()
		}
	})

	e.logger.Info("run finished",
		zap.String("state", state),
		zap.Int("stored", totals.Stored),
		zap.Int("already_present", totals.AlreadyPresent),
		zap.Int("skipped", totals.Skipped),
		zap.Int("failed", totals.Failed),
		zap.Int("uncovered_gaps", len(summary.Uncovered)),
	)

	e.publishSummary(summary, runErr)
	e.journalRun(summary, runErr)
	return summary, runErr
}

// RunEvent is the payload published after every run.
type RunEvent struct {
	RunID      string             `json:"run_id"`
	Source     string             `json:"source"`
	Status     string             `json:"status"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Stored     int                `json:"stored"`
	Present    int                `json:"already_present"`
	Skipped    int                `json:"skipped"`
	Failed     int                `json:"failed"`
	Uncovered  []journal.DateSpan `json:"uncovered,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func (e *Engine) publishSummary(summary archive.RunSummary, runErr error) {
	if e.events == nil || e.cfg.Topic == "" {
		return
	}
	totals := summary.Totals()
	event := RunEvent{
		RunID:      uuid.NewString(),
		Source:     e.cfg.Source,
		Status:     string(runStatus(summary, runErr)),
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Stored:     totals.Stored,
		Present:    totals.AlreadyPresent,
		Skipped:    totals.Skipped,
		Failed:     totals.Failed,
		Uncovered:  toSpans(summary.Uncovered),
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := e.events.Publish(ctx, e.cfg.Topic, event); err != nil {
		e.logger.Error("publish run event failed", zap.Error(err))
	}
}

func (e *Engine) journalRun(summary archive.RunSummary, runErr error) {
	totals := summary.Totals()
	entry := journal.RunEntry{
		RunID:      uuid.New(),
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Status:     runStatus(summary, runErr),
		Units:      len(summary.Plan),
		Stored:     int64(totals.Stored),
		Present:    int64(totals.AlreadyPresent),
		Skipped:    int64(totals.Skipped),
		Failed:     int64(totals.Failed),
		Uncovered:  toSpans(summary.Uncovered),
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.journal.RecordRun(ctx, entry); err != nil {
		e.logger.Error("journal run failed", zap.Error(err))
	}
}

func runStatus(summary archive.RunSummary, runErr error) journal.RunStatus {
	switch {
	case runErr != nil:
		return journal.StatusError
	case summary.Totals().Failed > 0 || len(summary.Uncovered) > 0:
		return journal.StatusPartial
	default:
		return journal.StatusSuccess
	}
}

func toSpans(gaps []archive.DateRange) []journal.DateSpan {
	if len(gaps) == 0 {
		return nil
	}
	spans := make([]journal.DateSpan, 0, len(gaps))
	for _, g := range gaps {
		spans = append(spans, journal.DateSpan{
			From: g.Start.Format("2006-01-02"),
			To:   g.End.Format("2006-01-02"),
		})
	}
	return spans
}

func (e *Engine) setStatus(mutate func(*api.RunStatus)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	mutate(&e.status)
}
