// Package fetch drives one work unit at a time: it enumerates candidate
// items (index sweep or listing), filters them by date and hands them to the
// persistence layer on a bounded worker pool.
package fetch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/archive"
)

// Mode selects the enumeration strategy for a source.
type Mode string

// Enumeration strategies.
const (
	// ModeSweep probes monotonically increasing session indices with an
	// existence check per index.
	ModeSweep Mode = "sweep"
	// ModeListing fetches one date-partitioned index page per year.
	ModeListing Mode = "listing"
)

// UnitStatus is the terminal state of a work unit.
type UnitStatus int

// Terminal states.
const (
	// UnitCompleted means the sweep bound or miss threshold was reached.
	UnitCompleted UnitStatus = iota
	// UnitAborted means cancellation or a fatal non-retryable condition
	// ended the unit early.
	UnitAborted
)

// UnitResult reports what one work unit produced.
type UnitResult struct {
	Status   UnitStatus
	Counters archive.Counters
}

// Prober issues a single existence/metadata check.
type Prober interface {
	Check(ctx context.Context, legislature archive.Legislature, session int) (archive.ProbeResult, error)
}

// Lister enumerates items from one (legislature, year) index page.
type Lister interface {
	List(ctx context.Context, legislature archive.Legislature, year int) ([]archive.Item, error)
}

// Persister stores one item.
type Persister interface {
	Persist(ctx context.Context, item archive.Item) archive.Outcome
}

// Discoverer supplies the memoized range estimate, used for the sweep bound.
type Discoverer interface {
	Discover(ctx context.Context, legislature archive.Legislature) archive.LegislatureInfo
}

// TranscriptURLs resolves the content URL for a sweep-enumerated session.
type TranscriptURLs interface {
	TranscriptPDF(legislature, session int) string
}

// Config controls executor behavior.
type Config struct {
	Mode           Mode
	MissThreshold  int
	SweepOvershoot int
	Concurrency    int
	StrictDates    bool
	ForbiddenPause time.Duration
}

// Executor runs work units sequentially; item persists within one unit run on
// a worker pool bounded by Config.Concurrency. Sequential probing keeps the
// consecutive-miss counter partition-scoped and meaningful.
type Executor struct {
	prober    Prober
	lister    Lister
	persister Persister
	disc      Discoverer
	urls      TranscriptURLs
	pacer     archive.Pacer
	forbidden *archive.ForbiddenTracker
	cfg       Config
	logger    *zap.Logger
}

// New builds an Executor. Zero config fields fall back to the source's
// historical defaults.
func New(
	prober Prober,
	lister Lister,
	persister Persister,
	disc Discoverer,
	urls TranscriptURLs,
	pacer archive.Pacer,
	forbidden *archive.ForbiddenTracker,
	cfg Config,
	logger *zap.Logger,
) *Executor {
	if cfg.Mode == "" {
		cfg.Mode = ModeSweep
	}
	if cfg.MissThreshold <= 0 {
		cfg.MissThreshold = 50
	}
	if cfg.SweepOvershoot <= 0 {
		cfg.SweepOvershoot = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ForbiddenPause <= 0 {
		cfg.ForbiddenPause = 30 * time.Second
	}
	return &Executor{
		prober:    prober,
		lister:    lister,
		persister: persister,
		disc:      disc,
		urls:      urls,
		pacer:     pacer,
		forbidden: forbidden,
		cfg:       cfg,
		logger:    logger,
	}
}

// Execute consumes one work unit to its terminal state.
func (e *Executor) Execute(ctx context.Context, unit archive.WorkUnit) UnitResult {
	e.logger.Info("executing work unit",
		zap.Int("legislature", int(unit.Legislature)),
		zap.Time("start", unit.Start),
		zap.Time("end", unit.End),
		zap.String("mode", string(e.cfg.Mode)),
	)
	if e.cfg.Mode == ModeListing {
		return e.executeListing(ctx, unit)
	}
	return e.executeSweep(ctx, unit)
}

func (e *Executor) executeSweep(ctx context.Context, unit archive.WorkUnit) UnitResult {
	info := e.disc.Discover(ctx, unit.Legislature)
	if !info.Exists {
		return UnitResult{Status: UnitCompleted}
	}
	sweepBound := info.MaxKnownIndex + e.cfg.SweepOvershoot

	pool := newPersistPool(ctx, e.persister, e.cfg.Concurrency)
	misses := 0
	status := UnitCompleted

	for session := 1; session <= sweepBound; session++ {
		if ctx.Err() != nil || e.forbidden.IsAbandoned(unit.Legislature) {
			status = UnitAborted
			break
		}
		e.pacer.Wait(ctx)

		result, err := e.prober.Check(ctx, unit.Legislature, session)
		if err != nil {
			if archive.IsForbidden(err) {
				if e.pauseOrAbandon(ctx, unit.Legislature, err) {
					status = UnitAborted
					break
				}
				session-- // retry the same index after the pause
				continue
			}
			// A flaky probe counts as a miss for this index only.
			misses++
			if misses >= e.cfg.MissThreshold {
				break
			}
			continue
		}

		if !result.Exists {
			misses++
			if misses >= e.cfg.MissThreshold {
				e.logger.Info("consecutive-miss threshold reached, ending sweep",
					zap.Int("legislature", int(unit.Legislature)),
					zap.Int("session", session),
					zap.Int("threshold", e.cfg.MissThreshold),
				)
				break
			}
			continue
		}
		misses = 0

		item := archive.Item{
			Legislature: unit.Legislature,
			Index:       session,
			Date:        result.Date,
			ContentURL:  e.urls.TranscriptPDF(int(unit.Legislature), session),
		}
		e.dispatch(ctx, pool, unit, item)
	}

	counters := pool.wait()
	if ctx.Err() != nil {
		status = UnitAborted
	}
	return UnitResult{Status: status, Counters: counters}
}

// listingFloorYear bounds open-ended units: no listing page predates the
// first republican legislature.
const listingFloorYear = 1948

func (e *Executor) executeListing(ctx context.Context, unit archive.WorkUnit) UnitResult {
	pool := newPersistPool(ctx, e.persister, e.cfg.Concurrency)
	status := UnitCompleted

	startYear := unit.Start.Year()
	if startYear < listingFloorYear {
		startYear = listingFloorYear
	}
	for year := startYear; year <= unit.End.Year(); year++ {
		if ctx.Err() != nil || e.forbidden.IsAbandoned(unit.Legislature) {
			status = UnitAborted
			break
		}
		e.pacer.Wait(ctx)

		items, err := e.lister.List(ctx, unit.Legislature, year)
		if err != nil {
			if archive.IsForbidden(err) {
				if e.pauseOrAbandon(ctx, unit.Legislature, err) {
					status = UnitAborted
					break
				}
				year-- // retry the same page after the pause
				continue
			}
			e.logger.Warn("listing failed, skipping year",
				zap.Int("legislature", int(unit.Legislature)),
				zap.Int("year", year),
				zap.Error(err),
			)
			continue
		}
		if len(items) == 0 {
			e.logger.Debug("no documents listed",
				zap.Int("legislature", int(unit.Legislature)),
				zap.Int("year", year),
			)
			continue
		}
		for _, item := range items {
			if ctx.Err() != nil {
				break
			}
			e.dispatch(ctx, pool, unit, item)
		}
	}

	counters := pool.wait()
	if ctx.Err() != nil {
		status = UnitAborted
	}
	return UnitResult{Status: status, Counters: counters}
}

// dispatch applies the date filter and submits the item to the pool. Items
// dated outside the unit's sub-range are not part of the unit at all; undated
// items are included unless strict dates are configured.
func (e *Executor) dispatch(ctx context.Context, pool *persistPool, unit archive.WorkUnit, item archive.Item) {
	if item.Date.IsZero() {
		if e.cfg.StrictDates {
			pool.record(archive.Outcome{Kind: archive.OutcomeSkipped, Reason: "no extractable date"})
			return
		}
	} else if !unit.Contains(item.Date) {
		return
	}
	pool.submit(ctx, item, func(o archive.Outcome) {
		if o.Kind == archive.OutcomeFailed && archive.IsForbidden(o.Err) {
			e.forbidden.MarkForbidden(unit.Legislature)
		}
	})
}

// pauseOrAbandon applies the extended rate-limit pause and reports whether
// the legislature crossed the abandon threshold.
func (e *Executor) pauseOrAbandon(ctx context.Context, leg archive.Legislature, err error) bool {
	if e.forbidden.MarkForbidden(leg) {
		e.logger.Warn("forbidden threshold crossed, abandoning legislature",
			zap.Int("legislature", int(leg)),
			zap.Error(err),
		)
		return true
	}
	e.logger.Warn("rate limited, pausing",
		zap.Int("legislature", int(leg)),
		zap.Duration("pause", e.cfg.ForbiddenPause),
		zap.Error(err),
	)
	e.pacer.WaitFor(ctx, e.cfg.ForbiddenPause)
	return false
}

// persistPool runs persists on a bounded set of workers. The counters are
// the only shared state and are guarded.
type persistPool struct {
	persister Persister
	sem       chan struct{}
	wg        sync.WaitGroup

	mu       sync.Mutex
	counters archive.Counters
}

func newPersistPool(_ context.Context, persister Persister, size int) *persistPool {
	return &persistPool{
		persister: persister,
		sem:       make(chan struct{}, size),
	}
}

func (p *persistPool) submit(ctx context.Context, item archive.Item, onDone func(archive.Outcome)) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		outcome := p.persister.Persist(ctx, item)
		p.record(outcome)
		if onDone != nil {
			onDone(outcome)
		}
	}()
}

func (p *persistPool) record(o archive.Outcome) {
	p.mu.Lock()
	p.counters.Add(o)
	p.mu.Unlock()
}

func (p *persistPool) wait() archive.Counters {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}
