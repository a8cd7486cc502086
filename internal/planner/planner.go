// Package planner selects the minimal ordered set of legislatures, and the
// date sub-range each is responsible for, needed to satisfy a target
// interval. It walks outward from a starting legislature using range
// discovery; incomplete coverage is reported as gaps, never as a failure.
package planner

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/archive"
)

// Discoverer estimates the covered date range of one legislature.
type Discoverer interface {
	Discover(ctx context.Context, legislature archive.Legislature) archive.LegislatureInfo
}

// Config bounds the outward walk.
type Config struct {
	MaxStepsBack    int
	MaxStepsForward int
}

// Plan is the planner result: ordered work units plus the portions of the
// target interval no discovered legislature covers. A non-empty Uncovered
// list is a logged gap, and the run proceeds with the partial covering set.
type Plan struct {
	Units     []archive.WorkUnit
	Uncovered []archive.DateRange
}

// Planner walks outward from a starting legislature until the target
// interval is covered or the step bounds are exhausted.
type Planner struct {
	disc   Discoverer
	cfg    Config
	logger *zap.Logger
}

// New builds a Planner. Zero bounds fall back to the source's historical
// defaults (20 steps back, 10 forward).
func New(disc Discoverer, cfg Config, logger *zap.Logger) *Planner {
	if cfg.MaxStepsBack <= 0 {
		cfg.MaxStepsBack = 20
	}
	if cfg.MaxStepsForward <= 0 {
		cfg.MaxStepsForward = 10
	}
	return &Planner{disc: disc, cfg: cfg, logger: logger}
}

// Plan covers [targetStart, targetEnd] starting from the given legislature.
// Discovery failures along the walk count as "legislature does not exist"
// and the walk continues outward.
func (p *Planner) Plan(ctx context.Context, start archive.Legislature, targetStart, targetEnd time.Time) Plan {
	selected := make(map[archive.Legislature]archive.LegislatureInfo)
	var dateless []archive.LegislatureInfo

	consider := func(info archive.LegislatureInfo) {
		if !info.Exists {
			return
		}
		if !info.HasDates() {
			// Candidate for speculative inclusion once gaps are known.
			dateless = append(dateless, info)
			return
		}
		if info.Overlaps(targetStart, targetEnd) {
			selected[info.ID] = info
		}
	}

	startInfo := p.disc.Discover(ctx, start)
	consider(startInfo)

	// Walk to older legislatures while the early side of the target remains
	// uncovered.
	if earliest, ok := earliestCovered(selected); !ok || earliest.After(targetStart) {
		for step := 1; step <= p.cfg.MaxStepsBack; step++ {
			if ctx.Err() != nil {
				break
			}
			id := start - archive.Legislature(step)
			if id < 1 {
				break
			}
			info := p.disc.Discover(ctx, id)
			consider(info)
			if info.HasDates() && !info.EarliestDate.After(targetStart) {
				break
			}
		}
	}

	// Symmetric walk to newer legislatures.
	if latest, ok := latestCovered(selected); !ok || latest.Before(targetEnd) {
		for step := 1; step <= p.cfg.MaxStepsForward; step++ {
			if ctx.Err() != nil {
				break
			}
			id := start + archive.Legislature(step)
			info := p.disc.Discover(ctx, id)
			consider(info)
			if info.HasDates() && !info.LatestDate.Before(targetEnd) {
				break
			}
		}
	}

	units := make([]archive.WorkUnit, 0, len(selected))
	for _, info := range selected {
		units = append(units, archive.WorkUnit{
			Legislature: info.ID,
			Start:       maxTime(targetStart, info.EarliestDate),
			End:         minTime(targetEnd, info.LatestDate),
		})
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Legislature < units[j].Legislature })

	uncovered := subtractCovered(targetStart, targetEnd, units)

	// A legislature with existing sessions but no extractable dates is
	// included speculatively only when a gap remains that nothing else
	// covers. The executor still date-filters every item, so a wrong guess
	// costs probes, not wrong output.
	if len(uncovered) > 0 && len(dateless) > 0 {
		for _, info := range dateless {
			gap := nearestGap(uncovered, info.ID, units)
			p.logger.Warn("including legislature speculatively: sessions exist but no dates extracted",
				zap.Int("legislature", int(info.ID)),
				zap.Time("gap_start", gap.Start),
				zap.Time("gap_end", gap.End),
			)
			units = append(units, archive.WorkUnit{Legislature: info.ID, Start: gap.Start, End: gap.End})
		}
		sort.Slice(units, func(i, j int) bool { return units[i].Legislature < units[j].Legislature })
	}

	for _, gap := range uncovered {
		p.logger.Warn("target interval not fully covered",
			zap.Time("gap_start", gap.Start),
			zap.Time("gap_end", gap.End),
		)
	}

	return Plan{Units: units, Uncovered: uncovered}
}

func earliestCovered(selected map[archive.Legislature]archive.LegislatureInfo) (time.Time, bool) {
	var earliest time.Time
	for _, info := range selected {
		if earliest.IsZero() || info.EarliestDate.Before(earliest) {
			earliest = info.EarliestDate
		}
	}
	return earliest, !earliest.IsZero()
}

func latestCovered(selected map[archive.Legislature]archive.LegislatureInfo) (time.Time, bool) {
	var latest time.Time
	for _, info := range selected {
		if info.LatestDate.After(latest) {
			latest = info.LatestDate
		}
	}
	return latest, !latest.IsZero()
}

// subtractCovered returns the day-granular portions of [start, end] not
// covered by any unit.
func subtractCovered(start, end time.Time, units []archive.WorkUnit) []archive.DateRange {
	sorted := append([]archive.WorkUnit(nil), units...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var gaps []archive.DateRange
	cursor := start
	for _, u := range sorted {
		if u.Start.After(cursor) {
			gapEnd := u.Start.AddDate(0, 0, -1)
			if !gapEnd.Before(cursor) {
				gaps = append(gaps, archive.DateRange{Start: cursor, End: minTime(gapEnd, end)})
			}
		}
		if next := u.End.AddDate(0, 0, 1); next.After(cursor) {
			cursor = next
		}
	}
	if !cursor.After(end) {
		gaps = append(gaps, archive.DateRange{Start: cursor, End: end})
	}
	return gaps
}

// nearestGap picks the gap a speculative legislature most plausibly fills:
// the earliest gap for legislatures older than every dated unit, the latest
// gap otherwise.
func nearestGap(gaps []archive.DateRange, id archive.Legislature, units []archive.WorkUnit) archive.DateRange {
	if len(gaps) == 1 || len(units) == 0 {
		return gaps[0]
	}
	if id < units[0].Legislature {
		return gaps[0]
	}
	return gaps[len(gaps)-1]
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
