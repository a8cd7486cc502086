// Package archive defines core types shared across the mirroring engine.
package archive

import (
	"fmt"
	"time"
)

// Legislature identifies one partition of the remote corpus. Legislatures are
// totally ordered by their numeric id; nothing else about them is known until
// discovered.
type Legislature int

// LegislatureInfo is the result of range discovery for one legislature.
// Earliest/Latest are sampled approximations: the min/max of the dates that
// could be extracted from existing probes, not exact boundaries. MaxKnownIndex
// is a lower bound on the number of sessions.
type LegislatureInfo struct {
	ID            Legislature
	Exists        bool
	EarliestDate  time.Time
	LatestDate    time.Time
	MaxKnownIndex int
}

// HasDates reports whether discovery managed to extract at least one date.
func (i LegislatureInfo) HasDates() bool {
	return !i.EarliestDate.IsZero() && !i.LatestDate.IsZero()
}

// Overlaps reports whether the discovered range intersects [start, end].
// A legislature without extracted dates never overlaps.
func (i LegislatureInfo) Overlaps(start, end time.Time) bool {
	if !i.HasDates() {
		return false
	}
	return !i.LatestDate.Before(start) && !i.EarliestDate.After(end)
}

// Item is one document unit within a legislature. Index is set for
// sweep-enumerated sources; Filename for listing-enumerated ones. Date is the
// zero value when no date could be extracted.
type Item struct {
	Legislature Legislature
	Index       int
	Filename    string
	Date        time.Time
	ContentURL  string
}

// Key returns the processed-set key: (legislature, index) for sweep items,
// (legislature, filename) for listing items.
func (it Item) Key() string {
	if it.Filename != "" {
		return fmt.Sprintf("%d/%s", it.Legislature, it.Filename)
	}
	return fmt.Sprintf("%d/%04d", it.Legislature, it.Index)
}

// WorkUnit assigns a date sub-range of the target interval to one
// legislature. Consumed exactly once by the fetch executor.
type WorkUnit struct {
	Legislature Legislature
	Start       time.Time
	End         time.Time
}

// Contains reports whether date falls inside the unit's range. Open bounds
// (zero values) match everything on that side.
func (w WorkUnit) Contains(date time.Time) bool {
	if !w.Start.IsZero() && date.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && date.After(w.End) {
		return false
	}
	return true
}

// ProbeResult is the outcome of a single existence check. Existence is a
// normal result, not an error: a missing session is an expected,
// high-frequency outcome.
type ProbeResult struct {
	Exists bool
	Date   time.Time
}

// OutcomeKind classifies what the persistence layer did with one item.
type OutcomeKind int

// Persistence outcomes.
const (
	OutcomeStored OutcomeKind = iota
	OutcomeAlreadyPresent
	OutcomeSkipped
	OutcomeFailed
)

// String returns the counter label for the outcome.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeStored:
		return "stored"
	case OutcomeAlreadyPresent:
		return "already_present"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Outcome is returned by the persistence layer for every item.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Path   string
	Err    error
}

// Counters aggregates per-legislature persistence outcomes.
type Counters struct {
	Stored         int
	AlreadyPresent int
	Skipped        int
	Failed         int
}

// Add merges o into the counters.
func (c *Counters) Add(o Outcome) {
	switch o.Kind {
	case OutcomeStored:
		c.Stored++
	case OutcomeAlreadyPresent:
		c.AlreadyPresent++
	case OutcomeSkipped:
		c.Skipped++
	case OutcomeFailed:
		c.Failed++
	}
}

// Total returns the number of items the counters account for.
func (c Counters) Total() int {
	return c.Stored + c.AlreadyPresent + c.Skipped + c.Failed
}

// DateRange is a closed calendar interval, used for coverage gap reporting.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// RunSummary is the user-visible result of one sync run.
type RunSummary struct {
	Plan       []WorkUnit
	Uncovered  []DateRange
	PerUnit    map[Legislature]Counters
	StartedAt  time.Time
	FinishedAt time.Time
}

// Totals sums the per-legislature counters.
func (s RunSummary) Totals() Counters {
	var total Counters
	for _, c := range s.PerUnit {
		total.Stored += c.Stored
		total.AlreadyPresent += c.AlreadyPresent
		total.Skipped += c.Skipped
		total.Failed += c.Failed
	}
	return total
}

// Clock returns the current time. Extracted so tests control timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock with the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Day constructs a UTC calendar day. Convenience for tests and CLI parsing.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
