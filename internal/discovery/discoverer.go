// Package discovery estimates the date range each legislature covers by
// sparse probing. The result is an approximation: earliest/latest are the
// min/max of the dates extracted from existing probes, so range width is
// undercounted when extraction fails at the true boundary. Callers treat the
// estimate as a best-effort hint.
package discovery

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/archive"
)

// Prober issues a single existence/metadata check.
type Prober interface {
	Check(ctx context.Context, legislature archive.Legislature, session int) (archive.ProbeResult, error)
}

// DefaultSampleIndices is the probe schedule: dense at the start where every
// legislature has sessions, then coarse steps up to the cap.
var DefaultSampleIndices = []int{1, 5, 10, 20, 50, 100, 200, 300, 400, 500, 600, 700, 800, 900, 1000}

// Discoverer probes sample session indices and memoizes the resulting range
// estimate per legislature for the remainder of the run. Discovery never
// mutates shared state beyond its own cache; a fresh run re-discovers.
type Discoverer struct {
	prober  Prober
	pacer   archive.Pacer
	samples []int
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[archive.Legislature]archive.LegislatureInfo
}

// New builds a Discoverer. A nil or empty sample schedule falls back to
// DefaultSampleIndices.
func New(prober Prober, pacer archive.Pacer, samples []int, logger *zap.Logger) *Discoverer {
	if len(samples) == 0 {
		samples = DefaultSampleIndices
	}
	return &Discoverer{
		prober:  prober,
		pacer:   pacer,
		samples: samples,
		logger:  logger,
		cache:   make(map[archive.Legislature]archive.LegislatureInfo),
	}
}

// Discover returns the range estimate for one legislature, probing the
// sample schedule on the first call and the cache afterwards. A network
// error on an individual probe counts as "absent" for that probe only, so one
// flaky probe cannot sink the whole estimate.
func (d *Discoverer) Discover(ctx context.Context, legislature archive.Legislature) archive.LegislatureInfo {
	d.mu.Lock()
	if info, ok := d.cache[legislature]; ok {
		d.mu.Unlock()
		return info
	}
	d.mu.Unlock()

	d.logger.Info("discovering legislature range", zap.Int("legislature", int(legislature)))

	info := archive.LegislatureInfo{ID: legislature}
	for _, session := range d.samples {
		if ctx.Err() != nil {
			break
		}
		d.pacer.Wait(ctx)

		result, err := d.prober.Check(ctx, legislature, session)
		if err != nil {
			d.logger.Debug("probe failed, treating as absent",
				zap.Int("legislature", int(legislature)),
				zap.Int("session", session),
				zap.Error(err),
			)
			continue
		}
		if !result.Exists {
			continue
		}
		info.Exists = true
		if session > info.MaxKnownIndex {
			info.MaxKnownIndex = session
		}
		if !result.Date.IsZero() {
			if info.EarliestDate.IsZero() || result.Date.Before(info.EarliestDate) {
				info.EarliestDate = result.Date
			}
			if info.LatestDate.IsZero() || result.Date.After(info.LatestDate) {
				info.LatestDate = result.Date
			}
		}
	}

	if info.Exists {
		d.logger.Info("legislature discovered",
			zap.Int("legislature", int(legislature)),
			zap.Int("max_known_index", info.MaxKnownIndex),
			zap.Time("earliest", info.EarliestDate),
			zap.Time("latest", info.LatestDate),
		)
	} else {
		d.logger.Info("legislature not found", zap.Int("legislature", int(legislature)))
	}

	// A cancelled pass may have stopped mid-schedule; its partial estimate
	// must not be mistaken for a discovered absence on a later call.
	if ctx.Err() == nil {
		d.mu.Lock()
		d.cache[legislature] = info
		d.mu.Unlock()
	}
	return info
}
