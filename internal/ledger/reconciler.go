package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/archive"
	"github.com/openparl/stenosync/internal/storage"
)

// Change maps one renamed object to its new identity. Date is the corrected
// session date extracted from the new filename; zero when none was found.
type Change struct {
	NewURI string
	Date   time.Time
}

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Records   int
	Updated   int
	Malformed int
	BackupKey string
}

// Reconciler rewrites ledger records after stored objects were renamed out
// of band, restoring the one-to-one correspondence between objects and
// records. It is a single-writer resource: callers must not run two passes
// against the same ledger path concurrently.
type Reconciler struct {
	store  storage.ObjectStore
	clock  archive.Clock
	logger *zap.Logger
}

// NewReconciler builds a Reconciler.
func NewReconciler(store storage.ObjectStore, clock archive.Clock, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: store, clock: clock, logger: logger}
}

// Reconcile downloads the ledger under prefix, rewrites records whose
// content.uri appears in changes, and uploads the result after backing the
// previous ledger up to a timestamped path. Records that match no change,
// and lines that fail to parse, pass through byte-for-byte. When nothing
// matches the ledger is not rewritten at all.
func (r *Reconciler) Reconcile(ctx context.Context, prefix string, changes map[string]Change) (ReconcileResult, error) {
	result := ReconcileResult{}
	if len(changes) == 0 {
		r.logger.Info("no changes to apply, ledger untouched")
		return result, nil
	}

	key := Key(prefix)
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn("ledger not found, skipping reconciliation", zap.String("key", key))
			return result, nil
		}
		return result, fmt.Errorf("download ledger %s: %w", key, err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	updated := make([]string, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			updated = append(updated, line)
			continue
		}
		result.Records++

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Malformed lines are preserved verbatim, never dropped and
			// never fatal.
			result.Malformed++
			r.logger.Warn("malformed ledger line passed through",
				zap.Int("line", i+1),
				zap.Error(err),
			)
			updated = append(updated, line)
			continue
		}

		change, ok := changes[rec.Content.URI]
		if !ok {
			updated = append(updated, line)
			continue
		}

		oldDate := rec.StructData.Date
		rec.Content.URI = change.NewURI
		if !change.Date.IsZero() {
			rec.StructData.Date = change.Date.Format("2006-01-02")
			rec.StructData.SetExtra("date_corrected_by_rename", true)
			rec.StructData.SetExtra("date_correction_timestamp", r.clock.Now().Format(time.RFC3339))
			if oldDate != rec.StructData.Date {
				r.logger.Info("corrected record date",
					zap.Int("line", i+1),
					zap.String("old", oldDate),
					zap.String("new", rec.StructData.Date),
				)
			}
		}

		rendered, err := rec.MarshalLine()
		if err != nil {
			return result, err
		}
		updated = append(updated, string(rendered))
		result.Updated++
		archive.TotalLedgerRewrites.Inc()
	}

	if result.Updated == 0 {
		r.logger.Info("no ledger records matched the change map")
		return result, nil
	}

	backupKey, err := r.backup(ctx, key)
	if err != nil {
		return result, err
	}
	result.BackupKey = backupKey

	payload := strings.Join(updated, "\n") + "\n"
	if _, err := r.store.Put(ctx, key, "application/json", []byte(payload)); err != nil {
		// The backup stays in place as the recovery point.
		return result, fmt.Errorf("upload updated ledger (backup kept at %s): %w", backupKey, err)
	}

	r.logger.Info("ledger reconciled",
		zap.Int("records", result.Records),
		zap.Int("updated", result.Updated),
		zap.Int("malformed", result.Malformed),
		zap.String("backup", backupKey),
	)
	return result, nil
}

// backup copies the current ledger to a timestamped .bak alongside it. This
// is the only recovery mechanism; there is no transactional rollback.
func (r *Reconciler) backup(ctx context.Context, key string) (string, error) {
	backupKey := fmt.Sprintf("%s.%s.bak", key, r.clock.Now().Format("20060102T150405"))
	if err := r.store.Copy(ctx, key, backupKey); err != nil {
		return "", fmt.Errorf("back up ledger to %s: %w", backupKey, err)
	}
	return backupKey, nil
}
