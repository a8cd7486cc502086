package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/storage"
)

// LatestDate scans the ledger under prefix and returns the most recent
// record date, used by incremental runs to pick up where the last run left
// off. A missing ledger, or one with no dated records, returns the zero
// time and ok=false, which callers treat as "start from the configured
// beginning". Malformed lines and undated records are skipped.
func LatestDate(ctx context.Context, store storage.ObjectStore, prefix string, logger *zap.Logger) (time.Time, bool, error) {
	data, err := store.Get(ctx, Key(prefix))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("download ledger: %w", err)
	}

	var latest time.Time
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			logger.Debug("skipping malformed ledger line", zap.Int("line", i+1), zap.Error(err))
			continue
		}
		if rec.StructData.Date == "" {
			continue
		}
		d, err := time.Parse("2006-01-02", rec.StructData.Date)
		if err != nil {
			logger.Debug("skipping unparseable record date",
				zap.Int("line", i+1),
				zap.String("date", rec.StructData.Date),
			)
			continue
		}
		if d.After(latest) {
			latest = d
		}
	}

	if latest.IsZero() {
		return time.Time{}, false, nil
	}
	return latest, true, nil
}
