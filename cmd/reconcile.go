package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/archive"
	"github.com/openparl/stenosync/internal/ledger"
)

func newReconcileCmd() *cobra.Command {
	var changesPath string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rewrite ledger records after out-of-band object renames",
		Long: `Applies a change map of renamed object URIs to the ledger: each matching
record gets the new URI and, when the new filename carries a date, a corrected
session date. The previous ledger is backed up first; unmatched and malformed
lines pass through untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcileCommand(cmd.Context(), changesPath)
		},
	}

	cmd.Flags().StringVar(&changesPath, "changes", "", "CSV file of old_uri,new_uri pairs")
	cmd.MarkFlagRequired("changes") //nolint:errcheck // flag exists

	return cmd
}

func runReconcileCommand(ctx context.Context, changesPath string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	changes, err := loadChangeMap(changesPath)
	if err != nil {
		return err
	}
	logger.Info("change map loaded",
		zap.String("path", changesPath),
		zap.Int("entries", len(changes)),
	)

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	rec := ledger.NewReconciler(store, archive.SystemClock{}, logger)
	result, err := rec.Reconcile(ctx, cfg.Storage.Prefix, changes)
	if err != nil {
		return fmt.Errorf("reconcile ledger: %w", err)
	}

	logger.Info("reconcile command finished",
		zap.Int("records", result.Records),
		zap.Int("updated", result.Updated),
		zap.Int("malformed", result.Malformed),
	)
	return nil
}

// loadChangeMap parses a two-column CSV of old and new object URIs. The
// corrected date, when present, is extracted from the new filename.
func loadChangeMap(file string) (map[string]ledger.Change, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open change map: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse change map: %w", err)
	}

	changes := make(map[string]ledger.Change, len(rows))
	for i, row := range rows {
		oldURI, newURI := row[0], row[1]
		if oldURI == "" || newURI == "" {
			return nil, fmt.Errorf("change map row %d has an empty URI", i+1)
		}
		change := ledger.Change{NewURI: newURI}
		if d, ok := archive.ExtractFilenameDate(path.Base(newURI)); ok {
			change.Date = d
		}
		changes[oldURI] = change
	}
	return changes, nil
}
