package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/archive"
	"github.com/openparl/stenosync/internal/persist"
	"github.com/openparl/stenosync/internal/storage"
)

// UploaderConfig controls the ingest upload pass.
type UploaderConfig struct {
	Root     string // local mirror root to walk
	Prefix   string // object key prefix; the ledger lives at <prefix>/ingest/
	Source   string // source label recorded on new ledger entries
	MimeType string
}

// UploadResult summarizes one upload pass.
type UploadResult struct {
	Walked   int
	Uploaded int
	Appended int
	Skipped  int
}

// Uploader pushes the local mirror into the object store and appends one
// ledger record per newly uploaded document. Objects whose URI already
// appears in the ledger are left alone, so re-running the pass after a
// partial failure converges without duplicating records.
type Uploader struct {
	store  storage.ObjectStore
	clock  archive.Clock
	cfg    UploaderConfig
	logger *zap.Logger
}

// NewUploader builds an Uploader.
func NewUploader(store storage.ObjectStore, clock archive.Clock, cfg UploaderConfig, logger *zap.Logger) *Uploader {
	if cfg.MimeType == "" {
		cfg.MimeType = "application/pdf"
	}
	return &Uploader{store: store, clock: clock, cfg: cfg, logger: logger}
}

// Upload walks the mirror root, uploads every document not yet in the
// ledger, and rewrites the ledger once at the end with the new records
// appended. Sidecar JSON files are consulted for metadata but never
// uploaded themselves.
func (u *Uploader) Upload(ctx context.Context) (UploadResult, error) {
	result := UploadResult{}

	known, existing, err := u.loadExisting(ctx)
	if err != nil {
		return result, err
	}

	var appended []string
	walkErr := filepath.WalkDir(u.cfg.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".json" || ext == ".part" {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		result.Walked++

		rel, err := filepath.Rel(u.cfg.Root, p)
		if err != nil {
			return err
		}
		key := path.Join(u.cfg.Prefix, filepath.ToSlash(rel))
		uri := u.store.URI(key)
		if known[uri] {
			result.Skipped++
			return nil
		}

		line, err := u.uploadOne(ctx, p, rel, key, uri)
		if err != nil {
			return err
		}
		appended = append(appended, line)
		result.Uploaded++
		return nil
	})
	if walkErr != nil {
		return result, fmt.Errorf("walk %s: %w", u.cfg.Root, walkErr)
	}

	if len(appended) == 0 {
		u.logger.Info("ledger already covers the mirror, nothing appended",
			zap.Int("walked", result.Walked),
		)
		return result, nil
	}

	if err := u.appendRecords(ctx, existing, appended); err != nil {
		return result, err
	}
	result.Appended = len(appended)

	u.logger.Info("upload pass complete",
		zap.Int("walked", result.Walked),
		zap.Int("uploaded", result.Uploaded),
		zap.Int("appended", result.Appended),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// loadExisting returns the set of content URIs already in the ledger plus
// the raw ledger lines, preserved verbatim for the rewrite.
func (u *Uploader) loadExisting(ctx context.Context) (map[string]bool, []string, error) {
	known := make(map[string]bool)

	data, err := u.store.Get(ctx, Key(u.cfg.Prefix))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return known, nil, nil
		}
		return nil, nil, fmt.Errorf("download ledger: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			u.logger.Warn("malformed ledger line kept as-is", zap.Int("line", i+1), zap.Error(err))
			continue
		}
		known[rec.Content.URI] = true
	}
	return known, lines, nil
}

// uploadOne pushes a single document and returns its rendered ledger line.
func (u *Uploader) uploadOne(ctx context.Context, localPath, rel, key, uri string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", localPath, err)
	}
	if _, err := u.store.Put(ctx, key, u.cfg.MimeType, data); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	meta := u.readSidecar(localPath)
	rec := u.buildRecord(localPath, rel, uri, data, meta)
	line, err := rec.MarshalLine()
	if err != nil {
		return "", err
	}

	u.logger.Debug("uploaded document", zap.String("key", key), zap.String("id", rec.ID))
	return string(line), nil
}

// readSidecar loads the per-document metadata written at persist time. A
// missing or unreadable sidecar is not fatal; the record is just sparser.
func (u *Uploader) readSidecar(localPath string) *persist.SidecarMetadata {
	data, err := os.ReadFile(strings.TrimSuffix(localPath, filepath.Ext(localPath)) + ".json")
	if err != nil {
		return nil
	}
	var meta persist.SidecarMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		u.logger.Warn("unreadable sidecar ignored", zap.String("path", localPath), zap.Error(err))
		return nil
	}
	return &meta
}

func (u *Uploader) buildRecord(localPath, rel, uri string, data []byte, meta *persist.SidecarMetadata) Record {
	var (
		legislature int
		session     int
		date        time.Time
	)
	if meta != nil {
		legislature = meta.Legislature
		session = meta.Session
		if meta.Date != "" {
			if parsed, err := time.Parse("2006-01-02", meta.Date); err == nil {
				date = parsed
			}
		}
	}
	filename := filepath.Base(localPath)
	if date.IsZero() {
		if d, ok := archive.ExtractFilenameDate(filename); ok {
			date = d
		}
	}

	rec := Record{
		ID: RecordID(u.cfg.Source, legislature, session, date, filename),
		Content: Content{
			URI:      uri,
			MimeType: u.cfg.MimeType,
		},
		StructData: StructData{
			SourceType: u.cfg.Source,
			Title:      filename,
		},
	}
	if !date.IsZero() {
		rec.StructData.Date = date.Format("2006-01-02")
	}
	if legislature > 0 {
		rec.StructData.SetExtra("legislatura", legislature)
	}
	if session > 0 {
		rec.StructData.SetExtra("seduta", session)
	}
	rec.StructData.SetExtra("sha256", ContentHash(data))
	rec.StructData.SetExtra("relative_path", filepath.ToSlash(rel))
	rec.StructData.SetExtra("uploaded_at", u.clock.Now().Format(time.RFC3339))
	return rec
}

// appendRecords rewrites the ledger with the new lines at the end. When the
// ledger already existed it is backed up first; existing lines are kept
// byte-for-byte.
func (u *Uploader) appendRecords(ctx context.Context, existing, appended []string) error {
	key := Key(u.cfg.Prefix)
	if len(existing) > 0 {
		backupKey := fmt.Sprintf("%s.%s.bak", key, u.clock.Now().Format("20060102T150405"))
		if err := u.store.Copy(ctx, key, backupKey); err != nil {
			return fmt.Errorf("back up ledger to %s: %w", backupKey, err)
		}
	}

	all := make([]string, 0, len(existing)+len(appended))
	for _, line := range existing {
		if strings.TrimSpace(line) == "" {
			continue
		}
		all = append(all, line)
	}
	all = append(all, appended...)

	payload := strings.Join(all, "\n") + "\n"
	if _, err := u.store.Put(ctx, key, "application/json", []byte(payload)); err != nil {
		return fmt.Errorf("upload ledger: %w", err)
	}
	return nil
}
