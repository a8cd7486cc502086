package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/archive"
)

// ContentOpener starts a streaming download of a document and returns the
// body plus the declared content type.
type ContentOpener interface {
	Open(ctx context.Context, url string) (io.ReadCloser, string, error)
}

// Config controls persistence behavior.
type Config struct {
	Layout        Layout
	ContentFamily string // expected content type family, e.g. "application/pdf"
	Retry         archive.RetryPolicy
	DocumentType  string
	Language      string
}

// SidecarMetadata is the source-derived record written next to each item.
// The fields are fixed; arbitrary extras travel in the ledger's structData,
// not here.
type SidecarMetadata struct {
	Legislature  int    `json:"legislatura"`
	Session      int    `json:"seduta,omitempty"`
	Source       string `json:"source"`
	DocumentType string `json:"document_type"`
	Language     string `json:"language"`
	Date         string `json:"date,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// Persister stores items on disk. The destination path is never observable
// in a partially written state: content streams to a temp file in the same
// directory and is renamed into place only once complete, and no sidecar is
// written for content that failed to persist.
type Persister struct {
	opener    ContentOpener
	processed *ProcessedSet
	pacer     archive.Pacer
	clock     archive.Clock
	cfg       Config
	logger    *zap.Logger
}

// New builds a Persister.
func New(opener ContentOpener, processed *ProcessedSet, pacer archive.Pacer, clock archive.Clock, cfg Config, logger *zap.Logger) *Persister {
	if cfg.ContentFamily == "" {
		cfg.ContentFamily = "application/pdf"
	}
	if cfg.DocumentType == "" {
		cfg.DocumentType = "stenographic_report"
	}
	if cfg.Language == "" {
		cfg.Language = "it"
	}
	return &Persister{
		opener:    opener,
		processed: processed,
		pacer:     pacer,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Persist stores one item. Membership in the processed set or existence of
// the destination file short-circuits without a network call.
func (p *Persister) Persist(ctx context.Context, item archive.Item) archive.Outcome {
	key := item.Key()
	if p.processed.Contains(key) {
		return archive.Outcome{Kind: archive.OutcomeAlreadyPresent, Reason: "processed this run"}
	}

	dest := p.cfg.Layout.ItemPath(item)
	if _, err := os.Stat(dest); err == nil {
		p.processed.Mark(key)
		return archive.Outcome{Kind: archive.OutcomeAlreadyPresent, Reason: "exists on disk", Path: dest}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return archive.Outcome{Kind: archive.OutcomeFailed, Err: fmt.Errorf("create destination dir: %w", err)}
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.Retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return archive.Outcome{Kind: archive.OutcomeFailed, Err: err}
		}
		outcome, err := p.attempt(ctx, item, dest)
		if err == nil {
			p.processed.Mark(key)
			archive.TotalStored.Inc()
			return outcome
		}
		lastErr = err
		if !p.cfg.Retry.ShouldRetry(err, attempt) {
			break
		}
		backoff := p.cfg.Retry.Backoff(attempt)
		p.logger.Warn("transient fetch failure, backing off",
			zap.String("url", item.ContentURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		p.pacer.WaitFor(ctx, backoff)
	}

	archive.TotalFetchErrors.Inc()
	return archive.Outcome{Kind: archive.OutcomeFailed, Err: lastErr, Path: dest}
}

// attempt performs one download try. The temp file is removed on every
// failure path so no orphaned partial file survives an attempt.
func (p *Persister) attempt(ctx context.Context, item archive.Item, dest string) (archive.Outcome, error) {
	body, contentType, err := p.opener.Open(ctx, item.ContentURL)
	if err != nil {
		return archive.Outcome{}, err
	}
	defer body.Close()

	if !matchesFamily(contentType, p.cfg.ContentFamily) {
		return archive.Outcome{}, fmt.Errorf("declared type %q for %s: %w", contentType, item.ContentURL, archive.ErrContentMismatch)
	}

	tmp := fmt.Sprintf("%s.%s.part", dest, uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return archive.Outcome{}, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmp)
		return archive.Outcome{}, fmt.Errorf("stream %s: %w", item.ContentURL, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return archive.Outcome{}, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return archive.Outcome{}, fmt.Errorf("rename temp into place: %w", err)
	}

	if err := p.writeSidecar(item, dest); err != nil {
		// The document itself is durable; a missing sidecar is reported but
		// does not undo the store.
		p.logger.Warn("sidecar write failed", zap.String("path", dest), zap.Error(err))
	}
	return archive.Outcome{Kind: archive.OutcomeStored, Path: dest}, nil
}

func (p *Persister) writeSidecar(item archive.Item, dest string) error {
	meta := SidecarMetadata{
		Legislature:  int(item.Legislature),
		Session:      item.Index,
		Source:       p.cfg.Layout.Source,
		DocumentType: p.cfg.DocumentType,
		Language:     p.cfg.Language,
		CreatedAt:    p.clock.Now().Format(time.RFC3339),
	}
	if !item.Date.IsZero() {
		meta.Date = item.Date.Format("2006-01-02")
	}
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	path := p.cfg.Layout.SidecarPath(dest)
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write sidecar %s: %w", path, err)
	}
	return nil
}

func matchesFamily(contentType, family string) bool {
	return strings.Contains(strings.ToLower(contentType), strings.ToLower(family))
}
