package persist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/archive"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// fakeOpener serves canned bodies and can fail the first N opens or cut the
// stream mid-body.
type fakeOpener struct {
	mu          sync.Mutex
	body        string
	contentType string
	failOpens   int
	failErr     error
	cutStream   bool
	opens       int
}

func (o *fakeOpener) Open(_ context.Context, _ string) (io.ReadCloser, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.opens <= o.failOpens {
		return nil, "", o.failErr
	}
	if o.cutStream {
		return io.NopCloser(&brokenReader{partial: o.body[:3]}), o.contentType, nil
	}
	return io.NopCloser(strings.NewReader(o.body)), o.contentType, nil
}

// brokenReader yields a few bytes and then a connection reset.
type brokenReader struct {
	partial string
	done    bool
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, syscall.ECONNRESET
	}
	r.done = true
	return copy(p, r.partial), nil
}

func newTestPersister(t *testing.T, opener ContentOpener, retries int) (*Persister, string) {
	t.Helper()
	root := t.TempDir()
	p := New(opener, NewProcessedSet(), archive.Pacer{}, fixedClock{archive.Day(2024, time.June, 1)}, Config{
		Layout: Layout{Root: root, Source: "camera"},
		Retry:  archive.NewRetryPolicy(retries, time.Millisecond, 2*time.Millisecond),
	}, zap.NewNop())
	return p, root
}

func sweepItem() archive.Item {
	return archive.Item{
		Legislature: 19,
		Index:       42,
		Date:        archive.Day(2024, time.March, 12),
		ContentURL:  "https://example.invalid/sed0042.pdf",
	}
}

func TestPersistStoresContentAndSidecar(t *testing.T) {
	t.Parallel()

	opener := &fakeOpener{body: "%PDF-1.4 content", contentType: "application/pdf"}
	p, root := newTestPersister(t, opener, 3)

	outcome := p.Persist(context.Background(), sweepItem())
	require.Equal(t, archive.OutcomeStored, outcome.Kind)

	dest := filepath.Join(root, "legislatura_19", "2024", "camera_leg19_sed0042_2024-03-12.pdf")
	require.Equal(t, dest, outcome.Path)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 content", string(data))

	sidecar, err := os.ReadFile(strings.TrimSuffix(dest, ".pdf") + ".json")
	require.NoError(t, err)
	var meta SidecarMetadata
	require.NoError(t, json.Unmarshal(sidecar, &meta))
	require.Equal(t, 19, meta.Legislature)
	require.Equal(t, 42, meta.Session)
	require.Equal(t, "camera", meta.Source)
	require.Equal(t, "stenographic_report", meta.DocumentType)
	require.Equal(t, "it", meta.Language)
	require.Equal(t, "2024-03-12", meta.Date)
}

func TestPersistIsIdempotent(t *testing.T) {
	t.Parallel()

	opener := &fakeOpener{body: "%PDF", contentType: "application/pdf"}
	p, _ := newTestPersister(t, opener, 3)

	first := p.Persist(context.Background(), sweepItem())
	require.Equal(t, archive.OutcomeStored, first.Kind)

	second := p.Persist(context.Background(), sweepItem())
	require.Equal(t, archive.OutcomeAlreadyPresent, second.Kind)
	require.Equal(t, 1, opener.opens)
}

func TestPersistDetectsExistingFileFromEarlierRun(t *testing.T) {
	t.Parallel()

	opener := &fakeOpener{body: "%PDF", contentType: "application/pdf"}
	p, root := newTestPersister(t, opener, 3)

	dest := filepath.Join(root, "legislatura_19", "2024", "camera_leg19_sed0042_2024-03-12.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o750))
	require.NoError(t, os.WriteFile(dest, []byte("earlier run"), 0o600))

	outcome := p.Persist(context.Background(), sweepItem())
	require.Equal(t, archive.OutcomeAlreadyPresent, outcome.Kind)
	require.Zero(t, opener.opens)

	// The existing file is never rewritten.
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "earlier run", string(data))
}

func TestPersistLeavesNoPartialOnStreamFailure(t *testing.T) {
	t.Parallel()

	opener := &fakeOpener{body: "%PDF-1.4", contentType: "application/pdf", cutStream: true}
	p, root := newTestPersister(t, opener, 1)

	outcome := p.Persist(context.Background(), sweepItem())
	require.Equal(t, archive.OutcomeFailed, outcome.Kind)
	require.Error(t, outcome.Err)

	// Neither the destination, the sidecar, nor any temp file survives.
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, path)
		}
		return err
	})
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestPersistRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	opener := &fakeOpener{
		body:        "%PDF",
		contentType: "application/pdf",
		failOpens:   2,
		failErr:     syscall.ECONNRESET,
	}
	p, _ := newTestPersister(t, opener, 3)

	outcome := p.Persist(context.Background(), sweepItem())
	require.Equal(t, archive.OutcomeStored, outcome.Kind)
	require.Equal(t, 3, opener.opens)
}

func TestPersistGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	opener := &fakeOpener{
		body:        "%PDF",
		contentType: "application/pdf",
		failOpens:   10,
		failErr:     syscall.ECONNRESET,
	}
	p, _ := newTestPersister(t, opener, 3)

	outcome := p.Persist(context.Background(), sweepItem())
	require.Equal(t, archive.OutcomeFailed, outcome.Kind)
	require.Equal(t, 3, opener.opens)
}

func TestPersistContentMismatchIsNotRetried(t *testing.T) {
	t.Parallel()

	opener := &fakeOpener{body: "<html>not a pdf</html>", contentType: "text/html"}
	p, _ := newTestPersister(t, opener, 3)

	outcome := p.Persist(context.Background(), sweepItem())
	require.Equal(t, archive.OutcomeFailed, outcome.Kind)
	require.True(t, errors.Is(outcome.Err, archive.ErrContentMismatch))
	require.Equal(t, 1, opener.opens)
}

func TestPersistHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	opener := &fakeOpener{body: "%PDF", contentType: "application/pdf"}
	p, _ := newTestPersister(t, opener, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := p.Persist(ctx, sweepItem())
	require.Equal(t, archive.OutcomeFailed, outcome.Kind)
	require.ErrorIs(t, outcome.Err, context.Canceled)
}

func TestLayoutPaths(t *testing.T) {
	t.Parallel()

	l := Layout{Root: "/data", Source: "camera"}

	listing := archive.Item{Legislature: 18, Filename: "sed_0123.pdf", Date: archive.Day(2019, time.December, 7)}
	require.Equal(t, filepath.Join("/data", "legislatura_18", "2019", "sed_0123.pdf"), l.ItemPath(listing))

	undated := archive.Item{Legislature: 19, Index: 7}
	require.Equal(t,
		filepath.Join("/data", "legislatura_19", "unknown_year", "camera_leg19_sed0007_unknown_date.pdf"),
		l.ItemPath(undated),
	)

	require.Equal(t, "/data/x/sed.json", l.SidecarPath("/data/x/sed.pdf"))
}

func TestProcessedSet(t *testing.T) {
	t.Parallel()

	s := NewProcessedSet()
	require.False(t, s.Contains("a"))
	s.Mark("a")
	require.True(t, s.Contains("a"))
	s.Mark("a")
	require.Equal(t, 1, s.Len())
}
