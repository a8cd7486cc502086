package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/archive"
)

// Config controls probe client behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Client performs single existence/metadata checks against one
// (legislature, session) pair and streams document content. It holds no
// per-run state; memoization lives in the discoverer.
type Client struct {
	cfg       Config
	endpoints Endpoints
	http      *http.Client
	logger    *zap.Logger
}

// NewClient builds a probe client with a pooled transport.
func NewClient(cfg Config, endpoints Endpoints, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:       cfg,
		endpoints: endpoints,
		http: &http.Client{
			Timeout:   timeout,
			Transport: newHTTPTransport(),
		},
		logger: logger,
	}
}

// Check issues a HEAD request for the session transcript. On a hit it
// best-effort extracts the session date from the info page; a failed
// extraction leaves the date zero without failing the probe. A 404 is a
// normal "absent" result; other statuses are returned as errors so callers
// can classify them.
func (c *Client) Check(ctx context.Context, legislature archive.Legislature, session int) (archive.ProbeResult, error) {
	archive.TotalProbes.Inc()
	pdfURL := c.endpoints.TranscriptPDF(int(legislature), session)

	status, err := c.head(ctx, pdfURL)
	if err != nil {
		return archive.ProbeResult{}, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return archive.ProbeResult{Exists: false}, nil
	default:
		if status == http.StatusForbidden || status == http.StatusTooManyRequests {
			archive.TotalRateLimitHits.Inc()
		}
		return archive.ProbeResult{}, &archive.StatusError{StatusCode: status, URL: pdfURL}
	}

	archive.TotalProbeHits.Inc()
	result := archive.ProbeResult{Exists: true}
	if date, ok := c.extractInfoDate(ctx, legislature, session); ok {
		result.Date = date
	}
	return result, nil
}

// extractInfoDate fetches the session info page and scans it for a date.
// Every failure path returns ok=false: a flaky info page must not turn an
// existing session into a miss.
func (c *Client) extractInfoDate(ctx context.Context, legislature archive.Legislature, session int) (time.Time, bool) {
	infoURL := c.endpoints.SessionInfo(int(legislature), session)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return time.Time{}, false
	}
	c.setHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return time.Time{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return time.Time{}, false
	}
	date, ok := archive.ExtractDate(string(body))
	if !ok {
		c.logger.Debug("session exists but date not extracted",
			zap.Int("legislature", int(legislature)),
			zap.Int("session", session),
		)
	}
	return date, ok
}

// Open starts a streaming GET of a document. The caller owns the returned
// body. Non-200 statuses are returned as StatusError so the persistence
// layer can classify them for retry or abort.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request for %s: %w", rawURL, err)
	}
	c.setHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("get %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			archive.TotalRateLimitHits.Inc()
		}
		resp.Body.Close()
		return nil, "", &archive.StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) head(ctx context.Context, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request for %s: %w", rawURL, err)
	}
	c.setHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("head %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
	return resp.StatusCode, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
