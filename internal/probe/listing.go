package probe

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/archive"
)

// ListingClient enumerates transcript links from the chronological index
// pages of a legislature, one page per year. Each link is paired with a
// best-effort date scraped from the surrounding markup.
type ListingClient struct {
	cfg           Config
	endpoints     Endpoints
	clock         archive.Clock
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// NewListingClient builds a listing client.
func NewListingClient(cfg Config, endpoints Endpoints, clock archive.Clock, logger *zap.Logger) *ListingClient {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c.SetRequestTimeout(timeout)
	return &ListingClient{
		cfg:           cfg,
		endpoints:     endpoints,
		clock:         clock,
		baseCollector: c,
		logger:        logger,
	}
}

// List fetches the index page for (legislature, year) and returns the
// transcript items found on it. A 404 page means the legislature has no
// documents for that year and yields an empty list, not an error.
func (c *ListingClient) List(ctx context.Context, legislature archive.Legislature, year int) ([]archive.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current := year == c.clock.Now().Year()
	pageURL := c.endpoints.Listing(int(legislature), year, current)

	var (
		items    []archive.Item
		notFound bool
		fetchErr error
	)

	collector := c.baseCollector.Clone()
	collector.OnHTML(`a[href$=".pdf"]`, func(e *colly.HTMLElement) {
		href := e.Request.AbsoluteURL(e.Attr("href"))
		if href == "" {
			return
		}
		item := archive.Item{
			Legislature: legislature,
			Filename:    path.Base(href),
			ContentURL:  href,
		}
		// The date sits in text near the anchor, not in the anchor itself.
		for _, sel := range []string{"", "parent", "grandparent"} {
			text := e.Text
			switch sel {
			case "parent":
				text = e.DOM.Parent().Text()
			case "grandparent":
				text = e.DOM.Parent().Parent().Text()
			}
			if date, ok := archive.ExtractDate(text); ok {
				item.Date = date
				break
			}
		}
		items = append(items, item)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode == http.StatusNotFound {
			notFound = true
			return
		}
		if r != nil && r.StatusCode != 0 {
			fetchErr = &archive.StatusError{StatusCode: r.StatusCode, URL: pageURL}
			return
		}
		fetchErr = err
	})

	if err := collector.Visit(pageURL); err != nil && fetchErr == nil && !notFound {
		fetchErr = err
	}
	collector.Wait()

	if notFound {
		return nil, nil
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("list %s: %w", pageURL, fetchErr)
	}
	c.logger.Debug("listing page enumerated",
		zap.Int("legislature", int(legislature)),
		zap.Int("year", year),
		zap.Int("items", len(items)),
	)
	return items, nil
}
