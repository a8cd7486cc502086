// Package probe issues existence and metadata checks against the remote
// document source and enumerates listing pages.
package probe

import (
	"fmt"
	"net/url"
)

// Endpoints builds source URLs from typed segments. All paths go through
// url.JoinPath, so a malformed concatenation is unrepresentable and no
// post-hoc string checks are needed.
type Endpoints struct {
	document *url.URL
	listing  *url.URL
}

// NewEndpoints parses the two base URLs (document host for per-session
// transcripts, listing host for the chronological index pages).
func NewEndpoints(documentBase, listingBase string) (Endpoints, error) {
	doc, err := url.Parse(documentBase)
	if err != nil {
		return Endpoints{}, fmt.Errorf("parse document base url: %w", err)
	}
	lst, err := url.Parse(listingBase)
	if err != nil {
		return Endpoints{}, fmt.Errorf("parse listing base url: %w", err)
	}
	if doc.Scheme == "" || doc.Host == "" {
		return Endpoints{}, fmt.Errorf("document base url %q must be absolute", documentBase)
	}
	if lst.Scheme == "" || lst.Host == "" {
		return Endpoints{}, fmt.Errorf("listing base url %q must be absolute", listingBase)
	}
	return Endpoints{document: doc, listing: lst}, nil
}

// TranscriptPDF returns the URL of the stenographic transcript PDF for one
// session.
func (e Endpoints) TranscriptPDF(legislature, session int) string {
	return e.document.JoinPath(
		fmt.Sprintf("leg%d", legislature),
		"resoconti", "assemblea", "html",
		fmt.Sprintf("sed%04d", session),
		"stenografico.pdf",
	).String()
}

// SessionInfo returns the URL of the HTML info page for one session, used
// for date extraction.
func (e Endpoints) SessionInfo(legislature, session int) string {
	return e.document.JoinPath(
		fmt.Sprintf("leg%d", legislature),
		"resoconti", "assemblea", "html",
		fmt.Sprintf("sed%04d", session),
		"stenografico.htm",
	).String()
}

// Listing returns the URL of the chronological transcript index for one
// legislature and year. The source serves the running legislature from an
// unversioned path, selected with current=true.
func (e Endpoints) Listing(legislature, year int, current bool) string {
	var u *url.URL
	if current {
		u = e.listing.JoinPath("lavori", "assemblea", "resoconti-elenco-cronologico")
	} else {
		u = e.listing.JoinPath(
			"legislature", fmt.Sprintf("%d", legislature),
			"lavori", "assemblea", "resoconti-elenco-cronologico",
		)
	}
	q := url.Values{}
	q.Set("year", fmt.Sprintf("%d", year))
	u.RawQuery = q.Encode()
	return u.String()
}

// ListingHost returns the listing host, used by colly to resolve relative
// links.
func (e Endpoints) ListingHost() *url.URL {
	clone := *e.listing
	return &clone
}
