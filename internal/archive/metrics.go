package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalProbes tracks existence checks issued against the source.
	TotalProbes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stenosync_probes_total",
		Help: "The total number of existence probes sent.",
	})
	// TotalProbeHits tracks probes that found an existing session.
	TotalProbeHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stenosync_probe_hits_total",
		Help: "The total number of probes that found a session.",
	})
	// TotalStored tracks documents persisted to disk.
	TotalStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stenosync_documents_stored_total",
		Help: "The total number of documents stored.",
	})
	// TotalFetchErrors tracks failed document downloads after retries.
	TotalFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stenosync_fetch_errors_total",
		Help: "The total number of document fetches that failed.",
	})
	// TotalRateLimitHits tracks 429/403 responses from the source.
	TotalRateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stenosync_rate_limit_hits_total",
		Help: "The total number of rate-limited or forbidden responses.",
	})
	// TotalLedgerRewrites tracks ledger records rewritten by reconciliation.
	TotalLedgerRewrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stenosync_ledger_rewrites_total",
		Help: "The total number of ledger records rewritten.",
	})
)
