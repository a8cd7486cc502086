package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openparl/stenosync/internal/api"
	"github.com/openparl/stenosync/internal/archive"
	"github.com/openparl/stenosync/internal/config"
	"github.com/openparl/stenosync/internal/discovery"
	"github.com/openparl/stenosync/internal/engine"
	"github.com/openparl/stenosync/internal/fetch"
	"github.com/openparl/stenosync/internal/journal"
	"github.com/openparl/stenosync/internal/ledger"
	"github.com/openparl/stenosync/internal/persist"
	"github.com/openparl/stenosync/internal/planner"
	"github.com/openparl/stenosync/internal/probe"
	"github.com/openparl/stenosync/internal/publisher"
	gcppublisher "github.com/openparl/stenosync/internal/publisher/pubsub"
	"github.com/openparl/stenosync/internal/storage"
	"github.com/openparl/stenosync/internal/storage/gcs"
	"github.com/openparl/stenosync/internal/storage/local"
)

type syncFlags struct {
	legislature int
	from        string
	to          string
	out         string
}

func newSyncCmd() *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization pass",
		Long: `Resolves the target date interval (resuming from the ledger when no
explicit start is configured), plans a covering set of legislatures, fetches
missing transcripts into the local mirror, and optionally uploads them to the
object store with matching ledger records.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSyncCommand(cmd.Context(), flags)
		},
	}

	cmd.Flags().IntVar(&flags.legislature, "legislature", 0, "starting legislature (overrides sync.start_legislature)")
	cmd.Flags().StringVar(&flags.from, "from", "", "start date YYYY-MM-DD (overrides sync.from)")
	cmd.Flags().StringVar(&flags.to, "to", "", "end date YYYY-MM-DD (overrides sync.to)")
	cmd.Flags().StringVar(&flags.out, "out", "", "local mirror directory (overrides mirror.root)")

	return cmd
}

// applySyncFlags layers explicit command-line values over the loaded config.
func applySyncFlags(cfg *config.Config, flags syncFlags) error {
	if flags.legislature > 0 {
		cfg.Sync.StartLegislature = flags.legislature
	}
	if flags.from != "" {
		if _, err := time.Parse("2006-01-02", flags.from); err != nil {
			return fmt.Errorf("invalid --from date %q: expected YYYY-MM-DD", flags.from)
		}
		cfg.Sync.From = flags.from
	}
	if flags.to != "" {
		if _, err := time.Parse("2006-01-02", flags.to); err != nil {
			return fmt.Errorf("invalid --to date %q: expected YYYY-MM-DD", flags.to)
		}
		cfg.Sync.To = flags.to
	}
	if flags.out != "" {
		cfg.Mirror.Root = flags.out
	}
	return nil
}

func runSyncCommand(cmdCtx context.Context, flags syncFlags) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	if err := applySyncFlags(&cfg, flags); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	endpoints, err := probe.NewEndpoints(cfg.Source.DocumentURL, cfg.Source.ListingURL)
	if err != nil {
		return fmt.Errorf("build endpoints: %w", err)
	}

	clock := archive.SystemClock{}
	pacer := archive.Pacer{
		Base:   time.Duration(cfg.Sync.DelayMs) * time.Millisecond,
		Jitter: time.Duration(cfg.Sync.DelayMs) * time.Millisecond / 2,
	}
	retry := archive.NewRetryPolicy(
		cfg.HTTP.MaxRetries,
		time.Duration(cfg.HTTP.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.HTTP.BackoffMaxMs)*time.Millisecond,
	)

	client := probe.NewClient(probe.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	}, endpoints, logger)
	lister := probe.NewListingClient(probe.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	}, endpoints, clock, logger)

	disc := discovery.New(client, pacer, nil, logger)
	pl := planner.New(disc, planner.Config{
		MaxStepsBack:    cfg.Sync.MaxStepsBack,
		MaxStepsForward: cfg.Sync.MaxStepsForward,
	}, logger)

	persister := persist.New(client, persist.NewProcessedSet(), pacer, clock, persist.Config{
		Layout: persist.Layout{Root: cfg.Mirror.Root, Source: cfg.Source.Name},
		Retry:  retry,
	}, logger)

	executor := fetch.New(client, lister, persister, disc, endpoints, pacer,
		archive.NewForbiddenTracker(0), fetch.Config{
			Mode:           fetch.Mode(cfg.Source.Mode),
			MissThreshold:  cfg.Sync.MissThreshold,
			SweepOvershoot: cfg.Sync.SweepOvershoot,
			Concurrency:    cfg.Sync.Concurrency,
			StrictDates:    cfg.Sync.StrictDates,
			ForbiddenPause: time.Duration(cfg.Sync.PauseSeconds) * time.Second,
		}, logger)

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	jn, err := buildJournal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer jn.Close()

	events, closeEvents, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	eng := engine.New(pl, executor, store, jn, events, clock, engine.Config{
		Source:           cfg.Source.Name,
		Prefix:           cfg.Storage.Prefix,
		StartLegislature: archive.Legislature(cfg.Sync.StartLegislature),
		From:             config.Date(cfg.Sync.From),
		To:               config.Date(cfg.Sync.To),
		DefaultFrom:      config.Date(cfg.Sync.DefaultFrom),
		Topic:            cfg.PubSub.TopicName,
	}, logger)

	stopServer := startStatusServer(cfg, eng, logger)
	defer stopServer()

	if _, err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run sync: %w", err)
	}

	if cfg.Storage.Upload {
		uploader := ledger.NewUploader(store, clock, ledger.UploaderConfig{
			Root:   cfg.Mirror.Root,
			Prefix: cfg.Storage.Prefix,
			Source: cfg.Source.Name,
		}, logger)
		if _, err := uploader.Upload(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("upload mirror: %w", err)
		}
	}

	logger.Info("sync command finished")
	return nil
}

// buildStore returns the GCS-backed store when a bucket is configured, and
// a local filesystem store otherwise so runs work without credentials.
func buildStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, func(), error) {
	if cfg.Storage.GCSBucket == "" {
		store, err := local.New(local.Config{BaseDir: cfg.Storage.LocalRoot})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
	client, err := gstorage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create storage client: %w", err)
	}
	store, err := gcs.New(ctx, client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	if err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, nil, err
	}
	return store, func() { client.Close() }, nil //nolint:errcheck // best-effort close on shutdown
}

func buildJournal(ctx context.Context, cfg config.Config, logger *zap.Logger) (journal.Journal, error) {
	if cfg.Journal.DSN == "" {
		logger.Debug("no journal DSN configured, run journal disabled")
		return journal.NoOp{}, nil
	}
	jn, err := journal.NewPostgres(ctx, journal.PostgresConfig{
		DSN:      cfg.Journal.DSN,
		Table:    cfg.Journal.Table,
		MaxConns: cfg.Journal.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect journal: %w", err)
	}
	return jn, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (publisher.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		logger.Debug("pubsub not configured, run events disabled")
		return nil, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.PubSub.TopicName)
	return gcppublisher.New(topic), func() {
		topic.Stop()
		client.Close() //nolint:errcheck // best-effort close
	}, nil
}

// startStatusServer launches the HTTP status endpoint when enabled. The
// returned function shuts it down.
func startStatusServer(cfg config.Config, eng *engine.Engine, logger *zap.Logger) func() {
	if !cfg.Server.Enabled {
		return func() {}
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(eng, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("status server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown error", zap.Error(err))
		}
	}
}
