package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/calebward/chainarb/internal/blob/s3"
	"github.com/calebward/chainarb/internal/cache/memory"
	"github.com/calebward/chainarb/internal/cache/redis"
	"github.com/calebward/chainarb/internal/chain"
	"github.com/calebward/chainarb/internal/config"
	"github.com/calebward/chainarb/internal/detector"
	"github.com/calebward/chainarb/internal/domain"
	"github.com/calebward/chainarb/internal/gas"
	"github.com/calebward/chainarb/internal/metrics"
	"github.com/calebward/chainarb/internal/monitor"
	"github.com/calebward/chainarb/internal/notify"
	"github.com/calebward/chainarb/internal/store/postgres"
	"github.com/calebward/chainarb/internal/venue"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Core pipeline
	Manager  *chain.Manager
	Registry *venue.Registry
	Cache    *memory.PriceCache
	Metrics  *metrics.Recorder
	Detector *detector.Detector
	Poller   *monitor.Poller
	Runner   *monitor.Runner

	// Optional collaborators; nil when the backing service is disabled.
	QuoteStore       domain.QuoteStore
	OpportunityStore domain.OpportunityStore
	HealthStore      domain.HealthStore
	SignalBus        domain.SignalBus
	QuoteMirror      domain.QuoteMirror
	BlobWriter       domain.BlobWriter
	Archiver         *s3blob.Archiver
	Notifier         *notify.Notifier
}

// Wire constructs every concrete dependency from the configuration and
// returns it together with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Metrics ---
	deps.Metrics = metrics.NewRecorder(logger)

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.QuoteStore = postgres.NewQuoteStore(pool)
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		deps.HealthStore = postgres.NewHealthStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient)
		// Mirror entries outlive the staleness window a little so dashboards
		// can show the last known price.
		deps.QuoteMirror = redis.NewQuoteMirror(redisClient, 2*cfg.Monitor.MaxQuoteAge.Duration)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		if deps.QuoteStore != nil && deps.OpportunityStore != nil {
			deps.Archiver = s3blob.NewArchiver(
				deps.BlobWriter,
				deps.QuoteStore,
				deps.OpportunityStore,
				cfg.Archive.RetentionDays,
				logger,
			)
		}
	}

	// --- Alerts ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Cooldown.Duration, logger)

	// --- Core pipeline ---
	networks := cfg.DomainNetworks()
	endpoints := make(map[string][]domain.Endpoint, len(networks))
	for _, n := range networks {
		endpoints[n.ID] = cfg.DomainEndpoints(n.ID)
	}

	deps.Manager = chain.NewManager(chain.Config{
		MaxRetries:      cfg.Chain.MaxRetries,
		ProbeAttempts:   cfg.Chain.ProbeAttempts,
		ProbeTimeout:    cfg.Chain.ProbeTimeout.Duration,
		ProbeBackoff:    cfg.Chain.ProbeBackoff.Duration,
		ReactivateAfter: cfg.Chain.ReactivateAfter.Duration,
	}, networks, endpoints, nil, deps.Metrics, logger)
	closers = append(closers, deps.Manager.Close)

	deps.Registry = venue.DefaultRegistry()
	deps.Cache = memory.NewPriceCache(cfg.Monitor.MaxQuoteAge.Duration)

	rates := make(gas.FixedRates, len(cfg.Networks))
	for _, n := range cfg.Networks {
		rates[n.ID] = n.NativeUSDRate
	}
	estimator := gas.NewEstimator(deps.Manager, rates, networks, logger)

	deps.Detector = detector.New(detector.Config{
		MinPriceGapPercent: cfg.Detector.MinPriceGapPercent,
		MinProfitThreshold: cfg.Detector.MinProfitThreshold,
		MaxGasCostUSD:      cfg.Detector.MaxGasCostUSD,
		MinLiquidity:       cfg.Detector.MinLiquidity,
		MaxReferenceSize:   cfg.Detector.MaxReferenceSize,
		MaxQuoteAge:        cfg.Monitor.MaxQuoteAge.Duration,
	}, estimator, logger)

	deps.Poller = monitor.NewPoller(monitor.PollerConfig{
		MinRefetchInterval: cfg.Monitor.MinRefetchInterval.Duration,
		FetchTimeout:       cfg.Monitor.FetchTimeout.Duration,
		MaxConcurrent:      int64(cfg.Monitor.MaxConcurrentFetches),
		RatePerSec:         cfg.Monitor.FetchRatePerSec,
	}, deps.Manager, deps.Registry, deps.Cache, cfg.DomainVenues(), cfg.DomainPairs(), deps.Metrics, logger)

	var opts []monitor.RunnerOption
	if deps.QuoteStore != nil {
		opts = append(opts, monitor.WithQuoteStore(deps.QuoteStore))
	}
	if deps.OpportunityStore != nil {
		opts = append(opts, monitor.WithOpportunityStore(deps.OpportunityStore))
	}
	if deps.HealthStore != nil {
		opts = append(opts, monitor.WithHealthStore(deps.HealthStore))
	}
	if deps.SignalBus != nil {
		opts = append(opts, monitor.WithSignalBus(deps.SignalBus))
	}
	if deps.QuoteMirror != nil {
		opts = append(opts, monitor.WithQuoteMirror(deps.QuoteMirror))
	}

	deps.Runner = monitor.NewRunner(monitor.RunnerConfig{
		PriceInterval:  cfg.Monitor.PriceUpdateInterval.Duration,
		HealthInterval: cfg.Monitor.HealthCheckInterval.Duration,
	}, deps.Poller, deps.Detector, deps.Cache, deps.Manager, deps.Metrics, logger, opts...)

	return deps, cleanup, nil
}
