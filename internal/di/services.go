package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptofolio/internal/clientdata"
	"github.com/aristath/cryptofolio/internal/clients/coinmarketcap"
	"github.com/aristath/cryptofolio/internal/config"
	"github.com/aristath/cryptofolio/internal/marketdata"
	"github.com/aristath/cryptofolio/internal/modules/performance"
	"github.com/aristath/cryptofolio/internal/modules/portfolio"
	"github.com/aristath/cryptofolio/internal/modules/snapshots"
	"github.com/aristath/cryptofolio/internal/reliability"
)

// InitializeServices creates repositories, clients and services on top of the databases
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	// Repositories
	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())
	container.PortfolioRepo = portfolio.NewRepository(container.PortfolioDB.Conn(), log)
	container.SnapshotRepo = snapshots.NewRepository(container.PortfolioDB.Conn(), log)

	// Upstream market data
	container.MarketDataClient = coinmarketcap.NewClient(
		cfg.MarketData.APIKey,
		coinmarketcap.WithBaseURL(cfg.MarketData.BaseURL),
		coinmarketcap.WithTimeout(cfg.MarketData.Timeout),
		coinmarketcap.WithRateLimit(cfg.MarketData.RateLimitPerMinute),
		coinmarketcap.WithLogger(log),
	)

	container.MarketDataGateway = marketdata.NewGateway(
		container.MarketDataClient,
		container.ClientDataRepo,
		marketdata.Options{
			Timeout:         cfg.MarketData.BatchTimeout,
			QuoteFreshTTL:   cfg.Cache.QuoteFreshTTL,
			QuoteStaleTTL:   cfg.Cache.QuoteStaleTTL,
			HistoryTTL:      cfg.Cache.HistoryTTL,
			ListingPageSize: cfg.MarketData.ListingLimit,
			ListingMaxPages: cfg.MarketData.ListingMaxPages,
		},
		log,
	)

	// Domain services
	container.PortfolioService = portfolio.NewService(container.PortfolioRepo, log)
	container.PerformanceService = performance.NewService(
		container.PortfolioRepo,
		container.MarketDataGateway,
		container.MarketDataGateway,
		performance.Options{QuoteFreshWindow: container.MarketDataGateway.QuoteFreshTTL()},
		log,
	)
	container.OverviewService = performance.NewOverviewService(
		container.MarketDataClient,
		container.ClientDataRepo,
		log,
	)

	// Optional snapshot archive
	if cfg.Archive.Enabled() {
		client, err := reliability.NewS3Client(ctx, cfg.Archive, log)
		if err != nil {
			return fmt.Errorf("failed to create archive client: %w", err)
		}
		container.ArchiveClient = client
		container.SnapshotArchiver = reliability.NewSnapshotArchiver(client, cfg.Archive.Prefix, log)
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Snapshot archive enabled")
	} else {
		log.Info().Msg("Snapshot archive disabled (ARCHIVE_BUCKET not set)")
	}

	return nil
}
