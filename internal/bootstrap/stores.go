package bootstrap

import (
	"context"
	"log/slog"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/camera"
	"github.com/alanchelmickjr/price-is-right-sub000/internal/comps"
	"github.com/alanchelmickjr/price-is-right-sub000/internal/listing"
	"github.com/alanchelmickjr/price-is-right-sub000/internal/scan"
	"github.com/alanchelmickjr/price-is-right-sub000/internal/scanner"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideFrameStore(redisClient *redis.Client, cfg *Config) *camera.Store {
	return camera.NewStore(redisClient, cfg.FrameTTL)
}

func ProvideScanStore(redisClient *redis.Client) *scan.Store {
	return scan.NewStore(redisClient)
}

func ProvideListingStore(db *gorm.DB) *listing.Store {
	return listing.NewStore(db)
}

// ProvideCompService returns a nil service when no embeddings endpoint is
// configured. The nil service degrades to "no price hints" everywhere.
func ProvideCompService(store *comps.Store, cfg *Config, logger *slog.Logger) *comps.Service {
	if cfg.EmbeddingsURL == "" {
		return nil
	}
	embedder := comps.NewEmbedder(cfg.EmbeddingsURL, cfg.EmbeddingsAPIKey, cfg.EmbeddingsModel)
	return comps.NewService(embedder, store, logger)
}

func ProvideScannerConfig(cfg *Config) scanner.Config {
	return scanner.Config{
		BaseInterval:    cfg.ScanBaseInterval,
		SettleDelay:     cfg.ScanSettleDelay,
		RequestTimeout:  cfg.ScanRequestTimeout,
		QueueCapacity:   cfg.ScanQueueCapacity,
		TelemetryWindow: cfg.ScanStatsWindow,
		Model:           cfg.InferenceModel,
		Endpoints:       cfg.InferenceEndpoints,
	}
}

func ProvideScanManager(store *scan.Store, frames *camera.Store, compService *comps.Service, pipelineCfg scanner.Config, logger *slog.Logger) *scan.Manager {
	return scan.NewManager(scan.ManagerConfig{
		Store:    store,
		Frames:   frames,
		Hinter:   compService,
		Pipeline: pipelineCfg,
		Logger:   logger,
	})
}

func RunMigrations(listingStore *listing.Store) error {
	return listingStore.Migrate()
}

func EnsureCompCollection(compService *comps.Service, compStore *comps.Store, logger *slog.Logger) {
	if compService == nil {
		return
	}
	if err := compStore.EnsureCollection(context.Background()); err != nil {
		logger.Warn("comp collection unavailable, price hints disabled", "error", err)
	}
}

var StoresModule = fx.Options(
	fx.Provide(
		ProvideFrameStore,
		ProvideScanStore,
		ProvideListingStore,
		ProvideCompService,
		ProvideScannerConfig,
		ProvideScanManager,
	),
	fx.Invoke(RunMigrations),
	fx.Invoke(EnsureCompCollection),
)
