package bootstrap

import (
	"log/slog"
	"os"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/comps"
	"github.com/alanchelmickjr/price-is-right-sub000/internal/listing"
	"github.com/alanchelmickjr/price-is-right-sub000/internal/scan"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type HandlerParams struct {
	fx.In

	ScanHandler    *scan.Handler
	ListingHandler *listing.Handler
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	api := e.Group("/v1")

	params.ScanHandler.RegisterRoutes(api.Group("/scans"))
	params.ListingHandler.RegisterRoutes(api.Group("/listings"))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
}

func ProvideScanHandler(manager *scan.Manager, store *scan.Store, logger *slog.Logger) *scan.Handler {
	return scan.NewHandler(manager, store, logger.With("handler", "scan"))
}

func ProvideListingHandler(store *listing.Store, compService *comps.Service, logger *slog.Logger) *listing.Handler {
	return listing.NewHandler(store, compService, logger.With("handler", "listing"))
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideScanHandler,
		ProvideListingHandler,
	),
	fx.Invoke(RegisterRoutes),
)
