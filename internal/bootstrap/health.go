package bootstrap

import (
	"github.com/alanchelmickjr/price-is-right-sub000/internal/health"
	"github.com/alanchelmickjr/price-is-right-sub000/internal/scan"
	"github.com/labstack/echo/v4"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideHealthHandler(
	db *gorm.DB,
	redisClient *redis.Client,
	qdrantClient *qdrant.Client,
	cfg *Config,
	scanManager *scan.Manager,
) *health.Handler {
	return health.NewHandler(db, redisClient, qdrantClient, cfg.InferenceEndpoints, scanManager)
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
