package health

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/scan"
	"github.com/alanchelmickjr/price-is-right-sub000/internal/scanner"
	"github.com/labstack/echo/v4"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines    int    `json:"goroutines"`
	MemoryAllocMB uint64 `json:"memory_alloc_mb"`
	NumGC         uint32 `json:"num_gc"`
}

type Stats struct {
	ActiveScans int          `json:"active_scans"`
	Runtime     RuntimeStats `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

type Handler struct {
	db        *gorm.DB
	redis     *redis.Client
	qdrant    *qdrant.Client
	endpoints []scanner.Endpoint
	scans     *scan.Manager
	probe     *http.Client
	startTime time.Time
}

func NewHandler(db *gorm.DB, redisClient *redis.Client, qdrantClient *qdrant.Client, endpoints []scanner.Endpoint, scans *scan.Manager) *Handler {
	return &Handler{
		db:        db,
		redis:     redisClient,
		qdrant:    qdrantClient,
		endpoints: endpoints,
		scans:     scans,
		probe:     &http.Client{Timeout: 2 * time.Second},
		startTime: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
}

func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	components := make(map[string]ComponentStatus)
	var mu sync.Mutex
	var wg sync.WaitGroup

	checks := []struct {
		name  string
		check func(context.Context) ComponentStatus
	}{
		{"database", h.checkDatabase},
		{"redis", h.checkRedis},
		{"qdrant", h.checkQdrant},
	}
	for _, ep := range h.endpoints {
		endpoint := ep
		checks = append(checks, struct {
			name  string
			check func(context.Context) ComponentStatus
		}{"inference:" + endpoint.Name, func(ctx context.Context) ComponentStatus {
			return h.checkEndpoint(ctx, endpoint)
		}})
	}

	wg.Add(len(checks))
	for _, check := range checks {
		go func(name string, fn func(context.Context) ComponentStatus) {
			defer wg.Done()
			status := fn(ctx)
			mu.Lock()
			components[name] = status
			mu.Unlock()
		}(check.name, check.check)
	}
	wg.Wait()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	overall := h.computeOverallStatus(components)
	resp := HealthResponse{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats: Stats{
			ActiveScans: h.scans.ActiveCount(),
			Runtime: RuntimeStats{
				Goroutines:    runtime.NumGoroutine(),
				MemoryAllocMB: memStats.Alloc / 1024 / 1024,
				NumGC:         memStats.NumGC,
			},
		},
		Components: components,
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, resp)
}

func (h *Handler) checkDatabase(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.db == nil {
		return ComponentStatus{Status: StatusUnhealthy, Error: "database not configured"}
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		return ComponentStatus{Status: StatusUnhealthy, LatencyMs: time.Since(start).Milliseconds(), Error: "failed to get underlying db"}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return ComponentStatus{Status: StatusUnhealthy, LatencyMs: time.Since(start).Milliseconds(), Error: "ping failed"}
	}
	return ComponentStatus{Status: StatusHealthy, LatencyMs: time.Since(start).Milliseconds()}
}

func (h *Handler) checkRedis(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.redis == nil {
		return ComponentStatus{Status: StatusUnhealthy, Error: "redis not configured"}
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return ComponentStatus{Status: StatusUnhealthy, LatencyMs: time.Since(start).Milliseconds(), Error: "ping failed"}
	}
	return ComponentStatus{Status: StatusHealthy, LatencyMs: time.Since(start).Milliseconds()}
}

func (h *Handler) checkQdrant(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.qdrant == nil {
		return ComponentStatus{Status: StatusDegraded, Error: "qdrant not configured"}
	}
	if _, err := h.qdrant.ListCollections(ctx); err != nil {
		return ComponentStatus{Status: StatusDegraded, LatencyMs: time.Since(start).Milliseconds(), Error: "list collections failed"}
	}
	return ComponentStatus{Status: StatusHealthy, LatencyMs: time.Since(start).Milliseconds()}
}

// checkEndpoint probes an inference backend without running inference.
// A slow or missing backend degrades the pipeline, it does not break the
// service, so failures report degraded rather than unhealthy.
func (h *Handler) checkEndpoint(ctx context.Context, ep scanner.Endpoint) ComponentStatus {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, ep.URL, nil)
	if err != nil {
		return ComponentStatus{Status: StatusDegraded, Error: "bad endpoint url"}
	}

	resp, err := h.probe.Do(req)
	if err != nil {
		return ComponentStatus{Status: StatusDegraded, LatencyMs: time.Since(start).Milliseconds(), Error: "unreachable"}
	}
	resp.Body.Close()

	return ComponentStatus{Status: StatusHealthy, LatencyMs: time.Since(start).Milliseconds()}
}

func (h *Handler) computeOverallStatus(components map[string]ComponentStatus) Status {
	for _, name := range []string{"database", "redis"} {
		if status, ok := components[name]; ok && status.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
	}

	for _, status := range components {
		if status.Status != StatusHealthy {
			return StatusDegraded
		}
	}
	return StatusHealthy
}
