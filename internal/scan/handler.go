package scan

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/camera"
	"github.com/alanchelmickjr/price-is-right-sub000/internal/scanner"
	"github.com/alanchelmickjr/price-is-right-sub000/internal/shared"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handler struct {
	manager *Manager
	store   *Store
	logger  *slog.Logger
}

func NewHandler(manager *Manager, store *Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		manager: manager,
		store:   store,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Start)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Stop)
	g.POST("/:id/capture", h.Capture)
	g.GET("/:id/stats", h.Stats)
	g.GET("/:id/results", h.Results)
	g.GET("/:id/frames/:frameId", h.Frame)
	g.GET("/:id/feed", h.Feed)
}

func ownerID(c echo.Context) string {
	return c.Request().Header.Get("X-User-ID")
}

// Start godoc
// @Summary Start a scan session
// @Tags scans
// @Success 201 {object} Session
// @Router /scans [post]
func (h *Handler) Start(c echo.Context) error {
	sess, err := h.manager.StartScan(c.Request().Context(), ownerID(c))
	if err != nil {
		h.logger.Error("start scan failed", "error", err)
		return shared.InternalError("scan_start_failed", "could not start scan session")
	}
	return c.JSON(http.StatusCreated, sess)
}

// Get godoc
// @Summary Get a scan session
// @Tags scans
// @Param id path string true "scan id"
// @Success 200 {object} Session
// @Router /scans/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	sess, err := h.store.GetSession(c.Request().Context(), c.Param("id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("scan_not_found", "scan session not found")
	}
	if err != nil {
		return shared.InternalError("scan_get_failed", "could not load scan session")
	}
	return c.JSON(http.StatusOK, sess)
}

// Stop godoc
// @Summary Stop a scan session
// @Tags scans
// @Param id path string true "scan id"
// @Success 204
// @Router /scans/{id} [delete]
func (h *Handler) Stop(c echo.Context) error {
	err := h.manager.StopScan(c.Request().Context(), c.Param("id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("scan_not_found", "scan session not active")
	}
	if err != nil {
		return shared.InternalError("scan_stop_failed", "could not stop scan session")
	}
	return c.NoContent(http.StatusNoContent)
}

type captureRequest struct {
	Instruction string  `json:"instruction"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type captureResponse struct {
	FrameID  string `json:"frame_id,omitempty"`
	Captured bool   `json:"captured"`
}

// Capture godoc
// @Summary Trigger a manual capture
// @Tags scans
// @Param id path string true "scan id"
// @Success 202 {object} captureResponse
// @Router /scans/{id}/capture [post]
func (h *Handler) Capture(c echo.Context) error {
	var req captureRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid capture request body")
	}

	frameID, err := h.manager.CaptureNow(c.Param("id"), scanner.CaptureOptions{
		Instruction: req.Instruction,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("scan_not_found", "scan session not active")
	}
	if err != nil {
		return shared.InternalError("capture_failed", "could not capture frame")
	}

	return c.JSON(http.StatusAccepted, captureResponse{
		FrameID:  frameID,
		Captured: frameID != "",
	})
}

// Stats godoc
// @Summary Processing statistics for a scan
// @Tags scans
// @Param id path string true "scan id"
// @Success 200 {object} scanner.ProcessingStats
// @Router /scans/{id}/stats [get]
func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.manager.Stats(c.Param("id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("scan_not_found", "scan session not active")
	}
	if err != nil {
		return shared.InternalError("stats_failed", "could not load stats")
	}
	return c.JSON(http.StatusOK, stats)
}

type resultsResponse struct {
	Results []scanner.FrameResult `json:"results"`
}

// Results godoc
// @Summary Recent frame results for a scan
// @Tags scans
// @Param id path string true "scan id"
// @Param limit query int false "max results"
// @Success 200 {object} resultsResponse
// @Router /scans/{id}/results [get]
func (h *Handler) Results(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	results, err := h.store.RecentResults(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return shared.InternalError("results_failed", "could not load results")
	}
	return c.JSON(http.StatusOK, resultsResponse{Results: results})
}

// Frame godoc
// @Summary Fetch the stored image for one frame
// @Tags scans
// @Param id path string true "scan id"
// @Param frameId path string true "frame id"
// @Produce jpeg
// @Router /scans/{id}/frames/{frameId} [get]
func (h *Handler) Frame(c echo.Context) error {
	frame, err := h.manager.Frame(c.Request().Context(), c.Param("id"), c.Param("frameId"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("frame_not_found", "frame not found or expired")
	}
	if err != nil {
		return shared.InternalError("frame_get_failed", "could not load frame")
	}
	return c.Blob(http.StatusOK, "image/jpeg", frame.Data)
}

// Feed godoc
// @Summary Camera feed websocket: frames up, results down
// @Tags scans
// @Param id path string true "scan id"
// @Router /scans/{id}/feed [get]
func (h *Handler) Feed(c echo.Context) error {
	scanID := c.Param("id")

	ws, err := feedUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("feed upgrade failed", "scan_id", scanID, "error", err)
		return err
	}

	conn := camera.NewConn(ws, h.logger.With("scan_id", scanID))
	if err := h.manager.Attach(scanID, conn); err != nil {
		conn.Close()
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("scan_not_found", "scan session not active")
		}
		return err
	}

	conn.Run()
	return nil
}
