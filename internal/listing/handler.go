package listing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/shared"
	"github.com/labstack/echo/v4"
)

// CompsRecorder feeds sold listings back into the comparable-price index.
type CompsRecorder interface {
	RecordSold(ctx context.Context, name, category string, priceCents int64) error
}

type Handler struct {
	store  *Store
	comps  CompsRecorder
	logger *slog.Logger
}

func NewHandler(store *Store, comps CompsRecorder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  store,
		comps:  comps,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

type createRequest struct {
	ScanID      string   `json:"scan_id"`
	FrameID     string   `json:"frame_id"`
	ItemID      string   `json:"item_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Condition   string   `json:"condition"`
	PriceCents  int64    `json:"price_cents"`
	Tags        []string `json:"tags"`
	Confidence  float64  `json:"confidence"`
}

// Create godoc
// @Summary Create a draft listing from a detected item
// @Tags listings
// @Success 201 {object} Listing
// @Router /listings [post]
func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid listing body")
	}
	if req.Title == "" {
		return shared.BadRequest("missing_title", "title is required")
	}
	if req.PriceCents < 0 {
		return shared.BadRequest("invalid_price", "price must not be negative")
	}

	l := &Listing{
		OwnerID:     c.Request().Header.Get("X-User-ID"),
		ScanID:      req.ScanID,
		FrameID:     req.FrameID,
		ItemID:      req.ItemID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Condition:   req.Condition,
		PriceCents:  req.PriceCents,
		Tags:        req.Tags,
		Confidence:  req.Confidence,
	}
	if err := h.store.Create(c.Request().Context(), l); err != nil {
		h.logger.Error("create listing failed", "error", err)
		return shared.InternalError("listing_create_failed", "could not create listing")
	}
	return c.JSON(http.StatusCreated, l)
}

// List godoc
// @Summary List the caller's listings
// @Tags listings
// @Success 200 {array} Listing
// @Router /listings [get]
func (h *Handler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	listings, err := h.store.ListByOwner(c.Request().Context(), c.Request().Header.Get("X-User-ID"), limit, offset)
	if err != nil {
		return shared.InternalError("listing_list_failed", "could not list listings")
	}
	return c.JSON(http.StatusOK, listings)
}

// Get godoc
// @Summary Get one listing
// @Tags listings
// @Param id path string true "listing id"
// @Success 200 {object} Listing
// @Router /listings/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	l, err := h.store.GetByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("listing_not_found", "listing not found")
	}
	if err != nil {
		return shared.InternalError("listing_get_failed", "could not load listing")
	}
	return c.JSON(http.StatusOK, l)
}

type updateRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Condition   *string  `json:"condition"`
	PriceCents  *int64   `json:"price_cents"`
	Tags        []string `json:"tags"`
	Status      *string  `json:"status"`
}

// Update godoc
// @Summary Update a listing
// @Tags listings
// @Param id path string true "listing id"
// @Success 200 {object} Listing
// @Router /listings/{id} [patch]
func (h *Handler) Update(c echo.Context) error {
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid update body")
	}

	ctx := c.Request().Context()
	l, err := h.store.GetByID(ctx, c.Param("id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("listing_not_found", "listing not found")
	}
	if err != nil {
		return shared.InternalError("listing_get_failed", "could not load listing")
	}

	if req.Title != nil {
		l.Title = *req.Title
	}
	if req.Description != nil {
		l.Description = *req.Description
	}
	if req.Category != nil {
		l.Category = *req.Category
	}
	if req.Condition != nil {
		l.Condition = *req.Condition
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return shared.BadRequest("invalid_price", "price must not be negative")
		}
		l.PriceCents = *req.PriceCents
	}
	if req.Tags != nil {
		l.Tags = req.Tags
	}

	wasSold := l.Status == shared.ListingStatusSold
	if req.Status != nil {
		status := shared.ListingStatus(*req.Status)
		if !status.Valid() {
			return shared.BadRequest("invalid_status", "status must be draft, published or sold")
		}
		l.Status = status
	}

	if err := h.store.Update(ctx, l); err != nil {
		return shared.InternalError("listing_update_failed", "could not update listing")
	}

	if !wasSold && l.Status == shared.ListingStatusSold && h.comps != nil {
		if err := h.comps.RecordSold(ctx, l.Title, l.Category, l.PriceCents); err != nil {
			h.logger.Warn("record sold comp failed", "listing_id", l.ID, "error", err)
		}
	}

	return c.JSON(http.StatusOK, l)
}

// Delete godoc
// @Summary Delete a listing
// @Tags listings
// @Param id path string true "listing id"
// @Success 204
// @Router /listings/{id} [delete]
func (h *Handler) Delete(c echo.Context) error {
	err := h.store.Delete(c.Request().Context(), c.Param("id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("listing_not_found", "listing not found")
	}
	if err != nil {
		return shared.InternalError("listing_delete_failed", "could not delete listing")
	}
	return c.NoContent(http.StatusNoContent)
}
