package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/pricing"
)

// CatalogHandler exposes menu items and live modifier pricing.
type CatalogHandler struct {
	Pricing *pricing.Service
	log     *slog.Logger
}

func NewCatalogHandler(p *pricing.Service, log *slog.Logger) *CatalogHandler {
	if p == nil {
		panic("nil pricing service passed to NewCatalogHandler")
	}
	return &CatalogHandler{Pricing: p, log: log}
}

// GetItem handles GET /v1/catalog/items/:id.
func (h *CatalogHandler) GetItem(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid item id")
	}
	item, err := h.Pricing.Item(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"item":          item,
		"has_modifiers": item.HasModifiers(),
	})
}

// Price handles POST /v1/catalog/items/:id/price.  The body is the modifier
// choice; the response carries the unit price and every applied modifier so
// the terminal can show the price updating as options change.
func (h *CatalogHandler) Price(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid item id")
	}
	var choice model.ModifierChoice
	if err := c.Bind(&choice); err != nil {
		return badRequest(c, "invalid request body")
	}
	item, res, err := h.Pricing.PriceConfiguration(c.Request().Context(), id, choice)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"catalog_item_id":    item.ID,
		"base_price":         item.BasePrice,
		"unit_price":         res.UnitPrice,
		"summary":            res.Summary,
		"applied_variants":   res.AppliedVariants,
		"applied_selections": res.AppliedSelections,
		"applied_addons":     res.AppliedAddons,
	})
}
