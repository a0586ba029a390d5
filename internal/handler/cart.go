package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pos-engine/internal/cart"
	"github.com/iliyamo/pos-engine/internal/checkout"
	"github.com/iliyamo/pos-engine/internal/middleware"
	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/order"
	"github.com/iliyamo/pos-engine/internal/pricing"
)

// Sessions loads and stores the cart of a staff member at a terminal.
type Sessions interface {
	Load(ctx context.Context, staffID, terminalID string) (cart.Session, error)
	Save(ctx context.Context, staffID, terminalID string, s cart.Session) error
	Clear(ctx context.Context, staffID, terminalID string) error
}

// Quoter computes the summary of a draft.  Implemented by order.Service.
type Quoter interface {
	Quote(ctx context.Context, d order.Draft) (checkout.Result, error)
}

// CartHandler edits the server-owned cart of the calling terminal.
type CartHandler struct {
	Sessions Sessions
	Pricing  *pricing.Service
	Quotes   Quoter
	log      *slog.Logger
}

func NewCartHandler(sessions Sessions, p *pricing.Service, quotes Quoter, log *slog.Logger) *CartHandler {
	if sessions == nil || p == nil || quotes == nil {
		panic("nil dependency passed to NewCartHandler")
	}
	return &CartHandler{Sessions: sessions, Pricing: p, Quotes: quotes, log: log}
}

type cartView struct {
	cart.Session
	ItemCount int `json:"item_count"`
}

func view(s cart.Session) cartView {
	return cartView{Session: s, ItemCount: cart.ItemCount(s.Lines)}
}

// draftFrom turns a session into an order draft for the calling terminal.
func draftFrom(s cart.Session, staffID, terminalID string) order.Draft {
	oc := s.Context
	return order.Draft{
		ID:          s.DraftID,
		Type:        oc.Type,
		Lines:       s.Lines,
		Customer:    oc.Customer,
		Discount:    oc.Discount,
		UseLoyalty:  oc.UseLoyalty,
		TaxRate:     oc.TaxRate,
		DeliveryFee: oc.DeliveryFee,
		Notes:       oc.Notes,
		ResourceID:  oc.ResourceID,
		BookingID:   oc.BookingID,
		Stay:        oc.Stay,
		GuestCount:  oc.GuestCount,
		StaffID:     staffID,
		TerminalID:  terminalID,
	}
}

func (h *CartHandler) load(c echo.Context) (cart.Session, error) {
	return h.Sessions.Load(c.Request().Context(), middleware.StaffID(c), middleware.TerminalID(c))
}

func (h *CartHandler) save(c echo.Context, s cart.Session) error {
	return h.Sessions.Save(c.Request().Context(), middleware.StaffID(c), middleware.TerminalID(c), s)
}

// Get handles GET /v1/cart.
func (h *CartHandler) Get(c echo.Context) error {
	s, err := h.load(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, view(s))
}

type addLineRequest struct {
	CatalogItemID uint64               `json:"catalog_item_id"`
	Choice        model.ModifierChoice `json:"choice"`
	Quantity      int                  `json:"quantity"`
	Note          string               `json:"note"`
	Separate      bool                 `json:"separate"`
}

// AddLine handles POST /v1/cart/lines.  The line is priced server side from
// the catalog; an equal line absorbs the quantity unless separate is set.
func (h *CartHandler) AddLine(c echo.Context) error {
	var req addLineRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.CatalogItemID == 0 {
		return badRequest(c, "catalog_item_id is required")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	item, res, err := h.Pricing.PriceConfiguration(c.Request().Context(), req.CatalogItemID, req.Choice)
	if err != nil {
		return fail(c, h.log, err)
	}
	s, err := h.load(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	policy := cart.MergeEqual
	if req.Separate {
		policy = cart.AlwaysInsert
	}
	ledger := s.Ledger()
	line, err := ledger.Append(cart.NewLine(item, res, req.Choice, req.Quantity, req.Note), policy)
	if err != nil {
		return fail(c, h.log, err)
	}
	s.Lines = ledger.Lines()
	if err := h.save(c, s); err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"line": line, "cart": view(s)})
}

// UpdateLine handles PATCH /v1/cart/lines/:id.  Quantity zero removes the
// line.
func (h *CartHandler) UpdateLine(c echo.Context) error {
	var req struct {
		Quantity *int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil || req.Quantity == nil {
		return badRequest(c, "quantity is required")
	}
	s, err := h.load(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	ledger := s.Ledger()
	if err := ledger.SetQuantity(c.Param("id"), *req.Quantity); err != nil {
		return fail(c, h.log, err)
	}
	s.Lines = ledger.Lines()
	if err := h.save(c, s); err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, view(s))
}

// RemoveLine handles DELETE /v1/cart/lines/:id.
func (h *CartHandler) RemoveLine(c echo.Context) error {
	s, err := h.load(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	ledger := s.Ledger()
	if err := ledger.Remove(c.Param("id")); err != nil {
		return fail(c, h.log, err)
	}
	s.Lines = ledger.Lines()
	if err := h.save(c, s); err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, view(s))
}

// SetContext handles PUT /v1/cart/context.  The whole context is replaced.
func (h *CartHandler) SetContext(c echo.Context) error {
	var oc cart.OrderContext
	if err := c.Bind(&oc); err != nil {
		return badRequest(c, "invalid request body")
	}
	if oc.Type != "" && !oc.Type.Valid() {
		return badRequest(c, "unknown order type")
	}
	if err := oc.Discount.Validate(); err != nil {
		return fail(c, h.log, err)
	}
	s, err := h.load(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	s.Context = oc
	if err := h.save(c, s); err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, view(s))
}

// Summary handles GET /v1/cart/summary.  It is recomputed on every call.
func (h *CartHandler) Summary(c echo.Context) error {
	s, err := h.load(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	res, err := h.Quotes.Quote(c.Request().Context(), draftFrom(s, middleware.StaffID(c), middleware.TerminalID(c)))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Clear handles DELETE /v1/cart.
func (h *CartHandler) Clear(c echo.Context) error {
	if err := h.Sessions.Clear(c.Request().Context(), middleware.StaffID(c), middleware.TerminalID(c)); err != nil {
		return fail(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
