package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pos-engine/internal/middleware"
	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/order"
	"github.com/iliyamo/pos-engine/internal/settlement"
)

// Orders commits, reads and cancels orders.  Implemented by order.Service.
type Orders interface {
	Get(ctx context.Context, id string) (model.Order, error)
	Submit(ctx context.Context, d order.Draft) (model.Order, error)
	Cancel(ctx context.Context, id, reason string) (model.Order, error)
}

// Settler settles payment for an order.  Implemented by settlement.Service.
type Settler interface {
	SettlePayment(ctx context.Context, orderID string, req settlement.Request) (model.Order, settlement.Outcome, error)
}

// OrderHandler groups the order endpoints.  Sessions may be nil, in which
// case submitting from the cart is unavailable.
type OrderHandler struct {
	Orders   Orders
	Settler  Settler
	Sessions Sessions
	log      *slog.Logger
}

func NewOrderHandler(orders Orders, settler Settler, sessions Sessions, log *slog.Logger) *OrderHandler {
	if orders == nil || settler == nil {
		panic("nil dependency passed to NewOrderHandler")
	}
	return &OrderHandler{Orders: orders, Settler: settler, Sessions: sessions, log: log}
}

type submitRequest struct {
	order.Draft
	FromCart bool `json:"from_cart"`
}

// Submit handles POST /v1/orders.  With from_cart the draft is built from
// the terminal's cart session; otherwise the body is the draft itself.
// Resubmitting the same draft id returns the original order.
func (h *OrderHandler) Submit(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	staffID, terminalID := middleware.StaffID(c), middleware.TerminalID(c)
	d := req.Draft
	if req.FromCart {
		if h.Sessions == nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "cart_unavailable", "message": "cart sessions are disabled"})
		}
		s, err := h.Sessions.Load(c.Request().Context(), staffID, terminalID)
		if err != nil {
			return fail(c, h.log, err)
		}
		d = draftFrom(s, staffID, terminalID)
	}
	d.StaffID, d.TerminalID = staffID, terminalID

	o, err := h.Orders.Submit(c.Request().Context(), d)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"order_id":     o.ID,
		"order_number": o.Number,
		"status":       o.Status,
		"total":        o.Total,
		"order":        o,
	})
}

// Get handles GET /v1/orders/:id.
func (h *OrderHandler) Get(c echo.Context) error {
	o, err := h.Orders.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, o)
}

// Cancel handles POST /v1/orders/:id/cancel.
func (h *OrderHandler) Cancel(c echo.Context) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	o, err := h.Orders.Cancel(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order_id": o.ID, "status": o.Status})
}

// Settle handles POST /v1/orders/:id/settle.  A rejected tender responds
// 422 with the breakdown computed so far so the terminal can show what is
// missing.
func (h *OrderHandler) Settle(c echo.Context) error {
	var req settlement.Request
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	o, out, err := h.Settler.SettlePayment(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		var extra echo.Map
		if len(out.Breakdown) > 0 {
			extra = echo.Map{"breakdown": out.Breakdown, "applied": out.Applied}
		}
		return failWith(c, h.log, err, extra)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"order_id":   o.ID,
		"status":     o.Status,
		"accepted":   out.Accepted,
		"total":      out.Total,
		"applied":    out.Applied,
		"change_due": out.ChangeDue,
		"overpaid":   out.Overpaid,
		"breakdown":  out.Breakdown,
	})
}
