package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pos-engine/internal/cart"
	"github.com/iliyamo/pos-engine/internal/middleware"
	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/seating"
)

// Seating drives table and room state.  Implemented by seating.Allocator.
type Seating interface {
	Get(ctx context.Context, id uint64) (model.SeatResource, error)
	Select(ctx context.Context, id uint64, orderID string, guests int) (seating.Decision, error)
	ResumeExisting(ctx context.Context, id uint64) (model.Order, *cart.Ledger, error)
	StartNewOnRemainder(ctx context.Context, id uint64, orderID string, guests int) (seating.Decision, error)
	Release(ctx context.Context, id uint64) (model.SeatResource, error)
}

// ResourceHandler exposes the floor.  When Sessions is set, a bound
// resource is written into the caller's cart context so the next submit
// commits against it.
type ResourceHandler struct {
	Seating  Seating
	Sessions Sessions
	log      *slog.Logger
}

func NewResourceHandler(s Seating, sessions Sessions, log *slog.Logger) *ResourceHandler {
	if s == nil {
		panic("nil allocator passed to NewResourceHandler")
	}
	return &ResourceHandler{Seating: s, Sessions: sessions, log: log}
}

type seatRequest struct {
	OrderID    string `json:"order_id"`
	GuestCount int    `json:"guest_count"`
}

// Get handles GET /v1/resources/:id.
func (h *ResourceHandler) Get(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid resource id")
	}
	res, err := h.Seating.Get(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"resource": res, "remaining_seats": res.RemainingSeats()})
}

// Select handles POST /v1/resources/:id/select.  An occupied resource
// answers 409 with the decision listing what the caller may do next.
func (h *ResourceHandler) Select(c echo.Context) error {
	return h.seat(c, h.Seating.Select)
}

// StartNew handles POST /v1/resources/:id/start-new.
func (h *ResourceHandler) StartNew(c echo.Context) error {
	return h.seat(c, h.Seating.StartNewOnRemainder)
}

type seatFunc func(ctx context.Context, id uint64, orderID string, guests int) (seating.Decision, error)

func (h *ResourceHandler) seat(c echo.Context, fn seatFunc) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid resource id")
	}
	var req seatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx := c.Request().Context()
	staffID, terminalID := middleware.StaffID(c), middleware.TerminalID(c)

	var sess cart.Session
	if h.Sessions != nil {
		s, err := h.Sessions.Load(ctx, staffID, terminalID)
		if err != nil {
			return fail(c, h.log, err)
		}
		sess = s
		if req.OrderID == "" {
			req.OrderID = s.DraftID
		}
	}

	d, err := fn(ctx, id, req.OrderID, req.GuestCount)
	if errors.Is(err, seating.ErrResourceAlreadyOccupied) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":    "resource_occupied",
			"message":  err.Error(),
			"decision": d,
		})
	}
	if err != nil {
		return fail(c, h.log, err)
	}

	if h.Sessions != nil {
		sess.DraftID = d.OrderID
		sess.Context.Type = model.OrderDineIn
		rid := d.Resource.ID
		sess.Context.ResourceID = &rid
		sess.Context.GuestCount = d.GuestCount
		if err := h.Sessions.Save(ctx, staffID, terminalID, sess); err != nil {
			return fail(c, h.log, err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"decision": d})
}

// Resume handles POST /v1/resources/:id/resume.  The bound order's lines
// come back as a fresh cart for review; paid orders are refused.
func (h *ResourceHandler) Resume(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid resource id")
	}
	o, ledger, err := h.Seating.ResumeExisting(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"order":      o,
		"lines":      ledger.Lines(),
		"item_count": ledger.ItemCount(),
		"subtotal":   ledger.Subtotal(),
	})
}

// Release handles POST /v1/resources/:id/release.
func (h *ResourceHandler) Release(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid resource id")
	}
	res, err := h.Seating.Release(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"resource": res})
}
