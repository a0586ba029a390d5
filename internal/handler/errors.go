package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pos-engine/internal/cart"
	"github.com/iliyamo/pos-engine/internal/discount"
	"github.com/iliyamo/pos-engine/internal/model"
	"github.com/iliyamo/pos-engine/internal/order"
	"github.com/iliyamo/pos-engine/internal/repository"
	"github.com/iliyamo/pos-engine/internal/seating"
	"github.com/iliyamo/pos-engine/internal/settlement"
	"github.com/iliyamo/pos-engine/internal/tax"
	"github.com/iliyamo/pos-engine/internal/validation"
)

// apiError is one row of the error table: the HTTP status and the stable
// code clients switch on.
type apiError struct {
	status int
	code   string
}

// sentinels maps domain errors onto responses.  Order matters only for
// errors that wrap more than one sentinel.
var sentinels = []struct {
	err error
	api apiError
}{
	{seating.ErrResourceReserved, apiError{http.StatusConflict, "resource_reserved"}},
	{seating.ErrResourceAlreadyOccupied, apiError{http.StatusConflict, "resource_occupied"}},
	{seating.ErrNoRemainingSeats, apiError{http.StatusConflict, "no_remaining_seats"}},
	{seating.ErrOrderUnsettled, apiError{http.StatusConflict, "order_unsettled"}},
	{model.ErrNotBindable, apiError{http.StatusConflict, "resource_not_held"}},
	{seating.ErrNoBoundOrder, apiError{http.StatusConflict, "no_bound_order"}},
	{seating.ErrOrderPaid, apiError{http.StatusConflict, "order_paid"}},
	{seating.ErrOrderCancelled, apiError{http.StatusConflict, "order_cancelled"}},
	{seating.ErrInvalidGuestCount, apiError{http.StatusUnprocessableEntity, "invalid_guest_count"}},
	{seating.ErrContention, apiError{http.StatusConflict, "resource_contention"}},

	{settlement.ErrEmptySplit, apiError{http.StatusUnprocessableEntity, "empty_split"}},
	{settlement.ErrInsufficientSplitCoverage, apiError{http.StatusUnprocessableEntity, "insufficient_split_coverage"}},
	{settlement.ErrPaymentBelowTotal, apiError{http.StatusUnprocessableEntity, "payment_below_total"}},
	{settlement.ErrOverpaymentWithoutChange, apiError{http.StatusUnprocessableEntity, "overpayment_without_change"}},
	{settlement.ErrAmountReceivedRequired, apiError{http.StatusUnprocessableEntity, "amount_received_required"}},
	{settlement.ErrNegativeAmount, apiError{http.StatusUnprocessableEntity, "negative_amount"}},
	{settlement.ErrUnknownMethod, apiError{http.StatusUnprocessableEntity, "unknown_payment_method"}},
	{settlement.ErrMethodNotSplittable, apiError{http.StatusUnprocessableEntity, "method_not_splittable"}},
	{settlement.ErrConcurrentSettlement, apiError{http.StatusConflict, "concurrent_settlement_conflict"}},
	{settlement.ErrOrderCancelled, apiError{http.StatusConflict, "order_cancelled"}},
	{settlement.ErrTotalMismatch, apiError{http.StatusConflict, "total_mismatch"}},

	{order.ErrDuplicateOrderConflict, apiError{http.StatusConflict, "duplicate_order_conflict"}},
	{order.ErrOrderPaid, apiError{http.StatusConflict, "order_paid"}},

	{cart.ErrLineNotFound, apiError{http.StatusNotFound, "line_not_found"}},
	{cart.ErrInvalidQuantity, apiError{http.StatusUnprocessableEntity, "invalid_quantity"}},
	{discount.ErrNegativeValue, apiError{http.StatusUnprocessableEntity, "invalid_discount"}},
	{discount.ErrUnknownKind, apiError{http.StatusUnprocessableEntity, "invalid_discount"}},
	{discount.ErrUnknownMode, apiError{http.StatusUnprocessableEntity, "invalid_discount"}},
	{tax.ErrNegativeRate, apiError{http.StatusUnprocessableEntity, "invalid_tax_rate"}},

	{repository.ErrNotFound, apiError{http.StatusNotFound, "not_found"}},
}

func classify(err error) (apiError, bool) {
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.api, true
		}
	}
	return apiError{}, false
}

// fail writes err as a JSON error.  Known domain errors keep their message;
// anything else is logged and reported as internal_error.
func fail(c echo.Context, log *slog.Logger, err error) error {
	return failWith(c, log, err, nil)
}

// failWith is fail with extra fields merged into a domain error body.
func failWith(c echo.Context, log *slog.Logger, err error, extra echo.Map) error {
	body := echo.Map{}
	for k, v := range extra {
		body[k] = v
	}
	var (
		ve validation.Error
		ce *settlement.CoverageError
	)
	switch {
	case errors.As(err, &ve):
		body["error"], body["field"], body["message"] = "validation_failed", ve.Field, ve.Message
		return c.JSON(http.StatusUnprocessableEntity, body)
	case errors.As(err, &ce):
		body["error"], body["message"] = "insufficient_split_coverage", err.Error()
		body["total"], body["applied"], body["shortfall"] = ce.Total, ce.Applied, ce.Shortfall
		return c.JSON(http.StatusUnprocessableEntity, body)
	}
	if api, ok := classify(err); ok {
		body["error"], body["message"] = api.code, err.Error()
		return c.JSON(api.status, body)
	}
	if log == nil {
		log = slog.Default()
	}
	log.Error("request failed",
		slog.String("method", c.Request().Method),
		slog.String("path", c.Path()),
		slog.Any("error", err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error", "message": "internal server error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "bad_request", "message": msg})
}

// idParam parses a positive numeric path parameter.
func idParam(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
