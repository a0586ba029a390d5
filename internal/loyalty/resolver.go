// Package loyalty reads customer point balances for redemption.  Lookups are
// bounded by a timeout and degrade to zero points instead of failing orders.
package loyalty

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iliyamo/pos-engine/internal/metrics"
	"github.com/iliyamo/pos-engine/internal/model"
)

// ErrLookupFailed marks a failed or timed out balance lookup.
var ErrLookupFailed = errors.New("external lookup failed")

// Store returns the available points for a customer key (id or phone).
type Store interface {
	AvailablePoints(ctx context.Context, customerKey string) (int, error)
}

// Resolver wraps a Store with a timeout and degradation to zero.
type Resolver struct {
	store   Store
	timeout time.Duration
	log     *slog.Logger
}

func NewResolver(store Store, timeout time.Duration, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{store: store, timeout: timeout, log: log}
}

// Points returns the customer's available points, or zero when the customer
// is anonymous, has no account, or the lookup fails.
func (r *Resolver) Points(ctx context.Context, c model.CustomerInfo) int {
	key := c.ID
	if key == "" {
		key = c.Phone
	}
	if key == "" || r == nil || r.store == nil {
		return 0
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	pts, err := r.store.AvailablePoints(ctx, key)
	if err != nil {
		metrics.RecordLookupFailure("loyalty")
		r.log.Warn("loyalty lookup degraded to zero points",
			slog.String("error_code", "ExternalLookupFailed"),
			slog.Any("error", errors.Join(ErrLookupFailed, err)))
		return 0
	}
	if pts < 0 {
		return 0
	}
	return pts
}
