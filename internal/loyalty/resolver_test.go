package loyalty

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/iliyamo/pos-engine/internal/model"
)

type storeFunc func(ctx context.Context, key string) (int, error)

func (f storeFunc) AvailablePoints(ctx context.Context, key string) (int, error) { return f(ctx, key) }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPoints(t *testing.T) {
	ok := storeFunc(func(_ context.Context, key string) (int, error) {
		if key == "c-1" || key == "555" {
			return 5000, nil
		}
		return 0, nil
	})
	failing := storeFunc(func(context.Context, string) (int, error) { return 0, errors.New("connection refused") })
	slow := storeFunc(func(ctx context.Context, _ string) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
			return 9000, nil
		}
	})

	tests := []struct {
		name     string
		store    Store
		customer model.CustomerInfo
		want     int
	}{
		{"by id", ok, model.CustomerInfo{ID: "c-1"}, 5000},
		{"by phone", ok, model.CustomerInfo{Phone: "555"}, 5000},
		{"anonymous", ok, model.CustomerInfo{}, 0},
		{"lookup error", failing, model.CustomerInfo{ID: "c-1"}, 0},
		{"timeout", slow, model.CustomerInfo{ID: "c-1"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.store, 20*time.Millisecond, quiet())
			if got := r.Points(context.Background(), tt.customer); got != tt.want {
				t.Fatalf("points = %d, want %d", got, tt.want)
			}
		})
	}
}
