package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/pos-engine/internal/cart"
	"github.com/iliyamo/pos-engine/internal/checkout"
	"github.com/iliyamo/pos-engine/internal/config"
	"github.com/iliyamo/pos-engine/internal/database"
	"github.com/iliyamo/pos-engine/internal/handler"
	"github.com/iliyamo/pos-engine/internal/idempotency"
	"github.com/iliyamo/pos-engine/internal/logger"
	"github.com/iliyamo/pos-engine/internal/loyalty"
	"github.com/iliyamo/pos-engine/internal/middleware"
	"github.com/iliyamo/pos-engine/internal/order"
	"github.com/iliyamo/pos-engine/internal/pricing"
	"github.com/iliyamo/pos-engine/internal/queue"
	"github.com/iliyamo/pos-engine/internal/repository"
	"github.com/iliyamo/pos-engine/internal/router"
	"github.com/iliyamo/pos-engine/internal/seating"
	"github.com/iliyamo/pos-engine/internal/service"
	"github.com/iliyamo/pos-engine/internal/settlement"
	"github.com/iliyamo/pos-engine/internal/tax"
	"github.com/iliyamo/pos-engine/internal/utils"
)

func main() {
	cfg := config.Load()
	log := logger.New("pos-engine")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Error("database connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()
	if cfg.Migrate {
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := database.Migrate(mctx, db)
		cancel()
		if err != nil {
			log.Error("database migration failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}

	catalogRepo := repository.NewCatalogRepo(db)
	resourceRepo := repository.NewResourceRepo(db)
	orderRepo := repository.NewOrderRepo(db)
	bookingRepo := repository.NewBookingRepo(db)
	settingsRepo := repository.NewSettingsRepo(db)

	publisher := service.NewPublisher(cfg.AMQPURL, log)

	// Redis backed pieces stay nil interfaces when Redis is down.
	var (
		guard    settlement.Guard
		dedupe   queue.Deduper
		sessions handler.Sessions
		carts    order.CartClearer
	)
	if rdb != nil {
		idem := idempotency.NewStore(rdb, cfg.Policy.IdempotencyTTL)
		guard, dedupe = idem, idem
		store := cart.NewSessionStore(rdb, newSealer(cfg.Policy.CartSealKey, log), cfg.Policy.CartTTL)
		sessions, carts = store, store
	} else {
		log.Warn("redis unavailable: carts, settlement guard and rate limiting are disabled")
	}

	pricingSvc := pricing.NewService(catalogRepo)
	orders := order.NewService(order.Deps{
		Orders:     orderRepo,
		Catalog:    pricingSvc,
		Resources:  resourceRepo,
		Bookings:   bookingRepo,
		Taxes:      settingsRepo,
		Carts:      carts,
		Events:     publisher,
		Loyalty:    loyalty.NewResolver(settingsRepo, cfg.Policy.LoyaltyLookupTimeout, log),
		Calculator: checkout.NewCalculator(cfg.Policy.Redemption(), tax.NewCalculator(cfg.Policy.DefaultTaxRate)),
	}, cfg.Policy.DuplicateRetryBackoff, log)
	settler := settlement.NewService(orderRepo, settingsRepo, guard, publisher, log)
	allocator := seating.NewAllocator(resourceRepo, orderRepo, publisher, log)

	if cfg.AMQPURL != "" {
		consumer := queue.NewBookingConsumer(cfg.AMQPURL, bookingRepo, dedupe, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("booking consumer stopped", slog.Any("error", err))
			}
		}()
	}
	go reconcile(ctx, allocator, cfg.Policy.ReconcileInterval, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.Prometheus())

	h := router.Handlers{
		Catalog:   handler.NewCatalogHandler(pricingSvc, log),
		Orders:    handler.NewOrderHandler(orders, settler, sessions, log),
		Resources: handler.NewResourceHandler(allocator, sessions, log),
	}
	if sessions != nil {
		h.Cart = handler.NewCartHandler(sessions, pricingSvc, orders, log)
	}
	router.RegisterRoutes(e, db)
	router.RegisterV1(e, h, router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Redis:     rdb,
	})

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", slog.String("addr", addr), slog.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", slog.Any("error", err))
	}
	log.Info("stopped")
}

// newSealer builds the cart sealer.  Without CART_SEAL_KEY a per-process key
// is used and carts do not survive a restart.
func newSealer(key []byte, log *slog.Logger) *utils.Sealer {
	if key != nil {
		s, err := utils.NewSealer(key)
		if err == nil {
			return s
		}
		log.Warn("invalid CART_SEAL_KEY, using a per-process key", slog.Any("error", err))
	} else {
		log.Warn("CART_SEAL_KEY not set, using a per-process key")
	}
	s, err := utils.NewEphemeralSealer()
	if err != nil {
		log.Error("cannot generate cart seal key", slog.Any("error", err))
		os.Exit(1)
	}
	return s
}

// reconcile periodically frees resources still held by cancelled orders.
func reconcile(ctx context.Context, a *seating.Allocator, every time.Duration, log *slog.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.Reconcile(ctx)
			if err != nil {
				log.Warn("resource reconcile failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				log.Info("resources reconciled", slog.Int("released", n))
			}
		}
	}
}
