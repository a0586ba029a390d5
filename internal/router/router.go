package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/pos-engine/internal/config"
	"github.com/iliyamo/pos-engine/internal/handler"
	"github.com/iliyamo/pos-engine/internal/middleware"
)

// RegisterRoutes registers the unauthenticated operational endpoints:
// liveness, readiness and Prometheus metrics.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Handlers groups the /v1 handlers.  Cart is nil when cart sessions are
// disabled.
type Handlers struct {
	Catalog   *handler.CatalogHandler
	Cart      *handler.CartHandler
	Orders    *handler.OrderHandler
	Resources *handler.ResourceHandler
}

// Options carries what the /v1 middleware chain needs.  Redis may be nil;
// rate limiting and the catalog cache then switch off.
type Options struct {
	JWTSecret string
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Redis     *redis.Client
}

// RegisterV1 mounts the POS API.  Every route requires a terminal token and
// is rate limited per terminal.
func RegisterV1(e *echo.Echo, h Handlers, opts Options) {
	g := e.Group("/v1",
		middleware.TerminalAuth(opts.JWTSecret),
		middleware.NewTokenBucket(opts.RateLimit, opts.Redis),
	)

	// Catalog reads do not depend on the caller and are safe to cache.
	cache := middleware.NewRedisCache(opts.Cache, opts.Redis)
	g.GET("/catalog/items/:id", h.Catalog.GetItem, cache)
	g.POST("/catalog/items/:id/price", h.Catalog.Price)

	if h.Cart != nil {
		g.GET("/cart", h.Cart.Get)
		g.DELETE("/cart", h.Cart.Clear)
		g.POST("/cart/lines", h.Cart.AddLine)
		g.PATCH("/cart/lines/:id", h.Cart.UpdateLine)
		g.DELETE("/cart/lines/:id", h.Cart.RemoveLine)
		g.PUT("/cart/context", h.Cart.SetContext)
		g.GET("/cart/summary", h.Cart.Summary)
	}

	g.POST("/orders", h.Orders.Submit)
	g.GET("/orders/:id", h.Orders.Get)
	g.POST("/orders/:id/cancel", h.Orders.Cancel)
	g.POST("/orders/:id/settle", h.Orders.Settle)

	g.GET("/resources/:id", h.Resources.Get)
	g.POST("/resources/:id/select", h.Resources.Select)
	g.POST("/resources/:id/resume", h.Resources.Resume)
	g.POST("/resources/:id/start-new", h.Resources.StartNew)
	g.POST("/resources/:id/release", h.Resources.Release)
}
