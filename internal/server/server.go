package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	changelogdomain "github.com/smallbiznis/stockledger/internal/changelog/domain"
	"github.com/smallbiznis/stockledger/internal/config"
	inventorydomain "github.com/smallbiznis/stockledger/internal/inventory/domain"
	"github.com/smallbiznis/stockledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/stockledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/stockledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/stockledger/internal/observability/tracing"
	"github.com/smallbiznis/stockledger/internal/sweep"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(func(s *sweep.Sweeper) AlertTrigger { return s }),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// AlertTrigger runs a low stock sweep on demand.
type AlertTrigger interface {
	Run(ctx context.Context, trigger sweep.Trigger) sweep.Result
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	log          *zap.Logger
	inventorySvc inventorydomain.Service
	changelogSvc changelogdomain.Service
	alerts       AlertTrigger
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Log          *zap.Logger
	InventorySvc inventorydomain.Service
	ChangelogSvc changelogdomain.Service
	Alerts       AlertTrigger
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		log:          p.Log.Named("http.server"),
		inventorySvc: p.InventorySvc,
		changelogSvc: p.ChangelogSvc,
		alerts:       p.Alerts,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(ActorContext())

	inventory := api.Group("/inventory")
	{
		inventory.GET("/items", s.ListItems)
		inventory.POST("/items", RequireActor(), s.CreateItem)
		inventory.GET("/items/search", s.SearchItems)
		inventory.GET("/items/filter", s.FilterItems)
		inventory.GET("/items/low-stock", s.ListLowStockItems)
		inventory.GET("/items/sku/:sku", s.GetItemBySKU)
		inventory.GET("/items/:id", s.GetItem)
		inventory.PUT("/items/:id", RequireActor(), s.UpdateItem)
		inventory.PATCH("/items/:id/stock", RequireActor(), s.UpdateStock)
		inventory.DELETE("/items/:id", RequireActor(), s.DeleteItem)
		inventory.GET("/items/:id/history", s.ItemHistory)

		inventory.GET("/categories", s.ListCategories)
		inventory.GET("/suppliers", s.ListSuppliers)
		inventory.GET("/locations", s.ListLocations)

		inventory.GET("/history", s.AllHistory)
		inventory.GET("/history/range", s.HistoryByRange)
		inventory.GET("/history/actor/:actor", s.HistoryByActor)
		inventory.GET("/history/type/:type", s.HistoryByChangeType)
	}

	dashboard := api.Group("/dashboard")
	{
		dashboard.GET("/stats", s.DashboardStats)
		dashboard.GET("/top-categories", s.TopCategories)
		dashboard.GET("/recent-activity", s.RecentActivity)
		dashboard.GET("/low-stock-items", s.ListLowStockItems)
		dashboard.POST("/check-alerts", s.CheckAlerts)
	}

	api.GET("/reconcile", s.Reconcile)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
