package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/reserva/internal/activity"
	activitydomain "github.com/smallbiznis/reserva/internal/activity/domain"
	"github.com/smallbiznis/reserva/internal/cache"
	"github.com/smallbiznis/reserva/internal/config"
	"github.com/smallbiznis/reserva/internal/customer"
	customerdomain "github.com/smallbiznis/reserva/internal/customer/domain"
	"github.com/smallbiznis/reserva/internal/holding"
	holdingdomain "github.com/smallbiznis/reserva/internal/holding/domain"
	"github.com/smallbiznis/reserva/internal/ledger"
	"github.com/smallbiznis/reserva/internal/observability"
	obsmiddleware "github.com/smallbiznis/reserva/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/reserva/internal/observability/metrics"
	"github.com/smallbiznis/reserva/internal/points"
	pointsdomain "github.com/smallbiznis/reserva/internal/points/domain"
	"github.com/smallbiznis/reserva/internal/product"
	productdomain "github.com/smallbiznis/reserva/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	cache.Module,
	ledger.Module,
	points.Module,
	holding.Module,
	activity.Module,
	customer.Module,
	product.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
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
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	pointsSvc   pointsdomain.Service
	holdingSvc  holdingdomain.Service
	activitySvc activitydomain.Service
	customerSvc customerdomain.Service
	productSvc  productdomain.Service
}

type ServerParams struct {
	fx.In

	Engine      *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	PointsSvc   pointsdomain.Service
	HoldingSvc  holdingdomain.Service
	ActivitySvc activitydomain.Service
	CustomerSvc customerdomain.Service
	ProductSvc  productdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:      p.Engine,
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("http.server"),
		genID:       p.GenID,
		pointsSvc:   p.PointsSvc,
		holdingSvc:  p.HoldingSvc,
		activitySvc: p.ActivitySvc,
		customerSvc: p.CustomerSvc,
		productSvc:  p.ProductSvc,
	}
}

func registerRoutes(s *Server) {
	v1 := s.engine.Group("/v1")
	v1.Use(TenantRequired())

	v1.POST("/customers", s.CreateCustomer)
	v1.GET("/customers", s.ListCustomers)
	v1.GET("/customers/:customer_id", s.GetCustomer)

	v1.POST("/products", s.CreateProduct)
	v1.GET("/products", s.ListProducts)
	v1.GET("/products/:product_id", s.GetProduct)

	v1.GET("/customers/:customer_id/points", s.GetPoints)
	v1.POST("/customers/:customer_id/points/entries", s.AppendPointsEntry)

	v1.GET("/customers/:customer_id/holdings", s.ListHoldings)
	v1.POST("/customers/:customer_id/holdings", s.GrantHolding)
	v1.GET("/holdings/:holding_id", s.GetHolding)
	v1.PATCH("/holdings/:holding_id", s.AdjustHolding)
	v1.DELETE("/holdings/:holding_id", s.RemoveHolding)
	v1.GET("/holdings/:holding_id/entries", s.ListHoldingEntries)
	v1.GET("/customers/:customer_id/holding-entries", s.ListCustomerHoldingEntries)
	v1.PATCH("/ledger-entries/:entry_id/notes", s.AnnotateLedgerEntry)

	// Deprecated: kept for legacy integrations that edit history by
	// text match. New callers must use the explicit-id notes endpoint.
	v1.POST("/holdings/:holding_id/corrections", s.CorrectHoldingEntry)

	v1.GET("/customers/:customer_id/activity", s.GetActivityFeed)
}
