package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/viveroverde/vivero/internal/audit/domain"
	checkoutdomain "github.com/viveroverde/vivero/internal/checkout/domain"
	"github.com/viveroverde/vivero/internal/config"
	obslogger "github.com/viveroverde/vivero/internal/observability/logger"
	obsmetrics "github.com/viveroverde/vivero/internal/observability/metrics"
	orderdomain "github.com/viveroverde/vivero/internal/order/domain"
	reconciledomain "github.com/viveroverde/vivero/internal/reconcile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Log:             log.Named("http"),
		Debug:           !cfg.IsProduction(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger) *gin.Engine {
	return NewEngine(cfg, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	db           *gorm.DB
	genID        *snowflake.Node
	reconcileSvc reconciledomain.Service
	checkoutSvc  checkoutdomain.Service
	orderSvc     orderdomain.Service
	auditSvc     auditdomain.Service
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	DB           *gorm.DB
	GenID        *snowflake.Node
	ReconcileSvc reconciledomain.Service
	CheckoutSvc  checkoutdomain.Service
	OrderSvc     orderdomain.Service
	AuditSvc     auditdomain.Service
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("server"),
		db:           p.DB,
		genID:        p.GenID,
		reconcileSvc: p.ReconcileSvc,
		checkoutSvc:  p.CheckoutSvc,
		orderSvc:     p.OrderSvc,
		auditSvc:     p.AuditSvc,
		obsMetrics:   p.ObsMetrics,
	}

	svc.registerRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/webhooks/payments", s.HandlePaymentWebhook)

	v1.POST("/checkout/stage", s.StageCheckout)
	v1.GET("/orders/:id", s.GetOrderByID)
	v1.POST("/orders/:id/fulfillment", s.AdvanceFulfillment)
	v1.GET("/audit-logs", s.ListAuditLogs)
}
