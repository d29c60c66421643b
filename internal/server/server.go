package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/undangly/undangly/internal/catalog"
	catalogdomain "github.com/undangly/undangly/internal/catalog/domain"
	"github.com/undangly/undangly/internal/config"
	"github.com/undangly/undangly/internal/observability"
	obsmiddleware "github.com/undangly/undangly/internal/observability/logger"
	obsmetrics "github.com/undangly/undangly/internal/observability/metrics"
	obstracing "github.com/undangly/undangly/internal/observability/tracing"
	"github.com/undangly/undangly/internal/order"
	"github.com/undangly/undangly/internal/payment"
	paymentdomain "github.com/undangly/undangly/internal/payment/domain"
	"github.com/undangly/undangly/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	catalog.Module,
	order.Module,
	payment.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

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
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	paymentSvc  paymentdomain.Service
	webhookSvc  paymentdomain.WebhookService
	catalogSvc  catalogdomain.Service
	pollLimiter *ratelimit.StatusPollLimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	PaymentSvc  paymentdomain.Service
	WebhookSvc  paymentdomain.WebhookService
	CatalogSvc  catalogdomain.Service
	PollLimiter *ratelimit.StatusPollLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		paymentSvc:  p.PaymentSvc,
		webhookSvc:  p.WebhookSvc,
		catalogSvc:  p.CatalogSvc,
		pollLimiter: p.PollLimiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/packages", s.ListPackages)
	v1.GET("/packages/:id", s.GetPackage)
	v1.GET("/themes", s.ListThemes)

	v1.POST("/payments", s.StartPayment)
	v1.GET("/payments/:order_ref", s.statusPollRateLimit(), s.GetPaymentStatus)
	v1.POST("/payments/webhook", s.HandleGatewayWebhook)
}
