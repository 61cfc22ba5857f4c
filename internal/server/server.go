package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/locbyt/valetd/internal/config"
	"github.com/locbyt/valetd/internal/observability"
	obsmiddleware "github.com/locbyt/valetd/internal/observability/logger"
	obsmetrics "github.com/locbyt/valetd/internal/observability/metrics"
	orderdomain "github.com/locbyt/valetd/internal/order/domain"
	"github.com/locbyt/valetd/internal/stream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterRoutes()
	}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	ordersvc   orderdomain.Service
	hub        *stream.Hub
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	OrderSvc   orderdomain.Service
	Hub        *stream.Hub
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("server"),
		ordersvc:   p.OrderSvc,
		hub:        p.Hub,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/healthz", s.Health)
	s.engine.GET("/health", s.Health)
	s.engine.GET("/version", s.Version)

	api := s.engine.Group("/api/v1/valet", ParseAuth())
	{
		api.GET("/orders", s.ListOrders)
		api.POST("/orders", s.CreateOrder)
		api.GET("/orders/:id", s.GetOrderByID)
		api.GET("/orders/:id/events", s.ListOrderEvents)
		api.POST("/orders/:id/events", s.AppendOrderEvent)
		api.GET("/stream", s.StreamOrderEvents)
	}

	// Wire-contract alias used by the dashboard.
	s.engine.GET("/stream", s.StreamOrderEvents)
}

func (s *Server) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": s.cfg.AppVersion})
}

func RunHTTP(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    net.JoinHostPort("", cfg.HTTPPort),
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("port", cfg.HTTPPort))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
