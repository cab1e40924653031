package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fxreplay/alerts"
	"fxreplay/analytics"
	"fxreplay/config"
	"fxreplay/feed"
	"fxreplay/sim"
	"fxreplay/store"
)

// Server is the HTTP surface over the replay engine. Handlers are thin
// JSON adapters; all semantics live in the sim package.
type Server struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *store.Store
	feed      *feed.Service
	session   *sim.Session
	analytics *analytics.Service
	alerts    *alerts.Service

	httpServer *http.Server
}

func NewServer(cfg *config.Config, st *store.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	f := feed.New(st)
	s := &Server{
		cfg:       cfg,
		log:       log,
		store:     st,
		feed:      f,
		session:   sim.NewSession(st, f, log),
		analytics: analytics.New(st),
		alerts: alerts.New(st, alerts.Rules{
			MaxConsecutiveLosses: cfg.Alerts.MaxConsecutiveLosses,
			DailyLossLimit:       dec(cfg.Alerts.DailyLossLimit),
			MaxDrawdownPercent:   dec(cfg.Alerts.MaxDrawdownPercent),
			MinTradeInterval:     time.Duration(cfg.Alerts.MinTradeIntervalMin) * time.Minute,
			MaxLotSize:           dec(cfg.Alerts.MaxLotSize),
		}),
	}

	// Bind to a run that survived a restart, if any.
	if err := s.session.Attach(); err != nil && !isKind(err, sim.ErrNoActiveSimulation) {
		log.Warn("attach to active simulation", "err", err)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Routes builds the gin engine with every API route mounted.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	api := r.Group("/api")
	{
		simAPI := api.Group("/simulation")
		{
			simAPI.POST("/start", s.startSimulation)
			simAPI.POST("/pause", s.pauseSimulation)
			simAPI.POST("/resume", s.resumeSimulation)
			simAPI.POST("/stop", s.stopSimulation)
			simAPI.POST("/speed", s.setSpeed)
			simAPI.POST("/advance", s.advanceTime)
			simAPI.GET("/status", s.simulationStatus)
		}

		api.POST("/orders", s.createOrder)
		api.GET("/orders", s.listOrders)

		pending := api.Group("/orders/pending")
		{
			pending.POST("", s.createPendingOrder)
			pending.GET("", s.listPendingOrders)
			pending.PATCH("/:id", s.updatePendingOrder)
			pending.DELETE("/:id", s.cancelPendingOrder)
		}

		api.GET("/positions", s.openPositions)
		api.POST("/positions/:id/close", s.closePosition)
		api.PUT("/positions/:id/sltp", s.setSLTP)

		api.GET("/account", s.accountSnapshot)
		api.GET("/trades", s.tradeHistory)

		api.GET("/market/candles", s.candles)
		api.GET("/market/range", s.dataRange)
		api.POST("/import", s.importCandles)

		api.GET("/analytics/metrics", s.metrics)
		api.GET("/analytics/equity", s.equityCurve)
		api.GET("/alerts", s.evaluateAlerts)
	}
	return r
}

// Start serves until ctx is cancelled, then drains with a short grace
// period.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
