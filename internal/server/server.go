// Package server exposes the trading engine and its companion services
// over HTTP and a WebSocket event stream.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradedesk/internal/analytics"
	"tradedesk/internal/broker"
	"tradedesk/internal/config"
	"tradedesk/internal/logging"
	"tradedesk/internal/marketdata"
	"tradedesk/internal/resilience"
	"tradedesk/internal/store"
	"tradedesk/internal/stream"
)

const shutdownTimeout = 10 * time.Second

// Deps are the services behind the API. Poller, Analytics and Journal are
// optional; their routes answer 503 when absent.
type Deps struct {
	Broker    *broker.PaperBroker
	Market    *marketdata.Service
	Poller    *marketdata.Poller
	Analytics *analytics.Simulator
	Journal   store.EventStore
	Hub       *stream.Hub
	Health    *resilience.HealthMonitor
	Logger    zerolog.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg      config.ServerConfig
	deps     Deps
	logger   zerolog.Logger
	router   *gin.Engine
	upgrader websocket.Upgrader
}

// New builds the router. It does not start listening.
func New(cfg config.ServerConfig, deps Deps) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logging.WithComponent(deps.Logger, "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	s.routes(r)
	s.router = r

	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/ws", s.streamEvents)

	v1 := r.Group("/v1")
	{
		v1.POST("/orders", s.placeOrder)
		v1.GET("/orders", s.listOrders)
		v1.GET("/orders/:id", s.getOrder)
		v1.DELETE("/orders/:id", s.cancelOrder)

		v1.GET("/trades", s.listTrades)
		v1.GET("/positions", s.listPositions)
		v1.POST("/positions/prices", s.updatePrices)
		v1.GET("/account", s.account)
		v1.GET("/stats", s.stats)

		v1.GET("/market", s.marketData)
		v1.GET("/market/health", s.marketHealth)
		v1.GET("/market/cache", s.cacheStats)
		v1.DELETE("/market/cache", s.clearCache)

		v1.GET("/instruments", s.instruments)
		v1.GET("/instruments/:symbol/history", s.priceHistory)
		v1.GET("/movers", s.movers)

		v1.GET("/watchlist", s.watchlist)
		v1.POST("/watchlist", s.addToWatchlist)
		v1.DELETE("/watchlist/:symbol", s.removeFromWatchlist)

		v1.GET("/analytics", s.analytics)

		v1.GET("/journal/events", s.journalEvents)
		v1.GET("/journal/trades", s.journalTrades)
	}
}

// Handler returns the router for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("API shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := s.logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = s.logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}
