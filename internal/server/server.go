package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradehook/internal/ports"
)

// Server exposes the webhook ingress and the management API over HTTP.
type Server struct {
	addr   string
	router *gin.Engine
	logger ports.Logger
}

// Config describes the HTTP server dependencies.
type Config struct {
	Addr     string
	Logger   ports.Logger
	Pipeline signalProcessor
	Bots     botManager
	Ledger   tradeLedger
	Closer   positionCloser
	Exchange priceSource
}

// NewServer builds the HTTP server and registers all routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger == nil || cfg.Pipeline == nil || cfg.Bots == nil || cfg.Ledger == nil {
		return nil, fmt.Errorf("missing required dependencies for Server")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))

	h := &handlers{
		pipeline: cfg.Pipeline,
		bots:     cfg.Bots,
		ledger:   cfg.Ledger,
		closer:   cfg.Closer,
		exchange: cfg.Exchange,
		logger:   cfg.Logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/webhook/:id", h.handleWebhook)

	api := router.Group("/api")
	{
		api.POST("/bots", h.handleCreateBot)
		api.GET("/bots", h.handleListBots)
		api.GET("/bots/:id", h.handleGetBot)
		api.PATCH("/bots/:id", h.handleUpdateBot)
		api.DELETE("/bots/:id", h.handleDeleteBot)
		api.GET("/bots/:id/trades", h.handleBotTrades)
		api.GET("/bots/:id/stats", h.handleBotStats)

		api.GET("/trades/:id", h.handleGetTrade)
		api.GET("/trades/:id/pnl", h.handleTradePNL)
		api.POST("/trades/:id/close", h.handleCloseTrade)
	}

	return &Server{addr: cfg.Addr, router: router, logger: cfg.Logger}, nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until ctx is cancelled or it fails. Cancellation
// triggers a graceful shutdown with a 5 second drain window.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": s.addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			s.logger.Error(context.Background(), err, "HTTP server shutdown failed")
		}
		s.logger.Info(context.Background(), "HTTP server stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger(logger ports.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debug(c.Request.Context(), "HTTP request", map[string]interface{}{
			"method":   method,
			"path":     path,
			"status":   c.Writer.Status(),
			"ip":       c.ClientIP(),
			"duration": time.Since(start).String(),
		})
	}
}
