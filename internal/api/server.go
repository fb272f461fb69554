// Package api exposes the burn coordinator over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vietddude/burnrelay/internal/auth"
	"github.com/vietddude/burnrelay/internal/burn"
	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/events"
	"github.com/vietddude/burnrelay/internal/health"
	"github.com/vietddude/burnrelay/internal/infra/storage"
)

// BurnService is what the handlers need from the coordinator.
type BurnService interface {
	Start(ctx context.Context, req burn.BurnRequest) (*burn.StartResult, error)
	Get(ctx context.Context, id string) (*domain.BurnRecord, error)
	List(ctx context.Context, f storage.ListFilter, limit, offset int) ([]*domain.BurnRecord, error)
	Cancel(ctx context.Context, id string) (*domain.BurnRecord, error)
	Resume(ctx context.Context, id string) (bool, error)
	Classify(ctx context.Context, chain domain.ChainID, token string) (domain.TokenClassification, error)
	AnalyzeRoute(ctx context.Context, chain domain.ChainID, token string, amount domain.Amount) (domain.CrossChainRoute, error)
	Stats(ctx context.Context) (burn.Stats, error)
	CommunityStats(ctx context.Context) (burn.CommunityStats, error)
	SetContestActive(active bool)
	ContestActive() bool
}

// Subscriber streams events of one record.
type Subscriber interface {
	Subscribe(recordID string) (<-chan *domain.BurnEvent, func())
}

var _ Subscriber = (*events.Broadcaster)(nil)

type Deps struct {
	Config  *config.AppConfig
	Burns   BurnService
	Auth    *auth.Authenticator
	Events  Subscriber
	Monitor *health.Monitor
}

// Server is the HTTP front of the coordinator.
type Server struct {
	cfg      *config.AppConfig
	burns    BurnService
	auth     *auth.Authenticator
	events   Subscriber
	monitor  *health.Monitor
	engine   *gin.Engine
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewServer(d Deps) *Server {
	s := &Server{
		cfg:     d.Config,
		burns:   d.Burns,
		auth:    d.Auth,
		events:  d.Events,
		monitor: d.Monitor,
		log:     slog.Default().With("component", "api"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	if s.monitor != nil {
		health.Register(r, s.monitor)
	}

	api := r.Group("/api")
	api.GET("/config", s.getConfig)
	api.GET("/chains", s.getChains)
	api.POST("/validate-token", s.validateToken)
	api.POST("/routes/analyze", s.analyzeRoute)
	api.POST("/burns", s.startBurn)
	api.GET("/burns", s.listBurns)
	api.GET("/burns/:id", s.getBurn)
	api.POST("/burns/:id/cancel", s.cancelBurn)
	api.GET("/burns/:id/ws", s.streamBurn)
	api.GET("/stats", s.getStats)
	api.GET("/community/stats", s.getCommunityStats)

	admin := api.Group("/admin")
	admin.POST("/sessions", s.login)
	admin.DELETE("/sessions", s.admin(s.logout))
	admin.POST("/contest", s.admin(s.setContest))
	admin.POST("/burns/:id/resume", s.admin(s.resumeBurn))

	s.engine = r
	return s
}

// Handler returns the gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.log.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.Server.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.cfg.Server.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
