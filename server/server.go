// Package server exposes the reminder store and the delivery agent over a
// local HTTP and WebSocket surface
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"git.0xdad.com/tblyler/lifespan/agent"
	"git.0xdad.com/tblyler/lifespan/logger"
	"git.0xdad.com/tblyler/lifespan/reminder"
)

const (
	shutdownTimeout = 10 * time.Second
	pingTimeout     = 2 * time.Second
	relayBuffer     = 64
)

// Server is the local HTTP surface
type Server struct {
	echo  *echo.Echo
	store *reminder.Store
	agent *agent.Agent
	hub   *Hub
	log   *log.Logger
	now   func() time.Time
}

// New creates a server over store. deliveryAgent may be nil, in which case
// the agent endpoints answer 503.
func New(store *reminder.Store, deliveryAgent *agent.Agent, l *log.Logger) *Server {
	l = logger.Component(l, "server")

	s := &Server{
		echo:  echo.New(),
		store: store,
		agent: deliveryAgent,
		hub:   NewHub(l),
		log:   l,
		now:   time.Now,
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(recovery(l))
	s.echo.Use(middleware.RequestID())
	s.echo.Use(requestLogger(l))

	s.routes()

	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/ws", s.requireAgent(s.handleConnect))

	g := s.echo.Group("/reminders")
	g.GET("", s.handleList)
	g.POST("", s.handleCreate)
	g.GET("/stats", s.handleStats)
	g.GET("/:id", s.handleGet)
	g.PATCH("/:id", s.handleUpdate)
	g.DELETE("/:id", s.handleRemove)

	// Pushover opens action URLs in a browser, so GET is accepted as well
	actions := s.requireAgent(s.handleAction)
	s.echo.GET("/notifications/:tag/actions/:action", actions)
	s.echo.POST("/notifications/:tag/actions/:action", actions)
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Hub returns the WebSocket relay hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	if s.agent != nil {
		relays, unsubscribe := s.agent.Subscribe(relayBuffer)
		defer unsubscribe()

		go s.hub.Relay(ctx, relays)
	}

	errs := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errs <- s.echo.Start(addr)
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("failed to serve on %s: %w", addr, err)

	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	s.log.Info("stopped")

	return nil
}

func (s *Server) requireAgent(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.agent == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, agent.ErrNotRunning.Error())
		}

		return next(c)
	}
}

func httpError(err error) error {
	switch {
	case errors.Is(err, reminder.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, reminder.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, agent.ErrNotRunning), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
