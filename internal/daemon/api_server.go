package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"archivist/internal/logging"
	"archivist/internal/recorder"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind string, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(srv.logger))

	router.POST("/process_video", srv.handleEvent)
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/api/status", srv.handleStatus)
	router.GET("/api/state", srv.handleState)

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start() error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) address() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.listener = nil
}

// handleEvent always acknowledges with an empty 200: recorders do not retry
// and processing is asynchronous.
func (s *apiServer) handleEvent(c *gin.Context) {
	var event recorder.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		logging.WarnWithContext(s.logger, "malformed recorder event", "event_malformed",
			logging.Error(err),
			logging.String("client_ip", c.ClientIP()),
			logging.String(logging.FieldImpact, "event dropped"),
		)
		c.Status(http.StatusOK)
		return
	}
	if !s.daemon.Submit(c.Request.Context(), event) {
		logging.WarnWithContext(s.logger, "event intake interrupted", "event_dropped",
			logging.String("event", event.EventType),
			logging.String(logging.FieldErrorHint, "raise workflow.event_buffer"),
			logging.String(logging.FieldImpact, "event dropped"),
		)
	}
	c.Status(http.StatusOK)
}

func (s *apiServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.daemon.State())
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Debug("request",
			logging.Int("status", c.Writer.Status()),
			logging.Duration("latency", time.Since(start)),
			logging.String("method", method),
			logging.String("path", path),
			logging.String("client_ip", c.ClientIP()),
		)
	}
}
