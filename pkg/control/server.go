// Package control serves the supervisor's HTTP control API and provides a
// typed client for it.
package control

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
	"github.com/core-tools/hsu-procsup-go/pkg/logcollection"
	"github.com/core-tools/hsu-procsup-go/pkg/logging"
	"github.com/core-tools/hsu-procsup-go/pkg/processmanagement"

	"github.com/gin-gonic/gin"
)

const apiPrefix = "/api/v1"

// LogSource streams aggregated child output
type LogSource interface {
	Follow(buffer int) (<-chan logcollection.LogLine, func())
}

type ServerOptions struct {
	Transport TransportConfig

	// Logs backs GET /api/v1/logs; nil disables the route
	Logs LogSource

	// Metrics backs GET /metrics; nil disables the route
	Metrics http.Handler
}

// Server is the HTTP server for the control API
type Server struct {
	supervisor processmanagement.ProcessSupervisor
	options    ServerOptions
	engine     *gin.Engine
	startedAt  time.Time
	logger     logging.Logger

	mutex    sync.Mutex
	listener net.Listener
	server   *http.Server

	// closed by Stop so open log streams end and Shutdown can finish
	done     chan struct{}
	stopOnce sync.Once
}

// NewServer creates a control server; it does not listen until Start
func NewServer(supervisor processmanagement.ProcessSupervisor, options ServerOptions, logger logging.Logger) (*Server, error) {
	if supervisor == nil {
		return nil, errors.NewValidationError("supervisor is required", nil)
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	s := &Server{
		supervisor: supervisor,
		options:    options,
		startedAt:  time.Now(),
		logger:     logger,
		done:       make(chan struct{}),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	api := engine.Group(apiPrefix)
	api.GET("/health", s.handleHealth)
	api.GET("/processes", s.handleList)
	api.GET("/processes/:name", s.handleStatus)
	api.POST("/processes/:name/start", s.handleOperation(processmanagement.OperationStart, supervisor.Start))
	api.POST("/processes/:name/stop", s.handleOperation(processmanagement.OperationStop, supervisor.Stop))
	api.POST("/processes/:name/restart", s.handleOperation(processmanagement.OperationRestart, supervisor.Restart))
	api.DELETE("/processes/:name", s.handleDelete)
	api.POST("/bulk/start", s.handleBulk(supervisor.StartAll, supervisor.StartNames))
	api.POST("/bulk/stop", s.handleBulk(supervisor.StopAll, supervisor.StopNames))
	api.POST("/bulk/restart", s.handleBulk(supervisor.RestartAll, supervisor.RestartNames))
	if options.Logs != nil {
		api.GET("/logs", s.handleLogs)
	}
	if options.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(options.Metrics))
	}

	s.engine = engine
	return s, nil
}

// Handler exposes the routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured transport and serves in the background
func (s *Server) Start(ctx context.Context) error {
	listener, err := CreateListener(s.options.Transport)
	if err != nil {
		return errors.NewIOError("failed to create control listener", err)
	}
	s.serve(listener)
	return nil
}

func (s *Server) serve(listener net.Listener) {
	server := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mutex.Lock()
	s.listener = listener
	s.server = server
	s.mutex.Unlock()

	s.logger.Infof("Starting control server on %s", GetListenerAddress(listener))

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Control server error: %v", err)
		}
	}()
}

// Stop ends open log streams and shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })

	s.mutex.Lock()
	server := s.server
	s.mutex.Unlock()
	if server == nil {
		return nil
	}

	s.logger.Infof("Stopping control server")
	if err := server.Shutdown(ctx); err != nil {
		return errors.NewIOError("control server shutdown failed", err)
	}
	return nil
}

// GetAddress returns the server's listen address, empty before Start
func (s *Server) GetAddress() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener == nil {
		return ""
	}
	return GetListenerAddress(s.listener)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debugf("Control request, method: %s, path: %s, status: %d, duration: %v",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// HTTP Handlers

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:          "healthy",
		SupervisorState: s.supervisor.GetSupervisorState(),
		Processes:       len(s.supervisor.Names()),
		Uptime:          time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, ProcessListResponse{Processes: s.supervisor.StatusAll()})
}

func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.supervisor.Status(c.Param("name"))
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleOperation(operation string, op func(ctx context.Context, name string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		s.logger.Infof("Control request, operation: %s, name: %s", operation, name)

		if err := op(c.Request.Context(), name); err != nil {
			s.sendError(c, err)
			return
		}

		response := OperationResponse{Success: true, Name: name}
		if status, err := s.supervisor.Status(name); err == nil {
			response.Status = &status
		}
		c.JSON(http.StatusOK, response)
	}
}

func (s *Server) handleDelete(c *gin.Context) {
	name := c.Param("name")
	s.logger.Infof("Control request, operation: %s, name: %s", processmanagement.OperationRemove, name)

	if err := s.supervisor.Delete(c.Request.Context(), name); err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, OperationResponse{Success: true, Name: name})
}

func (s *Server) handleBulk(
	all func(ctx context.Context) processmanagement.BulkResult,
	named func(ctx context.Context, names []string) processmanagement.BulkResult,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BulkRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				s.sendError(c, errors.NewValidationError("invalid request body", err))
				return
			}
		}

		var result processmanagement.BulkResult
		if len(req.Names) == 0 {
			result = all(c.Request.Context())
		} else {
			result = named(c.Request.Context(), req.Names)
		}
		c.JSON(http.StatusOK, newBulkResponse(result))
	}
}

// handleLogs streams newline-delimited JSON log lines until the client goes
// away, the server stops or the source closes. ?process= filters by name.
func (s *Server) handleLogs(c *gin.Context) {
	filter := make(map[string]bool)
	for _, name := range c.QueryArray("process") {
		filter[name] = true
	}

	lines, unsubscribe := s.options.Logs.Follow(logcollection.DefaultSubscriberBuffer)
	defer unsubscribe()

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	encoder := json.NewEncoder(c.Writer)
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if len(filter) > 0 && !filter[line.Process] {
				continue
			}
			if err := encoder.Encode(line); err != nil {
				s.logger.Debugf("Log stream ended: %v", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

// Helper methods

func (s *Server) sendError(c *gin.Context, err error) {
	statusCode := HTTPStatus(err)
	if statusCode >= http.StatusInternalServerError {
		s.logger.Errorf("Request error: %v (status: %d)", err, statusCode)
	} else {
		s.logger.Warnf("Request error: %v (status: %d)", err, statusCode)
	}
	c.JSON(statusCode, newErrorResponse(err))
}
