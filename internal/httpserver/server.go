package httpserver

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/fdbtracer/internal/supervisor"
)

// DefaultAddr is used when NewServer is given an empty address.
const DefaultAddr = "127.0.0.1:3010"

// StatusSource is the narrow supervisor contract required by the HTTP API.
type StatusSource interface {
	Status() supervisor.Status
}

// EventCounter reports the rows stored in the dump database. Optional.
type EventCounter interface {
	EventCount() (int64, error)
}

// Server provides a read-only HTTP API over the running trace session.
type Server struct {
	addr    string
	status  StatusSource
	counter EventCounter
	metrics http.Handler
	server  *http.Server
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewServer creates a new status API server. counter and metrics may be nil.
func NewServer(addr string, status StatusSource, counter EventCounter, metrics http.Handler) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    addr,
		status:  status,
		counter: counter,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/status", s.handleStatus)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = listener.Addr().String()

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("httpserver: serve error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listen address; after Start it is the bound address.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.status.Status()
	if st.SessionID == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	status := "ok"
	if st.Tripped {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"session_id": st.SessionID,
		"uptime":     st.Uptime.Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	st := s.status.Status()
	body := gin.H{
		"session_id": st.SessionID,
		"source":     st.Source,
		"started":    st.Started,
		"uptime":     st.Uptime.Round(time.Second).String(),
		"state":      st.Stats.State.String(),
		"stopped":    st.Stopped,
		"lines": gin.H{
			"processed": st.Stats.LinesProcessed,
			"queued":    st.Stats.LinesLeft,
		},
		"events": gin.H{
			"persisted": st.Stats.EventsPersisted,
			"failed":    st.Stats.PersistFailures,
		},
		"breaker": gin.H{
			"consecutive_errors": st.Errors,
			"max_errors":         st.MaxErrors,
			"tripped":            st.Tripped,
		},
	}
	if s.counter != nil {
		if n, err := s.counter.EventCount(); err == nil {
			body["stored_events"] = n
		}
	}
	c.JSON(http.StatusOK, body)
}
