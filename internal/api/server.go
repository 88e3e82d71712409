// Package api exposes the pipeline and its digests over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"feed-narrator/internal/models"
	"feed-narrator/internal/pipeline"
	"feed-narrator/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrRunInProgress is returned when a run is triggered while another is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// RunFunc performs one pipeline run, reporting state changes to onState.
type RunFunc func(ctx context.Context, onState func(pipeline.State)) (*models.RunReport, error)

// Options configure a Server.
type Options struct {
	Port     string
	SiteName string

	// BaseURL is the public address used for links in the podcast feed.
	BaseURL string

	Run   RunFunc
	Store *storage.LocalStore
	Log   logrus.FieldLogger
}

// Server is the HTTP surface.
type Server struct {
	opts   Options
	router *gin.Engine
	log    logrus.FieldLogger

	mu            sync.Mutex
	isProcessing  bool
	state         pipeline.State
	lastReport    *models.RunReport
	lastProcessed time.Time
}

// NewServer creates a Server and registers its routes.
func NewServer(opts Options) *Server {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:" + opts.Port
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(opts.Log), cors())

	s := &Server{
		opts:   opts,
		router: router,
		log:    opts.Log,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthHandler)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/process", s.processHandler)
		v1.GET("/status", s.getStatusHandler)
		v1.GET("/digests", s.listDigestsHandler)
		v1.DELETE("/digests/:prefix", s.deleteDigestHandler)
	}

	s.router.GET("/audio/:filename", s.serveFileHandler(storage.AudioExt, "audio/wav"))
	s.router.GET("/text/:filename", s.serveFileHandler(storage.TextExt, "text/plain; charset=utf-8"))
	s.router.GET("/feed.xml", s.podcastFeedHandler)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured port until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.opts.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("port", s.opts.Port).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// TriggerRun runs the pipeline synchronously unless another run is active.
func (s *Server) TriggerRun(ctx context.Context) (*models.RunReport, error) {
	if !s.begin() {
		return nil, ErrRunInProgress
	}
	return s.execute(ctx)
}

// begin marks a run as started. It reports false when one is already active.
func (s *Server) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isProcessing {
		return false
	}
	s.isProcessing = true
	s.state = pipeline.StateStart
	return true
}

func (s *Server) execute(ctx context.Context) (*models.RunReport, error) {
	report, err := s.opts.Run(ctx, s.setState)

	s.mu.Lock()
	s.isProcessing = false
	s.lastReport = report
	s.lastProcessed = time.Now()
	s.mu.Unlock()

	return report, err
}

func (s *Server) setState(state pipeline.State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).Round(time.Millisecond),
		}).Debug("request")
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
