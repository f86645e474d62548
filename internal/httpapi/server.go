package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/MimeLyc/latexmt-web/internal/logstream"
	"github.com/MimeLyc/latexmt-web/internal/service"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

const (
	defaultStreamInterval = time.Second
	defaultPingInterval   = 25 * time.Second
)

type Server struct {
	single *service.SingleShot
	jobs   *service.JobService
	logs   *logstream.Streamer
	logger *log.Logger

	jobsEnabled    bool
	activeJobs     func() int
	allowOrigins   []string
	uiStaticDir    string
	streamInterval time.Duration
	pingInterval   time.Duration

	engine *gin.Engine
	server *http.Server
}

type Option func(*Server)

// WithJobs enables the /api/jobs routes.
func WithJobs(svc *service.JobService, logs *logstream.Streamer) Option {
	return func(s *Server) {
		s.jobs = svc
		s.logs = logs
		s.jobsEnabled = svc != nil
	}
}

// WithActiveJobs reports the number of running jobs on /health.
func WithActiveJobs(fn func() int) Option {
	return func(s *Server) {
		s.activeJobs = fn
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.allowOrigins = origins
	}
}

func WithUI(staticDir string) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
	}
}

// WithIntervals overrides the job-list push interval and the websocket ping
// interval. Zero keeps the default.
func WithIntervals(stream, ping time.Duration) Option {
	return func(s *Server) {
		if stream > 0 {
			s.streamInterval = stream
		}
		if ping > 0 {
			s.pingInterval = ping
		}
	}
}

func NewServer(single *service.SingleShot, opts ...Option) *Server {
	s := &Server{
		single:         single,
		logger:         log.GetLogger(),
		streamInterval: defaultStreamInterval,
		pingInterval:   defaultPingInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "http")
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(accessLog(s.logger))
	r.Use(cors.New(s.corsConfig()))

	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":       "ok",
			"jobs_enabled": s.jobsEnabled,
		}
		if s.activeJobs != nil {
			body["active_jobs"] = s.activeJobs()
		}
		c.JSON(http.StatusOK, body)
	})
	r.POST("/api/translate", s.handleTranslate)

	jobs := r.Group("/api/jobs")
	jobs.GET("/:id/log", s.handleJobLog)

	gated := jobs.Group("", s.requireJobs)
	{
		gated.GET("", s.handleListJobs)
		gated.POST("", s.handleSubmitJob)
		gated.GET("/stream", s.handleJobStream)
		gated.GET("/:id", s.handleGetJob)
		gated.DELETE("/:id", s.handleDeleteJob)
		gated.GET("/:id/download", s.handleDownload)
	}

	r.NoRoute(s.handleStatic)
	s.engine = r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	if len(s.allowOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.allowOrigins
	}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader}
	cfg.ExposeHeaders = []string{requestIDHeader, outcomeHeader, "Content-Disposition"}
	return cfg
}

func (s *Server) handleStatic(c *gin.Context) {
	if s.uiStaticDir == "" || c.Request.Method != http.MethodGet {
		writeError(c, http.StatusNotFound, "not found")
		return
	}

	rel := strings.TrimPrefix(path.Clean(c.Request.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		c.File(indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, filepath.FromSlash(rel))
	if _, err := os.Stat(filePath); err != nil {
		c.File(indexPath)
		return
	}
	c.File(filePath)
}
