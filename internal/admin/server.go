// Package admin exposes the operational HTTP surface: queue and sync stats,
// stuck-claim recovery, failed-item resurrection, tier recompute and the
// discovery ingress.
package admin

import (
	"net/http"
	"time"

	"github.com/envisionerapp/envisioner-discovery-sub000/internal/config"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/syncworker"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger
	worker *syncworker.Worker
}

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func NewServer(engine *gin.Engine, cfg config.Config, log *zap.Logger, worker *syncworker.Worker) *Server {
	s := &Server{
		engine: engine,
		cfg:    cfg,
		log:    log.Named("admin"),
		worker: worker,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	admin := s.engine.Group("/admin")
	admin.GET("/queue/stats", s.queueStats)
	admin.GET("/sync/stats", s.syncStats)
	admin.POST("/queue/reset-stuck", s.resetStuck)
	admin.POST("/queue/reset-failed", s.resetFailed)
	admin.POST("/tiers/recalculate", s.recalculateTiers)
	admin.POST("/enqueue", s.enqueue)
}

func (s *Server) queueStats(c *gin.Context) {
	stats, err := s.worker.QueueStats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"platforms": stats})
}

func (s *Server) syncStats(c *gin.Context) {
	stats, err := s.worker.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type resetStuckRequest struct {
	OlderThan string `json:"older_than"`
}

func (s *Server) resetStuck(c *gin.Context) {
	var req resetStuckRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var olderThan time.Duration
	if req.OlderThan != "" {
		parsed, err := time.ParseDuration(req.OlderThan)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_older_than"})
			return
		}
		olderThan = parsed
	}

	reset, err := s.worker.ResetStuck(c.Request.Context(), olderThan)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": reset})
}

type resetFailedRequest struct {
	Platform   string `json:"platform" binding:"required"`
	MaxRetries int    `json:"max_retries"`
}

func (s *Server) resetFailed(c *gin.Context) {
	var req resetFailedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	reset, err := s.worker.ResetFailed(
		c.Request.Context(),
		identitydomain.NormalizePlatform(req.Platform),
		req.MaxRetries,
	)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": reset})
}

func (s *Server) recalculateTiers(c *gin.Context) {
	result, err := s.worker.RecalculateAllTiers(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type enqueueRequest struct {
	Candidates []syncworker.Candidate `json:"candidates" binding:"required"`
}

func (s *Server) enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if len(req.Candidates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_candidates"})
		return
	}

	result, err := s.worker.Enqueue(c.Request.Context(), req.Candidates)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.Error("admin.request.failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
