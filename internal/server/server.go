package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/cache"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/config"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/database"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/handlers"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/logger"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/metrics"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/middleware"
)

type Deps struct {
	DB       database.Service
	Redis    *redis.Client
	Handler  *handlers.Handler
	Registry *prometheus.Registry
	Log      *logger.Logger
}

type Server struct {
	cfg         *config.Config
	deps        Deps
	httpMetrics *metrics.HTTPMetrics
}

// NewServer creates and configures a new server
func NewServer(cfg *config.Config, deps Deps) *http.Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	newServer := &Server{
		cfg:         cfg,
		deps:        deps,
		httpMetrics: metrics.NewHTTPMetrics(deps.Registry),
	}

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      newServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	deps.Log.Info("server configured", "port", cfg.Port, "env", cfg.AppEnv)
	return server
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("voteledger"))
	r.Use(middleware.RequestLogger(s.deps.Log))
	r.Use(s.httpMetrics.Middleware())

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(s.cfg.CORSAllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler(s.deps.Registry)))

	h := s.deps.Handler
	api := r.Group("/api")
	{
		// Item reads (public)
		api.GET("/items/:id", h.Item.GetItem)

		// Protected routes (authentication required)
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware([]byte(s.cfg.JWTSecret), s.deps.Log))
		{
			protected.POST("/items", h.Item.CreateItem)
			protected.GET("/items/:id/audit", h.Item.AuditItem)

			protected.POST("/vote", h.Vote.Vote)
			protected.POST("/unvote", h.Vote.Unvote)
			protected.GET("/vote-states", h.Vote.States)

			protected.POST("/items/:id/upvote", h.Vote.Upvote)
			protected.POST("/items/:id/downvote", h.Vote.Downvote)
			protected.DELETE("/items/:id/vote", h.Vote.RemoveVote)
		}
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}

	db := s.deps.DB.Health()
	body["database"] = db
	if db["status"] != "up" {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}

	if s.deps.Redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		rd := cache.Health(ctx, s.deps.Redis)
		body["redis"] = rd
		if rd["status"] != "up" {
			// Votes still work without the cache.
			body["status"] = "degraded"
		}
	}

	c.JSON(status, body)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
