// Package admin exposes the HTTP operations surface of parleyd: health
// and readiness probes, Prometheus metrics, and read-only views of the
// live chat state.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/auth"
	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/internal/observability"
)

// Server is the admin HTTP server. It reads live state from the chat
// server and never mutates it.
type Server struct {
	name      string
	chat      *chat.Server
	router    *gin.Engine
	validator auth.Validator
	started   time.Time
}

// New builds the admin server over a running chat server. A nil
// validator leaves the state views open.
func New(name string, chatSrv *chat.Server, corsOrigins []string, validator auth.Validator) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Server{
		name:      name,
		chat:      chatSrv,
		router:    r,
		validator: validator,
		started:   time.Now(),
	}
}

// HTTPRouter returns the underlying router, used by tests.
func (s *Server) HTTPRouter() *gin.Engine { return s.router }

// RegisterRoutes installs the admin endpoints.
func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.started).String(),
			"server": s.name,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"uptime": time.Since(s.started).String(),
			"server": s.name,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// State views sit behind the admin token when one is configured.
	state := s.router.Group("", auth.GinMiddleware(s.validator))

	state.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"count":    s.chat.SessionCount(),
			"online":   s.chat.OnlineCount(),
			"sessions": s.chat.Sessions(),
		})
	})

	state.GET("/topics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"handles": s.chat.TopicCount(),
		})
	})
}

// Serve registers routes and blocks on the listener.
func (s *Server) Serve(addr string) error {
	s.RegisterRoutes()
	return s.router.Run(addr)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
