package api

import (
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/badlogic/nazi-radio/internal/api/handlers"
	"github.com/badlogic/nazi-radio/internal/api/middleware"
	"github.com/badlogic/nazi-radio/internal/broadcast"
	"github.com/badlogic/nazi-radio/internal/config"
	database "github.com/badlogic/nazi-radio/internal/db"
	"github.com/badlogic/nazi-radio/internal/index"
	"github.com/badlogic/nazi-radio/internal/storage"
)

type Server struct {
	cfg    *config.Config
	router *gin.Engine
}

func New(cfg *config.Config, db *database.Client, store *broadcast.Store, builder *index.Builder, archive *storage.Client) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:    cfg,
		router: gin.Default(),
	}

	s.setupMiddleware()
	s.setupRoutes(db, store, builder, archive)

	return s
}

func (s *Server) setupMiddleware() {
	// CORS Configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}

	s.router.Use(cors.New(corsConfig))
}

func (s *Server) setupRoutes(db *database.Client, store *broadcast.Store, builder *index.Builder, archive *storage.Client) {
	broadcasts := handlers.NewBroadcastHandler(db, store, builder, archive)
	stats := handlers.NewStatsHandler(db)

	// Health Check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "nazi-radio"})
	})

	s.router.GET("/_metrics", gin.WrapH(promhttp.Handler()))

	// The frontend is a static bundle; rendering is its problem.
	s.router.Static("/app", s.cfg.Server.FrontendDir)

	// API Group
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/broadcasts", broadcasts.GetBroadcasts)
		v1.GET("/index.json", broadcasts.GetManifest)
		v1.GET("/broadcasts/:id", broadcasts.GetBroadcast)
		v1.GET("/broadcasts/:id/audio", broadcasts.StreamAudio)
		v1.GET("/stats", stats.GetStats)

		// Admin cleanup. HMAC with an empty key verifies any forged token,
		// so the route only exists when a secret is configured.
		if s.cfg.Auth.JWTSecret != "" {
			v1.DELETE("/broadcasts/:id",
				middleware.RequireAuth([]byte(s.cfg.Auth.JWTSecret)),
				broadcasts.DeleteBroadcast)
		} else {
			log.Println("⚠️ RADIO_AUTH_JWT_SECRET not set, admin endpoints disabled")
		}
	}
}

// Start runs the server on the configured port
func (s *Server) Start(addr string) error {
	return s.router.Run(addr)
}
