// Package api exposes the management HTTP surface of the posting agent:
// status, manual posting, draft generation, and account queries.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/postwing/postwing/internal/config"
	"github.com/postwing/postwing/internal/logging"
	log "github.com/sirupsen/logrus"
)

// Server wraps the gin engine and the underlying HTTP listener.
type Server struct {
	cfg        *config.Config
	engine     *gin.Engine
	httpServer *http.Server
	handlers   *Handlers
}

// NewServer builds the management API server and registers all routes.
func NewServer(cfg *config.Config, handlers *Handlers) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())

	s := &Server{
		cfg:      cfg,
		engine:   engine,
		handlers: handlers,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      engine,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.handlers.Index)
	s.engine.GET("/status", s.handlers.Status)
	s.engine.POST("/tweet/post", s.handlers.PostTweet)
	s.engine.POST("/tweet/generate", s.handlers.GenerateTweets)
	s.engine.GET("/user/info", s.handlers.UserInfo)
	s.engine.GET("/tweets/recent", s.handlers.RecentTweets)
}

// Start runs the listener until it fails or Shutdown is called.
func (s *Server) Start() error {
	log.Infof("management API listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("management API server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
