package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ksred/hoopstats/internal/config"
	"github.com/ksred/hoopstats/internal/database"
	"github.com/ksred/hoopstats/internal/migration"
)

// Server exposes the operator-facing admin API: migration history, run
// rollback, and the schema change audit trail.
type Server struct {
	router     *gin.Engine
	config     *config.Config
	db         *database.Database
	executor   *migration.Executor
	registry   *migration.Registry
	logger     zerolog.Logger
	httpServer *http.Server
}

// NewServer builds the admin API server.
func NewServer(cfg *config.Config, db *database.Database, executor *migration.Executor, registry *migration.Registry, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	corsConfig := cors.DefaultConfig()
	if len(cfg.HTTP.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.HTTP.AllowOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:   router,
		config:   cfg,
		db:       db,
		executor: executor,
		registry: registry,
		logger:   logger,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/functions", s.listFunctionsHandler)
		v1.GET("/migrations", s.migrationHistoryHandler)
		v1.GET("/migrations/:id", s.migrationHandler)
		v1.POST("/migrations/:id/rollback", s.rollbackHandler)
		v1.GET("/schema/changes", s.schemaChangesHandler)
	}
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.HTTP.Port),
		Handler: s.router,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Int("port", s.config.HTTP.Port).Msg("admin API listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
