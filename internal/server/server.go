package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/relay/internal/config"
	"github.com/ifuryst/relay/internal/service"
	"github.com/ifuryst/relay/internal/store"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	CredentialService *service.CredentialService
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := store.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	credentials := store.NewCredentialStore(db)
	registry := service.BuildRegistry(&cfg.Platforms, credentials, logger)
	credentialService := service.NewCredentialService(credentials, registry, logger)

	srv := newServer(cfg, credentialService, logger)
	srv.DB = db
	return srv, nil
}

func newServer(cfg *config.Config, credentialService *service.CredentialService, logger *zap.Logger) *Server {
	srv := &Server{
		Config:            cfg,
		Router:            gin.New(),
		Logger:            logger,
		CredentialService: credentialService,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	srv.Server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: srv.Router,
	}
	return srv
}

func (s *Server) setupMiddleware() {
	s.Router.Use(gin.Recovery())

	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+ownerHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	api := s.Router.Group("/api/v1")
	{
		credentials := api.Group("/credentials", requireOwner())
		{
			credentials.POST("", s.handleStoreCredentials)
			credentials.GET("", s.handleListCredentials)
			credentials.POST("/:id/validate", s.handleValidateCredentials)
			credentials.DELETE("/:id", s.handleDeleteCredentials)
			credentials.POST("/:id/test-post", s.handleTestPost)
			credentials.GET("/:id/posts", s.handleGetPostHistory)
		}
	}
}

// Start serves until Shutdown is called. A Shutdown that runs first makes
// Start return nil immediately.
func (s *Server) Start(_ context.Context) error {
	s.Logger.Info("Starting HTTP server", zap.String("addr", s.Server.Addr))

	var err error
	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		err = s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	} else {
		err = s.Server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx expires, then closes the database.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.Server != nil {
		if err := s.Server.Shutdown(ctx); err != nil {
			return err
		}
	}

	if s.DB != nil {
		sqlDB, err := s.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
