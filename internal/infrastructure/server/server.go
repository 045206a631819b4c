// Package server assembles the registry: storage, domain services, HTTP
// routes and lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/TrueSelph/jvcli/internal/api/http"
	"github.com/TrueSelph/jvcli/internal/api/middleware"
	"github.com/TrueSelph/jvcli/internal/blobstore"
	"github.com/TrueSelph/jvcli/internal/domain/auth"
	"github.com/TrueSelph/jvcli/internal/domain/catalog"
	"github.com/TrueSelph/jvcli/internal/domain/identity"
	"github.com/TrueSelph/jvcli/internal/domain/namespace"
	"github.com/TrueSelph/jvcli/internal/domain/publish"
	"github.com/TrueSelph/jvcli/internal/domain/resolve"
	"github.com/TrueSelph/jvcli/internal/infrastructure/config"
	"github.com/TrueSelph/jvcli/internal/infrastructure/logging"
	"github.com/TrueSelph/jvcli/internal/infrastructure/monitoring"
	"github.com/TrueSelph/jvcli/internal/storage/sqlite"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg     *config.Config
	router  *gin.Engine
	store   *sqlite.Store
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// New builds a fully wired server from configuration.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	blobs, err := newBlobStore(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	users := identity.NewService(store)
	namespaces := namespace.NewRegistry(store, users)
	cat := catalog.New(store)

	signer := auth.NewJWTSigner(
		[]byte(cfg.Auth.TokenSecret),
		cfg.Auth.Issuer,
		time.Duration(cfg.Auth.TokenTTLHours)*time.Hour,
	)
	authService := auth.NewService(users, namespaces, store, signer)

	publisher := publish.NewPipeline(namespaces, cat, blobs, publish.Options{
		MaxArtifactBytes: cfg.Publish.MaxArtifactBytes,
		DeniedPatterns:   cfg.Publish.DeniedPatterns,
		StorageTimeout:   time.Duration(cfg.Storage.TimeoutSeconds) * time.Second,
		RetryAttempts:    cfg.Publish.RetryAttempts,
	}, logger)
	resolver := resolve.NewService(cat, namespaces, blobs)

	metrics := monitoring.NewMetrics()
	handlers := apihttp.NewHandlers(authService, namespaces, cat, publisher, resolver, metrics, logger)

	router := newRouter(cfg, authService, handlers, metrics)

	return &Server{
		cfg:     cfg,
		router:  router,
		store:   store,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("registry listening", zap.String("addr", addr))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases server resources.
func (s *Server) Close() error {
	return s.store.Close()
}

// newBlobStore selects the artifact backend. A local backend optionally
// sweeps unreferenced blobs left behind by interrupted publishes.
func newBlobStore(cfg *config.Config, store *sqlite.Store, logger *logging.Logger) (blobstore.Store, error) {
	switch cfg.Storage.Backend {
	case "remote":
		timeout := time.Duration(cfg.Storage.TimeoutSeconds) * time.Second
		return blobstore.NewRemote(cfg.Storage.RemoteURL, cfg.Storage.RemoteToken, timeout), nil
	default:
		local, err := blobstore.NewLocal(cfg.Storage.Root)
		if err != nil {
			return nil, fmt.Errorf("open artifact storage: %w", err)
		}
		if cfg.Storage.SweepOnStart {
			removed, err := local.Sweep(context.Background(), store.ArtifactRefExists)
			if err != nil {
				logger.Warn("artifact sweep failed", zap.Error(err))
			} else if removed > 0 {
				logger.Info("swept orphaned artifacts", zap.Int("removed", removed))
			}
		}
		return local, nil
	}
}

func newRouter(cfg *config.Config, authService *auth.Service, handlers *apihttp.Handlers, metrics *monitoring.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	router.Use(monitoring.Middleware(metrics))

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", monitoring.Handler(metrics))

	router.POST("/signup", handlers.Signup)
	router.POST("/login", handlers.Login)

	// Reads allow anonymous callers; a presented token still must be valid.
	optional := router.Group("/", middleware.OptionalAuth(authService))
	optional.GET("/download/package", handlers.Download)
	optional.GET("/info/package", handlers.Info)
	optional.POST("/packages/search", handlers.Search)

	authed := router.Group("/", middleware.RequireAuth(authService))
	authed.POST("/namespace", handlers.CreateNamespace)
	authed.GET("/namespaces", handlers.Namespaces)
	authed.POST("/namespace/owner", handlers.AddMember)
	authed.DELETE("/namespace/owner", handlers.RemoveMember)
	authed.POST("/publish/package", handlers.Publish)
	authed.DELETE("/deprecate/package", handlers.Deprecate)

	return router
}
