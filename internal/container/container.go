package container

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/FACorreiaa/go-account-service/app/db"
	"github.com/FACorreiaa/go-account-service/config"
	"github.com/FACorreiaa/go-account-service/internal/api/auth"
	"github.com/FACorreiaa/go-account-service/internal/api/media"
	"github.com/FACorreiaa/go-account-service/internal/api/user"
	"github.com/FACorreiaa/go-account-service/internal/router"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *slog.Logger
	Pool        *pgxpool.Pool
	Tokens      *auth.TokenManager
	AuthHandler *auth.AuthHandlerImpl
	UserHandler *user.HandlerImpl
}

// NewContainer connects to the database and object storage and wires the
// account services on top of them.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	pool, err := database.Init(ctx, dbConfig.ConnectionURL, cfg.Repositories.Postgres.Pool, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}

	uploader, err := media.NewS3Uploader(ctx, cfg.Storage, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init media uploader: %w", err)
	}
	stager, err := media.NewStager(cfg.Storage.TempDir)
	if err != nil {
		pool.Close()
		return nil, err
	}

	userRepo := user.NewPostgresUserRepo(pool, logger)
	tokens := auth.NewTokenManager(cfg.JWT)
	hasher := auth.NewBcryptHasher(0)

	authService := auth.NewAuthService(userRepo, tokens, hasher, logger)
	authHandler := auth.NewAuthHandlerImpl(authService, auth.NewCookieOptions(cfg.Cookie, cfg.JWT), logger)

	userService := user.NewUserService(userRepo, hasher, uploader, cfg.Cache.UserTTL, logger)
	userHandler := user.NewHandlerImpl(userService, stager, cfg.Storage.MaxUploadBytes, logger)

	return &Container{
		Config:      cfg,
		Logger:      logger,
		Pool:        pool,
		Tokens:      tokens,
		AuthHandler: authHandler,
		UserHandler: userHandler,
	}, nil
}

// Router builds the API router from the wired handlers.
func (c *Container) Router() http.Handler {
	return router.SetupRouter(&router.Config{
		AuthHandler:            c.AuthHandler,
		UserHandler:            c.UserHandler,
		AuthenticateMiddleware: auth.Authenticate(c.Logger, c.Tokens),
		AllowedOrigins:         c.Config.Server.AllowedOrigins,
	})
}

// Close releases all resources held by the container
func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WaitForDB blocks until the database answers or the configured attempts run out.
func (c *Container) WaitForDB(ctx context.Context) error {
	return database.WaitForDB(ctx, c.Pool, c.Config.Repositories.Postgres.Pool, c.Logger)
}
