package app

import (
	"fmt"
	"log/slog"

	grpcapp "authgate/internal/app/grpc"
	httpapp "authgate/internal/app/http"
	"authgate/internal/config"
	"authgate/internal/lib/logger/sl"
	"authgate/internal/services/auth"
	"authgate/internal/storage/sqlite"
)

// App is the development token issuer: REST auth endpoints plus a gRPC
// health service, both backed by one SQLite database.
type App struct {
	HTTPSrv *httpapp.App
	GRPCSrv *grpcapp.App

	logger  *slog.Logger
	storage *sqlite.Storage
}

func New(logger *slog.Logger, cfg config.IssuerConfig) (*App, error) {
	const op = "app.New"

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.MigrationsPath != "" {
		if err := sqlite.Migrate(cfg.StoragePath, cfg.MigrationsPath); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	storage, err := sqlite.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	authService := auth.New(
		logger,
		storage,
		storage,
		storage,
		cfg.Secret,
		cfg.TokenTTL,
		cfg.RefreshTokenTTL,
		cfg.RefreshPepper,
	)

	return &App{
		HTTPSrv: httpapp.New(logger, authService, cfg.Secret, cfg.HTTPAddr()),
		GRPCSrv: grpcapp.New(logger, storage, cfg.Host, cfg.GRPCPort),
		logger:  logger,
		storage: storage,
	}, nil
}

// MustNew is New that panics on error.
func MustNew(logger *slog.Logger, cfg config.IssuerConfig) *App {
	a, err := New(logger, cfg)
	if err != nil {
		panic(err)
	}

	return a
}

// Stop shuts both servers down and releases the database.
func (a *App) Stop() {
	a.HTTPSrv.Stop()
	a.GRPCSrv.Stop()

	if err := a.storage.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
