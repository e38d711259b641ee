package cli

import (
	"context"
	"fmt"

	"authgate/internal/config"
	"authgate/internal/gateway"
	"authgate/internal/storage/file"
	"authgate/internal/storage/memory"
	"authgate/internal/storage/mongodb"
	"authgate/internal/storage/sqlite"
)

// OpenStore builds the credential store selected by cfg. The returned close
// func releases whatever connection the store holds.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (gateway.CredentialStore, func(context.Context) error, error) {
	const op = "cli.OpenStore"

	noop := func(context.Context) error { return nil }

	switch cfg.Kind {
	case config.StoreMemory:
		return memory.New(), noop, nil
	case config.StoreFile:
		return file.New(cfg.Path), noop, nil
	case config.StoreSQLite:
		if err := sqlite.Migrate(cfg.Path, cfg.MigrationsPath); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}

		st, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}

		return st, func(context.Context) error { return st.Close() }, nil
	case config.StoreMongoDB:
		st, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}

		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("%s: unknown store kind %q", op, cfg.Kind)
	}
}
