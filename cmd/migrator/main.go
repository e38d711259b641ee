package main

import (
	"flag"
	"fmt"
	"log"

	"authgate/internal/config"
	"authgate/internal/storage/sqlite"
)

func main() {
	var configPath, storagePath, migrationsPath string
	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.StringVar(&storagePath, "storage-path", "", "sqlite database to migrate, overrides config")
	flag.StringVar(&migrationsPath, "migrations-path", "", "directory with migrations, overrides config")
	flag.Parse()

	if storagePath == "" || migrationsPath == "" {
		cfg := config.MustLoad(config.FetchConfigPath(configPath))

		if storagePath == "" {
			storagePath = cfg.Issuer.StoragePath
		}
		if migrationsPath == "" {
			migrationsPath = cfg.Issuer.MigrationsPath
		}
	}

	if storagePath == "" {
		log.Fatal("storage-path is required")
	}
	if migrationsPath == "" {
		log.Fatal("migrations-path is required")
	}

	if err := sqlite.Migrate(storagePath, migrationsPath); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	fmt.Printf("migrations applied to %s\n", storagePath)
}
