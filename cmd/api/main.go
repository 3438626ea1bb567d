// cmd/api/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"faixabet-api/config"
	"faixabet-api/internal/db"
	"faixabet-api/pkg/logger"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "faixabet-api",
		Short:   "Faixabet registration and subscription API",
		Version: Version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *logger.Logger {
	if cfg.Log.Development {
		return logger.NewDevelopment()
	}
	return logger.New(cfg.Log.Level)
}

// connectDB retries the initial connection while the database comes up.
func connectDB(ctx context.Context, cfg *config.Config, l *logger.Logger) (*db.PostgresDB, error) {
	dbCfg := db.Config{
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		ConnLifetime: cfg.DB.ConnLifetime,
		QueryTimeout: cfg.DB.QueryTimeout,
	}

	var (
		database *db.PostgresDB
		err      error
	)
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		database, err = db.NewPostgresDB(ctx, cfg.DSN(), dbCfg)
		if err == nil {
			return database, nil
		}
		l.Warnw("Failed to connect to database, retrying...", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * time.Second):
		}
	}
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
}
