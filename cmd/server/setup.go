package main

import (
	"context"
	"os"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vaultpay/backend/internal/config"
	"github.com/vaultpay/backend/internal/database"
)

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	cfg.Level.SetLevel(lvl)

	return cfg.Build()
}

// loadConfig reads file when it exists; environment variables always apply.
func loadConfig(file string) (*config.Config, error) {
	if _, err := os.Stat(file); err != nil {
		file = ""
	}
	if err := config.Init(file); err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return config.Load(), nil
}

func runMigrate(ctx context.Context, configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.InitDB(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	if err := database.Migrate(ctx, db); err != nil {
		return errors.Wrap(err, "migrate")
	}
	logger.Info("schema applied")
	return nil
}
