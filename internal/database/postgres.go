package database

import (
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/vaultpay/backend/internal/config"
)

// DSN builds the lib/pq connection string.
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)
}

// InitDB opens and pings the Postgres pool.
func InitDB(cfg config.DatabaseConfig, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect to database")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Info("database connection established", zap.String("host", cfg.Host), zap.String("db", cfg.Name))
	return db, nil
}
