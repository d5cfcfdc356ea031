package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// NewPostgres creates a new PostgreSQL connection pool bound to databaseName.
func NewPostgres(ctx context.Context, databaseURL, databaseName string) (*sqlx.DB, error) {
	dsn, err := WithDatabase(databaseURL, databaseName)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// Moderation invocations are short; keep the pool modest
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().Str("database", databaseName).Msg("Connected to PostgreSQL")
	return db, nil
}

// WithDatabase points a connection string at databaseName. Both URL
// (postgres://...) and key=value DSNs are accepted.
func WithDatabase(databaseURL, databaseName string) (string, error) {
	if databaseURL == "" {
		return "", fmt.Errorf("database: connection string is empty")
	}
	if databaseName == "" {
		return databaseURL, nil
	}

	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		u, err := url.Parse(databaseURL)
		if err != nil {
			return "", fmt.Errorf("database: parse connection string: %w", err)
		}
		u.Path = "/" + databaseName
		return u.String(), nil
	}

	return databaseURL + " dbname=" + databaseName, nil
}

// ClosePostgres closes the database connection
func ClosePostgres(db *sqlx.DB) {
	if db != nil {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing PostgreSQL connection")
		} else {
			log.Info().Msg("PostgreSQL connection closed")
		}
	}
}
