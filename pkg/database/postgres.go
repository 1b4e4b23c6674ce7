package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/tutor-scheduler-api/pkg/config"
)

// NewPostgres returns a configured PostgreSQL client. The booking tables rely on the
// btree_gist extension for the lesson overlap exclusion constraint, so the connection
// check also verifies the extension is installed.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	var installed bool
	if err := db.GetContext(ctx, &installed, `SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'btree_gist')`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("check btree_gist extension: %w", err)
	}
	if !installed {
		_ = db.Close()
		return nil, fmt.Errorf("btree_gist extension missing, run migrations first")
	}

	return db, nil
}
