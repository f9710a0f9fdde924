package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/estatewatch/crawler/internal/config"
	"github.com/estatewatch/crawler/internal/logger"
)

const (
	pgMaxOpenConns    = 25
	pgMaxIdleConns    = 5
	pgConnMaxLifetime = 5 * time.Minute
	pgPingTimeout     = 5 * time.Second
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS listings (
	url           TEXT PRIMARY KEY,
	category      TEXT NOT NULL,
	category_type TEXT NOT NULL DEFAULT '',
	genre         TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	price         TEXT NOT NULL DEFAULT '',
	price_yen     BIGINT,
	favorites     INTEGER NOT NULL DEFAULT 0,
	update_date   TEXT NOT NULL DEFAULT '',
	expiry_date   TEXT NOT NULL DEFAULT '',
	images        JSONB NOT NULL DEFAULT '[]',
	company_name  TEXT NOT NULL DEFAULT '',
	fields        JSONB NOT NULL DEFAULT '{}',
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	first_seen    TEXT NOT NULL DEFAULT '',
	last_seen     TEXT NOT NULL DEFAULT '',
	scraped_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_category ON listings (category);
CREATE INDEX IF NOT EXISTS idx_listings_is_active ON listings (is_active);
CREATE INDEX IF NOT EXISTS idx_listings_scraped_at ON listings (scraped_at);

CREATE TABLE IF NOT EXISTS link_snapshots (
	category      TEXT NOT NULL,
	snapshot_date TEXT NOT NULL,
	urls          JSONB NOT NULL DEFAULT '[]',
	url_count     INTEGER NOT NULL DEFAULT 0,
	captured_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (category, snapshot_date)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	category       TEXT PRIMARY KEY,
	processed_urls JSONB NOT NULL DEFAULT '[]',
	count          INTEGER NOT NULL DEFAULT 0,
	last_updated   TIMESTAMPTZ NOT NULL
);
`

// OpenPostgres connects to PostgreSQL and applies the schema.
func OpenPostgres(cfg config.PostgresConfig, log logger.Interface) (Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetMaxIdleConns(pgMaxIdleConns)
	db.SetConnMaxLifetime(pgConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pgPingTimeout)
	defer cancel()
	if pingErr := db.PingContext(ctx); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", pingErr)
	}

	if _, execErr := db.ExecContext(ctx, postgresSchema); execErr != nil {
		db.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", execErr)
	}

	log.Info("postgres storage ready",
		logger.String("host", cfg.Host),
		logger.String("dbname", cfg.DBName))
	return &sqlStore{db: db, log: log}, nil
}
