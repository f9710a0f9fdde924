package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/estatewatch/crawler/internal/logger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS listings (
	url           TEXT PRIMARY KEY,
	category      TEXT NOT NULL,
	category_type TEXT NOT NULL DEFAULT '',
	genre         TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	price         TEXT NOT NULL DEFAULT '',
	price_yen     INTEGER,
	favorites     INTEGER NOT NULL DEFAULT 0,
	update_date   TEXT NOT NULL DEFAULT '',
	expiry_date   TEXT NOT NULL DEFAULT '',
	images        TEXT NOT NULL DEFAULT '[]',
	company_name  TEXT NOT NULL DEFAULT '',
	fields        TEXT NOT NULL DEFAULT '{}',
	is_active     BOOLEAN NOT NULL DEFAULT 1,
	first_seen    TEXT NOT NULL DEFAULT '',
	last_seen     TEXT NOT NULL DEFAULT '',
	scraped_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_category ON listings (category);
CREATE INDEX IF NOT EXISTS idx_listings_is_active ON listings (is_active);
CREATE INDEX IF NOT EXISTS idx_listings_scraped_at ON listings (scraped_at);

CREATE TABLE IF NOT EXISTS link_snapshots (
	category      TEXT NOT NULL,
	snapshot_date TEXT NOT NULL,
	urls          TEXT NOT NULL DEFAULT '[]',
	url_count     INTEGER NOT NULL DEFAULT 0,
	captured_at   TIMESTAMP NOT NULL,
	PRIMARY KEY (category, snapshot_date)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	category       TEXT PRIMARY KEY,
	processed_urls TEXT NOT NULL DEFAULT '[]',
	count          INTEGER NOT NULL DEFAULT 0,
	last_updated   TIMESTAMP NOT NULL
);
`

// OpenSQLite opens (creating if needed) the SQLite database at path and
// applies the schema. The parent directory is created on demand.
func OpenSQLite(path string, log logger.Interface) (Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	// Busy timeout covers the crawl and API processes sharing one file.
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// SQLite serializes writers; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)

	if _, execErr := db.Exec(sqliteSchema); execErr != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", execErr)
	}

	log.Info("sqlite storage ready", logger.String("path", path))
	return &sqlStore{db: db, log: log}, nil
}
