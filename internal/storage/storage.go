// Package storage persists listings, daily link snapshots, and crawl
// checkpoints. Two backends share one implementation over sqlx: SQLite
// for single-host runs and PostgreSQL for shared deployments.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/estatewatch/crawler/internal/config"
	"github.com/estatewatch/crawler/internal/domain"
	"github.com/estatewatch/crawler/internal/logger"
)

// ListingFilter narrows a Listings query. Zero values mean "no filter";
// a zero Limit falls back to a server-side default.
type ListingFilter struct {
	Category   string
	Type       string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// CategoryStat is the per-category listing census.
type CategoryStat struct {
	Category string `db:"category" json:"category"`
	Type     string `db:"category_type" json:"category_type"`
	Total    int    `db:"total" json:"total"`
	Active   int    `db:"active" json:"active"`
}

// PriceStat aggregates parsed prices of active listings per category.
// Listings whose price label could not be parsed are excluded.
type PriceStat struct {
	Category string  `db:"category" json:"category"`
	Count    int     `db:"count" json:"count"`
	MinYen   int64   `db:"min_yen" json:"min_yen"`
	MaxYen   int64   `db:"max_yen" json:"max_yen"`
	AvgYen   float64 `db:"avg_yen" json:"avg_yen"`
}

// TimelinePoint is one category's snapshot size on one day.
type TimelinePoint struct {
	Day      string `db:"snapshot_date" json:"day"`
	Category string `db:"category" json:"category"`
	URLCount int    `db:"url_count" json:"url_count"`
}

// Store is the persistence surface shared by the crawler, the API, and
// the exporter.
type Store interface {
	UpsertListing(ctx context.Context, l *domain.Listing) error
	// MarkInactive flags the given listings as gone from the market and
	// returns how many rows changed.
	MarkInactive(ctx context.Context, urls []string) (int64, error)
	ActiveCount(ctx context.Context) (int, error)
	// WrittenBetween counts listings scraped in [from, to).
	WrittenBetween(ctx context.Context, from, to time.Time) (int, error)
	Listings(ctx context.Context, f ListingFilter) ([]domain.Listing, error)
	// NewListings returns listings first seen on the given day.
	NewListings(ctx context.Context, day, category string) ([]domain.Listing, error)
	// SoldListings returns inactive listings last seen on or after the
	// given day.
	SoldListings(ctx context.Context, sinceDay, category string) ([]domain.Listing, error)

	SaveSnapshot(ctx context.Context, snap *domain.LinkSnapshot) error
	PreviousSnapshot(ctx context.Context, category, day string) (*domain.LinkSnapshot, error)
	LatestSnapshot(ctx context.Context, category string) (*domain.LinkSnapshot, error)

	LoadCheckpoint(ctx context.Context, category string) (*domain.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error

	CategoryStats(ctx context.Context) ([]CategoryStat, error)
	PriceStats(ctx context.Context) ([]PriceStat, error)
	Timeline(ctx context.Context, days int) ([]TimelinePoint, error)

	Ping(ctx context.Context) error
	Close() error
}

// New opens the backend selected by cfg.
func New(cfg config.StorageConfig, log logger.Interface) (Store, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		return OpenPostgres(cfg.Postgres, log)
	case config.BackendSQLite:
		return OpenSQLite(cfg.SQLitePath, log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
