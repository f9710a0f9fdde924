package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/estatewatch/crawler/internal/domain"
	"github.com/estatewatch/crawler/internal/logger"
)

const defaultListingLimit = 100

// sqlStore implements Store over any sqlx-supported database. Queries
// use ? placeholders and are rebound to the driver's bindvar style.
type sqlStore struct {
	db  *sqlx.DB
	log logger.Interface
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

const listingColumns = `url, category, category_type, genre, title, price, favorites,
	update_date, expiry_date, images, company_name, fields, is_active,
	first_seen, last_seen, scraped_at`

// UpsertListing inserts or refreshes a listing. On conflict every
// mutable column is replaced and the row reactivated; first_seen is
// deliberately absent from the update list so the original discovery
// date survives any number of re-scrapes.
func (s *sqlStore) UpsertListing(ctx context.Context, l *domain.Listing) error {
	var priceYen sql.NullInt64
	if yen, ok := domain.ParsePriceYen(l.Price); ok {
		priceYen = sql.NullInt64{Int64: yen, Valid: true}
	}

	query := s.db.Rebind(`
		INSERT INTO listings (url, category, category_type, genre, title, price, price_yen,
			favorites, update_date, expiry_date, images, company_name, fields,
			is_active, first_seen, last_seen, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			category = EXCLUDED.category,
			category_type = EXCLUDED.category_type,
			genre = EXCLUDED.genre,
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			price_yen = EXCLUDED.price_yen,
			favorites = EXCLUDED.favorites,
			update_date = EXCLUDED.update_date,
			expiry_date = EXCLUDED.expiry_date,
			images = EXCLUDED.images,
			company_name = EXCLUDED.company_name,
			fields = EXCLUDED.fields,
			is_active = EXCLUDED.is_active,
			last_seen = EXCLUDED.last_seen,
			scraped_at = EXCLUDED.scraped_at
	`)

	_, err := s.db.ExecContext(ctx, query,
		l.URL, l.Category, l.CategoryType, l.Genre, l.Title, l.Price, priceYen,
		l.Favorites, l.UpdateDate, l.ExpiryDate, l.Images, l.CompanyName, l.Fields,
		l.IsActive, l.FirstSeen, l.LastSeen, l.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert listing %s: %w", l.URL, err)
	}
	return nil
}

func (s *sqlStore) MarkInactive(ctx context.Context, urls []string) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`UPDATE listings SET is_active = FALSE WHERE url IN (?)`, urls)
	if err != nil {
		return 0, fmt.Errorf("build mark inactive query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("mark inactive: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark inactive rows: %w", err)
	}
	return affected, nil
}

func (s *sqlStore) ActiveCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM listings WHERE is_active`)
	if err != nil {
		return 0, fmt.Errorf("count active listings: %w", err)
	}
	return count, nil
}

func (s *sqlStore) WrittenBetween(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	query := s.db.Rebind(`SELECT COUNT(*) FROM listings WHERE scraped_at >= ? AND scraped_at < ?`)
	if err := s.db.GetContext(ctx, &count, query, from, to); err != nil {
		return 0, fmt.Errorf("count written listings: %w", err)
	}
	return count, nil
}

func (s *sqlStore) Listings(ctx context.Context, f ListingFilter) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1=1`
	var args []any

	if f.ActiveOnly {
		query += ` AND is_active`
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Type != "" {
		query += ` AND category_type = ?`
		args = append(args, f.Type)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListingLimit
	}
	query += ` ORDER BY scraped_at DESC, url LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	var listings []domain.Listing
	if err := s.db.SelectContext(ctx, &listings, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	return listings, nil
}

func (s *sqlStore) NewListings(ctx context.Context, day, category string) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE first_seen = ?`
	args := []any{day}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY url`

	var listings []domain.Listing
	if err := s.db.SelectContext(ctx, &listings, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query new listings: %w", err)
	}
	return listings, nil
}

func (s *sqlStore) SoldListings(ctx context.Context, sinceDay, category string) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE NOT is_active AND last_seen >= ?`
	args := []any{sinceDay}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY last_seen DESC, url`

	var listings []domain.Listing
	if err := s.db.SelectContext(ctx, &listings, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query sold listings: %w", err)
	}
	return listings, nil
}

func (s *sqlStore) SaveSnapshot(ctx context.Context, snap *domain.LinkSnapshot) error {
	query := s.db.Rebind(`
		INSERT INTO link_snapshots (category, snapshot_date, urls, url_count, captured_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (category, snapshot_date) DO UPDATE SET
			urls = EXCLUDED.urls,
			url_count = EXCLUDED.url_count,
			captured_at = EXCLUDED.captured_at
	`)
	_, err := s.db.ExecContext(ctx, query,
		snap.Category, snap.Day, snap.URLs, snap.URLCount, snap.CapturedAt)
	if err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", snap.Category, snap.Day, err)
	}
	return nil
}

func (s *sqlStore) PreviousSnapshot(ctx context.Context, category, day string) (*domain.LinkSnapshot, error) {
	return s.getSnapshot(ctx,
		`SELECT category, snapshot_date, urls, url_count, captured_at
		 FROM link_snapshots WHERE category = ? AND snapshot_date < ?
		 ORDER BY snapshot_date DESC LIMIT 1`,
		category, day)
}

func (s *sqlStore) LatestSnapshot(ctx context.Context, category string) (*domain.LinkSnapshot, error) {
	return s.getSnapshot(ctx,
		`SELECT category, snapshot_date, urls, url_count, captured_at
		 FROM link_snapshots WHERE category = ?
		 ORDER BY snapshot_date DESC LIMIT 1`,
		category)
}

func (s *sqlStore) getSnapshot(ctx context.Context, query string, args ...any) (*domain.LinkSnapshot, error) {
	var snap domain.LinkSnapshot
	err := s.db.GetContext(ctx, &snap, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return &snap, nil
}

func (s *sqlStore) LoadCheckpoint(ctx context.Context, category string) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	query := s.db.Rebind(`
		SELECT category, processed_urls, count, last_updated
		FROM checkpoints WHERE category = ?`)
	err := s.db.GetContext(ctx, &cp, query, category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", category, err)
	}
	return &cp, nil
}

func (s *sqlStore) SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	query := s.db.Rebind(`
		INSERT INTO checkpoints (category, processed_urls, count, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (category) DO UPDATE SET
			processed_urls = EXCLUDED.processed_urls,
			count = EXCLUDED.count,
			last_updated = EXCLUDED.last_updated
	`)
	_, err := s.db.ExecContext(ctx, query,
		cp.Category, cp.ProcessedURLs, cp.Count, cp.LastUpdated)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Category, err)
	}
	return nil
}

func (s *sqlStore) CategoryStats(ctx context.Context) ([]CategoryStat, error) {
	var stats []CategoryStat
	err := s.db.SelectContext(ctx, &stats, `
		SELECT category, category_type,
			COUNT(*) AS total,
			SUM(CASE WHEN is_active THEN 1 ELSE 0 END) AS active
		FROM listings
		GROUP BY category, category_type
		ORDER BY category, category_type
	`)
	if err != nil {
		return nil, fmt.Errorf("query category stats: %w", err)
	}
	return stats, nil
}

func (s *sqlStore) PriceStats(ctx context.Context) ([]PriceStat, error) {
	var stats []PriceStat
	err := s.db.SelectContext(ctx, &stats, `
		SELECT category,
			COUNT(*) AS count,
			MIN(price_yen) AS min_yen,
			MAX(price_yen) AS max_yen,
			AVG(price_yen) AS avg_yen
		FROM listings
		WHERE is_active AND price_yen IS NOT NULL
		GROUP BY category
		ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("query price stats: %w", err)
	}
	return stats, nil
}

func (s *sqlStore) Timeline(ctx context.Context, days int) ([]TimelinePoint, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().AddDate(0, 0, -days).Format(domain.DayFormat)

	var points []TimelinePoint
	query := s.db.Rebind(`
		SELECT category, snapshot_date, url_count
		FROM link_snapshots
		WHERE snapshot_date >= ?
		ORDER BY snapshot_date, category
	`)
	if err := s.db.SelectContext(ctx, &points, query, cutoff); err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	return points, nil
}
