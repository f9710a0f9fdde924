// Package domain defines the core types shared across the crawler.
package domain

import "time"

// Listing is one scraped property record, keyed by its canonical
// detail-page URL. Mutable fields are refreshed on every re-discovery;
// FirstSeen is preserved by the storage layer across upserts.
type Listing struct {
	URL          string      `db:"url" json:"url"`
	Category     string      `db:"category" json:"category"`
	CategoryType string      `db:"category_type" json:"category_type"`
	Genre        string      `db:"genre" json:"genre"`
	Title        string      `db:"title" json:"title"`
	Price        string      `db:"price" json:"price"`
	Favorites    int         `db:"favorites" json:"favorites"`
	UpdateDate   string      `db:"update_date" json:"update_date"`
	ExpiryDate   string      `db:"expiry_date" json:"expiry_date"`
	Images       StringSlice `db:"images" json:"images"`
	CompanyName  string      `db:"company_name" json:"company_name"`
	Fields       JSONBMap    `db:"fields" json:"fields"`
	IsActive     bool        `db:"is_active" json:"is_active"`
	FirstSeen    string      `db:"first_seen" json:"first_seen"`
	LastSeen     string      `db:"last_seen" json:"last_seen"`
	ScrapedAt    time.Time   `db:"scraped_at" json:"scraped_at"`
}

// LinkSnapshot is the complete set of detail-page URLs discovered for one
// category on one calendar day. Unique per (category, day); same-day saves
// overwrite, prior days are never touched.
type LinkSnapshot struct {
	Category   string      `db:"category" json:"category"`
	Day        string      `db:"snapshot_date" json:"day"`
	URLs       StringSlice `db:"urls" json:"urls"`
	URLCount   int         `db:"url_count" json:"url_count"`
	CapturedAt time.Time   `db:"captured_at" json:"captured_at"`
}

// Checkpoint records the URLs already processed for a category today.
// A checkpoint whose LastUpdated is not from the current day is stale and
// must be discarded by the loader.
type Checkpoint struct {
	Category      string      `db:"category" json:"category"`
	ProcessedURLs StringSlice `db:"processed_urls" json:"processed_urls"`
	Count         int         `db:"count" json:"count"`
	LastUpdated   time.Time   `db:"last_updated" json:"last_updated"`
}

// DayFormat is the calendar-day layout used for snapshot and seen dates.
const DayFormat = "2006-01-02"

// Today returns the current calendar day in DayFormat.
func Today() string {
	return time.Now().Format(DayFormat)
}
