package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatewatch/crawler/internal/domain"
	"github.com/estatewatch/crawler/internal/logger"
)

// The SQLite adapter and the in-memory store must agree on semantics,
// so the behavioral suite runs against both.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "listings.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemory(),
	}
}

func sampleListing(url string, scrapedAt time.Time) *domain.Listing {
	return &domain.Listing{
		URL:          url,
		Category:     "mansion",
		CategoryType: "賃貸",
		Genre:        "マンション",
		Title:        "テスト物件",
		Price:        "8.5万円",
		Favorites:    3,
		Images:       domain.StringSlice{"/photos/main.jpg"},
		Fields:       domain.JSONBMap{"間取り": "2LDK"},
		IsActive:     true,
		FirstSeen:    scrapedAt.Format(domain.DayFormat),
		LastSeen:     scrapedAt.Format(domain.DayFormat),
		ScrapedAt:    scrapedAt,
	}
}

func TestUpsertPreservesFirstSeen(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			day1 := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
			day2 := day1.AddDate(0, 0, 5)

			require.NoError(t, store.UpsertListing(ctx, sampleListing("/b/1", day1)))

			updated := sampleListing("/b/1", day2)
			updated.Price = "9.0万円"
			require.NoError(t, store.UpsertListing(ctx, updated))

			got, err := store.Listings(ctx, ListingFilter{Category: "mansion"})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "2026-08-20", got[0].FirstSeen)
			assert.Equal(t, "2026-08-25", got[0].LastSeen)
			assert.Equal(t, "9.0万円", got[0].Price)
		})
	}
}

func TestUpsertReactivatesSoldListing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

			require.NoError(t, store.UpsertListing(ctx, sampleListing("/b/1", now)))

			affected, err := store.MarkInactive(ctx, []string{"/b/1", "/b/unknown"})
			require.NoError(t, err)
			assert.EqualValues(t, 1, affected)

			count, err := store.ActiveCount(ctx)
			require.NoError(t, err)
			assert.Zero(t, count)

			require.NoError(t, store.UpsertListing(ctx, sampleListing("/b/1", now.Add(time.Hour))))
			count, err = store.ActiveCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestWrittenBetweenCountsHalfOpenRange(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

			require.NoError(t, store.UpsertListing(ctx, sampleListing("/b/1", base.Add(-2*time.Hour))))
			require.NoError(t, store.UpsertListing(ctx, sampleListing("/b/2", base.Add(-10*time.Minute))))
			require.NoError(t, store.UpsertListing(ctx, sampleListing("/b/3", base.Add(10*time.Minute))))

			count, err := store.WrittenBetween(ctx, base.Add(-30*time.Minute), base)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestListingsFilterAndPagination(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

			a := sampleListing("/b/1", base)
			b := sampleListing("/b/2", base.Add(time.Minute))
			c := sampleListing("/b/3", base.Add(2*time.Minute))
			c.Category = "house"
			c.CategoryType = "売買"
			require.NoError(t, store.UpsertListing(ctx, a))
			require.NoError(t, store.UpsertListing(ctx, b))
			require.NoError(t, store.UpsertListing(ctx, c))
			_, err := store.MarkInactive(ctx, []string{"/b/1"})
			require.NoError(t, err)

			got, err := store.Listings(ctx, ListingFilter{Category: "mansion", ActiveOnly: true})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "/b/2", got[0].URL)

			// Newest first, one per page.
			got, err = store.Listings(ctx, ListingFilter{Limit: 1, Offset: 1})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "/b/2", got[0].URL)
		})
	}
}

func TestSnapshotLookupsDistinguishPreviousAndLatest(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			captured := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

			for _, day := range []string{"2026-08-23", "2026-08-24", "2026-08-25"} {
				require.NoError(t, store.SaveSnapshot(ctx, &domain.LinkSnapshot{
					Category:   "mansion",
					Day:        day,
					URLs:       domain.StringSlice{"/b/" + day},
					URLCount:   1,
					CapturedAt: captured,
				}))
			}

			prev, err := store.PreviousSnapshot(ctx, "mansion", "2026-08-25")
			require.NoError(t, err)
			require.NotNil(t, prev)
			assert.Equal(t, "2026-08-24", prev.Day)

			latest, err := store.LatestSnapshot(ctx, "mansion")
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, "2026-08-25", latest.Day)

			none, err := store.PreviousSnapshot(ctx, "house", "2026-08-25")
			require.NoError(t, err)
			assert.Nil(t, none)
		})
	}
}

func TestSameDaySnapshotOverwrites(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			captured := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

			require.NoError(t, store.SaveSnapshot(ctx, &domain.LinkSnapshot{
				Category: "mansion", Day: "2026-08-25",
				URLs: domain.StringSlice{"/b/1"}, URLCount: 1, CapturedAt: captured,
			}))
			require.NoError(t, store.SaveSnapshot(ctx, &domain.LinkSnapshot{
				Category: "mansion", Day: "2026-08-25",
				URLs: domain.StringSlice{"/b/1", "/b/2"}, URLCount: 2, CapturedAt: captured.Add(time.Hour),
			}))

			latest, err := store.LatestSnapshot(ctx, "mansion")
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, 2, latest.URLCount)
			assert.Equal(t, domain.StringSlice{"/b/1", "/b/2"}, latest.URLs)
		})
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			missing, err := store.LoadCheckpoint(ctx, "mansion")
			require.NoError(t, err)
			assert.Nil(t, missing)

			cp := &domain.Checkpoint{
				Category:      "mansion",
				ProcessedURLs: domain.StringSlice{"/b/1", "/b/2"},
				Count:         2,
				LastUpdated:   time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC),
			}
			require.NoError(t, store.SaveCheckpoint(ctx, cp))

			got, err := store.LoadCheckpoint(ctx, "mansion")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, cp.ProcessedURLs, got.ProcessedURLs)
			assert.Equal(t, 2, got.Count)
		})
	}
}

func TestCategoryAndPriceStats(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

			a := sampleListing("/b/1", base)
			a.Price = "8万円"
			b := sampleListing("/b/2", base)
			b.Price = "10万円"
			c := sampleListing("/b/3", base)
			c.Price = "応相談"
			for _, l := range []*domain.Listing{a, b, c} {
				require.NoError(t, store.UpsertListing(ctx, l))
			}
			_, err := store.MarkInactive(ctx, []string{"/b/3"})
			require.NoError(t, err)

			cats, err := store.CategoryStats(ctx)
			require.NoError(t, err)
			require.Len(t, cats, 1)
			assert.Equal(t, 3, cats[0].Total)
			assert.Equal(t, 2, cats[0].Active)

			prices, err := store.PriceStats(ctx)
			require.NoError(t, err)
			require.Len(t, prices, 1)
			assert.Equal(t, 2, prices[0].Count)
			assert.EqualValues(t, 80_000, prices[0].MinYen)
			assert.EqualValues(t, 100_000, prices[0].MaxYen)
			assert.InDelta(t, 90_000, prices[0].AvgYen, 0.1)
		})
	}
}
