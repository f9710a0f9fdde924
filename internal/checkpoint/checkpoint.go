// Package checkpoint persists per-category crawl progress so an
// interrupted run resumes where it stopped instead of re-scraping.
// Progress is only meaningful within a single calendar day.
package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/estatewatch/crawler/internal/domain"
	"github.com/estatewatch/crawler/internal/logger"
)

// Store is the checkpoint persistence surface.
type Store interface {
	// LoadCheckpoint returns the saved checkpoint for category, or nil
	// when none exists.
	LoadCheckpoint(ctx context.Context, category string) (*domain.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error
}

// Manager loads and saves crawl progress with same-day staleness rules.
type Manager struct {
	store Store
	log   logger.Interface
	now   func() time.Time
}

func New(store Store, log logger.Interface) *Manager {
	return &Manager{store: store, log: log, now: time.Now}
}

// Load returns the set of URLs already processed for category today.
// A checkpoint written on an earlier day is discarded and an empty set
// returned, so every day starts fresh.
func (m *Manager) Load(ctx context.Context, category string) (map[string]bool, error) {
	cp, err := m.store.LoadCheckpoint(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint for %s: %w", category, err)
	}
	if cp == nil {
		return make(map[string]bool), nil
	}

	today := m.now().Format(domain.DayFormat)
	if cp.LastUpdated.Format(domain.DayFormat) != today {
		m.log.Info("discarding stale checkpoint",
			logger.String("category", category),
			logger.Time("last_updated", cp.LastUpdated))
		return make(map[string]bool), nil
	}

	processed := make(map[string]bool, len(cp.ProcessedURLs))
	for _, u := range cp.ProcessedURLs {
		processed[u] = true
	}
	m.log.Info("resuming from checkpoint",
		logger.String("category", category),
		logger.Int("processed", len(processed)))
	return processed, nil
}

// Save overwrites category's checkpoint with the full processed set.
func (m *Manager) Save(ctx context.Context, category string, processed map[string]bool) error {
	urls := make([]string, 0, len(processed))
	for u := range processed {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	cp := &domain.Checkpoint{
		Category:      category,
		ProcessedURLs: urls,
		Count:         len(urls),
		LastUpdated:   m.now(),
	}
	if err := m.store.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", category, err)
	}
	return nil
}
