// Package snapshot records the set of listing URLs seen per category
// each day and derives day-over-day market movement from those sets.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/estatewatch/crawler/internal/domain"
	"github.com/estatewatch/crawler/internal/logger"
)

// Store is the snapshot persistence surface.
type Store interface {
	SaveSnapshot(ctx context.Context, snap *domain.LinkSnapshot) error
	// PreviousSnapshot returns the most recent snapshot for category
	// strictly before day, or nil when none exists.
	PreviousSnapshot(ctx context.Context, category, day string) (*domain.LinkSnapshot, error)
}

// Engine records daily URL sets and diffs them against the prior day.
type Engine struct {
	store Store
	log   logger.Interface
	now   func() time.Time
}

func New(store Store, log logger.Interface) *Engine {
	return &Engine{store: store, log: log, now: time.Now}
}

// Record persists today's URL set for category. It always writes, even
// when the set is empty, so a quiet day is distinguishable from a day
// that never ran.
func (e *Engine) Record(ctx context.Context, category string, urls []string) error {
	now := e.now()
	snap := &domain.LinkSnapshot{
		Category:   category,
		Day:        now.Format(domain.DayFormat),
		URLs:       urls,
		URLCount:   len(urls),
		CapturedAt: now,
	}
	if err := e.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot for %s: %w", category, err)
	}
	return nil
}

// Diff compares current against the latest snapshot taken strictly
// before today. Listings present only in current are new; listings
// present only in the earlier snapshot have left the market. With no
// earlier snapshot everything in current counts as new.
func (e *Engine) Diff(ctx context.Context, category string, current []string) (added, removed []string, err error) {
	today := e.now().Format(domain.DayFormat)
	prev, err := e.store.PreviousSnapshot(ctx, category, today)
	if err != nil {
		return nil, nil, fmt.Errorf("load previous snapshot for %s: %w", category, err)
	}

	currentSet := toSet(current)
	if prev == nil {
		e.log.Info("no earlier snapshot, treating all listings as new",
			logger.String("category", category),
			logger.Int("count", len(currentSet)))
		return sorted(currentSet), nil, nil
	}

	prevSet := toSet(prev.URLs)
	for url := range currentSet {
		if !prevSet[url] {
			added = append(added, url)
		}
	}
	for url := range prevSet {
		if !currentSet[url] {
			removed = append(removed, url)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	e.log.Info("snapshot diff",
		logger.String("category", category),
		logger.String("against", prev.Day),
		logger.Int("new", len(added)),
		logger.Int("sold", len(removed)))
	return added, removed, nil
}

func toSet(urls []string) map[string]bool {
	set := make(map[string]bool, len(urls))
	for _, u := range urls {
		set[u] = true
	}
	return set
}

func sorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
