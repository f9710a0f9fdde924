package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/estatewatch/crawler/internal/domain"
)

// Memory is an in-process Store used by tests and dry runs. It applies
// the same upsert and snapshot semantics as the SQL backends.
type Memory struct {
	mu          sync.Mutex
	listings    map[string]domain.Listing
	snapshots   map[string][]domain.LinkSnapshot // keyed by category, day-ordered
	checkpoints map[string]domain.Checkpoint
}

func NewMemory() *Memory {
	return &Memory{
		listings:    make(map[string]domain.Listing),
		snapshots:   make(map[string][]domain.LinkSnapshot),
		checkpoints: make(map[string]domain.Checkpoint),
	}
}

func (m *Memory) UpsertListing(_ context.Context, l *domain.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *l
	if existing, ok := m.listings[l.URL]; ok {
		stored.FirstSeen = existing.FirstSeen
	}
	m.listings[l.URL] = stored
	return nil
}

func (m *Memory) MarkInactive(_ context.Context, urls []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var affected int64
	for _, url := range urls {
		if l, ok := m.listings[url]; ok && l.IsActive {
			l.IsActive = false
			m.listings[url] = l
			affected++
		}
	}
	return affected, nil
}

func (m *Memory) ActiveCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, l := range m.listings {
		if l.IsActive {
			count++
		}
	}
	return count, nil
}

func (m *Memory) WrittenBetween(_ context.Context, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, l := range m.listings {
		if !l.ScrapedAt.Before(from) && l.ScrapedAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) Listings(_ context.Context, f ListingFilter) ([]domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Listing
	for _, l := range m.listings {
		if f.ActiveOnly && !l.IsActive {
			continue
		}
		if f.Category != "" && l.Category != f.Category {
			continue
		}
		if f.Type != "" && l.CategoryType != f.Type {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScrapedAt.Equal(out[j].ScrapedAt) {
			return out[i].ScrapedAt.After(out[j].ScrapedAt)
		}
		return out[i].URL < out[j].URL
	})

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListingLimit
	}
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) NewListings(_ context.Context, day, category string) ([]domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Listing
	for _, l := range m.listings {
		if l.FirstSeen != day {
			continue
		}
		if category != "" && l.Category != category {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (m *Memory) SoldListings(_ context.Context, sinceDay, category string) ([]domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Listing
	for _, l := range m.listings {
		if l.IsActive || l.LastSeen < sinceDay {
			continue
		}
		if category != "" && l.Category != category {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeen != out[j].LastSeen {
			return out[i].LastSeen > out[j].LastSeen
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}

func (m *Memory) SaveSnapshot(_ context.Context, snap *domain.LinkSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := m.snapshots[snap.Category]
	for i, existing := range snaps {
		if existing.Day == snap.Day {
			snaps[i] = *snap
			return nil
		}
	}
	m.snapshots[snap.Category] = append(snaps, *snap)
	sort.Slice(m.snapshots[snap.Category], func(i, j int) bool {
		return m.snapshots[snap.Category][i].Day < m.snapshots[snap.Category][j].Day
	})
	return nil
}

func (m *Memory) PreviousSnapshot(_ context.Context, category, day string) (*domain.LinkSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := m.snapshots[category]
	for i := len(snaps) - 1; i >= 0; i-- {
		if snaps[i].Day < day {
			snap := snaps[i]
			return &snap, nil
		}
	}
	return nil, nil
}

func (m *Memory) LatestSnapshot(_ context.Context, category string) (*domain.LinkSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := m.snapshots[category]
	if len(snaps) == 0 {
		return nil, nil
	}
	snap := snaps[len(snaps)-1]
	return &snap, nil
}

func (m *Memory) LoadCheckpoint(_ context.Context, category string) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[category]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (m *Memory) SaveCheckpoint(_ context.Context, cp *domain.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[cp.Category] = *cp
	return nil
}

func (m *Memory) CategoryStats(_ context.Context) ([]CategoryStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type key struct{ cat, typ string }
	byKey := make(map[key]*CategoryStat)
	for _, l := range m.listings {
		k := key{l.Category, l.CategoryType}
		stat, ok := byKey[k]
		if !ok {
			stat = &CategoryStat{Category: l.Category, Type: l.CategoryType}
			byKey[k] = stat
		}
		stat.Total++
		if l.IsActive {
			stat.Active++
		}
	}

	stats := make([]CategoryStat, 0, len(byKey))
	for _, s := range byKey {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Category != stats[j].Category {
			return stats[i].Category < stats[j].Category
		}
		return stats[i].Type < stats[j].Type
	})
	return stats, nil
}

func (m *Memory) PriceStats(_ context.Context) ([]PriceStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byCat := make(map[string]*PriceStat)
	sums := make(map[string]int64)
	for _, l := range m.listings {
		if !l.IsActive {
			continue
		}
		yen, ok := domain.ParsePriceYen(l.Price)
		if !ok {
			continue
		}
		stat, exists := byCat[l.Category]
		if !exists {
			stat = &PriceStat{Category: l.Category, MinYen: yen, MaxYen: yen}
			byCat[l.Category] = stat
		}
		stat.Count++
		sums[l.Category] += yen
		if yen < stat.MinYen {
			stat.MinYen = yen
		}
		if yen > stat.MaxYen {
			stat.MaxYen = yen
		}
	}

	stats := make([]PriceStat, 0, len(byCat))
	for cat, s := range byCat {
		s.AvgYen = float64(sums[cat]) / float64(s.Count)
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Category < stats[j].Category })
	return stats, nil
}

func (m *Memory) Timeline(_ context.Context, days int) ([]TimelinePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().AddDate(0, 0, -days).Format(domain.DayFormat)

	var points []TimelinePoint
	for _, snaps := range m.snapshots {
		for _, snap := range snaps {
			if snap.Day >= cutoff {
				points = append(points, TimelinePoint{
					Day:      snap.Day,
					Category: snap.Category,
					URLCount: snap.URLCount,
				})
			}
		}
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Day != points[j].Day {
			return points[i].Day < points[j].Day
		}
		return points[i].Category < points[j].Category
	})
	return points, nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
