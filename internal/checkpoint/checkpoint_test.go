package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatewatch/crawler/internal/domain"
	"github.com/estatewatch/crawler/internal/logger"
)

type fakeStore struct {
	stored *domain.Checkpoint
	err    error
}

func (f *fakeStore) LoadCheckpoint(_ context.Context, _ string) (*domain.Checkpoint, error) {
	return f.stored, f.err
}

func (f *fakeStore) SaveCheckpoint(_ context.Context, cp *domain.Checkpoint) error {
	if f.err != nil {
		return f.err
	}
	f.stored = cp
	return nil
}

var frozenNow = time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)

func testManager(store *fakeStore) *Manager {
	m := New(store, logger.NewNop())
	m.now = func() time.Time { return frozenNow }
	return m
}

func TestLoadReturnsEmptySetWhenNoCheckpoint(t *testing.T) {
	m := testManager(&fakeStore{})

	processed, err := m.Load(context.Background(), "mansion")

	require.NoError(t, err)
	assert.Empty(t, processed)
}

func TestLoadReturnsTodaysProgress(t *testing.T) {
	m := testManager(&fakeStore{stored: &domain.Checkpoint{
		Category:      "mansion",
		ProcessedURLs: []string{"/b/1", "/b/2"},
		Count:         2,
		LastUpdated:   frozenNow.Add(-2 * time.Hour),
	}})

	processed, err := m.Load(context.Background(), "mansion")

	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"/b/1": true, "/b/2": true}, processed)
}

func TestLoadDiscardsCheckpointFromEarlierDay(t *testing.T) {
	m := testManager(&fakeStore{stored: &domain.Checkpoint{
		Category:      "mansion",
		ProcessedURLs: []string{"/b/1"},
		Count:         1,
		LastUpdated:   frozenNow.AddDate(0, 0, -1),
	}})

	processed, err := m.Load(context.Background(), "mansion")

	require.NoError(t, err)
	assert.Empty(t, processed)
}

func TestSaveOverwritesWithFullSet(t *testing.T) {
	store := &fakeStore{}
	m := testManager(store)

	err := m.Save(context.Background(), "house", map[string]bool{"/b/2": true, "/b/1": true})

	require.NoError(t, err)
	require.NotNil(t, store.stored)
	assert.Equal(t, domain.StringSlice{"/b/1", "/b/2"}, store.stored.ProcessedURLs)
	assert.Equal(t, 2, store.stored.Count)
	assert.Equal(t, frozenNow, store.stored.LastUpdated)
}

func TestLoadPropagatesStoreErrors(t *testing.T) {
	storeErr := errors.New("db gone")
	m := testManager(&fakeStore{err: storeErr})

	_, err := m.Load(context.Background(), "house")
	require.ErrorIs(t, err, storeErr)
}
