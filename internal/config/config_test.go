package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(defaultViper())
	require.NoError(t, err)

	assert.Equal(t, "https://www.e-uchina.net", cfg.Crawler.BaseURL)
	assert.Equal(t, 4, cfg.Crawler.Workers)
	assert.Equal(t, 50, cfg.Crawler.ItemsPerPage)
	assert.Equal(t, 5, cfg.Crawler.MaxRPS)
	assert.Equal(t, 5, cfg.Crawler.BurstSize)
	assert.Equal(t, 2*time.Second, cfg.Crawler.BurstWindow)
	assert.Equal(t, 50, cfg.Crawler.MaxSessionUses)
	assert.Equal(t, 600*time.Second, cfg.Crawler.CollectBudget)
	assert.Equal(t, 10, cfg.Crawler.CheckpointEvery)
	assert.Equal(t, 24*time.Hour, cfg.Crawler.LinkTTL)
	assert.Equal(t, 2, cfg.Crawler.MaxAutoRetries)

	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "output/listings.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 5000, cfg.API.Port)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	v := defaultViper()
	v.Set("storage.backend", "mongodb")

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}

func TestLoadPostgresRequiresCredentials(t *testing.T) {
	v := defaultViper()
	v.Set("storage.backend", BackendPostgres)
	v.Set("storage.postgres.host", "localhost")

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user")
	assert.Contains(t, err.Error(), "password")
	assert.Contains(t, err.Error(), "dbname")
}

func TestLoadPostgresComplete(t *testing.T) {
	v := defaultViper()
	v.Set("storage.backend", BackendPostgres)
	v.Set("storage.postgres.host", "localhost")
	v.Set("storage.postgres.user", "crawler")
	v.Set("storage.postgres.password", "secret")
	v.Set("storage.postgres.dbname", "listings")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "5432", cfg.Storage.Postgres.Port)
	assert.Equal(t, "disable", cfg.Storage.Postgres.SSLMode)
}

func TestLoadRejectsNonPositiveNumerics(t *testing.T) {
	cases := map[string]any{
		"crawler.workers":        0,
		"crawler.max_rps":        -1,
		"crawler.items_per_page": 0,
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			v := defaultViper()
			v.Set(key, value)
			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsEmptyBaseURL(t *testing.T) {
	v := defaultViper()
	v.Set("crawler.base_url", "")
	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestCategoriesOverride(t *testing.T) {
	v := defaultViper()
	v.Set("crawler.categories", []map[string]any{
		{"code": "parking", "type": "賃貸", "genre": "駐車場", "url": "https://example.com/parking"},
	})

	cfg, err := Load(v)
	require.NoError(t, err)

	cats := cfg.Categories()
	require.Len(t, cats, 1)
	assert.Equal(t, "parking", cats[0].Code)
	assert.Equal(t, "駐車場", cats[0].Genre)
}

func TestCategoriesDefaultTable(t *testing.T) {
	cfg, err := Load(defaultViper())
	require.NoError(t, err)

	cats := cfg.Categories()
	require.NotEmpty(t, cats)
	for _, c := range cats {
		assert.NotEmpty(t, c.Code)
		assert.NotEmpty(t, c.Type)
		assert.NotEmpty(t, c.Genre)
	}
}
