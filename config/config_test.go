package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PAYOUT_CONCURRENCY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite:///./poolfund.db", cfg.Database.URL)
	assert.Equal(t, 4, cfg.Payout.Concurrency)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadRejectsDefaultSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "a-very-long-production-secret-value-123456")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("PAYOUT_LEASE_TIMEOUT", "30s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Payout.LeaseTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 100, cfg.RateLimit.Requests)
}

func TestDatabaseConfig(t *testing.T) {
	tests := []struct {
		url        string
		isPostgres bool
		sqlitePath string
	}{
		{url: "postgres://u:p@localhost:5432/pools?sslmode=disable", isPostgres: true},
		{url: "postgresql://u@db/pools", isPostgres: true},
		{url: "host=localhost user=u dbname=pools", isPostgres: true},
		{url: "sqlite:///./poolfund.db", sqlitePath: "./poolfund.db"},
		{url: ":memory:", sqlitePath: ":memory:"},
	}

	for _, tt := range tests {
		db := DatabaseConfig{URL: tt.url}
		assert.Equal(t, tt.isPostgres, db.IsPostgres(), tt.url)
		if !tt.isPostgres {
			assert.Equal(t, tt.sqlitePath, db.SQLitePath(), tt.url)
		}
	}
}
