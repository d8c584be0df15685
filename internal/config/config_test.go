package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("API_ID", "3000123")
	t.Setenv("API_KEY", "secret-key")
	t.Setenv("STATION", "Richmond")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://timetableapi.ptv.vic.gov.au/v3", cfg.APIBase)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "Australia/Melbourne", cfg.Timezone)
	assert.Equal(t, "5 0 * * *", cfg.RefreshSchedule)
	assert.Equal(t, "* * * * *", cfg.TickSchedule)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "pidboard.db", cfg.DatabasePath)
	assert.Equal(t, 24*time.Hour, cfg.SnapshotRetention)
	assert.Equal(t, "Australia/Melbourne", cfg.Location().String())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8081")
	t.Setenv("FETCH_TIMEOUT_SECONDS", "5")
	t.Setenv("CORS_ORIGINS", "http://localhost:5173, http://pid.local")
	t.Setenv("SQLITE_DATABASE", "")
	t.Setenv("ENRICH_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, []string{"http://localhost:5173", "http://pid.local"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.DatabasePath, "explicitly empty SQLITE_DATABASE disables persistence")
	assert.Equal(t, 8, cfg.EnrichConcurrency, "unparseable ints fall back to the default")
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("API_ID", "")
	t.Setenv("API_KEY", "")
	t.Setenv("STATION", "1162")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidTimezone(t *testing.T) {
	setRequired(t)
	t.Setenv("TIMEZONE", "Mars/Olympus_Mons")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidBaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("API_BASE", "not a url")

	_, err := Load()
	assert.Error(t, err)
}
