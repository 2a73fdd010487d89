package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":  "postgres://localhost/gigbot",
		"REDIS_URL":     "redis://localhost:6379",
		"FILTER_CONFIG": "",
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "9091", cfg.GRPCPort)
	assert.Equal(t, StorePostgres, cfg.StoreBackend)
	assert.Equal(t, []string{"reddit", "craigslist", "adzuna"}, cfg.EnabledSources)
	assert.Equal(t, 30*time.Minute, cfg.ScrapeInterval)
	assert.Equal(t, time.Second, cfg.DelayMin)
	assert.Equal(t, 3*time.Second, cfg.DelayMax)
	assert.Equal(t, 5, cfg.RetryAttempts)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 3, cfg.Health.Degraded)
	assert.Equal(t, 6, cfg.Health.Failed)
	assert.Equal(t, time.Hour, cfg.FailedCooldown)
	assert.Equal(t, "fr", cfg.AdzunaCountry)
	assert.NotEmpty(t, cfg.Filter.Keywords)
}

func TestFromEnv_Overrides(t *testing.T) {
	env := baseEnv()
	env["ENABLED_SOURCES"] = " Reddit , craigslist,, "
	env["SCRAPE_INTERVAL"] = "5m"
	env["SCRAPE_DELAY_MIN"] = "0s"
	env["SCRAPE_DELAY_MAX"] = "500ms"
	env["HEALTH_DEGRADED_AFTER"] = "2"
	env["HEALTH_FAILED_AFTER"] = "4"
	env["TELEGRAM_BOT_TOKEN"] = "123:abc"
	env["TELEGRAM_CHAT_ID"] = "-100200"
	env["CRAIGSLIST_CITIES"] = "sfbay,austin"

	cfg, err := FromEnv(envMap(env))
	require.NoError(t, err)

	assert.Equal(t, []string{"reddit", "craigslist"}, cfg.EnabledSources)
	assert.Equal(t, 5*time.Minute, cfg.ScrapeInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.DelayMax)
	assert.Equal(t, 2, cfg.Health.Degraded)
	assert.EqualValues(t, -100200, cfg.TelegramChatID)
	assert.Equal(t, []string{"sfbay", "austin"}, cfg.CraigslistCities)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := map[string]map[string]string{
		"missing database url":  {"DATABASE_URL": ""},
		"missing redis url":     {"REDIS_URL": ""},
		"bad duration":          {"SCRAPE_INTERVAL": "soon"},
		"bad int":               {"RETRY_ATTEMPTS": "five"},
		"delay min above max":   {"SCRAPE_DELAY_MIN": "5s", "SCRAPE_DELAY_MAX": "1s"},
		"thresholds inverted":   {"HEALTH_DEGRADED_AFTER": "6", "HEALTH_FAILED_AFTER": "3"},
		"zero attempts":         {"RETRY_ATTEMPTS": "0"},
		"too many attempts":     {"RETRY_ATTEMPTS": "64"},
		"unknown store":         {"STORE_BACKEND": "sqlite"},
		"telegram without chat": {"TELEGRAM_BOT_TOKEN": "123:abc"},
		"missing explicit yaml": {"FILTER_CONFIG": "/nonexistent/filter.yaml"},
		"max delay below base":  {"RETRY_BASE_DELAY": "2s", "RETRY_MAX_DELAY": "1s"},
		"no sources":            {"ENABLED_SOURCES": " , "},
	}
	for name, overrides := range tests {
		t.Run(name, func(t *testing.T) {
			env := baseEnv()
			for k, v := range overrides {
				env[k] = v
			}
			_, err := FromEnv(envMap(env))
			assert.Error(t, err)
		})
	}
}

func TestFromEnv_MemoryStoreNeedsNoDatabase(t *testing.T) {
	env := baseEnv()
	env["DATABASE_URL"] = ""
	env["STORE_BACKEND"] = "memory"
	cfg, err := FromEnv(envMap(env))
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
}

func TestLoadFilter_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
keywords:
  urgent: 4
  react: 2
classifier:
  enabled: true
  threshold: 0.7
`), 0o600))

	cfg, err := LoadFilter(path, true)
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"urgent": 4, "react": 2}, cfg.Keywords, "keywords replaced, not merged")
	assert.Contains(t, cfg.Negative, "scam", "absent fields keep defaults")
	assert.True(t, cfg.Classifier.Enabled)
	assert.Equal(t, 0.7, cfg.Classifier.Threshold)
	assert.Equal(t, 200, cfg.Classifier.MaxWords)
}

func TestFromEnv_PositiveLabelMustBeALabel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
classifier:
  enabled: true
  labels: [gig, chatter]
  positive_label: freelance gig
`), 0o600))

	env := baseEnv()
	env["FILTER_CONFIG"] = path
	_, err := FromEnv(envMap(env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive_label")

	require.NoError(t, os.WriteFile(path, []byte(`
classifier:
  labels: [gig, chatter]
  positive_label: gig
`), 0o600))
	cfg, err := FromEnv(envMap(env))
	require.NoError(t, err)
	assert.Equal(t, "gig", cfg.Filter.Classifier.PositiveLabel)
}

func TestLoadFilter_MissingOptionalFile(t *testing.T) {
	cfg, err := LoadFilter(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)
	assert.Contains(t, cfg.Keywords, "urgent")
}

func TestLoadFilter_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keywords: [unterminated"), 0o600))
	_, err := LoadFilter(path, true)
	assert.Error(t, err)
}

func TestLoadFilter_ShippedFileParses(t *testing.T) {
	cfg, err := LoadFilter(filepath.Join("..", "..", "configs", "filter.yaml"), true)
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.Keywords["urgent"])
	assert.Equal(t, "freelance gig", cfg.Classifier.PositiveLabel)
}
