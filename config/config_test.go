package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProviders(t *testing.T) {
	providers, err := LoadProviders(filepath.Join("testdata", "providers"))
	require.NoError(t, err)

	require.Len(t, providers, 1)
	acme, ok := providers["acme"]
	require.True(t, ok, "slug should default to the file name")
	assert.Equal(t, "standard", acme.Handler)
	assert.Equal(t, []string{"https://acme.example.com"}, acme.SeedURLs)
	assert.Equal(t, []string{".plan"}, acme.Selectors.FloorPlanCard)
	assert.Nil(t, acme.Index)
}

func TestLoadProviders_MissingDir(t *testing.T) {
	providers, err := LoadProviders(filepath.Join("testdata", "nope"))
	require.NoError(t, err)
	assert.Empty(t, providers)
}

func TestLoadProviders_Shipped(t *testing.T) {
	providers, err := LoadProviders("providers")
	require.NoError(t, err)

	crescent := providers["crescent"]
	require.NotNil(t, crescent)
	assert.Equal(t, "plancode", crescent.Handler)
	require.NotNil(t, crescent.Index)
	assert.Equal(t, 4, crescent.Index.Lookahead)
	assert.NotEmpty(t, crescent.Selectors.Popup)
}

func TestLoadDiscovery(t *testing.T) {
	d, err := LoadDiscovery(filepath.Join("testdata", "discovery.yaml"))
	require.NoError(t, err)

	assert.True(t, d.Overrides["novel daybreak"].ExcludeFromScrape)
	assert.Equal(t, "https://www.novelmidtownatl.com", d.Known["novel midtown"].URL)
	assert.Equal(t, "/floor-plans/", d.Known["novel midtown"].FloorPlansPath)
}

func TestLoadDiscovery_Missing(t *testing.T) {
	d, err := LoadDiscovery(filepath.Join("testdata", "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, d.Overrides)
	assert.Empty(t, d.Known)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_DIR", "testdata")
	for _, key := range []string{"SCRAPE_DELAY_MS", "NAV_TIMEOUT_MS", "POPUP_WAIT_MS", "PROBE_TIMEOUT_MS", "S3_BUCKET"} {
		t.Setenv(key, "")
	}
	t.Setenv("STALE_HOURS", "72")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Scraper.Delay)
	assert.Equal(t, 30*time.Second, cfg.Scraper.NavTimeout)
	assert.Equal(t, 5*time.Second, cfg.Scraper.PopupWait)
	assert.Equal(t, 5*time.Second, cfg.Scraper.ProbeTimeout)
	assert.Equal(t, 72, cfg.Scraper.StaleHours)
	assert.Equal(t, []string{"acme"}, cfg.ProviderSlugs())
	assert.False(t, cfg.S3.Enabled())
}
