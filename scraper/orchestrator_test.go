package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apt_scrooper/config"
	"apt_scrooper/httputil"
	"apt_scrooper/logging"
	"apt_scrooper/models"
	"apt_scrooper/services"
	"apt_scrooper/storage"
)

type orchestratorFixture struct {
	o         *Orchestrator
	ops       *storage.SQLiteStore
	catalog   *storage.MemoryStore
	renderers map[string]*fakeRenderer
}

func newOrchestratorFixture(t *testing.T, providers ...*config.ProviderConfig) *orchestratorFixture {
	t.Helper()

	ops, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ops.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ops.Close() })

	cfg := &config.Config{
		Scraper:   config.ScraperConfig{StaleHours: 48},
		Providers: map[string]*config.ProviderConfig{},
	}
	for _, p := range providers {
		cfg.Providers[p.Slug] = p
	}

	log := logging.Discard()
	catalog := storage.NewMemoryStore()
	o := NewOrchestrator(cfg, ops, catalog, httputil.NewClients(cfg.Scraper), log)
	o.SetServices(
		services.NewSyncService(catalog, services.NewFieldEditService(catalog, log), log),
		services.NewSpecialsService(catalog, log),
	)

	f := &orchestratorFixture{o: o, ops: ops, catalog: catalog, renderers: map[string]*fakeRenderer{}}
	o.newRenderer = func(p *config.ProviderConfig) Renderer {
		r, ok := f.renderers[p.Slug]
		if !ok {
			r = &fakeRenderer{}
			f.renderers[p.Slug] = r
		}
		return r
	}
	return f
}

func landingPages(t *testing.T) map[string]string {
	return map[string]string{
		"https://landing.test/":            string(loadFixture(t, "landing_home.html")),
		"https://landing.test/floor-plans": string(loadFixture(t, "landing_floorplans.html")),
	}
}

func TestRunProvider_WritesCatalogAndRunRecord(t *testing.T) {
	f := newOrchestratorFixture(t, greenfieldConfig())
	f.renderers["greenfield"] = &fakeRenderer{pages: landingPages(t)}
	ctx := context.Background()

	summary, err := f.o.RunProvider(ctx, "greenfield")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Properties)
	assert.Equal(t, 1, summary.Scraped)
	assert.Equal(t, 1, summary.BuildingsNew)
	assert.Equal(t, 2, summary.UnitsWritten)
	assert.Equal(t, 1, summary.SpecialsCreated)
	assert.Zero(t, summary.SpecialsUpdated)
	assert.Empty(t, summary.Errors)
	assert.True(t, f.renderers["greenfield"].closed)

	building, err := f.catalog.GetBuildingByListingURL(ctx, "https://landing.test/")
	require.NoError(t, err)
	require.NotNil(t, building)
	assert.Equal(t, "The Landing at Greenfield", building.Name)
	assert.Len(t, f.catalog.Units(building.ID), 2)
	specials := f.catalog.Specials(building.ID)
	require.Len(t, specials, 1)
	assert.Equal(t, "https://landing.test/floor-plans", specials[0].SourceURL)

	run, err := f.ops.GetRun(1)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.BuildingsNew)
	assert.Equal(t, 1, run.SpecialsCreated)
	assert.NotNil(t, run.FinishedAt)

	logs, err := f.ops.RunLogs(1)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[len(logs)-1].Message, "Completed: 1/1 scraped")

	// second pass finds the building through the catalog and updates in place
	summary, err = f.o.RunProvider(ctx, "greenfield")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.BuildingsUpdated)
	assert.Zero(t, summary.BuildingsNew)
	assert.Zero(t, summary.SpecialsCreated)
	assert.Equal(t, 1, summary.SpecialsUpdated)
	assert.Len(t, f.catalog.Specials(building.ID), 1)

	stats, err := f.ops.GetProviderStats("greenfield")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, "completed", stats.LastRunStatus)
}

func TestRunAll_LaunchFailureOnlyStopsThatProvider(t *testing.T) {
	broken := &config.ProviderConfig{Slug: "alpha", SeedURLs: []string{"https://alpha.test/"}}
	f := newOrchestratorFixture(t, broken, greenfieldConfig())
	f.renderers["alpha"] = &fakeRenderer{startErr: fmt.Errorf("%w: no chromium", ErrBrowserLaunch)}
	f.renderers["greenfield"] = &fakeRenderer{pages: landingPages(t)}

	summaries, err := f.o.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "alpha", summaries[0].Provider)
	assert.Equal(t, []string{"alpha: browser failed to launch: no chromium"}, summaries[0].Errors)
	assert.Equal(t, "greenfield", summaries[1].Provider)
	assert.Equal(t, 1, summaries[1].BuildingsNew)

	run, err := f.ops.GetRun(1)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}

func TestRunProvider_NavigationErrorsAreCollected(t *testing.T) {
	cfg := greenfieldConfig()
	cfg.SeedURLs = []string{"https://landing.test/", "https://gone.test/"}
	f := newOrchestratorFixture(t, cfg)
	f.renderers["greenfield"] = &fakeRenderer{pages: landingPages(t)}

	summary, err := f.o.RunProvider(context.Background(), "greenfield")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Properties)
	assert.Equal(t, 1, summary.Scraped)
	assert.Equal(t, []string{"https://gone.test/: navigate: status 404"}, summary.Errors)
}

func TestRunProvider_Unknown(t *testing.T) {
	f := newOrchestratorFixture(t)
	_, err := f.o.RunProvider(context.Background(), "nope")
	assert.True(t, errors.Is(err, models.ErrUnknownProvider))
}

func TestSweep(t *testing.T) {
	f := newOrchestratorFixture(t, greenfieldConfig())
	ctx := context.Background()

	b := &models.Building{ID: uuid.New(), Provider: "greenfield", ListingURL: "https://landing.test/"}
	require.NoError(t, f.catalog.InsertBuilding(ctx, b))

	now := time.Now()
	yesterday := now.AddDate(0, 0, -2)
	for _, sp := range []*models.Special{
		{ID: uuid.New(), BuildingID: b.ID, Provider: "greenfield", Title: "Expired", EndDate: &yesterday, ScrapedAt: now, IsActive: true},
		{ID: uuid.New(), BuildingID: b.ID, Provider: "greenfield", Title: "Stale", ScrapedAt: now.Add(-72 * time.Hour), IsActive: true},
		{ID: uuid.New(), BuildingID: b.ID, Provider: "greenfield", Title: "Fresh", ScrapedAt: now, IsActive: true},
	} {
		sp.CreatedAt, sp.UpdatedAt = sp.ScrapedAt, sp.ScrapedAt
		require.NoError(t, f.catalog.InsertSpecial(ctx, sp))
	}

	expired, stale, err := f.o.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1, stale)

	active, err := f.catalog.ListActiveSpecials(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Fresh", active[0].Title)
}

func TestSweep_SkipsStaleAfterRunThatReachedNothing(t *testing.T) {
	f := newOrchestratorFixture(t, greenfieldConfig())
	ctx := context.Background()

	b := &models.Building{ID: uuid.New(), Provider: "greenfield", ListingURL: "https://landing.test/"}
	require.NoError(t, f.catalog.InsertBuilding(ctx, b))

	now := time.Now()
	yesterday := now.AddDate(0, 0, -2)
	for _, sp := range []*models.Special{
		{ID: uuid.New(), BuildingID: b.ID, Provider: "greenfield", Title: "Expired", EndDate: &yesterday, ScrapedAt: now, IsActive: true},
		{ID: uuid.New(), BuildingID: b.ID, Provider: "greenfield", Title: "Stale", ScrapedAt: now.Add(-72 * time.Hour), IsActive: true},
	} {
		sp.CreatedAt, sp.UpdatedAt = sp.ScrapedAt, sp.ScrapedAt
		require.NoError(t, f.catalog.InsertSpecial(ctx, sp))
	}

	// every page 404s
	summary, err := f.o.RunProvider(ctx, "greenfield")
	require.NoError(t, err)
	assert.Zero(t, summary.Scraped)
	assert.Zero(t, summary.SpecialsStale)

	expired, stale, err := f.o.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Zero(t, stale)

	active, err := f.catalog.ListActiveSpecials(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Stale", active[0].Title)
}

func TestMarshalStatus(t *testing.T) {
	idle := &config.ProviderConfig{Slug: "alpha", SeedURLs: []string{"https://alpha.test/"}}
	f := newOrchestratorFixture(t, idle, greenfieldConfig())
	f.renderers["greenfield"] = &fakeRenderer{pages: landingPages(t)}

	_, err := f.o.RunProvider(context.Background(), "greenfield")
	require.NoError(t, err)
	swept := time.Date(2024, 6, 1, 12, 15, 0, 0, time.UTC)
	f.o.SetLastSweep(func() time.Time { return swept })

	raw, err := f.o.MarshalStatus()
	require.NoError(t, err)

	var st status
	require.NoError(t, json.Unmarshal(raw, &st))
	assert.False(t, st.Paused)
	require.Len(t, st.Providers, 2)
	assert.Equal(t, "alpha", st.Providers[0].Slug)
	assert.Nil(t, st.Providers[0].LastRun)
	assert.Equal(t, "greenfield", st.Providers[1].Slug)
	require.NotNil(t, st.Providers[1].LastRun)
	assert.WithinDuration(t, time.Now(), *st.Providers[1].LastRun, time.Minute)
	require.NotNil(t, st.LastSweep)
	assert.True(t, swept.Equal(*st.LastSweep))
}

func TestHandleCommand(t *testing.T) {
	f := newOrchestratorFixture(t, greenfieldConfig())
	f.renderers["greenfield"] = &fakeRenderer{pages: landingPages(t)}
	ctx := context.Background()

	require.NoError(t, f.o.HandleCommand(ctx, &models.Command{Command: models.CmdPause}))
	assert.True(t, f.o.IsPaused())

	summaries, err := f.o.RunAll(ctx)
	require.NoError(t, err)
	assert.Nil(t, summaries)
	assert.Empty(t, f.renderers["greenfield"].rendered)

	require.NoError(t, f.o.HandleCommand(ctx, &models.Command{Command: models.CmdResume}))
	assert.False(t, f.o.IsPaused())

	params, _ := json.Marshal(models.CommandParams{Provider: "greenfield"})
	require.NoError(t, f.o.HandleCommand(ctx, &models.Command{Command: models.CmdSyncProvider, Params: params}))
	assert.NotEmpty(t, f.renderers["greenfield"].rendered)

	err = f.o.HandleCommand(ctx, &models.Command{Command: "reboot"})
	assert.ErrorContains(t, err, "unknown command")

	err = f.o.HandleCommand(ctx, &models.Command{Command: models.CmdSyncProvider, Params: []byte(`{"provider":`)})
	assert.ErrorContains(t, err, "parse params")
}
