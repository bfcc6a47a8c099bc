package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apt_scrooper/config"
	"apt_scrooper/discovery"
	"apt_scrooper/logging"
	"apt_scrooper/models"
	"apt_scrooper/storage"
)

// fakeRenderer serves canned markup by URL. A page body of "panic" panics.
type fakeRenderer struct {
	pages    map[string]string
	startErr error
	started  bool
	closed   bool
	rendered []string
}

func (f *fakeRenderer) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeRenderer) Render(_ context.Context, pageURL string, _ []string) (*Page, error) {
	f.rendered = append(f.rendered, pageURL)
	html, ok := f.pages[pageURL]
	if !ok {
		return nil, fmt.Errorf("navigate: status 404")
	}
	if html == "panic" {
		panic("renderer exploded")
	}
	return &Page{URL: pageURL, HTML: html}, nil
}

func (f *fakeRenderer) Close() { f.closed = true }

type fakeArchiver struct {
	keys []string
	err  error
}

func (a *fakeArchiver) Archive(_ context.Context, provider, pageURL string, _ []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	key := provider + "/" + pageURL
	a.keys = append(a.keys, key)
	return key, nil
}

func greenfieldConfig() *config.ProviderConfig {
	return &config.ProviderConfig{
		Slug:           "greenfield",
		Name:           "Greenfield Residential",
		Handler:        "standard",
		FloorPlansPath: "/floor-plans",
		SeedURLs:       []string{"https://landing.test/"},
		Selectors:      greenfieldSelectors(),
	}
}

func newTestSite(t *testing.T, cfg *config.ProviderConfig, r Renderer, deps Deps) *SiteScraper {
	t.Helper()
	deps.Renderer = r
	deps.Log = logging.Discard()
	deps.Now = func() time.Time { return testNow }
	p, err := NewProvider(cfg, deps)
	require.NoError(t, err)
	return p.(*SiteScraper)
}

func TestScrapeOne_ListingAndFloorPlans(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://landing.test/":           string(loadFixture(t, "landing_home.html")),
		"https://landing.test/floor-plans": string(loadFixture(t, "landing_floorplans.html")),
	}}
	site := newTestSite(t, greenfieldConfig(), r, Deps{})

	b, errs := site.ScrapeOne(context.Background(), "https://landing.test/")

	assert.Empty(t, errs)
	require.NotNil(t, b)
	assert.Equal(t, "The Landing at Greenfield", b.Name)
	assert.Equal(t, "https://landing.test/", b.ListingURL)
	assert.Equal(t, "https://landing.test/floor-plans", b.FloorPlansURL)
	require.Len(t, b.FloorPlans, 2)
	assert.Equal(t, "The Magnolia", b.FloorPlans[0].Name)
	require.Len(t, b.Specials, 1)
	assert.Equal(t, "Look and Lease", b.Specials[0].Title)
	assert.Nil(t, b.Specials[0].TargetPlans)
	assert.Equal(t, []string{"https://landing.test/", "https://landing.test/floor-plans"}, r.rendered)
}

func TestScrapeOne_NoFloorPlansIsSoftError(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://landing.test/":           string(loadFixture(t, "landing_home.html")),
		"https://landing.test/floor-plans": "<html><body><p>Floor plans coming soon</p></body></html>",
	}}
	archive := &fakeArchiver{}
	site := newTestSite(t, greenfieldConfig(), r, Deps{Archiver: archive})

	b, errs := site.ScrapeOne(context.Background(), "https://landing.test/")

	require.NotNil(t, b, "partial building is still returned")
	assert.Equal(t, "The Landing at Greenfield", b.Name)
	assert.Empty(t, b.FloorPlans)
	assert.Len(t, b.Specials, 1)
	require.Len(t, errs, 1)
	assert.Equal(t, "https://landing.test/: no floor plans found (archived greenfield/https://landing.test/floor-plans)", errs[0])
	assert.Equal(t, []string{"greenfield/https://landing.test/floor-plans"}, archive.keys)
}

func TestScrapeOne_ArchiveFailureKeepsSoftError(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://landing.test/": "<html><head><title>The Landing</title></head><body></body></html>",
	}}
	cfg := greenfieldConfig()
	cfg.FloorPlansPath = ""
	site := newTestSite(t, cfg, r, Deps{Archiver: &fakeArchiver{err: errors.New("bucket gone")}})

	b, errs := site.ScrapeOne(context.Background(), "https://landing.test/")

	require.NotNil(t, b)
	assert.Equal(t, "The Landing", b.Name)
	assert.Equal(t, []string{"https://landing.test/: no floor plans found"}, errs)
}

func TestScrapeOne_NavigationFailure(t *testing.T) {
	site := newTestSite(t, greenfieldConfig(), &fakeRenderer{}, Deps{})

	b, errs := site.ScrapeOne(context.Background(), "https://down.test/")

	assert.Nil(t, b)
	assert.Equal(t, []string{"https://down.test/: navigate: status 404"}, errs)
}

func TestScrapeOne_FloorPlansPageFailureKeepsListing(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"https://parkside.test/": string(loadFixture(t, "generic_site.html")),
	}}
	cfg := greenfieldConfig()
	cfg.Selectors = config.SelectorConfig{}
	site := newTestSite(t, cfg, r, Deps{})

	b, errs := site.ScrapeOne(context.Background(), "https://parkside.test/")

	require.NotNil(t, b)
	assert.Equal(t, "Parkside Commons", b.Name)
	assert.Len(t, b.FloorPlans, 2, "listing page cards are kept")
	assert.Equal(t, []string{"https://parkside.test/floor-plans: navigate: status 404"}, errs)
}

func TestScrapeOne_RecoversPanic(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{"https://boom.test/": "panic"}}
	site := newTestSite(t, greenfieldConfig(), r, Deps{})

	var (
		b    *models.ScrapedBuilding
		errs []string
	)
	assert.NotPanics(t, func() {
		b, errs = site.ScrapeOne(context.Background(), "https://boom.test/")
	})
	assert.Nil(t, b)
	assert.Equal(t, []string{"https://boom.test/: panic: renderer exploded"}, errs)
}

func TestDiscoverURLs_SeedFallback(t *testing.T) {
	site := newTestSite(t, greenfieldConfig(), &fakeRenderer{}, Deps{Catalog: storage.NewMemoryStore()})

	urls, err := site.DiscoverURLs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://landing.test/"}, urls)
}

func TestDiscoverURLs_CatalogWinsOverSeeds(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	for _, u := range []string{"https://b.test/", "https://a.test", "https://a.test/"} {
		require.NoError(t, store.InsertBuilding(ctx, &models.Building{
			ID: uuid.New(), Provider: "greenfield", ListingURL: u,
		}))
	}
	require.NoError(t, store.InsertBuilding(ctx, &models.Building{
		ID: uuid.New(), Provider: "someone-else", ListingURL: "https://other.test/",
	}))

	site := newTestSite(t, greenfieldConfig(), &fakeRenderer{}, Deps{Catalog: store})
	urls, err := site.DiscoverURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test", "https://b.test/"}, urls)
}

type indexPage string

func (p indexPage) FetchHTML(context.Context, string) (string, error) { return string(p), nil }

func TestDiscoverURLs_StandardProviderReadsIndex(t *testing.T) {
	cfg := greenfieldConfig()
	cfg.Index = &config.IndexConfig{URL: "https://portfolio.test/", Marker: "Parkside"}
	disc := discovery.NewDiscoverer(config.DiscoveryConfig{
		Known: map[string]config.PropertyOverride{
			"parkside commons": {URL: "https://parkside.test", Platform: "rentcafe"},
		},
	}, indexPage(`<html><body><p>Parkside Commons</p><p>Now Leasing</p></body></html>`), nil, time.Second, logging.Discard())

	site := newTestSite(t, cfg, &fakeRenderer{}, Deps{Discoverer: disc})
	urls, err := site.DiscoverURLs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://parkside.test"}, urls)
	assert.Equal(t, "/floorplans.aspx", site.paths[siteKey("https://parkside.test")])
}

func TestNewProvider(t *testing.T) {
	deps := Deps{Renderer: &fakeRenderer{}, Log: logging.Discard()}

	for _, handler := range []string{"", "standard", "plancode"} {
		p, err := NewProvider(&config.ProviderConfig{Slug: "x", Handler: handler}, deps)
		require.NoError(t, err, handler)
		assert.Equal(t, "x", p.Slug())
	}

	_, err := NewProvider(&config.ProviderConfig{Slug: "x", Handler: "apify"}, deps)
	assert.ErrorContains(t, err, `unknown handler "apify"`)
}
