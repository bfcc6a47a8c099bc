package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"apt_scrooper/config"
	"apt_scrooper/discovery"
	"apt_scrooper/extract"
	"apt_scrooper/models"
	"apt_scrooper/storage"
)

// Provider scrapes one brand's property sites.
type Provider interface {
	Slug() string
	// Start acquires the renderer. A failure here stops the provider's run.
	Start(ctx context.Context) error
	Close()
	DiscoverURLs(ctx context.Context) ([]string, error)
	// ScrapeOne never panics and never aborts; problems come back as
	// strings naming the URL.
	ScrapeOne(ctx context.Context, pageURL string) (*models.ScrapedBuilding, []string)
}

// Deps are the shared collaborators a provider is built with.
type Deps struct {
	Renderer   Renderer
	Catalog    storage.CatalogStore
	Discoverer *discovery.Discoverer
	Archiver   storage.Archiver
	Log        *logrus.Logger
	Now        func() time.Time
}

func NewProvider(cfg *config.ProviderConfig, deps Deps) (Provider, error) {
	switch cfg.Handler {
	case "", "standard":
		return NewSiteScraper(cfg, deps, nil), nil
	case "plancode":
		return NewSiteScraper(cfg, deps, extract.PlanCodeBedrooms), nil
	default:
		return nil, fmt.Errorf("provider %s: unknown handler %q", cfg.Slug, cfg.Handler)
	}
}
