package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"apt_scrooper/config"
	"apt_scrooper/discovery"
	"apt_scrooper/metrics"
	"apt_scrooper/models"
	"apt_scrooper/storage"
)

// SiteScraper handles brands whose communities each run their own site with
// a listing page and a floor plans sub-page.
type SiteScraper struct {
	cfg        *config.ProviderConfig
	renderer   Renderer
	catalog    storage.CatalogStore
	discoverer *discovery.Discoverer
	archiver   storage.Archiver
	strategies Strategies
	log        *logrus.Logger
	now        func() time.Time

	// floor plan paths learned from discovery, keyed by site URL
	paths map[string]string
}

func NewSiteScraper(cfg *config.ProviderConfig, deps Deps, fallback BedroomFallback) *SiteScraper {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	archiver := deps.Archiver
	if archiver == nil {
		archiver = storage.NoOpArchiver{}
	}
	return &SiteScraper{
		cfg:        cfg,
		renderer:   deps.Renderer,
		catalog:    deps.Catalog,
		discoverer: deps.Discoverer,
		archiver:   archiver,
		strategies: DefaultStrategies(cfg.Selectors, fallback),
		log:        deps.Log,
		now:        now,
		paths:      make(map[string]string),
	}
}

func (s *SiteScraper) Slug() string {
	return s.cfg.Slug
}

func (s *SiteScraper) Start(ctx context.Context) error {
	return s.renderer.Start(ctx)
}

func (s *SiteScraper) Close() {
	s.renderer.Close()
}

// DiscoverURLs merges the URLs already in the catalog with what the
// portfolio index lists. The seed list is used only when both come up empty.
func (s *SiteScraper) DiscoverURLs(ctx context.Context) ([]string, error) {
	var urls []string
	seen := map[string]bool{}
	add := func(u string) {
		key := siteKey(u)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		urls = append(urls, u)
	}

	if s.catalog != nil {
		known, err := s.catalog.ListBuildingURLs(ctx, s.cfg.Slug)
		if err != nil {
			s.log.WithFields(logrus.Fields{"provider": s.cfg.Slug, "error": err}).Warn("Catalog URL lookup failed")
		}
		for _, u := range known {
			add(u)
		}
	}

	if s.discoverer != nil && s.cfg.Index != nil {
		res, err := s.discoverer.Discover(ctx, s.cfg.Index)
		if err != nil {
			s.log.WithFields(logrus.Fields{"provider": s.cfg.Slug, "error": err}).Warn("Discovery failed")
		} else {
			for _, p := range res.Properties {
				s.paths[siteKey(p.URL)] = p.FloorPlansPath
				add(p.URL)
			}
		}
	}

	if len(urls) == 0 {
		for _, u := range s.cfg.SeedURLs {
			add(u)
		}
	}
	return urls, nil
}

func (s *SiteScraper) ScrapeOne(ctx context.Context, pageURL string) (building *models.ScrapedBuilding, errs []string) {
	defer func() {
		if r := recover(); r != nil {
			building = nil
			errs = append(errs, fmt.Sprintf("%s: panic: %v", pageURL, r))
			metrics.ErrorsTotal.WithLabelValues(metrics.ErrNavigation).Inc()
		}
	}()

	log := s.log.WithFields(logrus.Fields{"provider": s.cfg.Slug, "url": pageURL})
	now := s.now()

	listing, err := s.renderer.Render(ctx, pageURL, s.cfg.Selectors.Popup)
	if err != nil {
		metrics.PagesScraped.WithLabelValues(s.cfg.Slug, "failed").Inc()
		metrics.ErrorsTotal.WithLabelValues(metrics.ErrNavigation).Inc()
		return nil, []string{fmt.Sprintf("%s: %v", pageURL, err)}
	}
	doc, err := ParseDocument(listing)
	if err != nil {
		return nil, []string{fmt.Sprintf("%s: parse: %v", pageURL, err)}
	}

	b := s.strategies.identity(doc)
	b.ListingURL = pageURL
	specials := s.strategies.specials(doc, now)
	plans, strategy := s.strategies.floorPlans(doc)
	lastPage := listing

	if path := s.floorPlansPath(pageURL); path != "" {
		fpURL := absURL(pageURL, path)
		b.FloorPlansURL = fpURL

		page, err := s.renderer.Render(ctx, fpURL, s.cfg.Selectors.Popup)
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues(metrics.ErrNavigation).Inc()
			errs = append(errs, fmt.Sprintf("%s: %v", fpURL, err))
		} else if fpDoc, err := ParseDocument(page); err == nil {
			lastPage = page
			if found, name := s.strategies.floorPlans(fpDoc); len(found) > 0 {
				plans, strategy = found, name
			}
			specials = append(specials, s.strategies.specials(fpDoc, now)...)
			mergeIdentity(&b, s.strategies.identity(fpDoc))
		}
	}

	b.FloorPlans = plans
	b.Specials = finishSpecials(specials, plans)

	if len(plans) == 0 {
		metrics.PagesScraped.WithLabelValues(s.cfg.Slug, "no_data").Inc()
		metrics.ErrorsTotal.WithLabelValues(metrics.ErrNoData).Inc()
		msg := fmt.Sprintf("%s: no floor plans found", pageURL)
		if key := s.archive(ctx, lastPage); key != "" {
			msg += " (archived " + key + ")"
		}
		errs = append(errs, msg)
	} else {
		metrics.PagesScraped.WithLabelValues(s.cfg.Slug, "ok").Inc()
	}

	if b.Name == "" && len(plans) == 0 && len(b.Specials) == 0 {
		return nil, errs
	}

	log.WithFields(logrus.Fields{
		"name":        b.Name,
		"floor_plans": len(plans),
		"strategy":    strategy,
		"specials":    len(b.Specials),
	}).Info("Scraped property")
	return &b, errs
}

func (s *SiteScraper) floorPlansPath(pageURL string) string {
	if p, ok := s.paths[siteKey(pageURL)]; ok && p != "" {
		return p
	}
	return s.cfg.FloorPlansPath
}

func (s *SiteScraper) archive(ctx context.Context, page *Page) string {
	key, err := s.archiver.Archive(ctx, s.cfg.Slug, page.URL, []byte(page.HTML))
	if err != nil {
		s.log.WithFields(logrus.Fields{"provider": s.cfg.Slug, "url": page.URL, "error": err}).Warn("Failed to archive page")
		return ""
	}
	return key
}

// finishSpecials drops repeated titles and attaches target plans.
func finishSpecials(specials []models.ScrapedSpecial, plans []models.ScrapedFloorPlan) []models.ScrapedSpecial {
	var out []models.ScrapedSpecial
	seen := map[string]bool{}
	for _, sp := range specials {
		if seen[sp.Title] {
			continue
		}
		seen[sp.Title] = true
		sp.TargetPlans = targetPlans(sp, plans)
		out = append(out, sp)
	}
	return out
}

func siteKey(u string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(u)), "/")
}
