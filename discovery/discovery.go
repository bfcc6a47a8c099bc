package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"apt_scrooper/config"
	"apt_scrooper/identity"
)

// Property is a resolved community ready to scrape.
type Property struct {
	Name           string   `json:"name"`
	URL            string   `json:"url"`
	Platform       Platform `json:"platform"`
	FloorPlansPath string   `json:"floor_plans_path"`
	Source         string   `json:"source"` // known | override | link | guess
}

type Skipped struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type Result struct {
	Properties []Property `json:"properties"`
	Skipped    []Skipped  `json:"skipped"`
}

// Fetcher returns the markup of a page.
type Fetcher interface {
	FetchHTML(ctx context.Context, pageURL string) (string, error)
}

// HTTPFetcher fetches static markup over plain HTTP.
type HTTPFetcher struct {
	client *resty.Client
}

func NewHTTPFetcher(client *resty.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode())
	}
	return resp.String(), nil
}

type Discoverer struct {
	overrides    map[string]config.PropertyOverride
	known        map[string]config.PropertyOverride
	fetch        Fetcher
	probe        *resty.Client
	probeTimeout time.Duration
	log          *logrus.Logger
}

func NewDiscoverer(cfg config.DiscoveryConfig, fetch Fetcher, probe *resty.Client, probeTimeout time.Duration, log *logrus.Logger) *Discoverer {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Discoverer{
		overrides:    cfg.Overrides,
		known:        cfg.Known,
		fetch:        fetch,
		probe:        probe,
		probeTimeout: probeTimeout,
		log:          log,
	}
}

// Discover reads the index page and resolves every listed community.
// Only a failure to load the index itself is returned as an error.
func (d *Discoverer) Discover(ctx context.Context, idx *config.IndexConfig) (*Result, error) {
	if idx == nil || idx.URL == "" {
		return nil, fmt.Errorf("no index configured")
	}

	html, err := d.fetch.FetchHTML(ctx, idx.URL)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}

	lookahead := idx.Lookahead
	if lookahead <= 0 {
		lookahead = 3
	}
	candidates := ParseIndex(TextLines(doc), idx.Marker, lookahead)

	result := &Result{}
	for _, c := range candidates {
		prop, reason := d.resolve(ctx, c, doc, idx)
		if prop == nil {
			result.Skipped = append(result.Skipped, Skipped{Name: c.Name, Reason: reason})
			d.log.WithFields(logrus.Fields{"name": c.Name, "reason": reason}).Debug("Discovery skipped community")
			continue
		}
		result.Properties = append(result.Properties, *prop)
	}

	d.log.WithFields(logrus.Fields{
		"index":      idx.URL,
		"candidates": len(candidates),
		"resolved":   len(result.Properties),
		"skipped":    len(result.Skipped),
	}).Info("Discovery finished")
	return result, nil
}

func (d *Discoverer) resolve(ctx context.Context, c Candidate, doc *goquery.Document, idx *config.IndexConfig) (*Property, string) {
	key := strings.ToLower(strings.TrimSpace(c.Name))
	override, hasOverride := d.overrides[key]
	known, isKnown := d.known[key]

	status := c.Status
	if hasOverride && override.Status != "" {
		status = ParseStatus(override.Status)
	}
	if status == StatusComingSoon {
		return nil, "coming soon"
	}
	if override.ExcludeFromScrape || known.ExcludeFromScrape {
		return nil, "excluded"
	}

	prop := &Property{Name: c.Name}
	var pinned config.PropertyOverride
	switch {
	case isKnown && known.URL != "":
		prop.URL, prop.Source, pinned = known.URL, "known", known
	case hasOverride && override.URL != "":
		prop.URL, prop.Source, pinned = override.URL, "override", override
	default:
		if link := sameSiteLink(doc, c.Name, idx.URL); link != "" {
			prop.URL, prop.Source = link, "link"
		} else if guess := d.guess(ctx, c.Name, idx.URLTemplates); guess != "" {
			prop.URL, prop.Source = guess, "guess"
		}
	}
	if prop.URL == "" {
		return nil, "unresolved"
	}

	prop.Platform = Platform(pinned.Platform)
	if prop.Platform == "" {
		prop.Platform = d.classify(ctx, prop.URL)
	}
	prop.FloorPlansPath = pinned.FloorPlansPath
	if prop.FloorPlansPath == "" {
		prop.FloorPlansPath = FloorPlansPath(prop.Platform)
	}
	return prop, ""
}

// sameSiteLink finds an anchor whose text names the community and which
// points off the index host. Returns the site root.
func sameSiteLink(doc *goquery.Document, name, indexURL string) string {
	indexHost := ""
	if u, err := url.Parse(indexURL); err == nil {
		indexHost = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	}
	want := strings.ToLower(name)

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(a.Text()), want) {
			return true
		}
		href, _ := a.Attr("href")
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return true
		}
		if strings.TrimPrefix(strings.ToLower(u.Host), "www.") == indexHost {
			return true
		}
		found = u.Scheme + "://" + u.Host
		return false
	})
	return found
}

// guess fills each template and returns the first that answers a HEAD
// request with a 2xx. Each probe has its own deadline.
func (d *Discoverer) guess(ctx context.Context, name string, templates []string) string {
	if d.probe == nil {
		return ""
	}
	r := strings.NewReplacer("{compact}", identity.CompactSlug(name), "{slug}", identity.Slug(name))
	for _, tpl := range templates {
		candidate := r.Replace(tpl)
		if d.alive(ctx, candidate) {
			return candidate
		}
	}
	return ""
}

func (d *Discoverer) alive(ctx context.Context, target string) bool {
	ctx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	resp, err := d.probe.R().SetContext(ctx).Head(target)
	if err != nil {
		d.log.WithFields(logrus.Fields{"url": target, "error": err}).Debug("Probe failed")
		return false
	}
	return resp.IsSuccess()
}

func (d *Discoverer) classify(ctx context.Context, siteURL string) Platform {
	if d.fetch == nil {
		return PlatformUnknown
	}
	html, err := d.fetch.FetchHTML(ctx, siteURL)
	if err != nil {
		d.log.WithFields(logrus.Fields{"url": siteURL, "error": err}).Warn("Platform sniff failed")
		return PlatformUnknown
	}
	return ClassifyPlatform(html)
}
