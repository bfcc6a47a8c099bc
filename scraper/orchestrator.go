package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"apt_scrooper/config"
	"apt_scrooper/discovery"
	"apt_scrooper/httputil"
	"apt_scrooper/metrics"
	"apt_scrooper/models"
	"apt_scrooper/services"
	"apt_scrooper/storage"
	"apt_scrooper/workers"
)

// RunSummary is what one provider run did, for logs and callers.
type RunSummary struct {
	Provider         string   `json:"provider"`
	Properties       int      `json:"properties"`
	Scraped          int      `json:"scraped"`
	BuildingsNew     int      `json:"buildings_new"`
	BuildingsUpdated int      `json:"buildings_updated"`
	UnitsWritten     int      `json:"units_written"`
	SpecialsCreated  int      `json:"specials_created"`
	SpecialsUpdated  int      `json:"specials_updated"`
	SpecialsStale    int      `json:"specials_stale"`
	Conflicts        int      `json:"conflicts"`
	Errors           []string `json:"errors"`
}

type Orchestrator struct {
	cfg     *config.Config
	store   *storage.SQLiteStore // run history; nil disables it
	catalog storage.CatalogStore
	clients *httputil.Clients
	queue   *httputil.HostQueue
	log     *logrus.Logger

	syncService     *services.SyncService
	specialsService *services.SpecialsService
	discoverer      *discovery.Discoverer
	archiver        storage.Archiver

	newRenderer func(p *config.ProviderConfig) Renderer
	lastSweep   func() time.Time

	runMu  sync.Mutex
	mu     sync.Mutex
	paused bool
}

func NewOrchestrator(cfg *config.Config, store *storage.SQLiteStore, catalog storage.CatalogStore, clients *httputil.Clients, log *logrus.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		store:    store,
		catalog:  catalog,
		clients:  clients,
		queue:    httputil.NewHostQueue(cfg.Scraper.Delay),
		log:      log,
		archiver: storage.NoOpArchiver{},
		discoverer: discovery.NewDiscoverer(
			cfg.Discovery,
			discovery.NewHTTPFetcher(clients.Fetch),
			clients.Probe,
			cfg.Scraper.ProbeTimeout,
			log,
		),
	}
	o.newRenderer = func(p *config.ProviderConfig) Renderer {
		return NewRenderer(p.Renderer, o.cfg.Scraper, o.clients, o.queue, o.log)
	}
	return o
}

// SetServices injects the catalog services
func (o *Orchestrator) SetServices(syncService *services.SyncService, specials *services.SpecialsService) {
	o.syncService = syncService
	o.specialsService = specials
}

func (o *Orchestrator) SetArchiver(a storage.Archiver) {
	o.archiver = a
}

// RunAll runs every configured provider in turn. One provider failing does
// not stop the others.
func (o *Orchestrator) RunAll(ctx context.Context) ([]*RunSummary, error) {
	if o.IsPaused() {
		o.log.Info("Scraper is paused, skipping run")
		return nil, nil
	}
	if !o.runMu.TryLock() {
		o.log.Warn("A run is already in progress, skipping")
		return nil, nil
	}
	defer o.runMu.Unlock()

	var summaries []*RunSummary
	for _, slug := range o.cfg.ProviderSlugs() {
		summary, err := o.runProvider(ctx, slug)
		if err != nil {
			o.log.WithFields(logrus.Fields{"provider": slug, "error": err}).Error("Provider run failed")
		}
		if summary != nil {
			summaries = append(summaries, summary)
		}
		if ctx.Err() != nil {
			return summaries, ctx.Err()
		}
	}
	return summaries, nil
}

// RunProvider runs a single provider by slug.
func (o *Orchestrator) RunProvider(ctx context.Context, slug string) (*RunSummary, error) {
	if !o.runMu.TryLock() {
		return nil, fmt.Errorf("a run is already in progress")
	}
	defer o.runMu.Unlock()
	return o.runProvider(ctx, slug)
}

func (o *Orchestrator) runProvider(ctx context.Context, slug string) (*RunSummary, error) {
	pcfg, ok := o.cfg.Providers[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownProvider, slug)
	}
	if o.syncService == nil || o.specialsService == nil {
		return nil, fmt.Errorf("catalog services not initialized")
	}

	run := &models.ScrapeRun{
		Provider:  slug,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	var runID *int64
	if o.store != nil {
		id, err := o.store.CreateRun(run)
		if err != nil {
			return nil, err
		}
		run.ID = id
		runID = &id
	}
	logLine := workers.StoreLogger(o.store, runID, o.log)
	summary := &RunSummary{Provider: slug, Errors: []string{}}

	defer func() {
		now := time.Now()
		run.FinishedAt = &now
		run.ErrorsCount = len(summary.Errors)
		metrics.LastRunTimestamp.WithLabelValues(slug).Set(float64(now.Unix()))
		if o.store == nil {
			return
		}
		if err := o.store.UpdateRun(run); err != nil {
			o.log.WithError(err).Warn("Failed to update run record")
		}
		if err := o.store.UpdateProviderStats(slug); err != nil {
			o.log.WithError(err).Warn("Failed to update provider stats")
		}
	}()

	logLine(models.LogLevelInfo, slug, fmt.Sprintf("Starting sync for %s", pcfg.Name))

	provider, err := NewProvider(pcfg, Deps{
		Renderer:   o.newRenderer(pcfg),
		Catalog:    o.catalog,
		Discoverer: o.discoverer,
		Archiver:   o.archiver,
		Log:        o.log,
	})
	if err != nil {
		run.Status = models.RunStatusFailed
		summary.Errors = append(summary.Errors, err.Error())
		return summary, err
	}

	urls, err := provider.DiscoverURLs(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
	}
	summary.Properties = len(urls)
	run.PropertiesFound = len(urls)
	logLine(models.LogLevelInfo, slug, fmt.Sprintf("%d properties to scrape", len(urls)))

	result, err := Scrape(ctx, provider, urls, o.queue, o.log)
	summary.Errors = append(summary.Errors, result.Errors...)
	if err != nil {
		run.Status = models.RunStatusFailed
		logLine(models.LogLevelError, slug, fmt.Sprintf("Provider aborted: %v", err))
		return summary, err
	}
	summary.Scraped = len(result.Buildings)

	report := o.syncService.SyncBuildings(ctx, slug, result.Buildings)
	summary.BuildingsNew = report.BuildingsNew
	summary.BuildingsUpdated = report.BuildingsUpdated
	summary.UnitsWritten = report.UnitsWritten
	summary.Conflicts = report.Conflicts
	summary.Errors = append(summary.Errors, report.Errors...)

	specials := o.specialsService.SyncFromBuildings(ctx, report.Synced, slug)
	summary.SpecialsCreated = specials.TotalCreated
	summary.SpecialsUpdated = specials.TotalUpdated
	summary.Errors = append(summary.Errors, specials.Errors...)

	run.BuildingsNew = summary.BuildingsNew
	run.BuildingsUpdated = summary.BuildingsUpdated
	run.UnitsWritten = summary.UnitsWritten
	run.SpecialsCreated = summary.SpecialsCreated
	run.SpecialsUpdated = summary.SpecialsUpdated
	run.Conflicts = summary.Conflicts
	run.Status = models.RunStatusCompleted

	if run.ReachedSites() {
		n, err := o.specialsService.DeactivateStale(ctx, slug, o.cfg.Scraper.StaleHours)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("stale sweep: %v", err))
		}
		summary.SpecialsStale = n
	}

	for _, e := range summary.Errors {
		logLine(models.LogLevelWarn, slug, e)
	}
	logLine(models.LogLevelInfo, slug, fmt.Sprintf(
		"Completed: %d/%d scraped, %d new buildings, %d updated, %d units, %d specials created, %d updated, %d stale, %d conflicts, %d errors",
		summary.Scraped, summary.Properties, summary.BuildingsNew, summary.BuildingsUpdated, summary.UnitsWritten,
		summary.SpecialsCreated, summary.SpecialsUpdated, summary.SpecialsStale, summary.Conflicts, len(summary.Errors)))

	return summary, nil
}

// Sweep deactivates expired specials everywhere and stale specials for
// every configured provider, except a provider whose last finished run
// reached no site.
func (o *Orchestrator) Sweep(ctx context.Context) (expired, stale int, err error) {
	if o.specialsService == nil {
		return 0, 0, fmt.Errorf("catalog services not initialized")
	}

	var errs []error
	expired, e := o.specialsService.DeactivateExpired(ctx)
	if e != nil {
		errs = append(errs, e)
	}
	for _, slug := range o.cfg.ProviderSlugs() {
		if o.store != nil {
			last, e := o.store.LastFinishedRun(slug)
			if e != nil {
				errs = append(errs, fmt.Errorf("%s: last run: %w", slug, e))
				continue
			}
			if last != nil && !last.ReachedSites() {
				o.log.WithField("provider", slug).Info("Skipping stale sweep, last run reached no sites")
				continue
			}
		}
		n, e := o.specialsService.DeactivateStale(ctx, slug, o.cfg.Scraper.StaleHours)
		if e != nil {
			errs = append(errs, fmt.Errorf("%s: %w", slug, e))
			continue
		}
		stale += n
	}

	o.log.WithFields(logrus.Fields{"expired": expired, "stale": stale}).Info("Specials sweep finished")
	return expired, stale, errors.Join(errs...)
}

func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := o.commandParams(cmd)
	if err != nil {
		return fmt.Errorf("parse params: %w", err)
	}

	switch cmd.Command {
	case models.CmdSyncAll:
		_, err = o.RunAll(ctx)
		return err
	case models.CmdSyncProvider:
		if params.Provider == "" {
			_, err = o.RunAll(ctx)
			return err
		}
		_, err = o.RunProvider(ctx, params.Provider)
		return err
	case models.CmdSweep:
		_, _, err = o.Sweep(ctx)
		return err
	case models.CmdPause:
		o.setPaused(true)
		o.log.Info("Scraper paused")
	case models.CmdResume:
		o.setPaused(false)
		o.log.Info("Scraper resumed")
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
	return nil
}

func (o *Orchestrator) commandParams(cmd *models.Command) (*models.CommandParams, error) {
	if o.store != nil {
		return o.store.ParseCommandParams(cmd)
	}
	var params models.CommandParams
	if len(cmd.Params) > 0 {
		if err := json.Unmarshal(cmd.Params, &params); err != nil {
			return nil, err
		}
	}
	return &params, nil
}

func (o *Orchestrator) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

func (o *Orchestrator) setPaused(v bool) {
	o.mu.Lock()
	o.paused = v
	o.mu.Unlock()
}

// SetLastSweep gives /status a source for the sweep worker's last pass.
func (o *Orchestrator) SetLastSweep(last func() time.Time) {
	o.lastSweep = last
}

type providerStatus struct {
	Slug    string     `json:"slug"`
	LastRun *time.Time `json:"last_run,omitempty"`
}

type status struct {
	Paused    bool             `json:"paused"`
	Providers []providerStatus `json:"providers"`
	LastSweep *time.Time       `json:"last_sweep,omitempty"`
}

func (o *Orchestrator) MarshalStatus() ([]byte, error) {
	st := status{Paused: o.IsPaused(), Providers: []providerStatus{}}
	for _, slug := range o.cfg.ProviderSlugs() {
		ps := providerStatus{Slug: slug}
		if o.store != nil {
			last, err := o.store.GetLastRunTime(slug)
			if err != nil {
				return nil, fmt.Errorf("last run for %s: %w", slug, err)
			}
			if !last.IsZero() {
				ps.LastRun = &last
			}
		}
		st.Providers = append(st.Providers, ps)
	}
	if o.lastSweep != nil {
		if t := o.lastSweep(); !t.IsZero() {
			st.LastSweep = &t
		}
	}
	return json.Marshal(st)
}
