package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"apt_scrooper/config"
	"apt_scrooper/httputil"
	"apt_scrooper/logging"
	"apt_scrooper/models"
	"apt_scrooper/report"
	"apt_scrooper/scheduler"
	"apt_scrooper/scraper"
	"apt_scrooper/services"
	"apt_scrooper/storage"
	"apt_scrooper/workers"
)

var (
	syncNow  = flag.Bool("sync", false, "Run a full sync once and exit")
	provider = flag.String("provider", "", "Limit -sync to one provider slug")
	sweepNow = flag.Bool("sweep", false, "Deactivate expired and stale specials, then exit")
	export   = flag.String("export", "", "Write active specials and open conflicts to this .xlsx file, then exit")
	enqueue  = flag.String("enqueue", "", "Queue a command (sync_all, sync_provider, sweep, pause, resume) for the running daemon")
	dryRun   = flag.Bool("dry-run", false, "Use an in-memory catalog instead of Postgres")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logging.New(cfg.LogLevel)
	if logFile, err := logging.Setup(log, cfg.LogFile); err != nil {
		log.Warnf("Could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Info("Starting apt_scrooper...")
	log.Infof("Loaded %d provider configs", len(cfg.Providers))
	for _, slug := range cfg.ProviderSlugs() {
		p := cfg.Providers[slug]
		log.Infof("  - %s (%s, handler=%s)", p.Name, slug, orDefault(p.Handler, "standard"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite holds runs, logs and the command queue
	opsStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer opsStore.Close()
	log.Infof("SQLite database: %s", cfg.DBPath)

	if *enqueue != "" {
		var params *models.CommandParams
		if *provider != "" {
			params = &models.CommandParams{Provider: *provider}
		}
		id, err := opsStore.EnqueueCommand(models.CommandType(*enqueue), params)
		if err != nil {
			log.Fatalf("Failed to enqueue command: %v", err)
		}
		log.Infof("Queued %s as command %d", *enqueue, id)
		return
	}

	catalog, closeCatalog, err := openCatalog(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer closeCatalog()

	edits := services.NewFieldEditService(catalog, log)
	syncService := services.NewSyncService(catalog, edits, log)
	specials := services.NewSpecialsService(catalog, log)
	log.Info("Services initialized")

	if *export != "" {
		if err := writeReport(ctx, *export, catalog, specials, edits); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		log.Infof("Wrote %s", *export)
		return
	}

	archiver, err := storage.NewArchiver(ctx, cfg.S3)
	if err != nil {
		log.Fatalf("Failed to set up page archive: %v", err)
	}
	if cfg.S3.Enabled() {
		log.Infof("Archiving empty pages to s3://%s/%s", cfg.S3.Bucket, cfg.S3.Prefix)
	}

	clients := httputil.NewClients(cfg.Scraper)
	if cfg.Scraper.ProxyURL != "" {
		log.Infof("Proxy: %s", maskConnectionString(cfg.Scraper.ProxyURL))
	}

	orchestrator := scraper.NewOrchestrator(cfg, opsStore, catalog, clients, log)
	orchestrator.SetServices(syncService, specials)
	orchestrator.SetArchiver(archiver)

	sweeper := workers.NewSweepWorker(orchestrator.Sweep, log)
	sweeper.SetLogger(workers.StoreLogger(opsStore, nil, log))
	orchestrator.SetLastSweep(sweeper.LastSweep)

	if *sweepNow {
		if _, _, err := sweeper.RunOnce(ctx); err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		return
	}

	if *syncNow {
		log.Info("Running sync...")
		if *provider != "" {
			_, err = orchestrator.RunProvider(ctx, *provider)
		} else {
			_, err = orchestrator.RunAll(ctx)
		}
		if err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
		log.Info("Sync complete!")
		return
	}

	// Daemon mode
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, orchestrator, log)
	}

	sched := scheduler.New(cfg, orchestrator, opsStore, log)
	sched.SetSweepWorker(sweeper)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	go sweeper.Run(ctx, 0)
	log.Info("Sweep worker started")

	log.Info("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down...")
	cancel()
	sched.Stop()
	log.Info("Goodbye!")
}

// openCatalog connects to Postgres and applies migrations, or hands back an
// in-memory store for dry runs.
func openCatalog(ctx context.Context, cfg *config.Config, log *logrus.Logger) (storage.CatalogStore, func(), error) {
	if *dryRun {
		log.Warn("Dry run: catalog writes are kept in memory and discarded on exit")
		return storage.NewMemoryStore(), func() {}, nil
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is not set (use -dry-run to scrape without a catalog)")
	}

	if err := storage.Migrate(ctx, cfg.DatabaseURL, log); err != nil {
		return nil, nil, err
	}
	pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("Connected to Postgres: %s", maskConnectionString(cfg.DatabaseURL))
	return pg, pg.Close, nil
}

func writeReport(ctx context.Context, path string, catalog storage.CatalogStore, specials *services.SpecialsService, edits *services.FieldEditService) error {
	data, err := report.Collect(ctx, catalog, specials, edits)
	if err != nil {
		return err
	}
	raw, err := report.Build(data)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

func serveMetrics(addr string, o *scraper.Orchestrator, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		body, err := o.MarshalStatus()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Infof("Metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("Metrics server stopped")
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	// Simple mask - find :// and mask until @
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	// Find : after user
	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
