package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Scheduler   SchedulerConfig
	Scraper     ScraperConfig
	S3          S3Config
	Discovery   DiscoveryConfig
	DatabaseURL string
	DBPath      string
	ConfigDir   string
	LogLevel    string
	LogFile     string
	MetricsAddr string
	Providers   map[string]*ProviderConfig
}

type SchedulerConfig struct {
	Interval  time.Duration
	Cron      string
	SweepCron string
}

type ScraperConfig struct {
	Delay        time.Duration // minimum spacing between requests to one host
	NavTimeout   time.Duration
	PopupWait    time.Duration
	ProbeTimeout time.Duration
	StaleHours   int
	Headless     bool
	UserAgent    string
	UserDataDir  string
	ProxyURL     string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // DO Spaces, R2, MinIO
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// ProviderConfig is one brand, loaded from config/providers/<slug>.yaml
type ProviderConfig struct {
	Slug           string         `yaml:"slug"`
	Name           string         `yaml:"name"`
	Handler        string         `yaml:"handler"`  // standard | plancode
	Renderer       string         `yaml:"renderer"` // browser (default) | http
	SeedURLs       []string       `yaml:"seed_urls"`
	FloorPlansPath string         `yaml:"floor_plans_path"`
	Selectors      SelectorConfig `yaml:"selectors"`
	Index          *IndexConfig   `yaml:"index"`
	Disabled       bool           `yaml:"disabled"`
}

// SelectorConfig lists CSS selectors per role, tried in order.
type SelectorConfig struct {
	Name             []string `yaml:"name"`
	Address          []string `yaml:"address"`
	Phone            []string `yaml:"phone"`
	Amenity          []string `yaml:"amenity"`
	Gallery          []string `yaml:"gallery"`
	FloorPlanCard    []string `yaml:"floor_plan_card"`
	PlanName         []string `yaml:"plan_name"`
	PlanBeds         []string `yaml:"plan_beds"`
	PlanBaths        []string `yaml:"plan_baths"`
	PlanSqFt         []string `yaml:"plan_sqft"`
	PlanRent         []string `yaml:"plan_rent"`
	PlanAvailable    []string `yaml:"plan_available"`
	PlanImage        []string `yaml:"plan_image"`
	SpecialContainer []string `yaml:"special_container"`
	SpecialTitle     []string `yaml:"special_title"`
	Popup            []string `yaml:"popup"`
}

// IndexConfig describes a portfolio page that lists a brand's communities.
type IndexConfig struct {
	URL          string   `yaml:"url"`
	Marker       string   `yaml:"marker"`
	Lookahead    int      `yaml:"lookahead"`
	URLTemplates []string `yaml:"url_templates"` // e.g. https://www.{compact}.com
}

// PropertyOverride pins discovery results for one community, keyed by name.
type PropertyOverride struct {
	Status            string `yaml:"status"`
	URL               string `yaml:"url"`
	Platform          string `yaml:"platform"`
	FloorPlansPath    string `yaml:"floor_plans_path"`
	ExcludeFromScrape bool   `yaml:"exclude_from_scrape"`
}

type DiscoveryConfig struct {
	Overrides map[string]PropertyOverride `yaml:"overrides"`
	Known     map[string]PropertyOverride `yaml:"known"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Scheduler: SchedulerConfig{
			Cron:      os.Getenv("SYNC_CRON"),
			SweepCron: getEnv("SWEEP_CRON", "15 * * * *"),
		},
		Scraper: ScraperConfig{
			Delay:        getEnvMillis("SCRAPE_DELAY_MS", 2000),
			NavTimeout:   getEnvMillis("NAV_TIMEOUT_MS", 30000),
			PopupWait:    getEnvMillis("POPUP_WAIT_MS", 5000),
			ProbeTimeout: getEnvMillis("PROBE_TIMEOUT_MS", 5000),
			StaleHours:   getEnvInt("STALE_HOURS", 48),
			Headless:     getEnv("HEADLESS", "true") == "true",
			UserAgent:    getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"),
			UserDataDir:  getEnv("BROWSER_DATA_DIR", "browser_data"),
			ProxyURL:     os.Getenv("PROXY_URL"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			Prefix:          getEnv("S3_PREFIX", "pages"),
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      getEnv("DB_PATH", "scraper.db"),
		ConfigDir:   getEnv("CONFIG_DIR", "config"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", "daemon.log"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
		Providers:   make(map[string]*ProviderConfig),
	}

	if interval := os.Getenv("SYNC_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	providers, err := LoadProviders(filepath.Join(cfg.ConfigDir, "providers"))
	if err != nil {
		return nil, err
	}
	cfg.Providers = providers

	disc, err := LoadDiscovery(filepath.Join(cfg.ConfigDir, "discovery.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.Discovery = *disc

	return cfg, nil
}

// LoadProviders reads every *.yaml in dir. A missing dir yields no providers.
func LoadProviders(dir string) (map[string]*ProviderConfig, error) {
	providers := make(map[string]*ProviderConfig)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return providers, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		var p ProviderConfig
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if p.Slug == "" {
			p.Slug = strings.TrimSuffix(entry.Name(), ".yaml")
		}
		if p.Disabled {
			continue
		}

		providers[p.Slug] = &p
	}

	return providers, nil
}

// LoadDiscovery reads the override and known-community tables. Names are
// matched case-insensitively so keys are lowercased on load.
func LoadDiscovery(path string) (*DiscoveryConfig, error) {
	cfg := &DiscoveryConfig{
		Overrides: map[string]PropertyOverride{},
		Known:     map[string]PropertyOverride{},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	var raw DiscoveryConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for name, o := range raw.Overrides {
		cfg.Overrides[strings.ToLower(strings.TrimSpace(name))] = o
	}
	for name, o := range raw.Known {
		cfg.Known[strings.ToLower(strings.TrimSpace(name))] = o
	}
	return cfg, nil
}

// ProviderSlugs returns configured providers in a stable order.
func (c *Config) ProviderSlugs() []string {
	slugs := make([]string, 0, len(c.Providers))
	for slug := range c.Providers {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvMillis(key string, defaultMS int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMS)) * time.Millisecond
}
