package main

import (
	"time"

	"gktracker/lib/chrono"
	"gktracker/lib/configutil"
	"gktracker/lib/notify"
	"gktracker/lib/objstore"
	"gktracker/lib/sqliteutil"
)

type Config struct {
	ManifestPath  string   `json:"manifest_path" env:"MANIFEST_PATH"`
	RawDir        string   `json:"raw_dir" env:"RAW_DIR"`
	Dataset       string   `json:"dataset"`
	ModelsDir     string   `json:"models_dir" env:"MODELS_DIR"`
	PublicDir     string   `json:"public_dir" env:"PUBLIC_DIR"`
	WarehousePath string   `json:"warehouse_path" env:"WAREHOUSE_PATH"`
	ExportTables  []string `json:"export_tables"`

	BaseUrl             string   `json:"base_url"`
	DiscoveryUrls       []string `json:"discovery_urls"`
	Seasons             []string `json:"seasons"`
	MaxAgeDays          int      `json:"max_age_days" env:"MAX_AGE_DAYS"`
	RequestDelaySeconds float64  `json:"request_delay_seconds" env:"REQUEST_DELAY_SECONDS"`
	FetchWaitSeconds    float64  `json:"fetch_wait_seconds"`
	// PageCache enables the scraper page cache when a file or url is set.
	PageCache         sqliteutil.Config `json:"page_cache"`
	PageCacheTtlHours int               `json:"page_cache_ttl_hours"`
	// HttpDumpDir receives full http messages in verbose mode.
	HttpDumpDir string `json:"http_dump_dir"`

	Bucket        string          `json:"bucket" env:"S3_BUCKET"`
	HistoryPrefix string          `json:"history_prefix"`
	LatestPrefix  string          `json:"latest_prefix" env:"S3_PREFIX"`
	ObjectStore   objstore.Config `json:"object_store"`

	Email notify.EmailConfig `json:"email"`
	// Schedule is the cron spec used by the daemon command.
	Schedule string `json:"schedule" env:"SCHEDULE"`
}

var defaultConfig = Config{
	ManifestPath:        "data/manifest/players.json",
	RawDir:              "data/raw",
	Dataset:             "matchlogs",
	ModelsDir:           "transform/models",
	PublicDir:           "data/public",
	WarehousePath:       "data/warehouse.duckdb",
	ExportTables:        []string{"fct_goalkeeper_performance", "mart_goalkeeper_league_ratings"},
	BaseUrl:             "https://fbref.com",
	DiscoveryUrls:       []string{"https://fbref.com/en/comps/9/keepers/Premier-League-Stats"},
	Seasons:             []string{"2024-2025"},
	MaxAgeDays:          6,
	RequestDelaySeconds: 2,
	FetchWaitSeconds:    5,
	PageCacheTtlHours:   12,
	Bucket:              "gk-performance-tracker-data",
	HistoryPrefix:       "history",
	LatestPrefix:        "latest",
	Schedule:            "0 6 * * *",
}

func (c Config) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

func (c Config) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds * float64(time.Second))
}

func (c Config) FetchWait() time.Duration {
	return time.Duration(c.FetchWaitSeconds * float64(time.Second))
}

func (c Config) PageCacheTtl() time.Duration {
	return time.Duration(c.PageCacheTtlHours) * time.Hour
}

func (c Config) Validate() error {
	if c.ManifestPath == "" {
		return configutil.Invalid("manifest_path is required")
	}
	if c.RawDir == "" || c.PublicDir == "" {
		return configutil.Invalid("raw_dir and public_dir are required")
	}
	if c.Dataset == "" {
		return configutil.Invalid("dataset is required")
	}
	if len(c.Seasons) == 0 {
		return configutil.Invalid("at least one season is required")
	}
	if c.MaxAgeDays < 0 {
		return configutil.Invalid("max_age_days must not be negative, got %d", c.MaxAgeDays)
	}
	if c.RequestDelaySeconds < 0 {
		return configutil.Invalid("request_delay_seconds must not be negative")
	}
	if c.Bucket == "" {
		return configutil.Invalid("bucket is required")
	}
	if c.Schedule != "" {
		_, err := chrono.NextRun(c.Schedule, time.Now())
		if err != nil {
			return configutil.Invalid("schedule: %v", err)
		}
	}
	err := c.ObjectStore.Validate()
	if err != nil {
		return err
	}
	return c.Email.Validate()
}

func loadConfig(path string) (Config, error) {
	config, err := configutil.Load(path, defaultConfig)
	if err != nil {
		return Config{}, err
	}
	return config, config.Validate()
}
