package main

import (
	"time"

	"gktracker/lib/chrono"
	"gktracker/lib/configutil"
	"gktracker/lib/objstore"
)

type Config struct {
	DataDir                string `json:"data_dir" env:"DATA_DIR"`
	MinSyncIntervalSeconds int    `json:"min_sync_interval_seconds" env:"MIN_SYNC_INTERVAL_SECONDS"`
	Bucket                 string `json:"bucket" env:"S3_BUCKET"`
	Prefix                 string `json:"prefix" env:"S3_PREFIX"`
	// ForceSync is "1" to sync regardless of the last sync time.
	ForceSync   string          `json:"force_sync" env:"FORCE_S3_SYNC"`
	Port        int             `json:"port" env:"PORT"`
	ObjectStore objstore.Config `json:"object_store"`
	// RefreshSchedule reloads the cache from the data directory on a cron
	// schedule when set.
	RefreshSchedule string `json:"refresh_schedule"`
}

var defaultConfig = Config{
	DataDir:                "data/dashboard",
	MinSyncIntervalSeconds: 300,
	Bucket:                 "gk-performance-tracker-data",
	Prefix:                 "latest",
	Port:                   8050,
}

func (c Config) MinSyncInterval() time.Duration {
	return time.Duration(c.MinSyncIntervalSeconds) * time.Second
}

func (c Config) Force() bool {
	return c.ForceSync == "1"
}

func (c Config) Validate() error {
	if c.DataDir == "" {
		return configutil.Invalid("data_dir is required")
	}
	if c.Bucket == "" {
		return configutil.Invalid("bucket is required")
	}
	if c.MinSyncIntervalSeconds < 0 {
		return configutil.Invalid("min_sync_interval_seconds must not be negative, got %d", c.MinSyncIntervalSeconds)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return configutil.Invalid("port %d is out of range", c.Port)
	}
	if c.RefreshSchedule != "" {
		_, err := chrono.NextRun(c.RefreshSchedule, time.Now())
		if err != nil {
			return configutil.Invalid("refresh_schedule: %v", err)
		}
	}
	return c.ObjectStore.Validate()
}

// readConfig loads the config file over the defaults and applies the
// environment, flags are applied by the caller before Validate.
func readConfig(path string) (Config, error) {
	return configutil.Load(path, defaultConfig)
}
