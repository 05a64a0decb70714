package dashboard

import (
	"context"
	"path/filepath"
	"time"

	"gktracker/internal/objsync"
	"gktracker/lib/chrono"
	"gktracker/lib/telemetry"
)

// StateFile is the sync state file name inside the data directory.
const StateFile = ".sync.json"

type Syncer interface {
	Sync(ctx context.Context, bucket, prefix, localDir, statePath string) (objsync.Result, error)
}

type SyncOptions struct {
	DataDir     string
	Bucket      string
	Prefix      string
	MinInterval time.Duration
	// Force bypasses the minimum interval.
	Force bool
}

func StatePath(dataDir string) string {
	return filepath.Join(dataDir, StateFile)
}

// SyncOnStartup pulls the published tables into the data directory unless
// the last sync is younger than the minimum interval. It reports whether a
// sync ran.
func SyncOnStartup(ctx context.Context, tel telemetry.API, syncer Syncer, clock chrono.TimeAPI, opts SyncOptions) (bool, error) {
	statePath := StatePath(opts.DataDir)
	if !opts.Force && objsync.ShouldSkipSync(statePath, opts.MinInterval, clock.Now()) {
		tel.ReportDebug("skipping remote sync, synced recently", "state", statePath)
		return false, nil
	}

	tel.ReportDebug("syncing latest files", "bucket", opts.Bucket, "prefix", opts.Prefix)
	result, err := syncer.Sync(ctx, opts.Bucket, opts.Prefix, opts.DataDir, statePath)
	if err != nil {
		return false, err
	}
	tel.ReportDebug(
		"synced latest files",
		"downloaded", result.DownloadedCount,
		"skipped", result.SkippedCount,
	)
	return true, nil
}
