// Package objsync mirrors a remote object prefix into a local directory,
// downloading only objects that are missing locally or newer remotely, and
// records the outcome in a state file.
package objsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gktracker/lib/chrono"
	"gktracker/lib/configutil"
	"gktracker/lib/fsutil"
	"gktracker/lib/objstore"
	"gktracker/lib/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gktracker/internal/objsync")

const (
	report_download_failed = "syncer.download"
	report_count_download  = "syncer.downloaded"
	report_count_skipped   = "syncer.skipped"
)

var (
	// ErrMissingBucket is returned before any network call when no bucket is
	// configured, it matches configutil.ErrInvalidConfig.
	ErrMissingBucket = fmt.Errorf("%w: no bucket configured", configutil.ErrInvalidConfig)
	// ErrEmptyRemoteListing means the bucket/prefix holds no objects, this is
	// treated as a misconfiguration rather than nothing to do.
	ErrEmptyRemoteListing = errors.New("remote listing is empty")
)

type ObjectStore interface {
	List(ctx context.Context, bucket, prefix string) ([]objstore.Object, error)
	Download(ctx context.Context, bucket, key, localPath string) error
}

type Outcome struct {
	Key                   string `json:"key"`
	LocalPath             string `json:"local_path"`
	RemoteLastModifiedUtc string `json:"remote_last_modified_utc"`
}

// Result is the content of the sync state file.
type Result struct {
	Bucket          string    `json:"bucket"`
	Prefix          string    `json:"prefix"`
	SyncedAtUtc     string    `json:"synced_at_utc"`
	DownloadedCount int       `json:"downloaded_count"`
	SkippedCount    int       `json:"skipped_count"`
	Downloaded      []Outcome `json:"downloaded"`
	Skipped         []Outcome `json:"skipped"`
}

type Syncer struct {
	store ObjectStore
	time  chrono.TimeAPI
	tel   telemetry.API
}

func NewSyncer(tel telemetry.API, store ObjectStore, clock chrono.TimeAPI) Syncer {
	if clock == nil {
		clock = chrono.NewStandardTime()
	}
	return Syncer{
		store: store,
		time:  clock,
		tel:   telemetry.NewScopedAPI("objsync", tel),
	}
}

func isDirectoryMarker(key string) bool {
	return key == "" || strings.HasSuffix(key, "/")
}

// LocalPath maps a remote key under prefix (normalized) onto localDir.
func LocalPath(localDir, prefix, key string) (string, error) {
	rel := strings.TrimPrefix(key, prefix)
	path := filepath.Join(localDir, filepath.FromSlash(rel))
	inside, err := filepath.Rel(localDir, path)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %s resolves outside of %s", key, localDir)
	}
	return path, nil
}

// NeedsDownload reports whether the remote object must be fetched: the local
// file is absent or strictly older than the remote copy.
func NeedsDownload(localPath string, remoteModified time.Time) (bool, error) {
	info, err := os.Stat(localPath)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return remoteModified.UTC().After(info.ModTime().UTC()), nil
}

// Sync mirrors bucket/prefix into localDir and writes the Result to
// statePath once every transfer has completed.
func (s Syncer) Sync(ctx context.Context, bucket, prefix, localDir, statePath string) (Result, error) {
	ctx, span := tracer.Start(ctx, "syncer:Sync")
	defer span.End()

	if bucket == "" {
		return Result{}, ErrMissingBucket
	}
	prefix = objstore.NormalizePrefix(prefix)
	span.SetAttributes(
		attribute.String("bucket", bucket),
		attribute.String("prefix", prefix),
	)

	objects, err := s.store.List(ctx, bucket, prefix)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list remote objects")
		return Result{}, err
	}
	if len(objects) == 0 {
		span.SetStatus(codes.Error, "empty remote listing")
		return Result{}, fmt.Errorf("%w: s3://%s/%s", ErrEmptyRemoteListing, bucket, prefix)
	}

	result := Result{
		Bucket:     bucket,
		Prefix:     prefix,
		Downloaded: []Outcome{},
		Skipped:    []Outcome{},
	}
	for _, obj := range objects {
		if isDirectoryMarker(obj.Key) {
			continue
		}

		localPath, err := LocalPath(localDir, prefix, obj.Key)
		if err != nil {
			return Result{}, err
		}
		outcome := Outcome{
			Key:                   obj.Key,
			LocalPath:             localPath,
			RemoteLastModifiedUtc: chrono.FormatUTC(obj.LastModified),
		}

		download, err := NeedsDownload(localPath, obj.LastModified)
		if err != nil {
			return Result{}, fmt.Errorf("stat %s: %w", localPath, err)
		}
		if !download {
			result.Skipped = append(result.Skipped, outcome)
			continue
		}

		err = s.store.Download(ctx, bucket, obj.Key, localPath)
		if err != nil {
			s.tel.ReportBroken(report_download_failed, obj.Key, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to download object")
			return Result{}, err
		}
		result.Downloaded = append(result.Downloaded, outcome)
	}

	result.DownloadedCount = len(result.Downloaded)
	result.SkippedCount = len(result.Skipped)
	result.SyncedAtUtc = chrono.FormatUTC(s.time.Now())
	s.tel.ReportCount(report_count_download, int64(result.DownloadedCount))
	s.tel.ReportCount(report_count_skipped, int64(result.SkippedCount))

	err = fsutil.WriteJSON(statePath, result)
	if err != nil {
		return result, fmt.Errorf("write sync state: %w", err)
	}
	return result, nil
}
