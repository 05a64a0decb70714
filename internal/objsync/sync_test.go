package objsync

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gktracker/lib/chrono"
	"gktracker/lib/configutil"
	"gktracker/lib/objstore"
	"gktracker/lib/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	objects    []objstore.Object
	listCalls  int
	downloaded []string
	failOn     string
}

func (f *fakeStore) List(ctx context.Context, bucket, prefix string) ([]objstore.Object, error) {
	f.listCalls++
	return f.objects, nil
}

func (f *fakeStore) Download(ctx context.Context, bucket, key, localPath string) error {
	if key == f.failOn {
		return errors.New("connection reset")
	}
	f.downloaded = append(f.downloaded, key)
	err := os.MkdirAll(filepath.Dir(localPath), 0o755)
	if err != nil {
		return err
	}
	return os.WriteFile(localPath, []byte(key), 0o644)
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

var syncedAt = mustTime("2024-09-01T12:00:00Z")

func newSyncer(store ObjectStore) Syncer {
	return NewSyncer(telemetry.SlogAPI{}, store, chrono.FrozenTime{At: syncedAt})
}

func TestSyncSkipsDirectoryMarkers(t *testing.T) {
	dir := t.TempDir()
	localDir := filepath.Join(dir, "data")
	statePath := filepath.Join(dir, "state", ".sync.json")

	store := &fakeStore{objects: []objstore.Object{
		{Key: "latest/a.csv", LastModified: mustTime("2024-01-02T00:00:00Z")},
		{Key: "latest/", LastModified: mustTime("2024-01-01T00:00:00Z")},
	}}
	result, err := newSyncer(store).Sync(context.Background(), "b", "latest", localDir, statePath)
	require.NoError(t, err)

	expected := Result{
		Bucket:          "b",
		Prefix:          "latest/",
		SyncedAtUtc:     "2024-09-01T12:00:00Z",
		DownloadedCount: 1,
		SkippedCount:    0,
		Downloaded: []Outcome{{
			Key:                   "latest/a.csv",
			LocalPath:             filepath.Join(localDir, "a.csv"),
			RemoteLastModifiedUtc: "2024-01-02T00:00:00Z",
		}},
		Skipped: []Outcome{},
	}
	if diff := cmp.Diff(expected, result); diff != "" {
		t.Fatal(diff)
	}

	data, err := os.ReadFile(statePath)
	require.NoError(t, err)
	var persisted Result
	require.NoError(t, json.Unmarshal(data, &persisted))
	if diff := cmp.Diff(expected, persisted); diff != "" {
		t.Fatal(diff)
	}
}

func TestSyncFreshness(t *testing.T) {
	remote := mustTime("2024-05-01T10:00:00Z")

	testCases := []struct {
		name     string
		local    *time.Time
		expected bool
	}{
		{name: "absent", local: nil, expected: true},
		{name: "local older", local: ptr(remote.Add(-time.Second)), expected: true},
		{name: "equal", local: ptr(remote), expected: false},
		{name: "local newer", local: ptr(remote.Add(time.Hour)), expected: false},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()
			localDir := filepath.Join(dir, "data")
			if test.local != nil {
				path := filepath.Join(localDir, "nested", "x.parquet")
				require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
				require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))
				require.NoError(t, os.Chtimes(path, *test.local, *test.local))
			}

			store := &fakeStore{objects: []objstore.Object{
				{Key: "latest/nested/x.parquet", LastModified: remote},
			}}
			result, err := newSyncer(store).Sync(
				context.Background(), "b", "/latest/", localDir, filepath.Join(dir, ".sync.json"),
			)
			require.NoError(t, err)

			require.Equal(t, test.expected, len(store.downloaded) == 1)
			require.Equal(t, 1, result.DownloadedCount+result.SkippedCount)
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestSyncNonUtcRemoteTimestamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	local := mustTime("2024-05-01T10:00:00Z")
	require.NoError(t, os.Chtimes(path, local, local))

	// 11:00 at UTC+2 is 09:00 UTC, older than the local copy
	remote := time.Date(2024, 5, 1, 11, 0, 0, 0, time.FixedZone("UTC+2", 2*60*60))
	download, err := NeedsDownload(path, remote)
	require.NoError(t, err)
	require.False(t, download)
}

func TestSyncEmptyListing(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, ".sync.json")

	_, err := newSyncer(&fakeStore{}).Sync(context.Background(), "b", "latest", dir, statePath)
	require.ErrorIs(t, err, ErrEmptyRemoteListing)

	_, err = os.Stat(statePath)
	require.True(t, os.IsNotExist(err))
}

func TestSyncMissingBucket(t *testing.T) {
	store := &fakeStore{}
	_, err := newSyncer(store).Sync(context.Background(), "", "latest", t.TempDir(), filepath.Join(t.TempDir(), "s.json"))
	require.ErrorIs(t, err, ErrMissingBucket)
	require.ErrorIs(t, err, configutil.ErrInvalidConfig)
	require.Equal(t, 0, store.listCalls)
}

func TestSyncDownloadFailureKeepsPreviousState(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, ".sync.json")
	require.NoError(t, os.WriteFile(statePath, []byte(`{"synced_at_utc":"2024-01-01T00:00:00Z"}`), 0o644))

	store := &fakeStore{
		objects: []objstore.Object{
			{Key: "a.csv", LastModified: syncedAt},
			{Key: "b.csv", LastModified: syncedAt},
		},
		failOn: "b.csv",
	}
	_, err := newSyncer(store).Sync(context.Background(), "b", "", filepath.Join(dir, "data"), statePath)
	require.Error(t, err)

	data, err := os.ReadFile(statePath)
	require.NoError(t, err)
	require.Equal(t, `{"synced_at_utc":"2024-01-01T00:00:00Z"}`, string(data))
}

func TestLocalPathRejectsEscapes(t *testing.T) {
	dir := t.TempDir()
	_, err := LocalPath(dir, "latest/", "latest/../../etc/passwd")
	require.Error(t, err)

	path, err := LocalPath(dir, "", "a/b.csv")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "a", "b.csv"), path)
}
