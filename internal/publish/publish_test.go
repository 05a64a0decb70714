package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gktracker/internal/ledger"
	"gktracker/internal/warehouse"
	"gktracker/lib/chrono"
	"gktracker/lib/objstore"
	"gktracker/lib/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type mirrorCall struct {
	Prefix      string
	DeleteExtra bool
	Files       []string
}

type fakeUploader struct {
	calls  []mirrorCall
	failAt int
}

func (f *fakeUploader) Mirror(ctx context.Context, localDir, bucket, prefix string, deleteExtra bool) (objstore.MirrorResult, error) {
	if f.failAt > 0 && len(f.calls)+1 == f.failAt {
		return objstore.MirrorResult{}, errors.New("access denied")
	}
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return objstore.MirrorResult{}, err
	}
	call := mirrorCall{Prefix: prefix, DeleteExtra: deleteExtra}
	for _, e := range entries {
		call.Files = append(call.Files, e.Name())
	}
	f.calls = append(f.calls, call)
	return objstore.MirrorResult{}, nil
}

func writeFile(t testing.TB, path, contents string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

var at = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

func setup(t testing.TB, uploader Uploader) (*Publisher, Options) {
	dir := t.TempDir()
	opts := Options{
		RawDir:        filepath.Join(dir, "raw"),
		Dataset:       "matchlogs",
		ModelsDir:     filepath.Join(dir, "models"),
		PublicDir:     filepath.Join(dir, "public"),
		ExportTables:  []string{"fct_goalkeeper_performance"},
		Bucket:        "b",
		HistoryPrefix: "history",
		LatestPrefix:  "latest",
	}
	writeFile(t, filepath.Join(opts.RawDir, "ederson_2024-2025.csv"), "goalkeeper,saves\nederson,4\n")
	writeFile(t, filepath.Join(opts.ModelsDir, "fct_goalkeeper_performance.sql"),
		"select * from {{ source('raw_matchlogs', 'all_matchlogs') }}")
	writeFile(t, filepath.Join(opts.ModelsDir, "schema.yml"), `
models:
  - name: fct_goalkeeper_performance
    description: Match rows.
    columns:
      - name: goalkeeper
        meta:
          label: Goalkeeper
`)

	wh, err := warehouse.Open(telemetry.SlogAPI{}, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { wh.Close() })

	return NewPublisher(telemetry.SlogAPI{}, wh, uploader, chrono.FrozenTime{At: at}, opts), opts
}

func TestFullRun(t *testing.T) {
	uploader := &fakeUploader{}
	p, opts := setup(t, uploader)
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	require.NoError(t, p.Transform(ctx))
	require.NoError(t, p.Stage(ctx))
	require.NoError(t, p.Upload(ctx))

	_, err := os.Stat(filepath.Join(opts.PublicDir, "fct_goalkeeper_performance.parquet"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(opts.PublicDir, warehouse.MetadataFile))
	require.NoError(t, err)

	expected := []mirrorCall{
		{
			Prefix:      "history/2024-09-01T12:00:00Z/",
			DeleteExtra: false,
			Files:       []string{"fct_goalkeeper_performance.parquet", "status.json", "table_metadata.json"},
		},
		{
			Prefix:      "latest",
			DeleteExtra: true,
			Files:       []string{"fct_goalkeeper_performance.parquet", "status.json", "table_metadata.json"},
		},
	}
	if diff := cmp.Diff(expected, uploader.calls); diff != "" {
		t.Fatal(diff)
	}

	entries := p.Ledger().Read()
	require.Equal(t, []string{
		ledger.StageLoadWarehouse,
		ledger.StageBuildModels,
		ledger.StageStagePublicTables,
		ledger.StageUploadPublic,
	}, p.Ledger().Keys(entries))
	require.Equal(t, map[string]int64{"fct_goalkeeper_performance": 1}, entries[ledger.StageStagePublicTables].Tables)
	require.Equal(t, int64(1), entries[ledger.StageLoadWarehouse].Tables["raw_matchlogs.all_matchlogs"])
}

func TestFailedStageIsNotRecorded(t *testing.T) {
	uploader := &fakeUploader{failAt: 2}
	p, _ := setup(t, uploader)
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	require.NoError(t, p.Transform(ctx))
	require.NoError(t, p.Stage(ctx))
	require.Error(t, p.Upload(ctx))

	_, ok := p.Ledger().Read()[ledger.StageUploadPublic]
	require.False(t, ok)
}

func TestStageWithoutModelsFails(t *testing.T) {
	p, _ := setup(t, &fakeUploader{})
	require.Error(t, p.Stage(context.Background()))
	require.Empty(t, p.Ledger().Read())
}
