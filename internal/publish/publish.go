// Package publish runs the second half of the pipeline: load scraped files
// into the warehouse, build the models, stage the public tables and upload
// them. Each successful stage is recorded in the status ledger.
package publish

import (
	"context"
	"fmt"
	"path/filepath"

	"gktracker/internal/ledger"
	"gktracker/internal/warehouse"
	"gktracker/lib/chrono"
	"gktracker/lib/objstore"
	"gktracker/lib/telemetry"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("gktracker/internal/publish")

const (
	report_upload_history = "publisher.upload-history"
	report_upload_latest  = "publisher.upload-latest"
)

// Uploader mirrors a local directory to a remote prefix.
type Uploader interface {
	Mirror(ctx context.Context, localDir, bucket, prefix string, deleteExtra bool) (objstore.MirrorResult, error)
}

type Options struct {
	RawDir       string
	Dataset      string
	ModelsDir    string
	PublicDir    string
	ExportTables []string

	Bucket        string
	HistoryPrefix string
	LatestPrefix  string
}

// StatusFile is where the ledger lives inside the public directory.
const StatusFile = "status.json"

type Publisher struct {
	warehouse *warehouse.Warehouse
	uploader  Uploader
	ledger    ledger.Ledger
	time      chrono.TimeAPI
	opts      Options
	tel       telemetry.API
}

func NewPublisher(tel telemetry.API, wh *warehouse.Warehouse, uploader Uploader, clock chrono.TimeAPI, opts Options) *Publisher {
	if clock == nil {
		clock = chrono.NewStandardTime()
	}
	return &Publisher{
		warehouse: wh,
		uploader:  uploader,
		ledger:    ledger.New(tel, filepath.Join(opts.PublicDir, StatusFile)),
		time:      clock,
		opts:      opts,
		tel:       telemetry.NewScopedAPI("publish", tel),
	}
}

func (p *Publisher) Ledger() ledger.Ledger {
	return p.ledger
}

func (p *Publisher) Load(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "publisher:Load")
	defer span.End()

	return p.ledger.Track(
		p.time, ledger.StageLoadWarehouse,
		"Load scraped match logs into the warehouse.",
		func() (map[string]int64, error) {
			return p.warehouse.LoadCSVDir(ctx, p.opts.RawDir, p.opts.Dataset)
		},
	)
}

// Transform builds the models and writes the table metadata consumed by the
// dashboard next to the public tables.
func (p *Publisher) Transform(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "publisher:Transform")
	defer span.End()

	return p.ledger.Track(
		p.time, ledger.StageBuildModels,
		"Build and test warehouse models, export table metadata.",
		func() (map[string]int64, error) {
			project, err := warehouse.LoadProject(p.opts.ModelsDir)
			if err != nil {
				return nil, err
			}
			counts, err := p.warehouse.BuildModels(ctx, project)
			if err != nil {
				return nil, err
			}
			err = warehouse.WriteTableMetadata(project, filepath.Join(p.opts.PublicDir, warehouse.MetadataFile))
			if err != nil {
				return nil, err
			}
			return counts, nil
		},
	)
}

func (p *Publisher) Stage(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "publisher:Stage")
	defer span.End()

	return p.ledger.Track(
		p.time, ledger.StageStagePublicTables,
		"Export warehouse tables to the public directory for upload.",
		func() (map[string]int64, error) {
			return p.warehouse.ExportParquet(ctx, p.opts.PublicDir, p.opts.ExportTables)
		},
	)
}

// HistoryPrefix is the snapshot prefix an upload started at `at` writes to.
func (p *Publisher) HistoryPrefix(at string) string {
	return objstore.NormalizePrefix(p.opts.HistoryPrefix) + at + "/"
}

// Upload snapshots the public directory under the history prefix, then
// mirrors it to the latest prefix removing remote files that no longer exist
// locally.
func (p *Publisher) Upload(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "publisher:Upload")
	defer span.End()

	return p.ledger.Track(
		p.time, ledger.StageUploadPublic,
		"Upload public tables (and a history snapshot for rollback).",
		func() (map[string]int64, error) {
			history := p.HistoryPrefix(chrono.FormatUTC(p.time.Now()))
			_, err := p.uploader.Mirror(ctx, p.opts.PublicDir, p.opts.Bucket, history, false)
			if err != nil {
				p.tel.ReportBroken(report_upload_history, history, err)
				return nil, fmt.Errorf("upload history snapshot: %w", err)
			}
			_, err = p.uploader.Mirror(ctx, p.opts.PublicDir, p.opts.Bucket, p.opts.LatestPrefix, true)
			if err != nil {
				p.tel.ReportBroken(report_upload_latest, p.opts.LatestPrefix, err)
				return nil, fmt.Errorf("upload latest: %w", err)
			}
			return nil, nil
		},
	)
}
