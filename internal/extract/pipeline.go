// Package extract runs the scrape half of the pipeline: discover entities,
// keep the manifest up to date and fetch match logs for the stale ones.
package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"time"

	"gktracker/internal/manifest"
	"gktracker/lib/chrono"
	"gktracker/lib/fsutil"
	"gktracker/lib/scrapers/fbref"
	"gktracker/lib/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("gktracker/internal/extract")

const (
	report_fetch_failed   = "pipeline.fetch"
	report_count_stale    = "pipeline.stale"
	report_count_fresh    = "pipeline.fresh"
	report_count_entities = "pipeline.discovered"
)

type Options struct {
	ManifestPath string
	OutputDir    string
	Seasons      []string
	MaxAge       time.Duration
	// RequestDelay is the pause between two consecutive fetches.
	RequestDelay time.Duration
}

type Pipeline struct {
	fetcher Fetcher
	opts    Options
	policy  manifest.Policy
	time    chrono.TimeAPI
	tel     telemetry.API
	limiter *rate.Limiter
}

func NewPipeline(tel telemetry.API, fetcher Fetcher, clock chrono.TimeAPI, opts Options) *Pipeline {
	if clock == nil {
		clock = chrono.NewStandardTime()
	}
	limit := rate.Inf
	if opts.RequestDelay > 0 {
		limit = rate.Every(opts.RequestDelay)
	}
	return &Pipeline{
		fetcher: fetcher,
		opts:    opts,
		policy:  manifest.Policy{MaxAge: opts.MaxAge},
		time:    clock,
		tel:     telemetry.NewScopedAPI("extract", tel),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Discover asks the source for the full entity list, merges it with the
// existing manifest and persists the result before returning it.
func (p *Pipeline) Discover(ctx context.Context) ([]manifest.Entity, error) {
	ctx, span := tracer.Start(ctx, "pipeline:Discover")
	defer span.End()

	previous, err := manifest.LoadOptional(p.opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	discovered, err := p.fetcher.Discover(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to discover entities")
		return nil, fmt.Errorf("discover: %w", err)
	}

	merged := manifest.Merge(previous, discovered)
	err = manifest.Save(p.opts.ManifestPath, merged)
	if err != nil {
		return nil, err
	}
	p.tel.ReportCount(report_count_entities, int64(len(discovered)))
	span.SetAttributes(attribute.Int("entities", len(merged)))
	return merged, nil
}

type RunResult struct {
	Fetched []string
	Skipped []string
	// Files maps each written file name to its row count.
	Files map[string]int64
}

// OutputName is the file a season of an entity's data is written to.
func OutputName(e manifest.Entity, season string) string {
	return fmt.Sprintf("%s_%s.csv", e.Slug, season)
}

// Run fetches every stale entity of the manifest. The manifest must already
// exist. It is rewritten after each entity completes, so a failure leaves
// the progress made so far on disk.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline:Run")
	defer span.End()

	entities, err := manifest.Load(p.opts.ManifestPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load manifest")
		return RunResult{}, err
	}

	result := RunResult{Files: map[string]int64{}}
	now := p.time.Now()
	for i, e := range entities {
		if !p.policy.IsStale(e, now) {
			result.Skipped = append(result.Skipped, e.Identifier)
			continue
		}

		for _, season := range p.opts.Seasons {
			name, rows, err := p.fetchSeason(ctx, e, season)
			if err != nil {
				p.tel.ReportBroken(report_fetch_failed, e.Identifier, season, err)
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to fetch entity")
				return result, fmt.Errorf("fetch %s (%s): %w", e.Slug, season, err)
			}
			result.Files[name] = rows
		}

		fetchedAt := p.time.Now()
		e.LastFetchedAt = &fetchedAt
		entities[i] = e
		err = manifest.Save(p.opts.ManifestPath, entities)
		if err != nil {
			return result, err
		}
		result.Fetched = append(result.Fetched, e.Identifier)
	}

	p.tel.ReportCount(report_count_stale, int64(len(result.Fetched)))
	p.tel.ReportCount(report_count_fresh, int64(len(result.Skipped)))
	return result, nil
}

func (p *Pipeline) fetchSeason(ctx context.Context, e manifest.Entity, season string) (string, int64, error) {
	err := p.limiter.Wait(ctx)
	if err != nil {
		return "", 0, err
	}

	url := e.FetchUrl(season)
	p.tel.ReportDebug("fetch", "entity", e.Identifier, "url", url)
	table, err := p.fetcher.FetchTable(ctx, url)
	if err != nil {
		return "", 0, err
	}

	name := OutputName(e, season)
	err = writeCSV(filepath.Join(p.opts.OutputDir, name), table)
	if err != nil {
		return "", 0, err
	}
	return name, int64(len(table.Rows)), nil
}

func writeCSV(path string, table fbref.Table) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	err := w.Write(table.Header)
	if err != nil {
		return err
	}
	err = w.WriteAll(table.Rows)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return fsutil.WriteBytes(path, buf.Bytes())
}
