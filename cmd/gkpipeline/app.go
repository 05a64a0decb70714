package main

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"gktracker/internal/extract"
	"gktracker/internal/ledger"
	"gktracker/internal/publish"
	"gktracker/internal/warehouse"
	"gktracker/lib/chrono"
	"gktracker/lib/objstore"
	"gktracker/lib/restyutil"
	"gktracker/lib/scrapers/fbref"
	"gktracker/lib/telemetry"
)

// app holds what every command needs, heavier collaborators are opened on
// demand and released by close.
type app struct {
	config  Config
	verbose bool
	tel     telemetry.API
	time    chrono.TimeAPI

	pageCache *sql.DB
	warehouse *warehouse.Warehouse
}

func newApp(config Config, verbose bool) *app {
	return &app{
		config:  config,
		verbose: verbose,
		tel:     telemetry.SlogAPI{},
		time:    chrono.NewStandardTime(),
	}
}

func (a *app) close() {
	if a.pageCache != nil {
		a.pageCache.Close()
		a.pageCache = nil
	}
	if a.warehouse != nil {
		a.warehouse.Close()
		a.warehouse = nil
	}
}

func (a *app) ledger() ledger.Ledger {
	return ledger.New(a.tel, filepath.Join(a.config.PublicDir, publish.StatusFile))
}

func (a *app) extractPipeline() (*extract.Pipeline, error) {
	opts := fbref.ClientOptions{
		BaseUrl:  a.config.BaseUrl,
		Wait:     a.config.FetchWait(),
		CacheTTL: a.config.PageCacheTtl(),
		Time:     a.time,
	}
	if a.config.PageCache.Enabled() {
		if a.pageCache == nil {
			db, err := a.config.PageCache.Open(fbref.CacheSchema)
			if err != nil {
				return nil, fmt.Errorf("open page cache: %w", err)
			}
			a.pageCache = db
		}
		opts.Cache = a.pageCache
	}
	if a.verbose && a.config.HttpDumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(a.config.HttpDumpDir)
		if err != nil {
			return nil, err
		}
		opts.InstrumentOutput = output
	}

	client, err := fbref.NewClient(a.tel, opts)
	if err != nil {
		return nil, err
	}
	fetcher := extract.FbrefFetcher{
		Client:        client,
		DiscoveryUrls: a.config.DiscoveryUrls,
	}
	return extract.NewPipeline(a.tel, fetcher, a.time, extract.Options{
		ManifestPath: a.config.ManifestPath,
		OutputDir:    filepath.Join(a.config.RawDir, a.config.Dataset),
		Seasons:      a.config.Seasons,
		MaxAge:       a.config.MaxAge(),
		RequestDelay: a.config.RequestDelay(),
	}), nil
}

// publisher opens the warehouse and the object store client, the upload
// stage alone does not touch the warehouse but shares the same wiring.
func (a *app) publisher() (*publish.Publisher, error) {
	if a.warehouse == nil {
		wh, err := warehouse.Open(a.tel, a.config.WarehousePath)
		if err != nil {
			return nil, err
		}
		a.warehouse = wh
	}
	store, err := objstore.NewClient(a.tel, a.config.ObjectStore)
	if err != nil {
		return nil, err
	}
	return publish.NewPublisher(a.tel, a.warehouse, store, a.time, publish.Options{
		RawDir:        a.config.RawDir,
		Dataset:       a.config.Dataset,
		ModelsDir:     a.config.ModelsDir,
		PublicDir:     a.config.PublicDir,
		ExportTables:  a.config.ExportTables,
		Bucket:        a.config.Bucket,
		HistoryPrefix: a.config.HistoryPrefix,
		LatestPrefix:  a.config.LatestPrefix,
	}), nil
}

func (a *app) discover(ctx context.Context) error {
	pipeline, err := a.extractPipeline()
	if err != nil {
		return err
	}
	return a.ledger().Track(a.time, ledger.StageDiscoverPlayers, "manifest updated", func() (map[string]int64, error) {
		entities, err := pipeline.Discover(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"players": int64(len(entities))}, nil
	})
}

func (a *app) scrape(ctx context.Context) error {
	pipeline, err := a.extractPipeline()
	if err != nil {
		return err
	}
	return a.ledger().Track(a.time, ledger.StageScrapeMatchLogs, "match logs fetched", func() (map[string]int64, error) {
		result, err := pipeline.Run(ctx)
		if err != nil {
			return nil, err
		}
		a.tel.ReportDebug("scrape finished", "fetched", len(result.Fetched), "skipped", len(result.Skipped))
		return result.Files, nil
	})
}

type stage struct {
	name string
	run  func(ctx context.Context) error
}

func (a *app) stages() []stage {
	withPublisher := func(fn func(p *publish.Publisher, ctx context.Context) error) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			p, err := a.publisher()
			if err != nil {
				return err
			}
			return fn(p, ctx)
		}
	}
	return []stage{
		{name: ledger.StageDiscoverPlayers, run: a.discover},
		{name: ledger.StageScrapeMatchLogs, run: a.scrape},
		{name: ledger.StageLoadWarehouse, run: withPublisher((*publish.Publisher).Load)},
		{name: ledger.StageBuildModels, run: withPublisher((*publish.Publisher).Transform)},
		{name: ledger.StageStagePublicTables, run: withPublisher((*publish.Publisher).Stage)},
		{name: ledger.StageUploadPublic, run: withPublisher((*publish.Publisher).Upload)},
	}
}
