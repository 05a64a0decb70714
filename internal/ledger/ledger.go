// Package ledger keeps the pipeline status document: one entry per stage with
// the timing of its last successful run and the row counts it produced.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"gktracker/lib/chrono"
	"gktracker/lib/fsutil"
	"gktracker/lib/telemetry"
)

const (
	StageDiscoverPlayers   = "discover_players"
	StageScrapeMatchLogs   = "scrape_matchlogs"
	StageLoadWarehouse     = "load_warehouse"
	StageBuildModels       = "build_models"
	StageStagePublicTables = "stage_public_tables"
	StageUploadPublic      = "upload_public"
)

// StageOrder is the order stages run in and the key order of the document.
var StageOrder = []string{
	StageDiscoverPlayers,
	StageScrapeMatchLogs,
	StageLoadWarehouse,
	StageBuildModels,
	StageStagePublicTables,
	StageUploadPublic,
}

const report_read_failed = "ledger.read"

type Entry struct {
	Info        string           `json:"info"`
	StartedUtc  string           `json:"started_utc"`
	FinishedUtc string           `json:"finished_utc"`
	DurationS   float64          `json:"duration_s"`
	Tables      map[string]int64 `json:"tables,omitempty"`
}

// NewEntry builds an entry, the duration is rounded to milliseconds.
func NewEntry(info string, started, finished time.Time, tables map[string]int64) Entry {
	duration := finished.Sub(started).Seconds()
	return Entry{
		Info:        info,
		StartedUtc:  chrono.FormatUTC(started),
		FinishedUtc: chrono.FormatUTC(finished),
		DurationS:   math.Round(duration*1000) / 1000,
		Tables:      tables,
	}
}

// Ledger reads and rewrites a single status file. It does no locking, only
// one process may write it at a time.
type Ledger struct {
	Path string
	// Order is the canonical key order, stages not listed are written after
	// the listed ones in name order.
	Order []string

	tel telemetry.API
}

func New(tel telemetry.API, path string) Ledger {
	return Ledger{
		Path:  path,
		Order: StageOrder,
		tel:   telemetry.NewScopedAPI("ledger", tel),
	}
}

// Read returns the current entries. A missing or unreadable file reads as an
// empty ledger.
func (l Ledger) Read() map[string]Entry {
	entries := map[string]Entry{}

	data, err := os.ReadFile(l.Path)
	if errors.Is(err, os.ErrNotExist) {
		return entries
	}
	if err != nil {
		l.tel.ReportWarning(report_read_failed, l.Path, err)
		return entries
	}
	err = json.Unmarshal(data, &entries)
	if err != nil {
		l.tel.ReportWarning(report_read_failed, l.Path, err)
		return map[string]Entry{}
	}
	if entries == nil {
		// a literal null decodes without error
		return map[string]Entry{}
	}
	return entries
}

// Record overlays a stage entry on the current ledger and rewrites the whole
// file in canonical order. Recording the same entry twice is a no-op.
func (l Ledger) Record(stage string, entry Entry) error {
	entries := l.Read()
	entries[stage] = entry

	data, err := l.encode(entries)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	err = fsutil.WriteBytes(l.Path, data)
	if err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// Track runs fn and records its entry only when it succeeds.
func (l Ledger) Track(clock chrono.TimeAPI, stage, info string, fn func() (map[string]int64, error)) error {
	started := clock.Now()
	tables, err := fn()
	if err != nil {
		return err
	}
	return l.Record(stage, NewEntry(info, started, clock.Now(), tables))
}

// Keys returns the stage names present in entries in canonical order.
func (l Ledger) Keys(entries map[string]Entry) []string {
	keys := make([]string, 0, len(entries))
	for _, stage := range l.Order {
		if _, ok := entries[stage]; ok {
			keys = append(keys, stage)
		}
	}

	var extra []string
	for stage := range entries {
		if !slices.Contains(l.Order, stage) {
			extra = append(extra, stage)
		}
	}
	slices.Sort(extra)
	return append(keys, extra...)
}

func (l Ledger) encode(entries map[string]Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, stage := range l.Keys(entries) {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(stage)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(entries[stage])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	err := json.Indent(&out, buf.Bytes(), "", "  ")
	if err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
