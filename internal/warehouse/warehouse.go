// Package warehouse wraps the DuckDB database the pipeline loads scraped CSVs
// into, builds SQL models on and exports public parquet tables from.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gktracker/lib/telemetry"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gktracker/internal/warehouse")

const (
	report_load_failed  = "warehouse.load"
	report_count_tables = "warehouse.tables-loaded"
)

// ErrNoInput is returned when a dataset directory holds no csv files.
var ErrNoInput = errors.New("no input files")

type Warehouse struct {
	db  *sql.DB
	tel telemetry.API
}

// Open opens the DuckDB database at path, "" or ":memory:" is an in-memory
// database.
func Open(tel telemetry.API, path string) (*Warehouse, error) {
	if path == ":memory:" {
		path = ""
	}
	if path != "" {
		err := os.MkdirAll(filepath.Dir(path), 0o755)
		if err != nil {
			return nil, fmt.Errorf("open warehouse: %w", err)
		}
	}
	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open warehouse %s: %w", path, err)
	}
	return &Warehouse{
		db:  sql.OpenDB(connector),
		tel: telemetry.NewScopedAPI("warehouse", tel),
	}, nil
}

func (w *Warehouse) DB() *sql.DB {
	return w.db
}

func (w *Warehouse) Close() error {
	return w.db.Close()
}

// Ident quotes a SQL identifier.
func Ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Literal quotes a SQL string literal.
func Literal(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// TableName is the raw table a csv file is loaded into.
func TableName(file string) string {
	stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	return strings.ReplaceAll(strings.ToLower(stem), "-", "_")
}

// RawSchema is the schema a dataset is loaded into.
func RawSchema(dataset string) string {
	return "raw_" + dataset
}

// CombinedTable holds the union of every file of a dataset.
func CombinedTable(dataset string) string {
	return "all_" + dataset
}

// CountRows returns the row count of a (possibly schema qualified) table,
// `table` must already be quoted.
func (w *Warehouse) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := w.db.QueryRowContext(ctx, "select count(*) from "+table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// LoadCSVDir loads every csv file in dir into its own table of the dataset's
// raw schema and into a combined table that unions them by column name and
// keeps the source file name. It returns the row count of each table keyed
// by its qualified name.
func (w *Warehouse) LoadCSVDir(ctx context.Context, dir, dataset string) (map[string]int64, error) {
	ctx, span := tracer.Start(ctx, "warehouse:LoadCSVDir")
	defer span.End()
	span.SetAttributes(attribute.String("dir", dir), attribute.String("dataset", dataset))

	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInput, dir)
	}
	slices.Sort(files)

	schema := RawSchema(dataset)
	_, err = w.db.ExecContext(ctx, "create schema if not exists "+Ident(schema))
	if err != nil {
		return nil, fmt.Errorf("create schema %s: %w", schema, err)
	}

	counts := map[string]int64{}
	literals := make([]string, len(files))
	for i, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return nil, err
		}
		literals[i] = Literal(abs)

		table := Ident(schema) + "." + Ident(TableName(file))
		_, err = w.db.ExecContext(ctx, fmt.Sprintf(
			"create or replace table %s as select * from read_csv_auto(%s, header = true)",
			table, literals[i],
		))
		if err != nil {
			w.tel.ReportBroken(report_load_failed, file, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load csv")
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
		n, err := w.CountRows(ctx, table)
		if err != nil {
			return nil, err
		}
		counts[schema+"."+TableName(file)] = n
	}

	combined := Ident(schema) + "." + Ident(CombinedTable(dataset))
	_, err = w.db.ExecContext(ctx, fmt.Sprintf(
		"create or replace table %s as select * from read_csv_auto([%s], header = true, union_by_name = true, filename = true)",
		combined, strings.Join(literals, ", "),
	))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build combined table")
		return nil, fmt.Errorf("load combined %s: %w", combined, err)
	}
	n, err := w.CountRows(ctx, combined)
	if err != nil {
		return nil, err
	}
	counts[schema+"."+CombinedTable(dataset)] = n

	w.tel.ReportCount(report_count_tables, int64(len(counts)))
	return counts, nil
}
