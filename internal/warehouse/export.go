package warehouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ExportParquet writes each table to <dir>/<table>.parquet and returns the
// exported row counts.
func (w *Warehouse) ExportParquet(ctx context.Context, dir string, tables []string) (map[string]int64, error) {
	ctx, span := tracer.Start(ctx, "warehouse:ExportParquet")
	defer span.End()
	span.SetAttributes(attribute.StringSlice("tables", tables))

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	counts := map[string]int64{}
	for _, table := range tables {
		out := filepath.Join(abs, table+".parquet")
		_, err = w.db.ExecContext(ctx, fmt.Sprintf(
			"copy (select * from %s) to %s (format parquet)",
			Ident(table), Literal(out),
		))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to export table")
			return nil, fmt.Errorf("export %s: %w", table, err)
		}
		n, err := w.CountRows(ctx, Ident(table))
		if err != nil {
			return nil, err
		}
		counts[table] = n
	}
	return counts, nil
}
