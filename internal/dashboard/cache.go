package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gktracker/internal/warehouse"
	"gktracker/lib/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrUnknownTable = errors.New("unknown table")

const (
	report_refresh_failed = "cache.refresh"
	report_metadata       = "cache.metadata"
	report_count_tables   = "cache.tables"
)

type TableInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Frame is a query result, rows hold the values scanned from DuckDB.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// Cache holds the published tables of the data directory in an in-memory
// DuckDB database. Reads are served from the snapshot taken by the last
// Refresh.
type Cache struct {
	dir string
	tel telemetry.API

	mu       sync.RWMutex
	db       *warehouse.Warehouse
	columns  map[string][]string
	metadata warehouse.TableMetadata
	status   json.RawMessage
}

func NewCache(tel telemetry.API, dir string) *Cache {
	return &Cache{
		dir:      dir,
		tel:      telemetry.NewScopedAPI("cache", tel),
		columns:  map[string][]string{},
		metadata: warehouse.TableMetadata{Models: map[string]warehouse.ModelMetadata{}},
		status:   json.RawMessage("{}"),
	}
}

// Refresh reloads every parquet file, the table metadata and the status
// ledger from the data directory. On failure the previous snapshot is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "cache:Refresh")
	defer span.End()

	db, columns, err := c.loadTables(ctx)
	if err != nil {
		c.tel.ReportBroken(report_refresh_failed, c.dir, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load tables")
		return err
	}

	metadata := warehouse.TableMetadata{Models: map[string]warehouse.ModelMetadata{}}
	data, err := os.ReadFile(filepath.Join(c.dir, warehouse.MetadataFile))
	if err == nil {
		err = json.Unmarshal(data, &metadata)
		if err != nil {
			c.tel.ReportWarning(report_metadata, err)
		}
		if metadata.Models == nil {
			metadata.Models = map[string]warehouse.ModelMetadata{}
		}
	} else if !os.IsNotExist(err) {
		c.tel.ReportWarning(report_metadata, err)
	}

	status := json.RawMessage("{}")
	data, err = os.ReadFile(filepath.Join(c.dir, "status.json"))
	if err == nil && json.Valid(data) {
		status = data
	}

	c.mu.Lock()
	old := c.db
	c.db = db
	c.columns = columns
	c.metadata = metadata
	c.status = status
	if old != nil {
		old.Close()
	}
	c.mu.Unlock()

	span.SetAttributes(attribute.Int("tables", len(columns)))
	c.tel.ReportCount(report_count_tables, int64(len(columns)))
	return nil
}

func (c *Cache) loadTables(ctx context.Context) (*warehouse.Warehouse, map[string][]string, error) {
	files, err := filepath.Glob(filepath.Join(c.dir, "*.parquet"))
	if err != nil {
		return nil, nil, err
	}
	db, err := warehouse.Open(c.tel, ":memory:")
	if err != nil {
		return nil, nil, err
	}

	columns := map[string][]string{}
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".parquet")
		abs, err := filepath.Abs(file)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		_, err = db.DB().ExecContext(ctx, fmt.Sprintf(
			"create table %s as select * from read_parquet(%s)",
			warehouse.Ident(name), warehouse.Literal(abs),
		))
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("load %s: %w", file, err)
		}

		rows, err := db.DB().QueryContext(ctx, fmt.Sprintf("select * from %s limit 0", warehouse.Ident(name)))
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		cols, err := rows.Columns()
		rows.Close()
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		columns[name] = cols
	}
	return db, columns, nil
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Tables lists the cached tables in name order.
func (c *Cache) Tables() []TableInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]TableInfo, 0, len(c.columns))
	for name := range c.columns {
		out = append(out, TableInfo{
			Name:        name,
			Description: c.metadata.Models[name].Description,
		})
	}
	slices.SortFunc(out, func(a, b TableInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Columns returns the column names of a table, nil when it is not cached.
func (c *Cache) Columns(table string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.columns[table]
}

// Labels maps every column of the table to its display label, columns
// without a label keep their name.
func (c *Cache) Labels(table string) map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docs := c.metadata.Models[table].Columns
	labels := map[string]string{}
	for _, col := range c.columns[table] {
		labels[col] = col
		if doc, ok := docs[col]; ok && doc.Label != nil && *doc.Label != "" {
			labels[col] = *doc.Label
		}
	}
	return labels
}

func (c *Cache) Status() json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Query selects every row of a table, filters are equality matches on the
// text value of known columns, unknown filter columns are ignored.
func (c *Cache) Query(ctx context.Context, table string, filters map[string]string) (Frame, error) {
	ctx, span := tracer.Start(ctx, "cache:Query")
	defer span.End()
	span.SetAttributes(attribute.String("table", table))

	c.mu.RLock()
	defer c.mu.RUnlock()

	columns, ok := c.columns[table]
	if !ok || c.db == nil {
		return Frame{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		if slices.Contains(columns, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	query := "select * from " + warehouse.Ident(table)
	args := make([]any, len(keys))
	for i, k := range keys {
		if i == 0 {
			query += " where "
		} else {
			query += " and "
		}
		query += fmt.Sprintf("cast(%s as varchar) = ?", warehouse.Ident(k))
		args[i] = filters[k]
	}

	rows, err := c.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query table")
		return Frame{}, err
	}
	defer rows.Close()

	frame := Frame{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		err = rows.Scan(ptrs...)
		if err != nil {
			return Frame{}, err
		}
		frame.Rows = append(frame.Rows, values)
	}
	return frame, rows.Err()
}
