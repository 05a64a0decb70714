package fbref

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gktracker/lib/chrono"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CacheSchema must be applied to the database passed in ClientOptions.Cache,
// sqliteutil.OpenDB does this when given the schema.
const CacheSchema = `
create table if not exists page_cache (
	url text primary key,
	contents blob not null,
	expires_at integer not null
);
`

var errPageNotFound = errors.New("page not found in cache")

type pageCache struct {
	db   *sql.DB
	ttl  time.Duration
	time chrono.TimeAPI
}

func (c pageCache) enabled() bool {
	return c.db != nil && c.ttl > 0
}

func (c pageCache) get(ctx context.Context, url string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "page_cache:get")
	defer span.End()
	span.SetAttributes(attribute.String("cache_key", url))

	var contents []byte
	var expiresAt int64
	err := c.db.QueryRowContext(
		ctx,
		"select contents, expires_at from page_cache where url = ?",
		url,
	).Scan(&contents, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errPageNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read cached page")
		return nil, err
	}

	if c.time.Now().Unix() >= expiresAt {
		span.AddEvent("delete expired cache key", trace.WithAttributes(
			attribute.String("key", url),
		))
		_, err = c.db.ExecContext(ctx, "delete from page_cache where url = ?", url)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to delete expired key")
		}
		return nil, errPageNotFound
	}

	span.AddEvent("cache hit", trace.WithAttributes(
		attribute.Int("contentlength", len(contents)),
	))
	return contents, nil
}

func (c pageCache) set(ctx context.Context, url string, contents []byte) error {
	ctx, span := tracer.Start(ctx, "page_cache:set")
	defer span.End()
	span.SetAttributes(attribute.String("cache_key", url))

	_, err := c.db.ExecContext(
		ctx,
		`insert into page_cache (url, contents, expires_at) values (?, ?, ?)
		on conflict (url) do update set contents = excluded.contents, expires_at = excluded.expires_at`,
		url, contents, c.time.Now().Add(c.ttl).Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write cached page")
		return err
	}
	return nil
}
