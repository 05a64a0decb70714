// Package fbref scrapes goalkeeper lists and per-season match logs from
// fbref.com style pages.
package fbref

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gktracker/lib/chrono"
	"gktracker/lib/restyutil"
	"gktracker/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultBaseUrl = "https://fbref.com"

type ClientOptions struct {
	// BaseUrl is used to resolve relative player links and to build match
	// log urls. Defaults to DefaultBaseUrl.
	BaseUrl string
	// Wait bounds how long a single page may take to arrive.
	Wait time.Duration
	// Cache is an optional database holding CacheSchema, pages are cached
	// for CacheTTL when both are set.
	Cache    *sql.DB
	CacheTTL time.Duration
	// InstrumentOutput receives full http dumps when non-nil.
	InstrumentOutput restyutil.InstrumentOutput
	Time             chrono.TimeAPI
}

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	tel   telemetry.API
	cache pageCache
}

func NewClient(tel telemetry.API, opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Wait <= 0 {
		opts.Wait = 5 * time.Second
	}
	if opts.Time == nil {
		opts.Time = chrono.NewStandardTime()
	}

	baseUrl, err := url.Parse(strings.TrimSuffix(opts.BaseUrl, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(opts.Wait)
	restyutil.InstrumentClient(client, tracer, opts.InstrumentOutput)

	return &Client{
		BaseUrl: baseUrl,
		Http:    client,
		tel:     telemetry.NewScopedAPI("fbref", tel),
		cache: pageCache{
			db:   opts.Cache,
			ttl:  opts.CacheTTL,
			time: opts.Time,
		},
	}, nil
}

// resolve makes a possibly relative link absolute against the base url.
func (c *Client) resolve(link string) (string, error) {
	parsed, err := c.BaseUrl.Parse(link)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}

func (c *Client) fetchPage(ctx context.Context, link string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "client:fetchPage")
	defer span.End()
	span.SetAttributes(attribute.String("url", link))

	var body []byte
	if c.cache.enabled() {
		cached, err := c.cache.get(ctx, link)
		if err == nil {
			span.SetStatus(codes.Ok, "CACHE HIT")
			body = cached
		} else if err != errPageNotFound {
			c.tel.ReportWarning(report_cache_get, err)
		}
	}

	if body == nil {
		res, err := c.Http.R().
			SetContext(ctx).
			Get(link)
		if err != nil {
			c.tel.ReportBroken(report_client_fetch_page, link, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch page")
			return nil, fmt.Errorf("fetch %s: %w", link, err)
		}
		if res.IsError() {
			err = fmt.Errorf("fetch %s: unexpected status %s", link, res.Status())
			c.tel.ReportBroken(report_client_fetch_page, link, err)
			span.SetStatus(codes.Error, res.Status())
			return nil, err
		}
		body = res.Body()

		if c.cache.enabled() {
			err = c.cache.set(ctx, link, body)
			if err != nil {
				c.tel.ReportWarning(report_cache_set, err)
			}
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, fmt.Errorf("parse %s: %w", link, err)
	}
	return doc, nil
}
