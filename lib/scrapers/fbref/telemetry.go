package fbref

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("gktracker/lib/scrapers/fbref")

const (
	report_client_fetch_page  = "client.fetch-page"
	report_client_parse_table = "client.parse-table"
	report_discover_bad_href  = "discover.bad-href"
	report_cache_get          = "page_cache.get"
	report_cache_set          = "page_cache.set"
	report_count_players      = "discover.players"
)
