// Package dashboard serves the published goalkeeper tables as a JSON API.
package dashboard

import (
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("gktracker/internal/dashboard")

// DefaultProfileMetrics are the display labels of the radar metrics, their
// standardized and percentile values live in the "Z: " and "Pctile: "
// prefixed columns.
var DefaultProfileMetrics = []string{
	"Save %",
	"PSxG − GA",
	"Crosses Stopped %",
	"Pass Attempts (per 90)",
	"Long Kick Pass Completion %",
	"Def Actions OPA (per 90)",
}

type Options struct {
	// GoalkeeperTable is the table goalkeeper search and profiles read from.
	GoalkeeperTable  string
	GoalkeeperColumn string
	ProfileMetrics   []string
}

func (o Options) withDefaults() Options {
	if o.GoalkeeperTable == "" {
		o.GoalkeeperTable = "mart_goalkeeper_league_ratings"
	}
	if o.GoalkeeperColumn == "" {
		o.GoalkeeperColumn = "goalkeeper"
	}
	if len(o.ProfileMetrics) == 0 {
		o.ProfileMetrics = DefaultProfileMetrics
	}
	return o
}
