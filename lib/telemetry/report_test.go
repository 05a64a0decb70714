package telemetry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingAPI struct {
	broken   []string
	warnings []string
	counts   map[string]int64
}

func (r *recordingAPI) ReportBroken(id string, params ...any) {
	r.broken = append(r.broken, fmt.Sprint(append([]any{id}, params...)...))
}

func (r *recordingAPI) ReportWarning(id string, params ...any) {
	r.warnings = append(r.warnings, id)
}

func (r *recordingAPI) ReportDebug(msg string, params ...any) {}

func (r *recordingAPI) ReportCount(id string, count int64) {
	if r.counts == nil {
		r.counts = map[string]int64{}
	}
	r.counts[id] = count
}

func TestScopedAPI(t *testing.T) {
	inner := &recordingAPI{}
	scoped := NewScopedAPI("fbref", inner)

	scoped.ReportWarning("client.discover-players")
	scoped.ReportCount("client.discover-players", 20)
	nested := NewScopedAPI("extract", scoped)
	nested.ReportWarning("pipeline.run")

	require.Equal(t, []string{
		"fbref: client.discover-players",
		"fbref: extract: pipeline.run",
	}, inner.warnings)
	require.Equal(t, int64(20), inner.counts["fbref: client.discover-players"])
}
