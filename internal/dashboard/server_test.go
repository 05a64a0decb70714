package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"gktracker/internal/warehouse"
	"gktracker/lib/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const tableMetadata = `{
  "models": {
    "mart_goalkeeper_league_ratings": {
      "description": "Season ratings per goalkeeper.",
      "columns": {
        "goalkeeper": {"label": "Goalkeeper", "description": ""},
        "team": {"label": "Team", "description": ""},
        "save_pct": {"label": "Save %", "description": ""},
        "clean_sheets": {"label": null, "description": ""},
        "z_save_pct": {"label": "Z: Save %", "description": ""},
        "pctile_save_pct": {"label": "Pctile: Save %", "description": ""}
      }
    }
  }
}`

func writeDataDir(t testing.TB) string {
	dir := t.TempDir()

	wh, err := warehouse.Open(telemetry.SlogAPI{}, ":memory:")
	require.NoError(t, err)
	defer wh.Close()

	_, err = wh.DB().Exec(`
create table mart_goalkeeper_league_ratings (
	goalkeeper varchar,
	team varchar,
	save_pct double,
	clean_sheets integer,
	z_save_pct double,
	pctile_save_pct double
);
insert into mart_goalkeeper_league_ratings values
	('david_raya', 'Arsenal', 72.456, 3, 1.2, 88.0),
	('ederson', 'Manchester City', 70.0, 2, -0.3, 40.0);
create table fct_goalkeeper_performance as select 'ederson' as goalkeeper, 4 as saves;
`)
	require.NoError(t, err)
	_, err = wh.ExportParquet(context.Background(), dir, []string{
		"mart_goalkeeper_league_ratings",
		"fct_goalkeeper_performance",
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, warehouse.MetadataFile), []byte(tableMetadata), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "status.json"), []byte(`{"upload_public": {"info": "x"}}`), 0o644))
	return dir
}

func setupServer(t testing.TB) (*httptest.Server, *Cache, string) {
	dir := writeDataDir(t)
	cache := NewCache(telemetry.SlogAPI{}, dir)
	require.NoError(t, cache.Refresh(context.Background()))
	t.Cleanup(func() { cache.Close() })

	server := httptest.NewServer(NewServer(telemetry.SlogAPI{}, cache, Options{}).Handler())
	t.Cleanup(server.Close)
	return server, cache, dir
}

func getJSON(t testing.TB, url string, out any) int {
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "application/json", res.Header.Get("content-type"))
	require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	return res.StatusCode
}

func TestHealth(t *testing.T) {
	server, _, _ := setupServer(t)

	var body map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/health", &body))
	require.Equal(t, map[string]string{"status": "ok"}, body)
}

func TestTables(t *testing.T) {
	server, _, _ := setupServer(t)

	var body struct {
		Tables []TableInfo `json:"tables"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/api/tables", &body))
	expected := []TableInfo{
		{Name: "fct_goalkeeper_performance", Description: ""},
		{Name: "mart_goalkeeper_league_ratings", Description: "Season ratings per goalkeeper."},
	}
	if diff := cmp.Diff(expected, body.Tables); diff != "" {
		t.Fatal(diff)
	}
}

func TestTable(t *testing.T) {
	server, _, _ := setupServer(t)

	var body tableResponse
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/api/tables/mart_goalkeeper_league_ratings", &body))
	require.Equal(t, []string{"goalkeeper", "team", "save_pct", "clean_sheets", "z_save_pct", "pctile_save_pct"}, body.Columns)
	require.Equal(t, []string{"Goalkeeper", "Team", "Save %", "clean_sheets", "Z: Save %", "Pctile: Save %"}, body.Labels)
	expectedRows := [][]any{
		{"David Raya", "Arsenal", 72.5, float64(3), 1.2, float64(88)},
		{"Ederson", "Manchester City", float64(70), float64(2), -0.3, float64(40)},
	}
	if diff := cmp.Diff(expectedRows, body.Rows); diff != "" {
		t.Fatal(diff)
	}

	var raw tableResponse
	getJSON(t, server.URL+"/api/tables/mart_goalkeeper_league_ratings?labels=false&team=Arsenal&unknown=1", &raw)
	require.Equal(t, raw.Columns, raw.Labels)
	require.Len(t, raw.Rows, 1)

	var filtered tableResponse
	getJSON(t, server.URL+"/api/tables/mart_goalkeeper_league_ratings?clean_sheets=2", &filtered)
	require.Len(t, filtered.Rows, 1)
	require.Equal(t, "Ederson", filtered.Rows[0][0])

	var missing map[string]string
	require.Equal(t, http.StatusNotFound, getJSON(t, server.URL+"/api/tables/nope", &missing))
}

func TestGoalkeepers(t *testing.T) {
	server, _, _ := setupServer(t)

	var body struct {
		Goalkeepers []Match `json:"goalkeepers"`
	}
	getJSON(t, server.URL+"/api/goalkeepers", &body)
	require.Equal(t, []string{"David Raya", "Ederson"}, names(body.Goalkeepers))

	getJSON(t, server.URL+"/api/goalkeepers?q=raya", &body)
	require.Equal(t, []string{"David Raya"}, names(body.Goalkeepers))
}

func TestProfile(t *testing.T) {
	server, _, _ := setupServer(t)

	var profile Profile
	getJSON(t, server.URL+"/api/goalkeepers/profile?name=David+Raya", &profile)
	value, z, pct := 72.456, 1.2, 88.0
	expected := Profile{
		Goalkeeper: "David Raya",
		Metrics: []Metric{
			{Metric: "Save %", Value: &value, ZScore: &z, Percentile: &pct},
		},
	}
	if diff := cmp.Diff(expected, profile); diff != "" {
		t.Fatal(diff)
	}

	for _, query := range []string{"", "?name=", "?name=Nobody"} {
		var body map[string]any
		getJSON(t, server.URL+"/api/goalkeepers/profile"+query, &body)
		require.Equal(t, map[string]any{"goalkeeper": "", "metrics": []any{}}, body, query)
	}
}

func TestStatus(t *testing.T) {
	server, _, _ := setupServer(t)

	var body map[string]any
	getJSON(t, server.URL+"/api/status", &body)
	require.Equal(t, map[string]any{"upload_public": map[string]any{"info": "x"}}, body)
}

func TestRefresh(t *testing.T) {
	_, cache, dir := setupServer(t)
	require.Len(t, cache.Tables(), 2)

	require.NoError(t, os.Remove(filepath.Join(dir, "fct_goalkeeper_performance.parquet")))
	require.NoError(t, os.Remove(filepath.Join(dir, "status.json")))
	require.NoError(t, cache.Refresh(context.Background()))

	require.Len(t, cache.Tables(), 1)
	require.JSONEq(t, `{}`, string(cache.Status()))
	_, err := cache.Query(context.Background(), "fct_goalkeeper_performance", nil)
	require.ErrorIs(t, err, ErrUnknownTable)
}

func TestEmptyCache(t *testing.T) {
	cache := NewCache(telemetry.SlogAPI{}, t.TempDir())
	server := httptest.NewServer(NewServer(telemetry.SlogAPI{}, cache, Options{}).Handler())
	defer server.Close()

	var profile map[string]any
	getJSON(t, server.URL+"/api/goalkeepers/profile?name=Ederson", &profile)
	require.Equal(t, map[string]any{"goalkeeper": "", "metrics": []any{}}, profile)

	var status map[string]any
	getJSON(t, server.URL+"/api/status", &status)
	require.Empty(t, status)
}
