package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "players.json")

	entities := []Entity{
		{
			Identifier:       "98ea5115",
			Slug:             "David-Raya",
			SourceUrl:        "https://fbref.com/en/players/98ea5115/David-Raya",
			FetchUrlTemplate: "https://fbref.com/en/players/98ea5115/matchlogs/{season}/David-Raya-Match-Logs",
			LastFetchedAt:    ts("2024-09-01T10:00:00Z"),
		},
		{
			Identifier:       "3bb7b8b4",
			Slug:             "Ederson",
			SourceUrl:        "https://fbref.com/en/players/3bb7b8b4/Ederson",
			FetchUrlTemplate: "https://fbref.com/en/players/3bb7b8b4/matchlogs/{season}/Ederson-Match-Logs",
		},
	}
	require.NoError(t, Save(path, entities))

	loaded, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(entities, loaded); diff != "" {
		t.Fatal(diff)
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), `"last_fetched_at": null`)
}

func TestSaveEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "players.json")
	require.NoError(t, Save(path, nil))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestLoadMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "players.json")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrManifestMissing)

	entities, err := LoadOptional(path)
	require.NoError(t, err)
	require.Nil(t, entities)
}

func TestLoadCorrupt(t *testing.T) {
	testCases := []struct {
		name     string
		contents string
	}{
		{name: "not json", contents: "{{{"},
		{name: "object instead of list", contents: `{"identifier": "x"}`},
		{name: "missing identifier", contents: `[{"slug": "x"}]`},
		{name: "null", contents: "null"},
		{name: "null with whitespace", contents: " null\n"},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "players.json")
			require.NoError(t, os.WriteFile(path, []byte(test.contents), 0644))

			_, err := Load(path)
			require.ErrorIs(t, err, ErrManifestCorrupt)
			_, err = LoadOptional(path)
			require.ErrorIs(t, err, ErrManifestCorrupt)
		})
	}
}

func TestFetchUrl(t *testing.T) {
	e := Entity{FetchUrlTemplate: "https://fbref.com/en/players/x/matchlogs/{season}/X-Match-Logs"}
	require.Equal(t, "https://fbref.com/en/players/x/matchlogs/2023-2024/X-Match-Logs", e.FetchUrl("2023-2024"))
}

func TestMerge(t *testing.T) {
	previous := []Entity{
		{Identifier: "a", Slug: "A", LastFetchedAt: ts("2024-01-01T00:00:00Z")},
		{Identifier: "b", Slug: "B"},
		{Identifier: "c", Slug: "C", LastFetchedAt: ts("2024-01-03T00:00:00Z")},
	}
	discovered := []Entity{
		{Identifier: "c", Slug: "C-renamed"},
		{Identifier: "d", Slug: "D"},
		{Identifier: "a", Slug: "A"},
		{Identifier: "d", Slug: "D-duplicate"},
	}

	expected := []Entity{
		{Identifier: "c", Slug: "C-renamed", LastFetchedAt: ts("2024-01-03T00:00:00Z")},
		{Identifier: "d", Slug: "D"},
		{Identifier: "a", Slug: "A", LastFetchedAt: ts("2024-01-01T00:00:00Z")},
		{Identifier: "b", Slug: "B"},
	}
	if diff := cmp.Diff(expected, Merge(previous, discovered)); diff != "" {
		t.Fatal(diff)
	}
}
