package ledger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gktracker/lib/chrono"
	"gktracker/lib/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var (
	started  = time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	finished = started.Add(1234567 * time.Microsecond)
)

// keyOrder returns the top level keys of a JSON object in document order.
func keyOrder(t testing.TB, data []byte) []string {
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	tok, err := decoder.Token()
	require.NoError(t, err)
	require.Equal(t, json.Delim('{'), tok)

	var keys []string
	for decoder.More() {
		tok, err := decoder.Token()
		require.NoError(t, err)
		keys = append(keys, tok.(string))

		var skip json.RawMessage
		require.NoError(t, decoder.Decode(&skip))
	}
	return keys
}

func TestNewEntry(t *testing.T) {
	entry := NewEntry("loaded", started, finished, map[string]int64{"a": 3})
	expected := Entry{
		Info:        "loaded",
		StartedUtc:  "2024-09-01T10:00:00Z",
		FinishedUtc: "2024-09-01T10:00:01Z",
		DurationS:   1.235,
		Tables:      map[string]int64{"a": 3},
	}
	if diff := cmp.Diff(expected, entry); diff != "" {
		t.Fatal(diff)
	}
}

func TestRecordCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "public", "status.json")
	l := New(telemetry.SlogAPI{}, path)
	l.Order = []string{"stageA", "stageB", "stageC"}

	require.NoError(t, l.Record("stageA", NewEntry("a", started, finished, nil)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"stageA"}, keyOrder(t, data))
	require.NotContains(t, string(data), "tables")

	require.NoError(t, l.Record("stageC", NewEntry("c", started, finished, nil)))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"stageA", "stageC"}, keyOrder(t, data))
}

func TestRecordOrderIndependentOfCalls(t *testing.T) {
	dir := t.TempDir()
	forward := New(telemetry.SlogAPI{}, filepath.Join(dir, "forward.json"))
	backward := New(telemetry.SlogAPI{}, filepath.Join(dir, "backward.json"))

	stages := []string{StageUploadPublic, "custom_stage", StageLoadWarehouse, StageDiscoverPlayers}
	for i := range stages {
		require.NoError(t, forward.Record(stages[i], NewEntry(stages[i], started, finished, nil)))
		j := len(stages) - 1 - i
		require.NoError(t, backward.Record(stages[j], NewEntry(stages[j], started, finished, nil)))
	}

	a, err := os.ReadFile(forward.Path)
	require.NoError(t, err)
	b, err := os.ReadFile(backward.Path)
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
	require.Equal(
		t,
		[]string{StageDiscoverPlayers, StageLoadWarehouse, StageUploadPublic, "custom_stage"},
		keyOrder(t, a),
	)
}

func TestRecordIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	l := New(telemetry.SlogAPI{}, path)
	entry := NewEntry("staged", started, finished, map[string]int64{"fct": 10, "mart": 2})

	require.NoError(t, l.Record(StageStagePublicTables, entry))
	once, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, l.Record(StageStagePublicTables, entry))
	twice, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, string(once), string(twice))
}

func TestRecordOverCorruptFile(t *testing.T) {
	for _, content := range []string{"not json", "null", "[1, 2]"} {
		t.Run(content, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "status.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))

			l := New(telemetry.SlogAPI{}, path)
			require.Empty(t, l.Read())
			require.NoError(t, l.Record(StageBuildModels, NewEntry("built", started, finished, nil)))

			entries := l.Read()
			require.Len(t, entries, 1)
			require.Equal(t, "built", entries[StageBuildModels].Info)
		})
	}
}

func TestTrack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	l := New(telemetry.SlogAPI{}, path)
	clock := chrono.FrozenTime{At: started}

	err := l.Track(clock, StageLoadWarehouse, "load", func() (map[string]int64, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	require.Empty(t, l.Read())

	err = l.Track(clock, StageLoadWarehouse, "load", func() (map[string]int64, error) {
		return map[string]int64{"raw": 4}, nil
	})
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"raw": 4}, l.Read()[StageLoadWarehouse].Tables)
}
