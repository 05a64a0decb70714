// Package manifest persists the list of tracked source entities (players) and
// the time each one was last fetched. The manifest file is the only state that
// carries over between extraction runs, it is always rewritten in full.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gktracker/lib/fsutil"
)

var (
	// ErrManifestMissing is returned by Load when the manifest file does not exist.
	ErrManifestMissing = errors.New("manifest missing")
	// ErrManifestCorrupt is returned when the manifest file is not a valid entity list.
	ErrManifestCorrupt = errors.New("manifest corrupt")
)

// SeasonPlaceholder is substituted in FetchUrlTemplate by FetchUrl.
const SeasonPlaceholder = "{season}"

type Entity struct {
	Identifier       string     `json:"identifier"`
	Slug             string     `json:"slug"`
	SourceUrl        string     `json:"source_url"`
	FetchUrlTemplate string     `json:"fetch_url_template"`
	LastFetchedAt    *time.Time `json:"last_fetched_at,omitempty"`
}

// FetchUrl renders the fetch url template for a season.
func (e Entity) FetchUrl(season string) string {
	return strings.ReplaceAll(e.FetchUrlTemplate, SeasonPlaceholder, season)
}

// Load reads the manifest at path. It fails closed: a missing file returns an
// error wrapping ErrManifestMissing and malformed content one wrapping
// ErrManifestCorrupt.
func Load(path string) ([]Entity, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrManifestMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var list *[]Entity
	err = json.Unmarshal(data, &list)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifestCorrupt, path, err)
	}
	if list == nil {
		return nil, fmt.Errorf("%w: %s: null entity list", ErrManifestCorrupt, path)
	}
	entities := *list
	for i, e := range entities {
		if e.Identifier == "" {
			return nil, fmt.Errorf("%w: %s: entity %d has no identifier", ErrManifestCorrupt, path, i)
		}
	}
	return entities, nil
}

// LoadOptional is Load for contexts where the manifest may legitimately not
// exist yet (a first discovery run), a missing file yields an empty list.
func LoadOptional(path string) ([]Entity, error) {
	entities, err := Load(path)
	if errors.Is(err, ErrManifestMissing) {
		return nil, nil
	}
	return entities, err
}

// Save atomically replaces the manifest with the full entity list in the
// given order, creating parent directories as needed.
func Save(path string, entities []Entity) error {
	if entities == nil {
		entities = []Entity{}
	}
	return fsutil.WriteJSON(path, entities)
}

// Merge combines a fresh discovery with the previous manifest. Discovered
// entities come first in discovery order and inherit the last fetched time of
// their previous record. Previous entities that were not rediscovered are kept
// afterwards in their previous order, entities are never dropped.
func Merge(previous, discovered []Entity) []Entity {
	byId := make(map[string]Entity, len(previous))
	for _, e := range previous {
		byId[e.Identifier] = e
	}

	out := make([]Entity, 0, len(discovered)+len(previous))
	seen := make(map[string]struct{}, len(discovered))
	for _, e := range discovered {
		if _, dup := seen[e.Identifier]; dup {
			continue
		}
		seen[e.Identifier] = struct{}{}
		if prev, ok := byId[e.Identifier]; ok {
			e.LastFetchedAt = prev.LastFetchedAt
		}
		out = append(out, e)
	}
	for _, e := range previous {
		if _, ok := seen[e.Identifier]; ok {
			continue
		}
		seen[e.Identifier] = struct{}{}
		out = append(out, e)
	}
	return out
}
