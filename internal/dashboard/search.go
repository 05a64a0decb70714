package dashboard

import (
	"context"
	"slices"
	"strings"

	"gktracker/lib/textutil"

	"github.com/antzucaro/matchr"
)

// MinSimilarity is the lowest Jaro-Winkler score a search result may have.
const MinSimilarity = 0.75

type Match struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// goalkeeperNames returns the distinct raw goalkeeper values in table order.
func (s *Server) goalkeeperNames(ctx context.Context) ([]string, error) {
	frame, err := s.cache.Query(ctx, s.opts.GoalkeeperTable, nil)
	if err != nil {
		return nil, err
	}
	col := slices.Index(frame.Columns, s.opts.GoalkeeperColumn)
	if col < 0 {
		return nil, nil
	}

	var names []string
	for _, row := range frame.Rows {
		name, ok := row[col].(string)
		if !ok || slices.Contains(names, name) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Rank scores every name against the query and returns the ones similar
// enough, best first. Names containing the query score 1. An empty query
// returns every name with score 1, in name order.
func Rank(query string, names []string) []Match {
	query = textutil.NormalizeName(query)

	var matches []Match
	for _, name := range names {
		normalized := textutil.NormalizeName(name)
		score := 1.0
		if query != "" && !strings.Contains(normalized, query) {
			score = matchr.JaroWinkler(query, normalized, false)
		}
		if score < MinSimilarity {
			continue
		}
		matches = append(matches, Match{Name: textutil.TitleCase(name), Score: score})
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return matches
}
