package dashboard

import (
	"context"
	"math"
	"slices"

	"gktracker/lib/textutil"
)

type Metric struct {
	Metric     string   `json:"metric"`
	Value      *float64 `json:"value"`
	ZScore     *float64 `json:"z_score"`
	Percentile *float64 `json:"percentile"`
}

type Profile struct {
	Goalkeeper string   `json:"goalkeeper"`
	Metrics    []Metric `json:"metrics"`
}

// EmptyProfile is returned when no goalkeeper is selected or found.
func EmptyProfile() Profile {
	return Profile{Goalkeeper: "", Metrics: []Metric{}}
}

func floatAt(row []any, col int) *float64 {
	if col < 0 {
		return nil
	}
	f, ok := toFloat(row[col])
	if !ok || math.IsNaN(f) {
		return nil
	}
	return &f
}

// profile builds the radar metrics of one goalkeeper, matching names
// regardless of case and separators.
func (s *Server) profile(ctx context.Context, name string) (Profile, error) {
	if textutil.NormalizeName(name) == "" {
		return EmptyProfile(), nil
	}

	frame, err := s.cache.Query(ctx, s.opts.GoalkeeperTable, nil)
	if err != nil {
		return Profile{}, err
	}
	gkCol := slices.Index(frame.Columns, s.opts.GoalkeeperColumn)
	if gkCol < 0 {
		return EmptyProfile(), nil
	}

	var row []any
	for _, r := range frame.Rows {
		v, ok := r[gkCol].(string)
		if ok && textutil.NormalizeName(v) == textutil.NormalizeName(name) {
			row = r
			break
		}
	}
	if row == nil {
		return EmptyProfile(), nil
	}

	labels := s.cache.Labels(s.opts.GoalkeeperTable)
	byLabel := map[string]int{}
	for i, col := range frame.Columns {
		byLabel[labels[col]] = i
		if _, ok := byLabel[col]; !ok {
			byLabel[col] = i
		}
	}
	index := func(label string) int {
		if i, ok := byLabel[label]; ok {
			return i
		}
		return -1
	}

	out := Profile{
		Goalkeeper: textutil.TitleCase(row[gkCol].(string)),
		Metrics:    []Metric{},
	}
	for _, metric := range s.opts.ProfileMetrics {
		col := index(metric)
		if col < 0 {
			continue
		}
		out.Metrics = append(out.Metrics, Metric{
			Metric:     metric,
			Value:      floatAt(row, col),
			ZScore:     floatAt(row, index("Z: "+metric)),
			Percentile: floatAt(row, index("Pctile: "+metric)),
		})
	}
	return out, nil
}
