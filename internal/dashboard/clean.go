package dashboard

import (
	"math"
	"math/big"

	"gktracker/lib/textutil"

	duckdb "github.com/duckdb/duckdb-go/v2"
)

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case *big.Int:
		if n == nil {
			return 0, false
		}
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, true
	case duckdb.Decimal:
		if n.Value == nil {
			return 0, false
		}
		scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Scale)), nil))
		f, _ := new(big.Float).Quo(new(big.Float).SetInt(n.Value), scale).Float64()
		return f, true
	}
	return 0, false
}

// numericColumn reports whether every non null value of the column is a
// number and whether they are all whole numbers.
func numericColumn(rows [][]any, col int) (numeric bool, integer bool) {
	seen := false
	integer = true
	for _, row := range rows {
		if row[col] == nil {
			continue
		}
		f, ok := toFloat(row[col])
		if !ok {
			return false, false
		}
		if math.IsNaN(f) {
			continue
		}
		seen = true
		if math.Abs(f-math.Round(f)) > 1e-9 {
			integer = false
		}
	}
	return seen, integer
}

// CleanFrame returns a copy of the frame where numeric columns holding only
// whole numbers become integers, other numeric columns are rounded to one
// decimal and goalkeeper names are title cased.
func CleanFrame(frame Frame) Frame {
	out := Frame{Columns: frame.Columns, Rows: make([][]any, len(frame.Rows))}
	for i, row := range frame.Rows {
		out.Rows[i] = append([]any(nil), row...)
	}

	for col, name := range frame.Columns {
		if isGoalkeeperColumn(name) {
			for _, row := range out.Rows {
				if s, ok := row[col].(string); ok {
					row[col] = textutil.TitleCase(s)
				}
			}
			continue
		}

		numeric, integer := numericColumn(out.Rows, col)
		if !numeric {
			for _, row := range out.Rows {
				if f, ok := row[col].(float64); ok && math.IsNaN(f) {
					row[col] = nil
				}
			}
			continue
		}
		for _, row := range out.Rows {
			f, ok := toFloat(row[col])
			if !ok || math.IsNaN(f) {
				row[col] = nil
				continue
			}
			if integer {
				row[col] = int64(math.Round(f))
			} else {
				row[col] = math.Round(f*10) / 10
			}
		}
	}
	return out
}

func isGoalkeeperColumn(name string) bool {
	return textutil.NormalizeName(name) == "goalkeeper"
}
