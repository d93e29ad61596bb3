package render

import (
	"github.com/datachat/datachat/internal/analytics"
)

type heatmapPayload struct {
	Rows   []string    `json:"rows"`
	Cols   []string    `json:"cols"`
	Values [][]float64 `json:"values"`
}

// buildHeatmap pivots a three-column result into a 2D grid keyed by the
// distinct values of the first two columns, cell value from the third.
// Missing cells default to 0. The boolean is false when the result shape
// does not fit; callers fall back to a table.
func buildHeatmap(res *analytics.Result) (string, bool, error) {
	if len(res.Columns) != 3 {
		return "", false, nil
	}

	var rowKeys, colKeys []string
	rowIdx := map[string]int{}
	colIdx := map[string]int{}
	for _, row := range res.Rows {
		rk := cellString(row[0])
		ck := cellString(row[1])
		if _, ok := rowIdx[rk]; !ok {
			rowIdx[rk] = len(rowKeys)
			rowKeys = append(rowKeys, rk)
		}
		if _, ok := colIdx[ck]; !ok {
			colIdx[ck] = len(colKeys)
			colKeys = append(colKeys, ck)
		}
	}

	values := make([][]float64, len(rowKeys))
	for i := range values {
		values[i] = make([]float64, len(colKeys))
	}
	for _, row := range res.Rows {
		values[rowIdx[cellString(row[0])]][colIdx[cellString(row[1])]] = toFloat(row[2])
	}

	body, err := embedPayload("heatmap", heatmapPayload{
		Rows:   rowKeys,
		Cols:   colKeys,
		Values: values,
	})
	if err != nil {
		return "", false, err
	}
	return body, true, nil
}
