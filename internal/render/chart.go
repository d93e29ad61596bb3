package render

import (
	"strconv"

	"github.com/datachat/datachat/internal/analytics"
	"github.com/datachat/datachat/internal/synthesis"
)

type chartPayload struct {
	Type   string    `json:"type"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

var chartTypes = map[synthesis.Visualization]string{
	synthesis.VizLineChart: "line",
	synthesis.VizBarChart:  "bar",
	synthesis.VizPieChart:  "pie",
}

// buildChart turns a two-column result into an x/y series payload. The
// boolean is false when the result shape does not fit a chart (the model
// asked for one anyway); callers fall back to a table.
func buildChart(viz synthesis.Visualization, res *analytics.Result) (string, bool, error) {
	if len(res.Columns) != 2 {
		return "", false, nil
	}

	payload := chartPayload{
		Type:   chartTypes[viz],
		Labels: make([]string, 0, len(res.Rows)),
		Values: make([]float64, 0, len(res.Rows)),
	}
	for _, row := range res.Rows {
		payload.Labels = append(payload.Labels, cellString(row[0]))
		payload.Values = append(payload.Values, toFloat(row[1]))
	}

	body, err := embedPayload("chart", payload)
	if err != nil {
		return "", false, err
	}
	return body, true, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case uint64:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(string(n), 64)
		return f
	default:
		return 0
	}
}
