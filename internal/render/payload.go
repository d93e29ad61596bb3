package render

import (
	"encoding/json"
	"fmt"
)

type Kind string

const (
	KindText    Kind = "text"
	KindTable   Kind = "table"
	KindChart   Kind = "chart"
	KindHeatmap Kind = "heatmap"
	KindMap     Kind = "map"
)

// Rendered is the final shaped answer for one question. Body carries prose,
// an HTML table, or a payload embedded in a fenced code template that the
// frontend turns into a chart or map widget.
type Rendered struct {
	Kind Kind   `json:"kind"`
	Body string `json:"body"`
}

// embedPayload wraps a JSON payload in a fenced code template tagged with
// the widget kind, e.g. ```chart ... ```.
func embedPayload(tag string, payload any) (string, error) {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("```%s\n%s\n```", tag, b), nil
}
