package synthesis

import (
	"encoding/json"
	"strings"
)

type Visualization string

const (
	VizLineChart    Visualization = "line_chart"
	VizBarChart     Visualization = "bar_chart"
	VizPieChart     Visualization = "pie_chart"
	VizGoogleMaps   Visualization = "google_maps"
	VizTriangleMaps Visualization = "triangle_maps"
	VizHeatMap      Visualization = "heat_map"
	VizNone         Visualization = "none"
)

var validVisualizations = map[Visualization]bool{
	VizLineChart:    true,
	VizBarChart:     true,
	VizPieChart:     true,
	VizGoogleMaps:   true,
	VizTriangleMaps: true,
	VizHeatMap:      true,
	VizNone:         true,
}

// Decision is the language model's structured output for one question.
// Invariant: Executable == "no" implies SQL == "NULL".
type Decision struct {
	RelevanceScore    int           `json:"relevance_score"`
	Executable        string        `json:"executable"`
	SQL               string        `json:"sql"`
	AsksAboutLocation string        `json:"asks_about_location"`
	Visualization     Visualization `json:"visualization_kind"`
}

func (d Decision) IsExecutable() bool  { return strings.EqualFold(d.Executable, "yes") }
func (d Decision) WantsLocation() bool { return strings.EqualFold(d.AsksAboutLocation, "yes") }

func (d Decision) WantsChart() bool {
	return d.Visualization == VizLineChart || d.Visualization == VizBarChart || d.Visualization == VizPieChart
}

// SafeDefault is the fallback when model output cannot be parsed. The gate
// logic rejects it as unsafe, so an unparseable response is never executed.
func SafeDefault() Decision {
	return Decision{
		RelevanceScore:    0,
		Executable:        "no",
		SQL:               "NULL",
		AsksAboutLocation: "no",
		Visualization:     VizNone,
	}
}

// StripFences removes a leading markdown code fence (```json, ```sql or
// bare ```) and its closing fence, if present.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// drop the language tag line ("json", "sql", or empty)
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// ParseDecision parses the model's JSON output. The boolean is false when
// the output is unparseable or fails validation; the returned decision is
// then SafeDefault.
func ParseDecision(raw string) (Decision, bool) {
	var d Decision
	if err := json.Unmarshal([]byte(StripFences(raw)), &d); err != nil {
		return SafeDefault(), false
	}
	if d.RelevanceScore < 1 || d.RelevanceScore > 10 {
		return SafeDefault(), false
	}
	if !strings.EqualFold(d.Executable, "yes") && !strings.EqualFold(d.Executable, "no") {
		return SafeDefault(), false
	}
	if d.Visualization == "" {
		d.Visualization = VizNone
	}
	if !validVisualizations[d.Visualization] {
		return SafeDefault(), false
	}
	d.SQL = StripFences(d.SQL)
	if !d.IsExecutable() {
		d.SQL = "NULL"
	}
	return d, true
}
