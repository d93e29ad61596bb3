package render

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/datachat/datachat/internal/ai"
	"github.com/datachat/datachat/internal/analytics"
	"github.com/datachat/datachat/internal/apperr"
	"github.com/datachat/datachat/internal/geo"
	"github.com/datachat/datachat/internal/synthesis"
)

type Renderer struct {
	provider      ai.Provider
	geocoder      geo.Geocoder
	tableRowLimit int
	maxTokens     int
}

func NewRenderer(provider ai.Provider, geocoder geo.Geocoder, tableRowLimit, maxTokens int) *Renderer {
	if tableRowLimit <= 0 {
		tableRowLimit = 30
	}
	return &Renderer{
		provider:      provider,
		geocoder:      geocoder,
		tableRowLimit: tableRowLimit,
		maxTokens:     maxTokens,
	}
}

// Render picks exactly one rendering path for the query result, evaluated
// in precedence order: chart, heatmap, large-result table, single-point
// map, three-point map, then prose. Shape mismatches (a chart request with
// the wrong column count, an unresolvable address) degrade to a table
// rather than failing.
func (r *Renderer) Render(ctx context.Context, question string, decision synthesis.Decision, res *analytics.Result, history []ai.Message) (Rendered, error) {
	if decision.WantsChart() {
		body, ok, err := buildChart(decision.Visualization, res)
		if err != nil {
			return Rendered{}, err
		}
		if ok {
			return Rendered{Kind: KindChart, Body: body}, nil
		}
		return Rendered{Kind: KindTable, Body: buildTable(res)}, nil
	}

	if decision.Visualization == synthesis.VizHeatMap {
		body, ok, err := buildHeatmap(res)
		if err != nil {
			return Rendered{}, err
		}
		if ok {
			return Rendered{Kind: KindHeatmap, Body: body}, nil
		}
		return Rendered{Kind: KindTable, Body: buildTable(res)}, nil
	}

	// Large result sets are never narratively summarized.
	if len(res.Rows) > r.tableRowLimit {
		return Rendered{Kind: KindTable, Body: buildTable(res)}, nil
	}

	if decision.WantsLocation() {
		wantRows := 0
		switch decision.Visualization {
		case synthesis.VizGoogleMaps:
			wantRows = 1
		case synthesis.VizTriangleMaps:
			wantRows = 3
		}
		if wantRows > 0 && len(res.Rows) == wantRows {
			body, ok, err := buildMap(ctx, r.geocoder, res)
			if err != nil {
				return Rendered{}, err
			}
			if ok {
				return Rendered{Kind: KindMap, Body: body}, nil
			}
			return Rendered{Kind: KindTable, Body: buildTable(res)}, nil
		}
	}

	return r.renderProse(ctx, question, res, history)
}

const proseSingleInstruction = "Format this data as a single friendly sentence answering the question."

const proseMultiInstruction = "Format this data as a short introductory sentence, then a numbered list of the answers, then one brief follow-up question the user might ask next."

func (r *Renderer) renderProse(ctx context.Context, question string, res *analytics.Result, history []ai.Message) (Rendered, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return Rendered{}, err
	}

	instruction := proseSingleInstruction
	if len(res.Rows) > 1 {
		instruction = proseMultiInstruction
	}

	msgs := make([]ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.Message{
		Role:    "system",
		Content: "You present database query results to a user in a friendly, conversational way. Use the prior conversation for tone and context. Never mention SQL or the database.",
	})
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.Message{
		Role:    "user",
		Content: fmt.Sprintf("Question: %s\n\nData: %s\n\n%s", question, data, instruction),
	})

	text, err := r.provider.Chat(ctx, msgs, ai.ChatOptions{MaxTokens: r.maxTokens})
	if err != nil {
		return Rendered{}, &apperr.Provider{Op: "chat", Err: err}
	}
	return Rendered{Kind: KindText, Body: text}, nil
}
