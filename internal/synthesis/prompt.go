package synthesis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datachat/datachat/internal/ai"
)

// Example is a stored (question, decision) pair injected into the system
// prompt to steer the model's output.
type Example struct {
	Question string
	Decision Decision
}

// Turn is one prior exchange in the chat, re-expressed for the model: the
// original question (with any negative-feedback comments appended in
// parentheses) paired with the serialized decision the assistant produced.
type Turn struct {
	Question         string
	FeedbackComments []string
	Decision         Decision
}

// Transcript is the ordered prior-turn history of a chat, passed by value
// into the synthesizer. There is no hidden session state.
type Transcript []Turn

const outputContract = `Respond with a single JSON object and nothing else, with exactly these fields:
  "relevance_score": integer 1-10, how relevant the question is to the database schema above
  "executable": "yes" or "no", whether a safe read-only SQL query can answer it
  "sql": the SQL query as a string, or "NULL" when executable is "no"
  "asks_about_location": "yes" or "no", whether the question asks where something is
  "visualization_kind": one of "line_chart", "bar_chart", "pie_chart", "google_maps", "triangle_maps", "heat_map", "none"

Rules:
- Generate SELECT statements only. Never generate DELETE, UPDATE, INSERT, ALTER, DROP or CREATE.
- Never reference passwords, credentials, api keys, ids, secrets, tokens or primary keys.
- When the question is unrelated to the schema, set relevance_score below 4 and executable to "no".
- When executable is "no", sql must be the string "NULL".`

// BuildSystemPrompt assembles the system instructions: schema description,
// output contract and safety rules, then the retrieved few-shot examples as
// labeled question/answer pairs.
func BuildSystemPrompt(schema string, examples []Example) string {
	var b strings.Builder
	b.WriteString("You translate natural-language questions into read-only SQL queries.\n\n")
	b.WriteString("The database schema is as follows:\n")
	b.WriteString(schema)
	b.WriteString("\n\n")
	b.WriteString(outputContract)

	if len(examples) > 0 {
		b.WriteString("\n\nExamples:\n")
		for _, ex := range examples {
			answer, err := json.Marshal(ex.Decision)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "Question: %q\nAnswer: %s\n", ex.Question, answer)
		}
	}
	return b.String()
}

// BuildMessages lays out the full model conversation: system instructions,
// each prior turn as a user/assistant pair, then the current question. When
// corrective is non-empty (negative feedback regeneration) the model is told
// to revise its previous answer instead of generating fresh.
func BuildMessages(systemPrompt string, history Transcript, question, corrective string) []ai.Message {
	msgs := make([]ai.Message, 0, 2*len(history)+3)
	msgs = append(msgs, ai.Message{Role: "system", Content: systemPrompt})

	for _, turn := range history {
		q := turn.Question
		for _, comment := range turn.FeedbackComments {
			if comment != "" {
				q += fmt.Sprintf(" (%s)", comment)
			}
		}
		msgs = append(msgs, ai.Message{Role: "user", Content: q})

		answer, err := json.Marshal(turn.Decision)
		if err != nil {
			continue
		}
		msgs = append(msgs, ai.Message{Role: "assistant", Content: string(answer)})
	}

	msgs = append(msgs, ai.Message{Role: "user", Content: question})
	if corrective != "" {
		msgs = append(msgs, ai.Message{
			Role: "user",
			Content: fmt.Sprintf(
				"Your previous answer to this question was not satisfactory. Revise it according to this feedback instead of generating a fresh answer: %s",
				corrective),
		})
	}
	return msgs
}
