package synthesis

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/datachat/datachat/internal/ai"
	"github.com/datachat/datachat/internal/apperr"
	"github.com/datachat/datachat/internal/safety"
)

// The on-topic floor: decisions scoring below it are rejected regardless of
// executability.
const minRelevanceScore = 4

// ExampleSource retrieves few-shot examples for a question, blending the
// global pool with the user's personal pool.
type ExampleSource interface {
	SearchCombined(ctx context.Context, question string, userID uint64) ([]Example, error)
}

type Synthesizer struct {
	provider  ai.Provider
	examples  ExampleSource
	schema    string
	maxTokens int
}

func New(provider ai.Provider, examples ExampleSource, schema string, maxTokens int) *Synthesizer {
	return &Synthesizer{
		provider:  provider,
		examples:  examples,
		schema:    schema,
		maxTokens: maxTokens,
	}
}

// Synthesize turns a question plus conversation history into a validated,
// gated decision. Terminal outcomes:
//   - (decision, nil): answered, SQL ready for execution
//   - apperr.SafetyRejection / apperr.RelevanceRejection: rejected
//   - apperr.Provider: a capability service failed
//
// corrective carries the negative-feedback comment when regenerating a turn;
// empty otherwise.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, userID uint64, history Transcript, corrective string) (Decision, error) {
	if safety.AsksForSensitiveField(question) {
		return Decision{}, &apperr.SafetyRejection{Reason: "sensitive"}
	}

	examples, err := s.examples.SearchCombined(ctx, question, userID)
	if err != nil {
		return Decision{}, err
	}

	msgs := BuildMessages(BuildSystemPrompt(s.schema, examples), history, question, corrective)

	raw, err := s.provider.Chat(ctx, msgs, ai.ChatOptions{MaxTokens: s.maxTokens, JSONOnly: true})
	if err != nil {
		return Decision{}, &apperr.Provider{Op: "chat", Err: err}
	}

	decision, parsed := ParseDecision(raw)
	if !parsed {
		// Degrade to the safe default; the gates below reject it as unsafe.
		log.WithField("output", raw).Warn("unparseable model output, falling back to safe default")
	}

	decision.SQL = RewriteDialect(decision.SQL)

	// Gates, in order. An earlier rejection short-circuits the rest:
	// relevance is checked before safety, so an off-topic question is
	// reported as off-topic even when its SQL would also be unsafe. The
	// safe-default fallback has no score, so it skips the relevance gate
	// and is rejected as unsafe below.
	if parsed && decision.RelevanceScore < minRelevanceScore {
		return Decision{}, &apperr.RelevanceRejection{Score: decision.RelevanceScore}
	}
	if !decision.IsExecutable() {
		return Decision{}, &apperr.SafetyRejection{Reason: "unsafe"}
	}
	if safety.IsDataAltering(decision.SQL) {
		return Decision{}, &apperr.SafetyRejection{Reason: "mutating"}
	}

	return decision, nil
}
