package apperr

import "fmt"

// Validation indicates missing or malformed user input (HTTP 400).
type Validation struct {
	Msg string
}

func (e *Validation) Error() string { return e.Msg }

// SafetyRejection covers sensitive questions and unsafe or mutating SQL
// (HTTP 403). The message shown to users is intentionally generic; Reason
// carries the internal cause.
type SafetyRejection struct {
	Reason string // "sensitive", "unsafe", "mutating"
}

func (e *SafetyRejection) Error() string {
	return fmt.Sprintf("request rejected: %s", e.Reason)
}

// RelevanceRejection means the model scored the question below the
// on-topic floor (HTTP 403).
type RelevanceRejection struct {
	Score int
}

func (e *RelevanceRejection) Error() string {
	return fmt.Sprintf("question is off-topic (relevance %d)", e.Score)
}

// Execution wraps a failure running generated SQL against the analytical
// datasource (HTTP 500).
type Execution struct {
	Err error
}

func (e *Execution) Error() string { return "query execution failed: " + e.Err.Error() }
func (e *Execution) Unwrap() error { return e.Err }

// Provider wraps a failed call to an external capability service: the
// language model, the embedding provider, or the geocoder. Not retried
// here; surfaces to the caller (HTTP 502).
type Provider struct {
	Op  string // "chat", "embed", "geocode"
	Err error
}

func (e *Provider) Error() string { return e.Op + " provider: " + e.Err.Error() }
func (e *Provider) Unwrap() error { return e.Err }
