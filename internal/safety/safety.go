// Package safety holds the stateless keyword checks that guard the ask
// pipeline. The question is checked before the language model is called;
// the generated SQL is checked again before execution, because the model
// is untrusted and may emit a mutating statement despite instructions.
package safety

import (
	"regexp"
	"strings"
)

// Terms that must never be asked about. Matched as whole words,
// case-insensitively, so "valid" does not trip on "id".
var sensitiveTerms = []string{
	"password",
	"credential",
	"api key",
	"id",
	"secret",
	"token",
	"primary key",
}

var sensitivePatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(sensitiveTerms))
	for _, term := range sensitiveTerms {
		out = append(out, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(term)+`\b`))
	}
	return out
}()

// AsksForSensitiveField reports whether the question mentions a sensitive
// term. False positives are the safe default.
func AsksForSensitiveField(question string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(question) {
			return true
		}
	}
	return false
}

// SQL keywords that alter data. Substring matching is fine here: these are
// SQL keywords, not natural words.
var alteringKeywords = []string{"delete", "update", "insert", "alter", "drop", "create"}

// IsDataAltering reports whether the SQL text contains any DDL/DML keyword,
// case-insensitively, anywhere in the statement.
func IsDataAltering(sql string) bool {
	lower := strings.ToLower(sql)
	for _, kw := range alteringKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
