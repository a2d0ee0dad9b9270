// Package router classifies incoming questions into handling strategies.
// Two classifiers are provided: IntentRouter asks a language model for a
// one-word category, SemanticRouter matches against sample utterances in
// embedding space. The orchestrator invokes exactly one of them per query.
package router

import "strings"

// Decision is the closed set of handling strategies. It is produced once
// per query and never revised mid-pipeline.
type Decision string

const (
	DecisionRAG       Decision = "rag"
	DecisionDatabase  Decision = "database"
	DecisionWebSearch Decision = "web_search"
)

// ParseDecision validates a raw category string against the closed set.
// The model's reply is an unreliable external signal; callers must apply
// the documented default when ok is false, never branch on the raw string.
func ParseDecision(raw string) (Decision, bool) {
	switch Decision(strings.ToLower(strings.TrimSpace(raw))) {
	case DecisionRAG:
		return DecisionRAG, true
	case DecisionDatabase:
		return DecisionDatabase, true
	case DecisionWebSearch:
		return DecisionWebSearch, true
	default:
		return "", false
	}
}
