// Package statemachine implements the State Extractor (C5): a pure
// (text, catalog) -> []Candidate rules engine, loaded once at startup from a
// static pattern catalog (spec §9). Patterns are authored directly from
// spec §4.5's examples since _examples/original_source/ ships no
// state_config.yaml to translate.
package statemachine

import (
	"regexp"

	"github.com/elevend0g/vicw/internal/model"
)

// Kind distinguishes which half of a pattern rule matched.
type Kind int

const (
	KindAffirmative Kind = iota
	KindCompletion
	KindDecision
	KindFact
)

// Pattern pairs a compiled regex with the state type/kind it signals, and the index of the
// capture group holding the description.
type Pattern struct {
	Kind    Kind
	Type    model.StateType
	Regex   *regexp.Regexp
	GroupID int
}

// DefaultCatalog returns the static pattern catalog grounded on spec §4.5's examples:
// affirmative ("let's go to X", "we need to X", "I will X") -> (goal|task, active, X);
// completion ("we arrived at X", "X is done", "X is merged") -> (same_type, completed, X);
// decisions ("we decided X", "X is chosen") -> (decision, active, X); facts (assertions).
func DefaultCatalog() []Pattern {
	return []Pattern{
		// Affirmative goal/task patterns.
		{Kind: KindAffirmative, Type: model.StateGoal, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)let'?s\s+go\s+to\s+(.+)`)},
		{Kind: KindAffirmative, Type: model.StateGoal, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)let'?s\s+(.+)`)},
		{Kind: KindAffirmative, Type: model.StateTask, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)we\s+need\s+to\s+(.+)`)},
		{Kind: KindAffirmative, Type: model.StateTask, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)i\s+will\s+(.+)`)},
		{Kind: KindAffirmative, Type: model.StateTask, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)i'?ll\s+(.+)`)},

		// Completion patterns. Each carries a fixed type, and the graph's fuzzy match only
		// considers existing states of that same type, so "we arrived at X" can complete only a
		// goal and the "X is done/merged/complete(d)/finished" forms only a task.
		{Kind: KindCompletion, Type: model.StateGoal, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)we\s+arrived\s+at\s+(.+)`)},
		{Kind: KindCompletion, Type: model.StateTask, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)(.+)\s+is\s+done\b`)},
		{Kind: KindCompletion, Type: model.StateTask, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)(.+)\s+is\s+merged\b`)},
		{Kind: KindCompletion, Type: model.StateTask, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)(.+)\s+is\s+complete[d]?\b`)},
		{Kind: KindCompletion, Type: model.StateTask, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)(.+)\s+is\s+finished\b`)},

		// Decisions.
		{Kind: KindDecision, Type: model.StateDecision, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)we\s+decided\s+(?:to\s+)?(.+)`)},
		{Kind: KindDecision, Type: model.StateDecision, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)(.+)\s+is\s+chosen\b`)},
		{Kind: KindDecision, Type: model.StateDecision, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)we'?ll\s+go\s+with\s+(.+)`)},

		// Facts: simple declarative assertions.
		{Kind: KindFact, Type: model.StateFact, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)^(?:note|fact)\s*:\s*(.+)`)},
		{Kind: KindFact, Type: model.StateFact, GroupID: 1,
			Regex: regexp.MustCompile(`(?i)(.+)\s+is\s+located\s+(?:at|in)\s+(.+)`)},
	}
}
