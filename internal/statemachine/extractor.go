package statemachine

import (
	"context"
	"regexp"
	"strings"

	"github.com/elevend0g/vicw/internal/model"
	"github.com/elevend0g/vicw/internal/store"
)

// MaxDescriptionLen truncates overly long extracted descriptions before they reach the graph
// (spec §4.5: descriptions are normalized and bounded, matching chunk-summary truncation style).
const MaxDescriptionLen = 200

var sentenceSplit = regexp.MustCompile(`(?:[.!?]+\s+|\n+)`)

// Candidate is one pattern match extracted from a turn's text, prior to being resolved against
// existing graph state (fuzzy dedup, visit-count bump, or fresh creation).
type Candidate struct {
	Kind        Kind
	Type        model.StateType
	Description string
}

// Extractor runs the static pattern catalog over turn text and upserts resulting candidates into
// a Graph. Pure with respect to the catalog; all mutation happens through the injected Graph.
type Extractor struct {
	catalog []Pattern
}

// New constructs an Extractor over the given pattern catalog (use DefaultCatalog() for the
// built-in rules).
func New(catalog []Pattern) *Extractor {
	return &Extractor{catalog: catalog}
}

// Extract splits text into sentences and runs every catalog pattern against each sentence,
// returning every match as a Candidate. Pure function: (text, catalog) -> []Candidate, no I/O.
func (e *Extractor) Extract(text string) []Candidate {
	var out []Candidate
	for _, sentence := range splitSentences(text) {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}
		for _, p := range e.catalog {
			m := p.Regex.FindStringSubmatch(trimmed)
			if m == nil || len(m) <= p.GroupID {
				continue
			}
			desc := normalizeDescription(m[p.GroupID])
			if desc == "" {
				continue
			}
			out = append(out, Candidate{Kind: p.Kind, Type: p.Type, Description: desc})
		}
	}
	return out
}

// ProcessTurn extracts candidates from text and resolves each into the graph: affirmative and
// decision/fact candidates create-or-touch an active state (I4 visit-count semantics live inside
// Graph.CreateOrTransitionState); completion candidates transition a matching active state to
// completed. Returns every resulting state, in candidate order.
func (e *Extractor) ProcessTurn(ctx context.Context, g store.Graph, text string) ([]model.State, error) {
	candidates := e.Extract(text)
	if len(candidates) == 0 {
		return nil, nil
	}

	results := make([]model.State, 0, len(candidates))
	for _, c := range candidates {
		status := model.StatusActive
		if c.Kind == KindCompletion {
			status = model.StatusCompleted
		}
		st, err := g.CreateOrTransitionState(ctx, store.StateCandidate{
			Type:        c.Type,
			Status:      status,
			Description: c.Description,
		})
		if err != nil {
			return results, err
		}
		results = append(results, st)
	}
	return results, nil
}

func splitSentences(text string) []string {
	return sentenceSplit.Split(text, -1)
}

// normalizeDescription lowercases, collapses whitespace, strips trailing punctuation, and
// truncates so near-duplicate phrasing ("let's go to the park." vs "Let's go to the park")
// fuzzy-matches cleanly downstream (spec §4.5).
func normalizeDescription(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, ".!?,; ")
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > MaxDescriptionLen {
		s = s[:MaxDescriptionLen]
	}
	return s
}
