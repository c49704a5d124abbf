package coldpath

import (
	"regexp"
	"strings"

	"github.com/elevend0g/vicw/internal/model"
)

// capitalizedPhrase matches runs of 1-4 capitalized words, e.g. "John Smith", "New York City".
// Grounded on original_source/app/neo4j_knowledge_graph.py's _extract_entities regex.
var capitalizedPhrase = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,3}\b`)

var commonLeadWords = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"When": true, "Where": true, "What": true, "Why": true, "How": true, "Who": true,
}

// maxEntitiesPerChunk caps entity extraction to avoid overloading the graph with noise from one
// summary, matching the original's top-10 cutoff.
const maxEntitiesPerChunk = 10

// extractEntities pulls capitalized-phrase candidates out of text and assigns a coarse type from
// surrounding context, mirroring the original's rule-based _extract_entities. This is
// opportunistic (spec §3: "created opportunistically... not required"), so false negatives are
// fine and no entity is ever required for a chunk to be considered processed.
func extractEntities(text string) []model.Entity {
	matches := capitalizedPhrase.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	lower := strings.ToLower(text)
	entityType := inferEntityType(lower)

	seen := make(map[string]bool, len(matches))
	var out []model.Entity
	for _, m := range matches {
		first := m
		if i := strings.IndexByte(m, ' '); i >= 0 {
			first = m[:i]
		}
		if commonLeadWords[first] || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, model.Entity{Name: m, Type: entityType})
		if len(out) >= maxEntitiesPerChunk {
			break
		}
	}
	return out
}

func inferEntityType(lowerText string) string {
	switch {
	case containsAny(lowerText, "goal", "objective", "aim"):
		return "GOAL"
	case containsAny(lowerText, "task", "action", "do", "implement"):
		return "TASK"
	case containsAny(lowerText, "fact", "is", "are", "was", "were"):
		return "FACT"
	default:
		return "UNKNOWN"
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
