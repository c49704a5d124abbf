// Package coldpath implements the Semantic Manager (C7) and the Cold-Path
// Worker (C8): the asynchronous side of the pipeline that turns an offloaded
// chunk into a summary, an embedding, and graph/state updates, grounded on
// original_source/app/semantic_manager.py and original_source/app/worker.py.
package coldpath

import (
	"regexp"
	"strings"
)

var summarySentenceSplit = regexp.MustCompile(`(?:[.!?]+\s+|\n+)`)

// Summarize produces an extractive summary of text using the lead-N/tail-M sentence rule (spec
// §4.4): the first leadN sentences plus the last tailM sentences, joined and truncated to
// maxTokens*4 bytes (the tokenizer's bytes-per-token heuristic). This replaces
// original_source/app/semantic_manager.py's line-based truncation, which does not apply to
// chunk text reflowed as a single blob of chat turns; sentence boundaries are the natural unit
// here, a deliberate divergence documented in DESIGN.md.
func Summarize(text string, leadN, tailM, maxTokens int) string {
	sentences := splitNonEmpty(text)
	if len(sentences) == 0 {
		return ""
	}
	if len(sentences) <= leadN+tailM {
		return truncateToTokens(strings.Join(sentences, " "), maxTokens)
	}

	lead := sentences[:leadN]
	tail := sentences[len(sentences)-tailM:]

	var b strings.Builder
	b.WriteString(strings.Join(lead, " "))
	if leadN > 0 && tailM > 0 {
		b.WriteString(" ... ")
	}
	b.WriteString(strings.Join(tail, " "))
	return truncateToTokens(b.String(), maxTokens)
}

func splitNonEmpty(text string) []string {
	raw := summarySentenceSplit.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// truncateToTokens bounds s to approximately maxTokens tokens using the same 4-bytes-per-token
// heuristic as internal/tokenizer, so a summary never exceeds L_sum.
func truncateToTokens(s string, maxTokens int) string {
	maxBytes := maxTokens * 4
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	return strings.TrimSpace(s[:maxBytes])
}
