// Package echoguard implements the echo guard (spec §4.6): a bounded ring of
// recent response embeddings used to detect near-duplicate assistant replies
// and drive escalating regeneration. original_source/app/api_server.py does a
// single flat check-then-warn with a literal "[REPEATED]" marker; this
// package implements spec §4.6's richer 3-attempt escalation (polite,
// forceful, emergency-override) instead, a deliberate divergence documented
// in DESIGN.md.
package echoguard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"time"

	"github.com/elevend0g/vicw/internal/model"
)

// Tier identifies the escalation step a rejected response requires before the next attempt.
type Tier int

const (
	// TierNone means the candidate response was not an echo; accept it.
	TierNone Tier = iota
	// TierPolite is attempt 2's warning: ask for new information or a different angle.
	TierPolite
	// TierForceful is attempt 3's warning: a directive listing forbidden phrasing.
	TierForceful
	// TierEmergencyOverride is attempt 4's (final) warning: strip RAG and state injections,
	// keep only the pinned header, the latest user turn, and a directive to conclude or pivot.
	TierEmergencyOverride
	// TierAccept means R_max regeneration attempts were exhausted; accept the last response
	// as-is and record the ECHO_GUARD_EXHAUSTED metric.
	TierAccept
)

// PoliteWarning, ForcefulWarning, and EmergencyWarning are the literal escalating system messages
// injected ahead of the next LLM call (spec §4.6).
const (
	PoliteWarning   = "Your last answer was nearly identical to a recent response. Provide new information or a different angle."
	ForcefulWarning = "Stop repeating prior phrasing. Do not reuse sentences or structure from your last response. State a concrete next action."
	EmergencyWarning = "Emergency override: ignore prior retrieved context. Respond only using the pinned header and the latest user message, and either conclude this line of conversation or pivot to a genuinely new topic."
)

// Verdict is the result of checking one candidate response against the ring.
type Verdict struct {
	IsEcho            bool
	Tier              Tier
	MatchedSimilarity float64
}

// Guard holds a fixed-capacity ring of recent response embeddings for one session.
type Guard struct {
	capacity  int
	threshold float64
	maxTries  int

	ring []model.EchoEntry
}

// New constructs a Guard with ring capacity H, similarity threshold sigma_echo, and regeneration
// cap R_max (total attempts made available is R_max+1: the original generation plus R_max
// retries, per spec §4.6).
func New(capacity int, threshold float64, maxTries int) *Guard {
	if capacity <= 0 {
		capacity = 10
	}
	if maxTries <= 0 {
		maxTries = 3
	}
	return &Guard{capacity: capacity, threshold: threshold, maxTries: maxTries, ring: make([]model.EchoEntry, 0, capacity)}
}

// Check compares candidate's embedding against every ring entry and returns a Verdict. attempt is
// 1-indexed: attempt=1 is the first, unwarned generation for this turn.
func (g *Guard) Check(candidate model.Embedding, attempt int) Verdict {
	best := 0.0
	for _, entry := range g.ring {
		if sim := cosineSimilarity(candidate, entry.Embedding); sim > best {
			best = sim
		}
	}

	if best < g.threshold {
		return Verdict{IsEcho: false, Tier: TierNone, MatchedSimilarity: best}
	}

	if attempt > g.maxTries {
		return Verdict{IsEcho: true, Tier: TierAccept, MatchedSimilarity: best}
	}

	nextAttempt := attempt + 1
	switch nextAttempt {
	case 2:
		return Verdict{IsEcho: true, Tier: TierPolite, MatchedSimilarity: best}
	case 3:
		return Verdict{IsEcho: true, Tier: TierForceful, MatchedSimilarity: best}
	default:
		return Verdict{IsEcho: true, Tier: TierEmergencyOverride, MatchedSimilarity: best}
	}
}

// WarningFor returns the literal system-message text for a given tier, or "" for TierNone/TierAccept.
func WarningFor(tier Tier) string {
	switch tier {
	case TierPolite:
		return PoliteWarning
	case TierForceful:
		return ForcefulWarning
	case TierEmergencyOverride:
		return EmergencyWarning
	default:
		return ""
	}
}

// Record appends a response embedding to the ring, evicting the oldest entry once at capacity.
func (g *Guard) Record(_ context.Context, text string, embedding model.Embedding) {
	entry := model.EchoEntry{Embedding: embedding, TextHash: hashText(text), Timestamp: time.Now()}
	g.ring = append(g.ring, entry)
	if len(g.ring) > g.capacity {
		g.ring = g.ring[len(g.ring)-g.capacity:]
	}
}

// Len returns the current number of ring entries.
func (g *Guard) Len() int { return len(g.ring) }

// MaxTries returns R_max.
func (g *Guard) MaxTries() int { return g.maxTries }

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func cosineSimilarity(a, b model.Embedding) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
