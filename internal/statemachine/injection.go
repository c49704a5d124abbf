package statemachine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elevend0g/vicw/internal/model"
	"github.com/elevend0g/vicw/internal/store"
	"github.com/elevend0g/vicw/internal/tokenizer"
)

// InjectionCaps bounds how many active states of each type are surfaced per turn, plus how many
// recently completed states are included (spec §4.5 defaults: goal 2, task 3, decision 2, fact 3,
// k_done 3).
type InjectionCaps struct {
	Goal     int
	Task     int
	Decision int
	Fact     int
	KDone    int
}

// BuildInjection queries active and recently completed states, increments visit_count and
// last_visited on every surfaced active state, and renders the single "[STATE MEMORY]" synthetic
// message described in spec §4.5. Returns ok=false when nothing qualifies for injection.
func BuildInjection(ctx context.Context, g store.Graph, caps InjectionCaps, boredomThreshold int, boredomEnabled bool) (model.Message, bool, error) {
	goals, err := g.ActiveStates(ctx, model.StateGoal, caps.Goal)
	if err != nil {
		return model.Message{}, false, err
	}
	tasks, err := g.ActiveStates(ctx, model.StateTask, caps.Task)
	if err != nil {
		return model.Message{}, false, err
	}
	decisions, err := g.ActiveStates(ctx, model.StateDecision, caps.Decision)
	if err != nil {
		return model.Message{}, false, err
	}
	facts, err := g.ActiveStates(ctx, model.StateFact, caps.Fact)
	if err != nil {
		return model.Message{}, false, err
	}
	completed, err := g.CompletedStates(ctx, caps.KDone)
	if err != nil {
		return model.Message{}, false, err
	}

	active := append(append(append(append([]model.State{}, goals...), tasks...), decisions...), facts...)
	if len(active) > 0 {
		ids := make([]string, 0, len(active))
		for _, st := range active {
			ids = append(ids, st.StateID)
		}
		if err := g.TouchStates(ctx, ids, time.Now()); err != nil {
			return model.Message{}, false, err
		}
	}

	var warning string
	if boredomEnabled {
		for _, st := range active {
			// visit_count reflects the pre-touch count; a state reaching the threshold on this
			// very injection still warrants the warning (I4: only a status transition resets it).
			if st.VisitCount+1 >= boredomThreshold {
				warning = fmt.Sprintf("⚠️ LOOP DETECTED: Repeated focus on %s. Consider concluding or exploring alternatives.", st.Description)
				break
			}
		}
	}

	if len(active) == 0 && len(completed) == 0 {
		return model.Message{}, false, nil
	}

	var b strings.Builder
	b.WriteString("[STATE MEMORY]\n")
	writeSection(&b, "Active goals", goals)
	writeSection(&b, "Active tasks", tasks)
	writeSection(&b, "Decisions", decisions)
	writeSection(&b, "Known facts", facts)
	writeSection(&b, "Recently completed", completed)
	if warning != "" {
		b.WriteString(warning)
		b.WriteString("\n")
	}

	content := strings.TrimRight(b.String(), "\n")
	return model.Message{Role: model.RoleState, Content: content, TokenCount: tokenizer.Estimate(content)}, true, nil
}

func writeSection(b *strings.Builder, label string, states []model.State) {
	if len(states) == 0 {
		return
	}
	b.WriteString(label)
	b.WriteString(": ")
	for i, st := range states {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(st.Description)
	}
	b.WriteString("\n")
}
