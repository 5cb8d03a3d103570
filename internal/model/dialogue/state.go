package dialogue

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

// Phase is the conversational mode that decides which strategy answers a turn.
type Phase string

const (
	PhaseStart             Phase = "start"
	PhaseCrisis            Phase = "crisis"
	PhaseStructuredTherapy Phase = "structured_therapy"
	PhaseGeneral           Phase = "general"
)

// ParsePhase accepts the wire form of a phase. An empty value means start.
func ParsePhase(raw string) (Phase, error) {
	switch p := Phase(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PhaseStart, nil
	case PhaseStart, PhaseCrisis, PhaseStructuredTherapy, PhaseGeneral:
		return p, nil
	default:
		return "", fmt.Errorf("unknown dialogue phase %q", raw)
	}
}

// State is the mutable state of a single turn. It is built fresh for every
// request; multi-turn stickiness comes from the caller handing back Phase.
type State struct {
	Messages []chat.Message
	Phase    Phase
	// SentimentScore is carried for callers but not read by any strategy yet.
	SentimentScore float64
	// MemoryContext is the long-term memory digest injected for this turn.
	MemoryContext string
	TurnID        string
}

// LatestText returns the text of the newest message, or "" when empty.
func (s *State) LatestText() string {
	if s == nil || len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[len(s.Messages)-1].Text
}

// Clone copies the state so the caller's message slice is never aliased.
func (s *State) Clone() *State {
	if s == nil {
		return &State{Phase: PhaseStart}
	}
	out := *s
	out.Messages = append(make([]chat.Message, 0, len(s.Messages)+1), s.Messages...)
	return &out
}
