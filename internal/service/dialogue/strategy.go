// Package dialogue routes a turn through intent classification to exactly one
// response strategy.
package dialogue

import (
	"context"
	"strings"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
	dialogueModel "github.com/zhouzirui/serene/backend/internal/model/dialogue"
	"github.com/zhouzirui/serene/backend/internal/service/ai"
)

// ContextWindow is how many trailing messages the therapy and general
// strategies send to the model.
const ContextWindow = 5

// Strategy produces the assistant reply for one phase.
type Strategy interface {
	Respond(ctx context.Context, messages []chat.Message, memoryContext string) (chat.Message, error)
}

// Strategies maps each answering phase to its handler.
type Strategies map[dialogueModel.Phase]Strategy

// DefaultStrategies wires the crisis, structured therapy and general
// strategies to gen.
func DefaultStrategies(gen ai.Generator) Strategies {
	return Strategies{
		dialogueModel.PhaseCrisis:            &CrisisStrategy{gen: gen},
		dialogueModel.PhaseStructuredTherapy: &TherapyStrategy{gen: gen},
		dialogueModel.PhaseGeneral:           &GeneralStrategy{gen: gen},
	}
}

// CrisisStrategy answers self-harm disclosures. It only ever sees the latest
// user message so the safety reply stays fast and unambiguous.
type CrisisStrategy struct {
	gen ai.Generator
}

func (s *CrisisStrategy) Respond(ctx context.Context, messages []chat.Message, _ string) (chat.Message, error) {
	latest, ok := latestUserMessage(messages)
	if !ok {
		return chat.Message{}, ai.Fail("crisis", errNoMessages)
	}
	return reply(ctx, s.gen, crisisDirective, []chat.Message{latest})
}

// TherapyStrategy runs the validate, question, support pattern over the
// recent window.
type TherapyStrategy struct {
	gen ai.Generator
}

func (s *TherapyStrategy) Respond(ctx context.Context, messages []chat.Message, memoryContext string) (chat.Message, error) {
	return reply(ctx, s.gen, withMemory(therapyDirective, memoryContext), chat.Tail(messages, ContextWindow))
}

// GeneralStrategy is the companionship default.
type GeneralStrategy struct {
	gen ai.Generator
}

func (s *GeneralStrategy) Respond(ctx context.Context, messages []chat.Message, memoryContext string) (chat.Message, error) {
	return reply(ctx, s.gen, withMemory(generalDirective, memoryContext), chat.Tail(messages, ContextWindow))
}

func reply(ctx context.Context, gen ai.Generator, directive string, window []chat.Message) (chat.Message, error) {
	text, err := gen.Generate(ctx, directive, window)
	if err != nil {
		return chat.Message{}, ai.Fail("respond", err)
	}
	return chat.AssistantMessage(text), nil
}

func withMemory(directive, memoryContext string) string {
	memoryContext = strings.TrimSpace(memoryContext)
	if memoryContext == "" {
		return directive
	}
	return directive + "\n\n" + memoryHeading + "\n" + memoryContext
}

func latestUserMessage(messages []chat.Message) (chat.Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleUser {
			return messages[i], true
		}
	}
	if len(messages) == 0 {
		return chat.Message{}, false
	}
	return messages[len(messages)-1], true
}
