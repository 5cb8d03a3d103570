package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/serene/backend/internal/metrics"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	dialogueModel "github.com/zhouzirui/serene/backend/internal/model/dialogue"
	"github.com/zhouzirui/serene/backend/internal/service/ai"
)

type generateCall struct {
	directive string
	messages  []chat.Message
}

type recordingGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []generateCall
}

func (g *recordingGenerator) Generate(_ context.Context, directive string, messages []chat.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, generateCall{directive: directive, messages: append([]chat.Message(nil), messages...)})
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *recordingGenerator) GenerateJSON(context.Context, string) (string, error) {
	return "", errors.New("not used")
}

func newTestOrchestrator(t *testing.T, gen ai.Generator) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(context.Background(), DefaultStrategies(gen), nil, metrics.New())
	require.NoError(t, err)
	return o
}

func history(latest string) []chat.Message {
	return []chat.Message{
		chat.UserMessage("hi"),
		chat.AssistantMessage("hello, how are you?"),
		chat.UserMessage("work was long"),
		chat.AssistantMessage("that sounds tiring"),
		chat.UserMessage("my manager yelled"),
		chat.AssistantMessage("I'm sorry, that hurts"),
		chat.UserMessage(latest),
	}
}

func TestRunRoutesTherapyWithWindow(t *testing.T) {
	gen := &recordingGenerator{reply: "I hear how heavy that feels."}
	o := newTestOrchestrator(t, gen)

	input := history("I feel hopeless about my job")
	out, err := o.Run(context.Background(), &dialogueModel.State{Messages: input, Phase: dialogueModel.PhaseStart})
	require.NoError(t, err)

	assert.Equal(t, dialogueModel.PhaseStructuredTherapy, out.Phase)
	require.Len(t, out.Messages, len(input)+1)
	assert.Equal(t, input, out.Messages[:len(input)])
	assert.Equal(t, chat.AssistantMessage("I hear how heavy that feels."), out.Messages[len(input)])

	require.Len(t, gen.calls, 1)
	assert.Equal(t, therapyDirective, gen.calls[0].directive)
	assert.Equal(t, input[len(input)-ContextWindow:], gen.calls[0].messages)
}

func TestRunCrisisUsesLatestMessageOnly(t *testing.T) {
	for _, phase := range []dialogueModel.Phase{dialogueModel.PhaseStart, dialogueModel.PhaseStructuredTherapy, dialogueModel.PhaseGeneral, dialogueModel.PhaseCrisis} {
		gen := &recordingGenerator{reply: "Please text 988."}
		o := newTestOrchestrator(t, gen)

		out, err := o.Run(context.Background(), &dialogueModel.State{
			Messages:      history("I want to end it all"),
			Phase:         phase,
			MemoryContext: "- User has a dog named Rex",
		})
		require.NoError(t, err)
		assert.Equal(t, dialogueModel.PhaseCrisis, out.Phase)

		require.Len(t, gen.calls, 1)
		assert.Equal(t, crisisDirective, gen.calls[0].directive)
		assert.Equal(t, []chat.Message{chat.UserMessage("I want to end it all")}, gen.calls[0].messages)
	}
}

func TestRunGeneralInjectsMemoryContext(t *testing.T) {
	gen := &recordingGenerator{reply: "How is Luna doing?"}
	o := newTestOrchestrator(t, gen)

	out, err := o.Run(context.Background(), &dialogueModel.State{
		Messages:      []chat.Message{chat.UserMessage("good morning")},
		MemoryContext: "LONG TERM MEMORY (Facts about the user):\n- User has a cat named Luna",
	})
	require.NoError(t, err)
	assert.Equal(t, dialogueModel.PhaseGeneral, out.Phase)

	require.Len(t, gen.calls, 1)
	directive := gen.calls[0].directive
	assert.True(t, strings.HasPrefix(directive, generalDirective))
	assert.Contains(t, directive, memoryHeading+"\nLONG TERM MEMORY (Facts about the user):\n- User has a cat named Luna")
	assert.Equal(t, []chat.Message{chat.UserMessage("good morning")}, gen.calls[0].messages)
}

func TestRunTherapyStickinessAcrossTurns(t *testing.T) {
	gen := &recordingGenerator{reply: "ok"}
	o := newTestOrchestrator(t, gen)

	state := &dialogueModel.State{Messages: []chat.Message{chat.UserMessage("I'm so anxious")}}
	out, err := o.Run(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, dialogueModel.PhaseStructuredTherapy, out.Phase)

	next := &dialogueModel.State{Messages: append(out.Messages, chat.UserMessage("my boss emailed")), Phase: out.Phase}
	out, err = o.Run(context.Background(), next)
	require.NoError(t, err)
	assert.Equal(t, dialogueModel.PhaseStructuredTherapy, out.Phase)

	next = &dialogueModel.State{Messages: append(out.Messages, chat.UserMessage("let's stop")), Phase: out.Phase}
	out, err = o.Run(context.Background(), next)
	require.NoError(t, err)
	assert.Equal(t, dialogueModel.PhaseGeneral, out.Phase)
}

func TestRunPropagatesGenerationFailure(t *testing.T) {
	cause := errors.New("deadline exceeded")
	gen := &recordingGenerator{err: cause}
	o := newTestOrchestrator(t, gen)

	input := []chat.Message{chat.UserMessage("hello")}
	state := &dialogueModel.State{Messages: input}
	out, err := o.Run(context.Background(), state)
	assert.Nil(t, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrGeneration)

	assert.Len(t, state.Messages, 1)
	assert.Equal(t, dialogueModel.Phase(""), state.Phase)
}

func TestRunDoesNotMutateInput(t *testing.T) {
	gen := &recordingGenerator{reply: "hi"}
	o := newTestOrchestrator(t, gen)

	input := make([]chat.Message, 1, 8)
	input[0] = chat.UserMessage("hey")
	state := &dialogueModel.State{Messages: input, Phase: dialogueModel.PhaseStart}

	out, err := o.Run(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)

	assert.Len(t, state.Messages, 1)
	assert.Equal(t, dialogueModel.PhaseStart, state.Phase)
	assert.Equal(t, chat.Message{}, input[:2][1], "backing array must not be written")
}

func TestRunRejectsEmptyState(t *testing.T) {
	o := newTestOrchestrator(t, &recordingGenerator{reply: "x"})

	_, err := o.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ai.ErrGeneration)

	_, err = o.Run(context.Background(), &dialogueModel.State{})
	assert.Error(t, err)
}

func TestNewOrchestratorRequiresEveryStrategy(t *testing.T) {
	strategies := DefaultStrategies(&recordingGenerator{})
	delete(strategies, dialogueModel.PhaseCrisis)

	_, err := NewOrchestrator(context.Background(), strategies, nil, nil)
	assert.Error(t, err)
}

func TestCrisisStrategyFallsBackToLatestMessage(t *testing.T) {
	gen := &recordingGenerator{reply: "988"}
	s := &CrisisStrategy{gen: gen}

	_, err := s.Respond(context.Background(), []chat.Message{chat.AssistantMessage("a"), chat.AssistantMessage("b")}, "")
	require.NoError(t, err)
	assert.Equal(t, []chat.Message{chat.AssistantMessage("b")}, gen.calls[0].messages)

	_, err = s.Respond(context.Background(), nil, "")
	assert.ErrorIs(t, err, ai.ErrGeneration)
}
