package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/serene/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/model/dialogue"
)

var (
	ErrEmptyConversation  = errors.New("conversation has no messages")
	ErrLastMessageNotUser = errors.New("last message must be a non-empty user message")
)

// Runner executes one dialogue turn.
type Runner interface {
	Run(ctx context.Context, initial *dialogue.State) (*dialogue.State, error)
}

// Memory is the slice of the memory store a turn needs: a digest before the
// turn and a fire-and-forget extraction after it.
type Memory interface {
	GetContext() string
	ExtractMemories(snippet []chat.Message) bool
}

// Service prepares turns for the dialogue orchestrator. It keeps no
// conversation state; clients hand back the transcript and phase every turn.
type Service struct {
	runner Runner
	memory Memory
	logger *zap.Logger
}

func NewService(runner Runner, memory Memory, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{runner: runner, memory: memory, logger: logger.Named("chat")}
}

// Validate checks that history ends with something to answer.
func Validate(history []chat.Message) error {
	if len(history) == 0 {
		return ErrEmptyConversation
	}
	last := history[len(history)-1]
	if last.Role != chat.RoleUser || strings.TrimSpace(last.Text) == "" {
		return ErrLastMessageNotUser
	}
	return nil
}

// Turn answers the last user message of history. phase is the phase returned
// by the previous turn, empty for a new conversation.
func (s *Service) Turn(ctx context.Context, history []chat.Message, phase dialogue.Phase) (*dialogue.State, error) {
	if err := Validate(history); err != nil {
		return nil, err
	}
	if phase == "" {
		phase = dialogue.PhaseStart
	}

	latest := history[len(history)-1].Text
	state := &dialogue.State{
		Messages:       append([]chat.Message(nil), history...),
		Phase:          phase,
		SentimentScore: sentiment.Analyze(latest).Score,
		TurnID:         uuid.NewString(),
	}
	if s.memory != nil {
		state.MemoryContext = s.memory.GetContext()
	}

	out, err := s.runner.Run(ctx, state)
	if err != nil {
		s.logger.Warn("turn failed",
			zap.String("turn_id", state.TurnID),
			zap.String("phase", string(phase)),
			zap.Error(err))
		return nil, err
	}
	return out, nil
}

// Remember schedules memory extraction over the finished transcript. It must
// be called only after the reply has been handed to the client.
func (s *Service) Remember(transcript []chat.Message) {
	if s.memory == nil || len(transcript) == 0 {
		return
	}
	if !s.memory.ExtractMemories(transcript) {
		s.logger.Debug("memory extraction not scheduled")
	}
}

// Reply returns the assistant message a turn appended.
func Reply(state *dialogue.State) chat.Message {
	if state == nil || len(state.Messages) == 0 {
		return chat.Message{}
	}
	return state.Messages[len(state.Messages)-1]
}
