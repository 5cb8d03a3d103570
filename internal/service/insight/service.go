// Package insight produces the auxiliary wellness texts around the chat:
// sentiment, thought reframes, journaling prompts and summary reports.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/service/ai"
)

// Service routes every request through one ai.Generator.
type Service struct {
	gen    ai.Generator
	logger *zap.Logger
}

func NewService(gen ai.Generator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gen: gen, logger: logger.Named("insight")}
}

// Task is the slice of a to-do item the reports look at.
type Task struct {
	Title     string `json:"title"`
	Category  string `json:"category,omitempty"`
	Completed bool   `json:"completed"`
}

// Records is the user's self-tracking data. Mood and journal entries are
// passed through to the model as-is.
type Records struct {
	MoodHistory    []json.RawMessage `json:"mood_history"`
	JournalHistory []json.RawMessage `json:"journal_history"`
	Tasks          []Task            `json:"tasks"`
}

func (r Records) pendingTasks() int {
	n := 0
	for _, t := range r.Tasks {
		if !t.Completed {
			n++
		}
	}
	return n
}

// QAPair is one answered self-reflection question.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// text runs a free-text prompt under the companion directive.
func (s *Service) text(ctx context.Context, op, prompt string) (string, error) {
	out, err := s.gen.Generate(ctx, companionDirective, []chat.Message{chat.UserMessage(prompt)})
	if err != nil {
		s.logger.Warn("generation failed", zap.String("op", op), zap.Error(err))
		return "", ai.Fail(op, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ai.Fail(op, ai.ErrEmptyResponse)
	}
	return out, nil
}

// object runs a JSON prompt and decodes the first JSON value opened by open
// into dst.
func (s *Service) object(ctx context.Context, op, prompt string, open byte, dst any) error {
	raw, err := s.gen.GenerateJSON(ctx, prompt)
	if err != nil {
		s.logger.Warn("generation failed", zap.String("op", op), zap.Error(err))
		return ai.Fail(op, err)
	}
	payload, err := ai.ExtractJSON(raw, open)
	if err != nil {
		return ai.Fail(op, err)
	}
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return ai.Fail(op, fmt.Errorf("decode %s output: %w", op, err))
	}
	return nil
}

func formatRaw(items []json.RawMessage) string {
	if len(items) == 0 {
		return "[]"
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, string(item))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatTasks(tasks []Task) string {
	if len(tasks) == 0 {
		return "none"
	}
	var b strings.Builder
	for i, t := range tasks {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(t.Title)
		if t.Category != "" {
			b.WriteString(" (" + t.Category + ")")
		}
		if t.Completed {
			b.WriteString(" [done]")
		}
	}
	return b.String()
}
