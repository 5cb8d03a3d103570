package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/serene/backend/internal/metrics"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	memoryModel "github.com/zhouzirui/serene/backend/internal/model/memory"
	"github.com/zhouzirui/serene/backend/internal/service/ai"
)

// ErrMalformedExtraction means the model answered with something other than a
// JSON array of strings.
var ErrMalformedExtraction = errors.New("malformed memory extraction output")

// snippetWindow is the number of trailing messages inspected per extraction:
// the last user message and the reply to it.
const snippetWindow = 2

const extractionPrompt = `Analyze this conversation snippet for PERMANENT facts about the user: identity, dates, names of people and pets, relationships, preferences, hobbies, job, health and habits.

Conversation:
%s

Existing memories:
%s

Rules:
1. Only report facts that are NOT already in the existing memories.
2. Skip trivial utterances such as greetings, small talk or questions about the weather.
3. Write each fact as a short third person sentence, e.g. "User owns a cat named Luna".
4. Answer with a JSON array of strings and nothing else. Answer [] when there is nothing new.`

// Extract runs one extraction synchronously over the last exchange of
// snippet and returns how many facts were added.
func (s *Store) Extract(ctx context.Context, snippet []chat.Message) (int, error) {
	window := chat.Tail(snippet, snippetWindow)
	if len(window) == 0 {
		s.metrics.RecordExtraction(metrics.ExtractionNoop)
		return 0, nil
	}

	prompt, err := buildExtractionPrompt(window, s.GetAll())
	if err != nil {
		s.metrics.RecordExtraction(metrics.ExtractionFailed)
		return 0, err
	}

	raw, err := s.gen.GenerateJSON(ctx, prompt)
	if err != nil {
		s.metrics.RecordExtraction(metrics.ExtractionFailed)
		return 0, ai.Fail("extract memories", err)
	}

	candidates, err := parseCandidates(raw)
	if err != nil {
		s.metrics.RecordExtraction(metrics.ExtractionMalformed)
		return 0, err
	}

	added, err := s.appendFacts(ctx, candidates)
	if err != nil {
		s.metrics.RecordExtraction(metrics.ExtractionFailed)
		return 0, err
	}
	if added == 0 {
		s.metrics.RecordExtraction(metrics.ExtractionNoop)
		return 0, nil
	}

	s.metrics.RecordExtraction(metrics.ExtractionAdded)
	s.logger.Info("memories extracted", zap.Int("added", added), zap.Int("candidates", len(candidates)))
	return added, nil
}

func buildExtractionPrompt(window []chat.Message, existing []memoryModel.Fact) (string, error) {
	var convo strings.Builder
	for i, msg := range window {
		if i > 0 {
			convo.WriteByte('\n')
		}
		convo.WriteString(string(msg.Role))
		convo.WriteString(": ")
		convo.WriteString(msg.Text)
	}

	texts := make([]string, 0, len(existing))
	for _, f := range existing {
		texts = append(texts, f.Text)
	}
	known, err := json.Marshal(texts)
	if err != nil {
		return "", fmt.Errorf("encode existing memories: %w", err)
	}
	return fmt.Sprintf(extractionPrompt, convo.String(), known), nil
}

func parseCandidates(raw string) ([]string, error) {
	payload, err := ai.ExtractJSON(raw, '[')
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
	}
	var candidates []string
	if err := json.Unmarshal([]byte(payload), &candidates); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
	}
	return candidates, nil
}
