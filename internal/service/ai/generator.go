// Package ai is the single entry point for text generation. Dialogue
// strategies, memory extraction and insight prompts all go through Generator.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

var (
	// ErrGeneration matches every failure reported by a Generator.
	ErrGeneration = errors.New("generation failed")
	// ErrEmptyResponse is returned when the model answers with blank text.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrNoJSON is returned when no JSON value can be located in model output.
	ErrNoJSON = errors.New("no json value in model output")
)

// Generator produces text from a behavioral directive and conversation context.
type Generator interface {
	// Generate returns a free-text completion for messages under directive.
	Generate(ctx context.Context, directive string, messages []chat.Message) (string, error)
	// GenerateJSON returns a completion constrained to JSON. Parsing is the
	// caller's job.
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// GenerationError wraps a backend failure. errors.Is(err, ErrGeneration)
// holds for every GenerationError.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("generation failed: %v", e.Err)
	}
	return fmt.Sprintf("generation failed (%s): %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// Fail wraps err as a GenerationError unless it already is one.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Op: op, Err: err}
}

// ExtractJSON isolates the outermost JSON value opened by open ('[' or '{')
// from raw model output, dropping code fences and surrounding prose.
func ExtractJSON(raw string, open byte) (string, error) {
	var closer byte
	switch open {
	case '[':
		closer = ']'
	case '{':
		closer = '}'
	default:
		return "", fmt.Errorf("unsupported json opener %q", open)
	}

	trimmed := strings.TrimSpace(raw)
	start := strings.IndexByte(trimmed, open)
	end := strings.LastIndexByte(trimmed, closer)
	if start == -1 || end == -1 || end <= start {
		return "", ErrNoJSON
	}
	return trimmed[start : end+1], nil
}

const jsonOnlyDirective = "You are a precise assistant that answers with a single valid JSON value. Do not add prose, markdown or code fences."
