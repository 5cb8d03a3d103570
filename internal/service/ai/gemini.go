package ai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

// contentGenerator is the slice of the genai Models service used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator talks to the Gemini API and uses its native JSON mode.
type GeminiGenerator struct {
	models      contentGenerator
	model       string
	temperature *float32
	logger      *zap.Logger
}

// GeminiConfig configures NewGeminiGenerator.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature *float64
}

// NewGeminiGenerator creates a Gemini API client.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newGeminiGenerator(client.Models, cfg, logger), nil
}

func newGeminiGenerator(models contentGenerator, cfg GeminiConfig, logger *zap.Logger) *GeminiGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	var temperature *float32
	if cfg.Temperature != nil {
		val := float32(*cfg.Temperature)
		temperature = &val
	}
	return &GeminiGenerator{
		models:      models,
		model:       strings.TrimSpace(cfg.Model),
		temperature: temperature,
		logger:      logger.Named("ai"),
	}
}

// Generate implements Generator. System messages in the history are folded
// into the system instruction since Gemini contents only take user and model
// turns.
func (g *GeminiGenerator) Generate(ctx context.Context, directive string, messages []chat.Message) (string, error) {
	system := []string{directive}
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			system = append(system, msg.Text)
		case chat.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return "", Fail("generate", fmt.Errorf("no conversation content"))
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser),
		Temperature:       g.temperature,
	}
	return g.call(ctx, "generate", contents, config)
}

// GenerateJSON implements Generator.
func (g *GeminiGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:      g.temperature,
		ResponseMIMEType: "application/json",
	}
	return g.call(ctx, "generate_json", genai.Text(prompt), config)
}

func (g *GeminiGenerator) call(ctx context.Context, op string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		g.logger.Warn("gemini request failed", zap.String("op", op), zap.String("model", g.model), zap.Error(err))
		return "", Fail(op, err)
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", Fail(op, ErrEmptyResponse)
	}
	g.logger.Debug("gemini responded", zap.String("op", op), zap.Int("length", len(text)))
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
