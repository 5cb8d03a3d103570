package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

// ChatModelGenerator runs generation through compiled eino chains over any
// eino chat model (ark in production).
type ChatModelGenerator struct {
	directed compose.Runnable[map[string]any, *schema.Message]
	jsonOnly compose.Runnable[map[string]any, *schema.Message]
	logger   *zap.Logger
}

// NewChatModelGenerator compiles the directive and JSON chains around chatModel.
func NewChatModelGenerator(ctx context.Context, chatModel model.BaseChatModel, logger *zap.Logger) (*ChatModelGenerator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	directed := compose.NewChain[map[string]any, *schema.Message]()
	directed.AppendChatTemplate(prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{directive}"),
		schema.MessagesPlaceholder("history", true),
	))
	directed.AppendChatModel(chatModel)

	directedRunnable, err := directed.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile directive chain: %w", err)
	}

	jsonChain := compose.NewChain[map[string]any, *schema.Message]()
	jsonChain.AppendChatTemplate(prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(jsonOnlyDirective),
		schema.UserMessage("{prompt}"),
	))
	jsonChain.AppendChatModel(chatModel)

	jsonRunnable, err := jsonChain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile json chain: %w", err)
	}

	return &ChatModelGenerator{
		directed: directedRunnable,
		jsonOnly: jsonRunnable,
		logger:   logger.Named("ai"),
	}, nil
}

// Generate implements Generator.
func (g *ChatModelGenerator) Generate(ctx context.Context, directive string, messages []chat.Message) (string, error) {
	input := map[string]any{
		"directive": directive,
		"history":   toSchemaMessages(messages),
	}
	return g.invoke(ctx, "generate", g.directed, input)
}

// GenerateJSON implements Generator.
func (g *ChatModelGenerator) GenerateJSON(ctx context.Context, promptText string) (string, error) {
	return g.invoke(ctx, "generate_json", g.jsonOnly, map[string]any{"prompt": promptText})
}

func (g *ChatModelGenerator) invoke(ctx context.Context, op string, runnable compose.Runnable[map[string]any, *schema.Message], input map[string]any) (string, error) {
	msg, err := runnable.Invoke(ctx, input)
	if err != nil {
		g.logger.Warn("chat model invoke failed", zap.String("op", op), zap.Error(err))
		return "", Fail(op, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", Fail(op, ErrEmptyResponse)
	}
	g.logger.Debug("chat model responded", zap.String("op", op), zap.Int("length", len(msg.Content)))
	return strings.TrimSpace(msg.Content), nil
}

func toSchemaMessages(messages []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			out = append(out, schema.UserMessage(msg.Text))
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(msg.Text, nil))
		case chat.RoleSystem:
			out = append(out, schema.SystemMessage(msg.Text))
		}
	}
	return out
}
