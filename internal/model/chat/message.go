package chat

import "strings"

// Role identifies who authored a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of a conversation in chronological order.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ParseRole normalizes a client supplied role. "model" is accepted as an
// alias of assistant.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user":
		return RoleUser, true
	case "assistant", "model":
		return RoleAssistant, true
	case "system":
		return RoleSystem, true
	default:
		return "", false
	}
}

// UserMessage builds a user authored message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// AssistantMessage builds an assistant authored message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}

// Tail returns a copy of the last n messages, or all of them when fewer exist.
func Tail(messages []Message, n int) []Message {
	if n <= 0 || len(messages) == 0 {
		return nil
	}
	start := len(messages) - n
	if start < 0 {
		start = 0
	}
	return append([]Message(nil), messages[start:]...)
}
