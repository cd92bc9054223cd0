package llms

import "strings"

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

type Message struct {
	Role    MessageRole
	Content string
}

// ToMessages builds the message list for a single-shot prompt: an optional
// system message followed by the user prompt.
func ToMessages(instructions, prompt string) []Message {
	messages := []Message{}
	if strings.TrimSpace(instructions) != "" {
		messages = append(messages, Message{Role: MessageRoleSystem, Content: instructions})
	}
	messages = append(messages, Message{Role: MessageRoleUser, Content: prompt})
	return messages
}
