package groq

import (
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-battle/core/llms"
)

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

func toMessages(instructions, prompt string) ([]message, error) {
	var messages []message
	if err := copier.Copy(&messages, llms.ToMessages(instructions, prompt)); err != nil {
		return nil, fmt.Errorf("error converting messages: %w", err)
	}
	return messages, nil
}
