package llms

import (
	"errors"

	"github.com/koscakluka/ema-battle/internal/utils"
)

// ErrNotConfigured is returned by clients that were constructed without
// credentials.
var ErrNotConfigured = errors.New("llm client not configured")

// PromptOptions contains all the options for a single prompt.
type PromptOptions struct {
	Instructions string
	MaxTokens    int
	Temperature  *float64
}

// PromptOption is a function that can be used to modify the prompt options.
type PromptOption func(*PromptOptions)

// WithSystemPrompt sets the system prompt for the prompt.
// Repeating this option will overwrite the previous system prompt.
func WithSystemPrompt(prompt string) PromptOption {
	return func(opts *PromptOptions) {
		opts.Instructions = prompt
	}
}

// WithMaxTokens caps the length of the generated answer. Non-positive values
// leave the provider default in place.
func WithMaxTokens(maxTokens int) PromptOption {
	return func(opts *PromptOptions) {
		opts.MaxTokens = maxTokens
	}
}

func WithTemperature(temperature float64) PromptOption {
	return func(opts *PromptOptions) {
		opts.Temperature = utils.Ptr(temperature)
	}
}

func ApplyPromptOptions(opts ...PromptOption) PromptOptions {
	options := PromptOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}
