package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-battle/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var errEmptyResponse = errors.New("model returned no text")

// GenerateText answers a single prompt, capping the answer at maxTokens.
func (c *Client) GenerateText(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return c.Prompt(ctx, prompt, llms.WithMaxTokens(maxTokens))
}

func (c *Client) Prompt(ctx context.Context, prompt string, opts ...llms.PromptOption) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()

	if c == nil || c.apiKey == "" {
		return "", llms.ErrNotConfigured
	}

	options := llms.ApplyPromptOptions(append([]llms.PromptOption{llms.WithSystemPrompt(c.instructions)}, opts...)...)
	span.SetAttributes(
		attribute.String("request.model", c.model),
		attribute.Int("request.max_tokens", options.MaxTokens),
	)

	text, err := c.prompt(ctx, prompt, options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("response.length", len(text)))
	return text, nil
}

func (c *Client) prompt(ctx context.Context, prompt string, options llms.PromptOptions) (string, error) {
	reqBody := requestBody{
		Model:       c.model,
		Input:       toOpenAIMessages(llms.ToMessages(options.Instructions, prompt)),
		Temperature: options.Temperature,
	}
	if options.MaxTokens > 0 {
		reqBody.MaxOutputTokens = &options.MaxTokens
	}

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errorBody errorResponseBody
		if err := json.Unmarshal(bodyBytes, &errorBody); err == nil && errorBody.Error.Message != "" {
			return "", fmt.Errorf("non-OK HTTP status: %s: %s", resp.Status, errorBody.Error.Message)
		}
		return "", fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	var responseBody generalResponseBody
	if err := json.Unmarshal(bodyBytes, &responseBody); err != nil {
		return "", fmt.Errorf("error unmarshalling response body: %w", err)
	}

	var text strings.Builder
	for _, output := range responseBody.Output {
		if output.Type != outputTypeMessage {
			continue
		}
		for _, content := range output.Content {
			switch content.Type {
			case contentTypeOutputText:
				text.WriteString(content.Text)
			case contentTypeRefusal:
				logger.Warn("model refused to answer", "refusal", content.Refusal)
				return "", fmt.Errorf("model refused: %s", content.Refusal)
			}
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		return "", errEmptyResponse
	}
	return strings.TrimSpace(text.String()), nil
}

func toOpenAIMessages(messages []llms.Message) []openAIMessage {
	openAIMessages := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		role := messageRoleUser
		switch msg.Role {
		case llms.MessageRoleSystem:
			role = messageRoleDeveloper
		case llms.MessageRoleAssistant:
			role = messageRoleAssistant
		}
		openAIMessages = append(openAIMessages, openAIMessage{
			Type:    messageTypeMessage,
			Role:    role,
			Content: msg.Content,
		})
	}
	return openAIMessages
}

type messageType string

const messageTypeMessage messageType = "message"

type messageRole string

const (
	messageRoleDeveloper messageRole = "developer"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

type openAIMessage struct {
	Type    messageType `json:"type"`
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type requestBody struct {
	Model           string          `json:"model"`
	Input           []openAIMessage `json:"input"`
	MaxOutputTokens *int            `json:"max_output_tokens,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
}

const (
	outputTypeMessage     = "message"
	contentTypeOutputText = "output_text"
	contentTypeRefusal    = "refusal"
)

type generalResponseBody struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type    string `json:"type"`
			Text    string `json:"text,omitempty"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
}

type errorResponseBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
