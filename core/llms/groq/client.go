package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-battle/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultURL   = "https://api.groq.com/openai/v1/chat/completions"
	defaultModel = "llama-3.3-70b-versatile"
)

// Client talks to Groq's OpenAI compatible chat completions endpoint.
type Client struct {
	apiKey       string
	model        string
	url          string
	instructions string
	client       *http.Client
}

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

func WithURL(url string) ClientOption {
	return func(c *Client) { c.url = url }
}

func WithInstructions(instructions string) ClientOption {
	return func(c *Client) { c.instructions = instructions }
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		apiKey: apiKey,
		model:  defaultModel,
		url:    defaultURL,
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) GenerateText(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return c.Prompt(ctx, prompt, llms.WithMaxTokens(maxTokens))
}

func (c *Client) Prompt(ctx context.Context, prompt string, opts ...llms.PromptOption) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()

	if c == nil || c.apiKey == "" {
		return "", llms.ErrNotConfigured
	}

	options := c.promptOptions(opts...)
	messages, err := toMessages(options.Instructions, prompt)
	if err != nil {
		return "", recordError(span, err)
	}

	reqBody := requestBody{
		Model:       c.model,
		Messages:    messages,
		Temperature: options.Temperature,
	}
	if options.MaxTokens > 0 {
		reqBody.MaxCompletionTokens = &options.MaxTokens
	}
	span.SetAttributes(
		attribute.String("request.model", c.model),
		attribute.Int("request.max_tokens", options.MaxTokens),
	)

	var responseBody responseBody
	if err := c.do(ctx, span, reqBody, &responseBody); err != nil {
		return "", recordError(span, err)
	}
	if len(responseBody.Choices) == 0 {
		return "", recordError(span, fmt.Errorf("response contained no choices"))
	}

	content := strings.TrimSpace(responseBody.Choices[0].Message.Content)
	if content == "" {
		return "", recordError(span, fmt.Errorf("model returned no text"))
	}
	if responseBody.Usage != nil {
		span.SetAttributes(
			attribute.Int("response.prompt_tokens", responseBody.Usage.PromptTokens),
			attribute.Int("response.completion_tokens", responseBody.Usage.CompletionTokens),
		)
	}
	return content, nil
}

func (c *Client) promptOptions(opts ...llms.PromptOption) llms.PromptOptions {
	return llms.ApplyPromptOptions(append([]llms.PromptOption{llms.WithSystemPrompt(c.instructions)}, opts...)...)
}

func (c *Client) do(ctx context.Context, span trace.Span, reqBody any, out any) error {
	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		span.SetAttributes(attribute.String("response.error", string(respBodyBytes)))
		// TODO: Retry on 503 once the provider exposes a retry-after header
		return fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	if err := json.Unmarshal(respBodyBytes, out); err != nil {
		return fmt.Errorf("error unmarshalling response body: %w", err)
	}
	return nil
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

type requestBody struct {
	Model               string    `json:"model"`
	Messages            []message `json:"messages"`
	MaxCompletionTokens *int      `json:"max_completion_tokens,omitempty"`
	Temperature         *float64  `json:"temperature,omitempty"`
}

type responseBody struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"message"`
		FinishReason *string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
