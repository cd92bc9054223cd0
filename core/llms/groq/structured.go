package groq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-battle/core/llms"
	"go.opentelemetry.io/otel/attribute"
)

// PromptJSONSchema prompts the model for an answer shaped like T.
func PromptJSONSchema[T any](ctx context.Context, c *Client, prompt string, opts ...llms.PromptOption) (*T, error) {
	var output T
	if err := c.PromptStructured(ctx, prompt, &output, opts...); err != nil {
		return nil, err
	}
	return &output, nil
}

// PromptStructured prompts the model with a JSON schema reflected from out,
// which must be a non-nil pointer, and decodes the answer into it.
func (c *Client) PromptStructured(ctx context.Context, prompt string, out any, opts ...llms.PromptOption) error {
	ctx, span := tracer.Start(ctx, "prompt llm structured")
	defer span.End()

	if c == nil || c.apiKey == "" {
		return llms.ErrNotConfigured
	}

	outputType := reflect.TypeOf(out)
	if outputType == nil || outputType.Kind() != reflect.Pointer || reflect.ValueOf(out).IsNil() {
		return recordError(span, errors.New("structured output must be a non-nil pointer"))
	}
	outputType = outputType.Elem()

	// TODO: Implement a custom reflector that only satisfies the subset of
	// jsonschema used by groq
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.ReflectFromType(outputType)

	options := c.promptOptions(opts...)
	messages, err := toMessages(options.Instructions, prompt)
	if err != nil {
		return recordError(span, err)
	}

	reqBody := schemaRequestBody{
		requestBody: requestBody{
			Model:       c.model,
			Messages:    messages,
			Temperature: options.Temperature,
		},
		ResponseFormat: &ChatResponseFormat{
			Type: "json_schema",
			JSONSchema: &JSONSchema{
				Name:   outputType.Name(),
				Schema: *schema,
				Strict: true,
			},
		},
	}
	if options.MaxTokens > 0 {
		reqBody.MaxCompletionTokens = &options.MaxTokens
	}

	span.SetAttributes(attribute.String("request.model", c.model))
	if schemaString, err := schema.MarshalJSON(); err == nil {
		span.SetAttributes(attribute.String("request.schema", string(schemaString)))
	}

	var responseBody responseBody
	if err := c.do(ctx, span, reqBody, &responseBody); err != nil {
		return recordError(span, err)
	}
	if len(responseBody.Choices) == 0 {
		return recordError(span, errors.New("response contained no choices"))
	}

	content := stripCodeFence(responseBody.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		logger.Debug("structured response did not match schema", "content", content)
		return recordError(span, fmt.Errorf("error unmarshalling response: %w", err))
	}
	return nil
}

func stripCodeFence(content string) string {
	split := strings.Split(content, "```")
	if len(split) > 2 {
		content = strings.TrimPrefix(split[1], "json")
	}
	return strings.TrimSpace(content)
}

type schemaRequestBody struct {
	requestBody
	ResponseFormat *ChatResponseFormat `json:"response_format,omitempty"`
}

type ChatResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

type JSONSchema struct {
	// Name is used to further identify the schema in the response.
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Schema      jsonschema.Schema `json:"schema"`
	// Strict determines whether to enforce the schema upon the generated
	// content.
	Strict bool `json:"strict"`
}
