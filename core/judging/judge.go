// Package judging decides rap battles by asking a language model to read the
// transcript.
package judging

import (
	"context"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-battle/core/llms"
	"github.com/koscakluka/ema-battle/core/prompts"
	"github.com/koscakluka/ema-battle/core/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultMaxTokens = 600

// StructuredPrompter answers a prompt with JSON decoded into out.
type StructuredPrompter interface {
	PromptStructured(ctx context.Context, prompt string, out any, opts ...llms.PromptOption) error
}

type ruling struct {
	Winner    string         `json:"winner" jsonschema:"description=Exact name of the winning rapper"`
	Reasoning string         `json:"reasoning" jsonschema:"description=Two or three sentences explaining the decision"`
	Scores    session.Scores `json:"scores"`
}

// LLMJudge asks a structured prompter for a verdict.
type LLMJudge struct {
	prompter  StructuredPrompter
	maxTokens int
}

type Option func(*LLMJudge)

func WithMaxTokens(maxTokens int) Option {
	return func(j *LLMJudge) {
		if maxTokens > 0 {
			j.maxTokens = maxTokens
		}
	}
}

func NewLLMJudge(prompter StructuredPrompter, opts ...Option) *LLMJudge {
	judge := &LLMJudge{prompter: prompter, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(judge)
	}
	return judge
}

func (j *LLMJudge) Judge(ctx context.Context, transcript, nameA, nameB, topic string) (session.Verdict, error) {
	ctx, span := tracer.Start(ctx, "judge battle")
	defer span.End()
	span.SetAttributes(
		attribute.String("battle.first", nameA),
		attribute.String("battle.second", nameB),
		attribute.Int("battle.transcript_length", len(transcript)),
	)

	if j == nil || j.prompter == nil {
		return session.Verdict{}, llms.ErrNotConfigured
	}

	instructions, prompt := prompts.Judge(transcript, nameA, nameB, topic)
	var result ruling
	err := j.prompter.PromptStructured(ctx, prompt, &result,
		llms.WithSystemPrompt(instructions),
		llms.WithMaxTokens(j.maxTokens),
	)
	if err != nil {
		err = fmt.Errorf("judge prompt failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return session.Verdict{}, err
	}

	verdict := session.Verdict{
		WinnerName: canonicalName(result.Winner, nameA, nameB),
		Reasoning:  strings.TrimSpace(result.Reasoning),
	}
	if !result.Scores.IsZero() {
		scores := result.Scores
		verdict.Scores = &scores
	}
	span.SetAttributes(attribute.String("battle.winner", verdict.WinnerName))
	if verdict.WinnerName != nameA && verdict.WinnerName != nameB {
		logger.Warn("judge named neither participant", "winner", result.Winner)
	}
	return verdict, nil
}

// canonicalName maps the judge's spelling of the winner onto the participant
// name. Unknown names are returned trimmed but otherwise untouched.
func canonicalName(winner, nameA, nameB string) string {
	winner = strings.TrimSpace(winner)
	switch {
	case strings.EqualFold(winner, strings.TrimSpace(nameA)):
		return nameA
	case strings.EqualFold(winner, strings.TrimSpace(nameB)):
		return nameB
	default:
		return winner
	}
}
