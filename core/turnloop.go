package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-battle/core/events"
	"github.com/koscakluka/ema-battle/core/llms"
	"github.com/koscakluka/ema-battle/core/prompts"
	"github.com/koscakluka/ema-battle/core/session"
	"github.com/koscakluka/ema-battle/core/verse"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// battle is the loop-local bookkeeping of one session.
type battle struct {
	generation uint64
	gate       *playbackGate
}

type turnContent struct {
	text         string
	audio        []byte
	analysis     *verse.Analysis
	generated    bool
	errorMessage string
}

func (o *Orchestrator) run(ctx context.Context, generation uint64, gate *playbackGate, done chan struct{}) {
	defer close(done)

	ctx, span := tracer.Start(ctx, "run battle")
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			o.fail(ctx, generation, fmt.Errorf("battle loop panicked: %v", recovered))
		}
	}()

	b := &battle{generation: generation, gate: gate}
	for ctx.Err() == nil {
		turnIndex, totalTurns, ok := o.progress(generation)
		if !ok {
			return
		}
		if turnIndex >= totalTurns {
			o.finalize(ctx, b)
			return
		}

		if err := o.playTurn(ctx, b); err != nil {
			if ctx.Err() != nil || errors.Is(err, errStaleSession) {
				return
			}
			o.fail(ctx, generation, err)
			return
		}
	}
}

func (o *Orchestrator) progress(generation uint64) (turnIndex, totalTurns int, ok bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.generation != generation {
		return 0, 0, false
	}
	return o.state.CurrentTurnIndex, o.state.TotalTurns, true
}

func (o *Orchestrator) playTurn(ctx context.Context, b *battle) error {
	scope, err := o.acquireScope(ctx)
	if err != nil {
		return fmt.Errorf("acquire collaborator scope: %w", err)
	}
	defer closeScope(scope)

	state, ok := o.update(b.generation, events.NewTurnStarted, func(s *session.State) {
		s.CurrentTurnIndex++
		s.Phase = session.PhaseTurnInProgress
		s.IsGeneratingTurn = true
		s.ErrorMessage = ""
		s.CurrentTurnAnalysis = nil
	})
	if !ok {
		return errStaleSession
	}

	ctx, span := tracer.Start(ctx, "play turn", trace.WithAttributes(
		attribute.Int("turn.index", state.CurrentTurnIndex),
		attribute.String("turn.speaker", state.Speaker().Name),
	))
	defer span.End()

	content, err := o.generateTurn(ctx, scope, state)
	if err != nil {
		return err
	}
	if _, ok := o.update(b.generation, events.NewTurnReady, func(s *session.State) {
		s.CurrentTurnText = content.text
		if content.generated {
			s.Transcript = prompts.AppendEntry(s.Transcript, s.CurrentTurnIndex, s.Speaker().Name, content.text)
		}
		s.CurrentTurnAudio = content.audio
		s.CurrentTurnAnalysis = content.analysis
		s.ErrorMessage = content.errorMessage
		s.IsGeneratingTurn = false
		s.Phase = session.PhaseAwaitingPlayback
	}); !ok {
		return errStaleSession
	}

	timedOut := false
	if err := b.gate.wait(ctx, o.playbackTimeout); errors.Is(err, errPlaybackTimeout) {
		logger.Warn("playback was not acknowledged in time, moving on", "turn", state.CurrentTurnIndex)
		timedOut = true
	} else if err != nil {
		return err
	}

	if _, ok := o.update(b.generation, events.NewTurnCompleted, func(s *session.State) {
		s.IsFirstParticipantTurn = !s.IsFirstParticipantTurn
		s.Phase = session.PhaseTurnInProgress
		if timedOut {
			s.ErrorMessage = joinMessages(s.ErrorMessage, errPlaybackTimeout.Error())
		}
	}); !ok {
		return errStaleSession
	}
	return nil
}

// generateTurn produces the text and audio of one turn. Collaborator
// failures become placeholder content and an error message; only
// cancellation is returned as an error.
func (o *Orchestrator) generateTurn(ctx context.Context, scope *Scope, state session.State) (turnContent, error) {
	span := trace.SpanFromContext(ctx)
	speaker, opponent := state.Speaker(), state.Opponent()
	prompt := prompts.Build(prompts.Request{
		Speaker:    speaker.Name,
		Opponent:   opponent.Name,
		Role:       prompts.RoleOf(state.IsFirstParticipantTurn),
		Topic:      state.Topic,
		TurnIndex:  state.CurrentTurnIndex,
		TotalTurns: state.TotalTurns,
		Transcript: state.Transcript,
	})

	var (
		content  turnContent
		problems []string
	)

	text, err := generateText(ctx, scope, prompt, o.maxTokens)
	if err != nil {
		if ctx.Err() != nil {
			return turnContent{}, ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("text generation failed", "speaker", speaker.Name, "error", err)
		content.text = fallbackVerse(speaker.Name)
		problems = append(problems, textErrorMessage(err))
	} else {
		content.text = text
		content.generated = true
		if o.analyzeVerses {
			analysis := verse.Analyze(text)
			content.analysis = &analysis
		}
	}

	audio, err := synthesize(ctx, scope, content.text, o.voices.forSpeaker(state.IsFirstParticipantTurn))
	if err != nil {
		if ctx.Err() != nil {
			return turnContent{}, ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("speech synthesis failed", "speaker", speaker.Name, "error", err)
		audio = nil
		problems = append(problems, speechErrorMessage(err))
	}
	content.audio = audio
	content.errorMessage = joinMessages(problems...)
	return content, nil
}

func generateText(ctx context.Context, scope *Scope, prompt string, maxTokens int) (string, error) {
	if scope.Text == nil {
		return "", llms.ErrNotConfigured
	}
	text, err := scope.Text.GenerateText(ctx, prompt, maxTokens)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("text generator returned an empty verse")
	}
	return text, nil
}

func fallbackVerse(speaker string) string {
	return speaker + " froze up and lost the beat."
}

func textErrorMessage(err error) string {
	if errors.Is(err, llms.ErrNotConfigured) {
		return "text generation not configured"
	}
	return fmt.Sprintf("text generation failed: %v", err)
}
