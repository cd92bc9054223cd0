package orchestration

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-battle/core/events"
	"github.com/koscakluka/ema-battle/core/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const judgeFailedReasoning = "The judge could not reach a decision."

type outcome struct {
	winnerName   string
	reasoning    string
	scores       session.Scores
	scoreSummary string
	errorMessage string
}

// finalize asks the judge for a verdict, records the result and marks the
// session finished. Judging and recording failures are reported on the state
// and never prevent the session from finishing.
func (o *Orchestrator) finalize(ctx context.Context, b *battle) {
	ctx, span := tracer.Start(ctx, "finalize battle")
	defer span.End()

	state, ok := o.update(b.generation, events.NewJudgingStarted, func(s *session.State) {
		s.Phase = session.PhaseJudging
		s.IsInProgress = false
		s.IsGeneratingTurn = true
	})
	if !ok {
		return
	}

	result := o.decide(ctx, state)
	if ctx.Err() != nil {
		return
	}
	if result.errorMessage != "" {
		span.SetStatus(codes.Error, result.errorMessage)
	}
	span.SetAttributes(attribute.String("battle.winner", result.winnerName))

	o.update(b.generation, events.NewSessionFinished, func(s *session.State) {
		s.Phase = session.PhaseFinished
		s.IsFinished = true
		s.IsGeneratingTurn = false
		s.WinnerName = result.winnerName
		s.JudgeReasoning = result.reasoning
		s.Scores = result.scores
		s.ScoreSummary = result.scoreSummary
		if result.errorMessage != "" {
			s.ErrorMessage = result.errorMessage
		}
	})
}

// decide asks the judge for a verdict and records it. A winner that matches a
// participant (trimmed, ignoring case) is reported with that participant's
// own spelling; any other winner is kept verbatim and leaves records alone.
// Missing judge scores stay zero.
func (o *Orchestrator) decide(ctx context.Context, state session.State) outcome {
	span := trace.SpanFromContext(ctx)

	scope, err := o.acquireScope(ctx)
	if err != nil {
		span.RecordError(err)
		return judgeFailed(err)
	}
	defer closeScope(scope)

	if scope.Judge == nil {
		return judgeFailed(errNoJudge)
	}
	verdict, err := scope.Judge.Judge(ctx, state.Transcript, state.First.Name, state.Second.Name, state.Topic.String())
	if err != nil {
		span.RecordError(err)
		logger.Warn("judging failed", "error", err)
		return judgeFailed(err)
	}

	result := outcome{
		winnerName: verdict.WinnerName,
		reasoning:  verdict.Reasoning,
	}
	if verdict.Scores != nil {
		result.scores = *verdict.Scores
	}
	result.scoreSummary = result.scores.Summary(state.First.Name, state.Second.Name)

	loser, ok := state.Loser(verdict.WinnerName)
	if !ok {
		logger.Info("winner matches neither participant, records unchanged", "winner", verdict.WinnerName)
		return result
	}
	winner := state.First
	if loser == state.First {
		winner = state.Second
	}
	result.winnerName = winner.Name

	if scope.Records == nil {
		return result
	}
	if err := scope.Records.RecordResult(ctx, winner.Name, loser.Name); err != nil {
		span.RecordError(err)
		logger.Warn("failed to record battle result", "winner", winner.Name, "loser", loser.Name, "error", err)
		result.errorMessage = fmt.Sprintf("recording result failed: %v", err)
	}
	return result
}

func judgeFailed(err error) outcome {
	return outcome{
		winnerName:   session.ErrorJudging,
		reasoning:    judgeFailedReasoning,
		errorMessage: fmt.Sprintf("judging failed: %v", err),
	}
}
