package orchestration

import (
	"context"

	"github.com/koscakluka/ema-battle/core/session"
)

type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, maxTokens int) (string, error)
}

type SpeechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, text, voiceID string) ([]byte, error)
}

type Judge interface {
	Judge(ctx context.Context, transcript, nameA, nameB, topic string) (session.Verdict, error)
}

type RecordStore interface {
	RecordResult(ctx context.Context, winner, loser string) error
}

// Scope bundles the collaborators used for exactly one turn (or for the
// introduction and the final judging). Nil collaborators are treated as not
// configured.
type Scope struct {
	Text    TextGenerator
	Speech  SpeechSynthesizer
	Judge   Judge
	Records RecordStore

	// OnClose is called once the scope is no longer used.
	OnClose func() error
}

// ScopeFactory returns a fresh scope. It is called once per turn.
type ScopeFactory func(ctx context.Context) (*Scope, error)

func (s *Scope) Close() error {
	if s == nil || s.OnClose == nil {
		return nil
	}
	onClose := s.OnClose
	s.OnClose = nil
	return onClose()
}

func missingScopeFactory(context.Context) (*Scope, error) {
	return nil, ErrNoScopeFactory
}

func (o *Orchestrator) acquireScope(ctx context.Context) (*Scope, error) {
	scope, err := o.newScope(ctx)
	if err != nil {
		return nil, err
	}
	if scope == nil {
		scope = &Scope{}
	}
	return scope, nil
}

func closeScope(scope *Scope) {
	if err := scope.Close(); err != nil {
		logger.Warn("failed to close collaborator scope", "error", err)
	}
}
