package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-battle/core/events"
	"github.com/koscakluka/ema-battle/core/prompts"
	"github.com/koscakluka/ema-battle/core/session"
	"github.com/koscakluka/ema-battle/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// defaultJoinTimeout bounds how long Reset waits for a cancelled loop to
// exit. A loop that outlives it is detached and can no longer write state.
const defaultJoinTimeout = 5 * time.Second

// Orchestrator runs one battle at a time. The session state is written only
// by the active battle loop (and by Start and Reset once that loop has been
// stopped); every reader gets a copy.
type Orchestrator struct {
	mu         sync.RWMutex
	state      session.State
	generation uint64
	gate       *playbackGate
	// abort cancels the current session, introduction included. interrupts
	// counts callers waiting on lifecycle to discard it.
	abort      context.CancelFunc
	interrupts int

	// lifecycle serializes Start, Reset and Close.
	lifecycle   sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	joinTimeout time.Duration

	publisher publisher
	closeOnce sync.Once

	newScope        ScopeFactory
	totalTurns      int
	maxTokens       int
	voices          voices
	playbackTimeout time.Duration
	analyzeVerses   bool
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		state:         session.Idle(),
		newScope:      missingScopeFactory,
		totalTurns:    defaultTotalTurns,
		maxTokens:     defaultMaxTokens,
		analyzeVerses: true,
		joinTimeout:   defaultJoinTimeout,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Start discards any running battle and begins a new one between a and b.
// The introduction is synthesized before Start returns; the turns run in the
// background. A Reset or Start issued meanwhile aborts the introduction, in
// which case Start returns the abandoned snapshot and no turns are played.
func (o *Orchestrator) Start(ctx context.Context, a, b session.Participant, topic session.Topic) session.State {
	release := o.interrupt()
	o.lifecycle.Lock()
	release()
	defer o.lifecycle.Unlock()

	ctx, span := tracer.Start(ctx, "start battle")
	defer span.End()

	o.resetLocked()

	// The session outlives the caller's ctx; the introduction is bound to
	// both.
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	introCtx, cancelIntro := context.WithCancel(ctx)
	stopIntro := context.AfterFunc(sessionCtx, cancelIntro)
	defer func() {
		stopIntro()
		cancelIntro()
	}()

	intro := prompts.Intro(a, b, topic)
	o.mu.Lock()
	o.generation++
	generation := o.generation
	o.gate = newPlaybackGate()
	o.abort = cancel
	if o.interrupts > 0 {
		cancel()
	}
	o.state = session.State{
		ID:                     uuid.NewString(),
		Phase:                  session.PhaseIntroducing,
		First:                  a,
		Second:                 b,
		Topic:                  topic,
		IsInProgress:           true,
		TotalTurns:             o.totalTurns,
		IsFirstParticipantTurn: true,
		CurrentTurnText:        intro,
	}
	started := o.state.Clone()
	gate := o.gate
	o.mu.Unlock()

	span.SetAttributes(
		attribute.String("battle.id", started.ID),
		attribute.String("battle.first", a.Name),
		attribute.String("battle.second", b.Name),
		attribute.String("battle.topic", topic.String()),
		attribute.Int("battle.total_turns", started.TotalTurns),
	)
	o.publisher.publish(events.NewSessionStarted(started))

	audio, err := o.synthesizeIntro(introCtx, intro)
	if sessionCtx.Err() != nil {
		logger.Info("battle discarded during introduction", "battle_id", started.ID)
		return o.CurrentState()
	}
	introduced, ok := o.update(generation, events.NewSessionIntroduced, func(s *session.State) {
		s.CurrentTurnAudio = audio
		if err != nil {
			s.ErrorMessage = speechErrorMessage(err)
		}
	})
	if !ok {
		cancel()
		return o.CurrentState()
	}

	done := make(chan struct{})
	o.cancel = cancel
	o.done = done
	go o.run(sessionCtx, generation, gate, done)

	return introduced
}

// interrupt cancels the current session without waiting for lifecycle, so
// an introduction in flight gives way to the caller. The returned func must
// be called once the caller holds lifecycle.
func (o *Orchestrator) interrupt() (release func()) {
	o.mu.Lock()
	o.interrupts++
	abort := o.abort
	o.mu.Unlock()

	if abort != nil {
		abort()
	}
	return func() {
		o.mu.Lock()
		o.interrupts--
		o.mu.Unlock()
	}
}

func (o *Orchestrator) synthesizeIntro(ctx context.Context, intro string) ([]byte, error) {
	scope, err := o.acquireScope(ctx)
	if err != nil {
		return nil, err
	}
	defer closeScope(scope)

	return synthesize(ctx, scope, intro, o.voices.announcer)
}

// CurrentState returns a copy of the current session state.
func (o *Orchestrator) CurrentState() session.State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Clone()
}

// SignalPlaybackComplete acknowledges that the latest turn has been played.
// A signal that arrives before the battle starts waiting is kept for the
// next wait.
func (o *Orchestrator) SignalPlaybackComplete() {
	o.mu.RLock()
	gate := o.gate
	o.mu.RUnlock()

	if gate != nil {
		gate.signal()
	}
}

// Reset cancels the running battle, if any, and returns to the idle state.
func (o *Orchestrator) Reset() {
	release := o.interrupt()
	o.lifecycle.Lock()
	release()
	defer o.lifecycle.Unlock()

	o.resetLocked()
}

func (o *Orchestrator) resetLocked() {
	o.stopLoopLocked()

	o.mu.Lock()
	o.generation++
	o.gate = nil
	o.abort = nil
	o.state = session.Idle()
	idle := o.state.Clone()
	o.mu.Unlock()

	o.publisher.publish(events.NewSessionReset(idle))
}

func (o *Orchestrator) stopLoopLocked() {
	if o.cancel == nil {
		return
	}
	o.cancel()

	select {
	case <-o.done:
	case <-time.After(o.joinTimeout):
		logger.Warn("battle loop did not stop in time, detaching it")
	}
	o.cancel = nil
	o.done = nil
}

// Subscribe registers handler for every state change.
func (o *Orchestrator) Subscribe(handler Handler) (unsubscribe func()) {
	return o.publisher.subscribe(handler)
}

// Close resets the orchestrator and drops every subscriber.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.Reset()
		o.publisher.clear()
	})
}

// update applies mutate to the state of the given generation and publishes
// the resulting snapshot. It reports false, without mutating, when the
// generation is no longer current.
func (o *Orchestrator) update(
	generation uint64,
	newEvent func(session.State) events.StateChanged,
	mutate func(*session.State),
) (session.State, bool) {
	o.mu.Lock()
	if o.generation != generation {
		o.mu.Unlock()
		return session.State{}, false
	}
	mutate(&o.state)
	snapshot := o.state.Clone()
	o.mu.Unlock()

	o.publisher.publish(newEvent(snapshot))
	return snapshot, true
}

func (o *Orchestrator) fail(ctx context.Context, generation uint64, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("battle failed", "error", err)

	o.update(generation, events.NewSessionFailed, func(s *session.State) {
		s.Phase = session.PhaseFailed
		s.IsInProgress = false
		s.IsGeneratingTurn = false
		s.ErrorMessage = err.Error()
	})
}

func synthesize(ctx context.Context, scope *Scope, text, voice string) ([]byte, error) {
	if scope.Speech == nil {
		return nil, texttospeech.ErrNotConfigured
	}
	return scope.Speech.SynthesizeSpeech(ctx, text, voice)
}

func speechErrorMessage(err error) string {
	if errors.Is(err, texttospeech.ErrNotConfigured) {
		return "speech synthesis not configured"
	}
	return fmt.Sprintf("speech synthesis failed: %v", err)
}

func joinMessages(messages ...string) string {
	nonEmpty := messages[:0:0]
	for _, message := range messages {
		if message != "" {
			nonEmpty = append(nonEmpty, message)
		}
	}
	return strings.Join(nonEmpty, "; ")
}
