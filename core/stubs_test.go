package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-battle/core/events"
	"github.com/koscakluka/ema-battle/core/session"
)

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

type textGeneratorStub struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	prompts   []string
	maxTokens []int
}

func (stub *textGeneratorStub) GenerateText(ctx context.Context, prompt string, maxTokens int) (string, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()

	stub.calls++
	stub.prompts = append(stub.prompts, prompt)
	stub.maxTokens = append(stub.maxTokens, maxTokens)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if stub.err != nil {
		return "", stub.err
	}
	if len(stub.responses) == 0 {
		return "generic bars", nil
	}
	return stub.responses[(stub.calls-1)%len(stub.responses)], nil
}

func (stub *textGeneratorStub) callCount() int {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return stub.calls
}

type speechSynthesizerStub struct {
	mu     sync.Mutex
	audio  []byte
	failOn map[int]error
	calls  int
	texts  []string
	voices []string
}

func (stub *speechSynthesizerStub) SynthesizeSpeech(ctx context.Context, text, voiceID string) ([]byte, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()

	stub.calls++
	stub.texts = append(stub.texts, text)
	stub.voices = append(stub.voices, voiceID)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := stub.failOn[stub.calls]; ok {
		return nil, err
	}
	return append([]byte(nil), stub.audio...), nil
}

func (stub *speechSynthesizerStub) callCount() int {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return stub.calls
}

type judgeStub struct {
	mu      sync.Mutex
	verdict session.Verdict
	err     error
	panics  bool
	calls   int
	got     []string
}

func (stub *judgeStub) Judge(_ context.Context, transcript, nameA, nameB, topic string) (session.Verdict, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()

	stub.calls++
	stub.got = []string{transcript, nameA, nameB, topic}
	if stub.panics {
		panic("judge exploded")
	}
	return stub.verdict, stub.err
}

type recordStoreStub struct {
	mu      sync.Mutex
	results [][2]string
	err     error
}

func (stub *recordStoreStub) RecordResult(_ context.Context, winner, loser string) error {
	stub.mu.Lock()
	defer stub.mu.Unlock()

	if stub.err != nil {
		return stub.err
	}
	stub.results = append(stub.results, [2]string{winner, loser})
	return nil
}

func (stub *recordStoreStub) recorded() [][2]string {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return append([][2]string(nil), stub.results...)
}

type fixture struct {
	text    *textGeneratorStub
	speech  *speechSynthesizerStub
	judge   *judgeStub
	records *recordStoreStub

	mu     sync.Mutex
	scopes int
	closed int
}

func newFixture() *fixture {
	return &fixture{
		text:    &textGeneratorStub{},
		speech:  &speechSynthesizerStub{},
		judge:   &judgeStub{verdict: session.Verdict{WinnerName: "Alice", Reasoning: "better flow"}},
		records: &recordStoreStub{},
	}
}

func (f *fixture) scopeFactory(context.Context) (*Scope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes++

	return &Scope{
		Text:    f.text,
		Speech:  f.speech,
		Judge:   f.judge,
		Records: f.records,
		OnClose: func() error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.closed++
			return nil
		},
	}, nil
}

func (f *fixture) scopeCounts() (acquired, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scopes, f.closed
}

func (f *fixture) orchestrator(opts ...OrchestratorOption) *Orchestrator {
	return NewOrchestrator(append([]OrchestratorOption{WithScopeFactory(f.scopeFactory)}, opts...)...)
}

// eventRecorder collects every event published by an orchestrator.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]events.Kind, 0, len(r.events))
	for _, event := range r.events {
		kinds = append(kinds, event.Kind())
	}
	return kinds
}

func (r *eventRecorder) waitFor(t *testing.T, kind events.Kind) {
	t.Helper()

	waitForCondition(t, 2*time.Second, string(kind)+" event", func() bool {
		return len(r.ofKind(kind)) > 0
	})
}

func (r *eventRecorder) ofKind(kind events.Kind) []session.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var states []session.State
	for _, event := range r.events {
		if event.Kind() == kind {
			states = append(states, event.Snapshot())
		}
	}
	return states
}

var errSynthesisDown = errors.New("synthesis backend down")

func awaitPhase(t *testing.T, o *Orchestrator, phase session.Phase, turn int) session.State {
	t.Helper()

	var state session.State
	waitForCondition(t, 2*time.Second, string(phase), func() bool {
		state = o.CurrentState()
		return state.Phase == phase && (turn == 0 || state.CurrentTurnIndex == turn)
	})
	return state
}

// blockingSynthesizer holds its first call until ctx is done; later calls
// succeed right away.
type blockingSynthesizer struct {
	started chan struct{}
	once    sync.Once
}

func newBlockingSynthesizer() *blockingSynthesizer {
	return &blockingSynthesizer{started: make(chan struct{})}
}

func (stub *blockingSynthesizer) SynthesizeSpeech(ctx context.Context, _, _ string) ([]byte, error) {
	first := false
	stub.once.Do(func() {
		first = true
		close(stub.started)
	})
	if !first {
		return []byte{1, 2}, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// stubbornTextGenerator ignores cancellation and only returns once released.
type stubbornTextGenerator struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStubbornTextGenerator() *stubbornTextGenerator {
	return &stubbornTextGenerator{started: make(chan struct{}), release: make(chan struct{})}
}

func (stub *stubbornTextGenerator) GenerateText(context.Context, string, int) (string, error) {
	stub.once.Do(func() { close(stub.started) })
	<-stub.release
	return "bars that arrive too late", nil
}

// withScope returns a factory handing out the fixture's collaborators after
// customize has adjusted them.
func (f *fixture) withScope(customize func(*Scope)) ScopeFactory {
	return func(ctx context.Context) (*Scope, error) {
		scope, err := f.scopeFactory(ctx)
		if err != nil {
			return nil, err
		}
		customize(scope)
		return scope, nil
	}
}

func waitForSignal(t *testing.T, ch <-chan struct{}, description string) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", description)
	}
}
