package orchestration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/koscakluka/ema-battle/core/events"
	"github.com/koscakluka/ema-battle/core/session"
	"github.com/koscakluka/ema-battle/core/texttospeech"
)

var (
	alice   = session.Participant{Name: "Alice", Wins: 3, Losses: 1}
	bob     = session.Participant{Name: "Bob"}
	climate = session.Topic{Title: "Climate Change", Category: "Current Events"}
)

func assertIdle(t *testing.T, state session.State) {
	t.Helper()

	if state.Phase != session.PhaseIdle || state.ID != "" || state.IsInProgress || state.IsFinished ||
		state.IsGeneratingTurn || state.CurrentTurnIndex != 0 || state.Transcript != "" ||
		state.CurrentTurnText != "" || len(state.CurrentTurnAudio) != 0 || state.WinnerName != "" ||
		state.ErrorMessage != "" {
		t.Fatalf("expected idle snapshot, got %+v", state)
	}
}

func TestStartReturnsInitialSnapshot(t *testing.T) {
	f := newFixture()
	f.speech.audio = []byte{1, 2, 3}
	o := f.orchestrator(WithVoices("voice-a", "voice-b", "announcer"))
	defer o.Close()

	state := o.Start(context.Background(), alice, bob, climate)

	if !state.IsInProgress || state.IsFinished {
		t.Fatalf("expected battle in progress, got %+v", state)
	}
	if state.CurrentTurnIndex != 0 || !state.IsFirstParticipantTurn {
		t.Fatalf("expected turn 0 with first participant to move, got index %d first=%t", state.CurrentTurnIndex, state.IsFirstParticipantTurn)
	}
	if state.TotalTurns != defaultTotalTurns {
		t.Fatalf("expected %d total turns, got %d", defaultTotalTurns, state.TotalTurns)
	}
	if state.ID == "" || state.Phase != session.PhaseIntroducing {
		t.Fatalf("expected identified introducing session, got id=%q phase=%q", state.ID, state.Phase)
	}
	if !strings.Contains(state.CurrentTurnText, "Alice") || !strings.Contains(state.CurrentTurnText, "Climate Change") {
		t.Fatalf("expected introduction text, got %q", state.CurrentTurnText)
	}
	if string(state.CurrentTurnAudio) != "\x01\x02\x03" {
		t.Fatalf("expected introduction audio, got %v", state.CurrentTurnAudio)
	}
	if state.First != alice || state.Second != bob || state.Topic != climate {
		t.Fatalf("unexpected participants or topic in %+v", state)
	}

	f.speech.mu.Lock()
	firstVoice := f.speech.voices[0]
	f.speech.mu.Unlock()
	if firstVoice != "announcer" {
		t.Fatalf("expected introduction to use the announcer voice, got %q", firstVoice)
	}
}

func TestIntroductionFailureDoesNotAbortStart(t *testing.T) {
	f := newFixture()
	f.speech.failOn = map[int]error{1: errSynthesisDown}
	o := f.orchestrator()
	defer o.Close()

	state := o.Start(context.Background(), alice, bob, climate)

	if !state.IsInProgress {
		t.Fatalf("expected battle to start anyway, got %+v", state)
	}
	if !strings.Contains(state.ErrorMessage, "speech synthesis failed") || len(state.CurrentTurnAudio) != 0 {
		t.Fatalf("expected recorded introduction failure, got message=%q audio=%v", state.ErrorMessage, state.CurrentTurnAudio)
	}
	awaitPhase(t, o, session.PhaseAwaitingPlayback, 1)
}

func TestTwoTurnBattleRecordsWinner(t *testing.T) {
	f := newFixture()
	f.text.responses = []string{"bar one", "bar two"}
	f.judge.verdict = session.Verdict{
		WinnerName: "Alice",
		Reasoning:  "better flow",
		Scores: &session.Scores{
			First:  session.ParticipantScores{Lyricism: 8, Flow: 9, Wordplay: 7, Rebuttal: 6},
			Second: session.ParticipantScores{Lyricism: 6, Flow: 5, Wordplay: 7, Rebuttal: 8},
		},
	}
	o := f.orchestrator(WithTotalTurns(2), WithMaxTokens(123))
	defer o.Close()

	o.Start(context.Background(), alice, bob, climate)

	first := awaitPhase(t, o, session.PhaseAwaitingPlayback, 1)
	if first.CurrentTurnText != "bar one" || !first.IsFirstParticipantTurn {
		t.Fatalf("unexpected first turn %+v", first)
	}
	o.SignalPlaybackComplete()

	second := awaitPhase(t, o, session.PhaseAwaitingPlayback, 2)
	if second.CurrentTurnText != "bar two" || second.IsFirstParticipantTurn {
		t.Fatalf("unexpected second turn %+v", second)
	}
	o.SignalPlaybackComplete()

	final := awaitPhase(t, o, session.PhaseFinished, 0)
	if !final.IsFinished || final.IsInProgress || final.IsGeneratingTurn {
		t.Fatalf("expected finished flags, got %+v", final)
	}
	if final.WinnerName != "Alice" || final.JudgeReasoning != "better flow" {
		t.Fatalf("unexpected verdict %q / %q", final.WinnerName, final.JudgeReasoning)
	}
	if final.ScoreSummary != "Alice 30 - 26 Bob" {
		t.Fatalf("unexpected score summary %q", final.ScoreSummary)
	}
	wantTranscript := "[Turn 1] Alice:\nbar one\n\n[Turn 2] Bob:\nbar two\n\n"
	if final.Transcript != wantTranscript {
		t.Fatalf("transcript = %q, want %q", final.Transcript, wantTranscript)
	}
	if final.CurrentTurnIndex != 2 {
		t.Fatalf("expected turn index to stop at 2, got %d", final.CurrentTurnIndex)
	}

	records := f.records.recorded()
	if len(records) != 1 || records[0] != [2]string{"Alice", "Bob"} {
		t.Fatalf("expected exactly one Alice over Bob result, got %v", records)
	}

	f.judge.mu.Lock()
	judged := f.judge.got
	f.judge.mu.Unlock()
	if judged[0] != wantTranscript || judged[1] != "Alice" || judged[2] != "Bob" || judged[3] != "Climate Change (Current Events)" {
		t.Fatalf("unexpected judge input %q", judged)
	}

	f.text.mu.Lock()
	maxTokens := f.text.maxTokens
	secondPrompt := f.text.prompts[1]
	f.text.mu.Unlock()
	if maxTokens[0] != 123 || maxTokens[1] != 123 {
		t.Fatalf("expected configured token budget, got %v", maxTokens)
	}
	if !strings.Contains(secondPrompt, "bar one") {
		t.Fatalf("expected second prompt to quote the first verse, got %q", secondPrompt)
	}

	waitForCondition(t, time.Second, "every scope to be closed", func() bool {
		acquired, closed := f.scopeCounts()
		return acquired == closed
	})
}

func TestSynthesisFailureOnFirstTurnIsRecovered(t *testing.T) {
	f := newFixture()
	f.text.responses = []string{"bar one"}
	// The first synthesis call is the introduction.
	f.speech.failOn = map[int]error{2: errSynthesisDown}
	f.speech.audio = []byte{9}
	o := f.orchestrator(WithTotalTurns(2))
	defer o.Close()

	o.Start(context.Background(), alice, bob, climate)

	turn := awaitPhase(t, o, session.PhaseAwaitingPlayback, 1)
	if len(turn.CurrentTurnAudio) != 0 {
		t.Fatalf("expected empty audio, got %v", turn.CurrentTurnAudio)
	}
	if !strings.Contains(turn.ErrorMessage, "speech synthesis failed") {
		t.Fatalf("expected synthesis error message, got %q", turn.ErrorMessage)
	}
	if turn.CurrentTurnText != "bar one" || !strings.Contains(turn.Transcript, "[Turn 1] Alice:\nbar one") {
		t.Fatalf("expected text and transcript despite the failure, got %+v", turn)
	}

	o.SignalPlaybackComplete()
	next := awaitPhase(t, o, session.PhaseAwaitingPlayback, 2)
	if next.ErrorMessage != "" || len(next.CurrentTurnAudio) != 1 {
		t.Fatalf("expected the next turn to recover, got message=%q audio=%v", next.ErrorMessage, next.CurrentTurnAudio)
	}
}

func TestSpeechNotConfiguredIsReportedDistinctly(t *testing.T) {
	f := newFixture()
	o := NewOrchestrator(WithTotalTurns(1), WithScopeFactory(func(ctx context.Context) (*Scope, error) {
		scope, err := f.scopeFactory(ctx)
		scope.Speech = nil
		return scope, err
	}))
	defer o.Close()

	state := o.Start(context.Background(), alice, bob, climate)
	if state.ErrorMessage != "speech synthesis not configured" {
		t.Fatalf("unexpected introduction error %q", state.ErrorMessage)
	}

	turn := awaitPhase(t, o, session.PhaseAwaitingPlayback, 1)
	if turn.ErrorMessage != "speech synthesis not configured" {
		t.Fatalf("unexpected turn error %q", turn.ErrorMessage)
	}
	if speechErrorMessage(texttospeech.ErrNotConfigured) == speechErrorMessage(errSynthesisDown) {
		t.Fatal("expected not configured to be reported differently from a transient failure")
	}
}

func TestTextFailureUsesPlaceholder(t *testing.T) {
	f := newFixture()
	f.text.err = errors.New("rate limited")
	o := f.orchestrator(WithTotalTurns(1))
	defer o.Close()

	o.Start(context.Background(), alice, bob, climate)

	turn := awaitPhase(t, o, session.PhaseAwaitingPlayback, 1)
	if turn.CurrentTurnText != "Alice froze up and lost the beat." {
		t.Fatalf("unexpected placeholder %q", turn.CurrentTurnText)
	}
	if turn.Transcript != "" {
		t.Fatalf("expected no transcript entry for a failed generation, got %q", turn.Transcript)
	}
	if turn.CurrentTurnAnalysis != nil {
		t.Fatalf("expected no verse analysis for a placeholder")
	}
	if !strings.Contains(turn.ErrorMessage, "text generation failed: rate limited") {
		t.Fatalf("unexpected error message %q", turn.ErrorMessage)
	}

	f.speech.mu.Lock()
	spoken := f.speech.texts[len(f.speech.texts)-1]
	f.speech.mu.Unlock()
	if spoken != turn.CurrentTurnText {
		t.Fatalf("expected the placeholder to be synthesized, got %q", spoken)
	}
}

func TestResetWhileAwaitingPlaybackStopsLoop(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(WithTotalTurns(10))
	defer o.Close()

	o.Start(context.Background(), alice, bob, climate)
	awaitPhase(t, o, session.PhaseAwaitingPlayback, 1)
	o.SignalPlaybackComplete()
	awaitPhase(t, o, session.PhaseAwaitingPlayback, 2)
	o.SignalPlaybackComplete()
	awaitPhase(t, o, session.PhaseAwaitingPlayback, 3)

	o.Reset()
	assertIdle(t, o.CurrentState())

	textCalls, speechCalls := f.text.callCount(), f.speech.callCount()
	o.SignalPlaybackComplete()
	time.Sleep(100 * time.Millisecond)

	if f.text.callCount() != textCalls || textCalls != 3 {
		t.Fatalf("expected no text generation after reset, got %d calls (had %d)", f.text.callCount(), textCalls)
	}
	if f.speech.callCount() != speechCalls {
		t.Fatalf("expected no synthesis after reset, got %d calls (had %d)", f.speech.callCount(), speechCalls)
	}
	f.judge.mu.Lock()
	judgeCalls := f.judge.calls
	f.judge.mu.Unlock()
	if judgeCalls != 0 {
		t.Fatalf("expected the judge to never be called")
	}
	assertIdle(t, o.CurrentState())

	acquired, closed := f.scopeCounts()
	if acquired != closed {
		t.Fatalf("expected every scope to be closed, acquired %d closed %d", acquired, closed)
	}
}

type blockingTextGenerator struct {
	release chan struct{}
}

func (g blockingTextGenerator) GenerateText(ctx context.Context, _ string, _ int) (string, error) {
	select {
	case <-g.release:
		return "held bars", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestEarlyPlaybackSignalIsNotLost(t *testing.T) {
	f := newFixture()
	release := make(chan struct{})
	o := NewOrchestrator(WithTotalTurns(2), WithScopeFactory(func(ctx context.Context) (*Scope, error) {
		scope, err := f.scopeFactory(ctx)
		scope.Text = blockingTextGenerator{release: release}
		return scope, err
	}))
	defer o.Close()

	o.Start(context.Background(), alice, bob, climate)
	awaitPhase(t, o, session.PhaseTurnInProgress, 1)

	// The loop is still generating turn 1 and not waiting yet.
	o.SignalPlaybackComplete()
	close(release)

	waitForCondition(t, 2*time.Second, "turn 2 to start without another signal", func() bool {
		return o.CurrentState().CurrentTurnIndex == 2
	})
}

func TestResetIsIdempotent(t *testing.T) {
	f := newFixture()
	o := f.orchestrator()
	defer o.Close()

	o.Reset()
	assertIdle(t, o.CurrentState())
	o.Reset()
	assertIdle(t, o.CurrentState())

	o.Start(context.Background(), alice, bob, climate)
	o.Reset()
	first := o.CurrentState()
	o.Reset()
	second := o.CurrentState()
	assertIdle(t, first)
	assertIdle(t, second)
}

func TestTurnsAlternateAndNotificationsPrecedeWaits(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(WithTotalTurns(4), WithVoices("voice-a", "voice-b", "announcer"))
	defer o.Close()

	recorder := &eventRecorder{}
	o.Subscribe(recorder.handle)
	o.Subscribe(func(event events.Event) error {
		if event.Kind() == events.KindTurnReady {
			o.SignalPlaybackComplete()
		}
		return nil
	})

	o.Start(context.Background(), alice, bob, climate)
	recorder.waitFor(t, events.KindSessionFinished)

	started := recorder.ofKind(events.KindTurnStarted)
	if len(started) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(started))
	}
	for _, state := range started {
		wantFirst := state.CurrentTurnIndex%2 == 1
		if state.IsFirstParticipantTurn != wantFirst {
			t.Fatalf("turn %d: first participant turn = %t, want %t", state.CurrentTurnIndex, state.IsFirstParticipantTurn, wantFirst)
		}
	}

	for _, kind := range []events.Kind{events.KindTurnStarted, events.KindTurnReady, events.KindTurnCompleted} {
		for _, state := range recorder.ofKind(kind) {
			if state.CurrentTurnIndex > state.TotalTurns {
				t.Fatalf("turn index %d exceeds total %d", state.CurrentTurnIndex, state.TotalTurns)
			}
		}
	}

	kinds := recorder.kinds()
	want := []events.Kind{events.KindSessionReset, events.KindSessionStarted, events.KindSessionIntroduced}
	for turn := 0; turn < 4; turn++ {
		want = append(want, events.KindTurnStarted, events.KindTurnReady, events.KindTurnCompleted)
	}
	want = append(want, events.KindJudgingStarted, events.KindSessionFinished)
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event kinds = %v, want %v", kinds, want)
		}
	}

	f.speech.mu.Lock()
	voices := append([]string(nil), f.speech.voices...)
	f.speech.mu.Unlock()
	wantVoices := []string{"announcer", "voice-a", "voice-b", "voice-a", "voice-b"}
	for i := range wantVoices {
		if voices[i] != wantVoices[i] {
			t.Fatalf("voices = %v, want %v", voices, wantVoices)
		}
	}
}

func TestJudgeFailureStillFinishes(t *testing.T) {
	f := newFixture()
	f.judge.err = errors.New("judge unavailable")
	o := f.orchestrator(WithTotalTurns(1))
	defer o.Close()

	o.Start(context.Background(), alice, bob, climate)
	awaitPhase(t, o, session.PhaseAwaitingPlayback, 1)
	o.SignalPlaybackComplete()

	final := awaitPhase(t, o, session.PhaseFinished, 0)
	if !final.IsFinished {
		t.Fatalf("expected finished session")
	}
	if final.WinnerName != session.ErrorJudging {
		t.Fatalf("expected %q winner, got %q", session.ErrorJudging, final.WinnerName)
	}
	if !strings.Contains(final.ErrorMessage, "judging failed") || final.JudgeReasoning == "" {
		t.Fatalf("expected explained judging failure, got %q / %q", final.ErrorMessage, final.JudgeReasoning)
	}
	if len(f.records.recorded()) != 0 {
		t.Fatalf("expected no record update")
	}
}

func TestUnknownWinnerLeavesRecordsAndScoresZero(t *testing.T) {
	f := newFixture()
	f.text.responses = []string{"Fire in the wire\nhigher and higher"}
	f.judge.verdict = session.Verdict{WinnerName: "Carol", Reasoning: "neither"}
	o := f.orchestrator(WithTotalTurns(2), WithPlaybackTimeout(20*time.Millisecond))
	defer o.Close()

	o.Start(context.Background(), alice, bob, climate)
	final := awaitPhase(t, o, session.PhaseFinished, 0)

	if final.WinnerName != "Carol" {
		t.Fatalf("expected the judge's winner to be kept, got %q", final.WinnerName)
	}
	if len(f.records.recorded()) != 0 {
		t.Fatalf("expected no record update for an unknown winner")
	}

	if !final.Scores.IsZero() {
		t.Fatalf("expected all-zero scores without judge scores, got %+v", final.Scores)
	}
	if final.CurrentTurnAnalysis == nil || final.CurrentTurnAnalysis.Reaction == "" {
		t.Fatalf("expected the last verse to keep its crowd reaction, got %+v", final.CurrentTurnAnalysis)
	}
}

func TestWinnerMatchesCaseInsensitively(t *testing.T) {
	f := newFixture()
	f.judge.verdict = session.Verdict{WinnerName: "  bob "}
	o := f.orchestrator(WithTotalTurns(1), WithVerseAnalysis(false))
	defer o.Close()

	o.Start(context.Background(), alice, bob, climate)
	o.SignalPlaybackComplete()
	final := awaitPhase(t, o, session.PhaseFinished, 0)

	if final.WinnerName != "Bob" {
		t.Fatalf("expected canonical winner Bob, got %q", final.WinnerName)
	}
	if records := f.records.recorded(); len(records) != 1 || records[0] != [2]string{"Bob", "Alice"} {
		t.Fatalf("unexpected records %v", records)
	}
	if !final.Scores.IsZero() || final.CurrentTurnAnalysis != nil {
		t.Fatalf("expected no verse-derived data with analysis disabled, got %+v", final)
	}
}

func TestRecordFailureIsReported(t *testing.T) {
	f := newFixture()
	f.records.err = errors.New("disk full")
	o := f.orchestrator(WithTotalTurns(1))
	defer o.Close()

	o.Start(context.Background(), alice, bob, climate)
	o.SignalPlaybackComplete()
	final := awaitPhase(t, o, session.PhaseFinished, 0)

	if final.WinnerName != "Alice" || !strings.Contains(final.ErrorMessage, "disk full") {
		t.Fatalf("expected winner with record error, got %q / %q", final.WinnerName, final.ErrorMessage)
	}
}

func TestPanicMarksSessionFailed(t *testing.T) {
	f := newFixture()
	f.judge.panics = true
	o := f.orchestrator(WithTotalTurns(1))
	defer o.Close()

	o.Start(context.Background(), alice, bob, climate)
	o.SignalPlaybackComplete()
	failed := awaitPhase(t, o, session.PhaseFailed, 0)

	if failed.IsInProgress || failed.IsFinished {
		t.Fatalf("expected failed session to be neither in progress nor finished, got %+v", failed)
	}
	if !strings.Contains(failed.ErrorMessage, "panicked") {
		t.Fatalf("unexpected error message %q", failed.ErrorMessage)
	}

	// The orchestrator stays usable.
	state := o.Start(context.Background(), alice, bob, climate)
	if !state.IsInProgress {
		t.Fatalf("expected a new battle to start after a failure")
	}
}

func TestMissingScopeFactoryFailsSession(t *testing.T) {
	o := NewOrchestrator()
	defer o.Close()

	o.Start(context.Background(), alice, bob, climate)
	failed := awaitPhase(t, o, session.PhaseFailed, 0)

	if !strings.Contains(failed.ErrorMessage, ErrNoScopeFactory.Error()) {
		t.Fatalf("unexpected error message %q", failed.ErrorMessage)
	}
}

func TestPlaybackTimeoutMovesOn(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(WithTotalTurns(2), WithPlaybackTimeout(20*time.Millisecond))
	defer o.Close()

	recorder := &eventRecorder{}
	o.Subscribe(recorder.handle)
	o.Start(context.Background(), alice, bob, climate)
	awaitPhase(t, o, session.PhaseFinished, 0)

	completed := recorder.ofKind(events.KindTurnCompleted)
	if len(completed) != 2 || !strings.Contains(completed[0].ErrorMessage, errPlaybackTimeout.Error()) {
		t.Fatalf("expected timed out turns to be reported, got %+v", completed)
	}
}

func TestStartDiscardsRunningBattle(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(WithTotalTurns(10))
	defer o.Close()

	first := o.Start(context.Background(), alice, bob, climate)
	awaitPhase(t, o, session.PhaseAwaitingPlayback, 1)

	carol := session.Participant{Name: "Carol"}
	second := o.Start(context.Background(), carol, bob, climate)
	if second.ID == first.ID || second.CurrentTurnIndex != 0 || second.Transcript != "" {
		t.Fatalf("expected a fresh session, got %+v", second)
	}

	turn := awaitPhase(t, o, session.PhaseAwaitingPlayback, 1)
	if turn.ID != second.ID || turn.First.Name != "Carol" {
		t.Fatalf("expected the new battle to own the state, got %+v", turn)
	}
}

func TestCurrentStateReturnsCopies(t *testing.T) {
	f := newFixture()
	f.speech.audio = []byte{1, 2}
	o := f.orchestrator()
	defer o.Close()

	o.Start(context.Background(), alice, bob, climate)
	state := o.CurrentState()
	state.CurrentTurnAudio[0] = 42
	state.First.Name = "Mallory"

	again := o.CurrentState()
	if again.CurrentTurnAudio[0] == 42 || again.First.Name != "Alice" {
		t.Fatalf("expected snapshots to be independent, got %+v", again)
	}
}

func TestSubscriberFailuresAreIsolated(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(WithTotalTurns(1))
	defer o.Close()

	o.Subscribe(func(events.Event) error { panic("subscriber exploded") })
	o.Subscribe(func(events.Event) error { return errors.New("client went away") })
	recorder := &eventRecorder{}
	unsubscribe := o.Subscribe(recorder.handle)

	o.Start(context.Background(), alice, bob, climate)
	o.SignalPlaybackComplete()
	recorder.waitFor(t, events.KindSessionFinished)

	if len(recorder.ofKind(events.KindSessionFinished)) != 1 {
		t.Fatalf("expected the healthy subscriber to see the finish, got %v", recorder.kinds())
	}

	unsubscribe()
	unsubscribe()
	before := len(recorder.kinds())
	o.Reset()
	if len(recorder.kinds()) != before {
		t.Fatalf("expected no events after unsubscribe")
	}
}

func TestResetAbortsIntroductionInFlight(t *testing.T) {
	f := newFixture()
	speech := newBlockingSynthesizer()
	o := NewOrchestrator(WithScopeFactory(f.withScope(func(scope *Scope) { scope.Speech = speech })))
	defer o.Close()
	recorder := &eventRecorder{}
	o.Subscribe(recorder.handle)

	startReturned := make(chan struct{})
	go func() {
		defer close(startReturned)
		o.Start(context.Background(), alice, bob, climate)
	}()
	waitForSignal(t, speech.started, "introduction synthesis")

	resetReturned := make(chan struct{})
	go func() {
		defer close(resetReturned)
		o.Reset()
	}()
	select {
	case <-resetReturned:
	case <-time.After(2 * time.Second):
		t.Fatalf("Reset blocked while the introduction was synthesized; phase=%s", o.CurrentState().Phase)
	}
	waitForSignal(t, startReturned, "Start to return")

	assertIdle(t, o.CurrentState())
	if introduced := recorder.ofKind(events.KindSessionIntroduced); len(introduced) != 0 {
		t.Fatalf("expected no introduction event for an aborted battle, got %d", len(introduced))
	}
	time.Sleep(50 * time.Millisecond)
	if calls := f.text.callCount(); calls != 0 {
		t.Fatalf("expected no turns after an aborted introduction, got %d text calls", calls)
	}
}

func TestStartAbortsIntroductionInFlight(t *testing.T) {
	f := newFixture()
	speech := newBlockingSynthesizer()
	o := NewOrchestrator(
		WithTotalTurns(1),
		WithScopeFactory(f.withScope(func(scope *Scope) { scope.Speech = speech })),
	)
	defer o.Close()

	go o.Start(context.Background(), alice, bob, climate)
	waitForSignal(t, speech.started, "introduction synthesis")

	second := make(chan session.State, 1)
	go func() { second <- o.Start(context.Background(), bob, alice, climate) }()

	select {
	case state := <-second:
		if state.First != bob || state.Phase != session.PhaseIntroducing {
			t.Fatalf("expected the second battle to be introduced, got %+v", state)
		}
		if state.ErrorMessage != "" || len(state.CurrentTurnAudio) == 0 {
			t.Fatalf("expected the second introduction to be spoken, got %+v", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second Start blocked behind the first introduction")
	}
}

func TestResetDetachesLoopIgnoringCancellation(t *testing.T) {
	f := newFixture()
	text := newStubbornTextGenerator()
	o := NewOrchestrator(
		WithTotalTurns(2),
		WithScopeFactory(f.withScope(func(scope *Scope) { scope.Text = text })),
	)
	o.joinTimeout = 50 * time.Millisecond
	defer o.Close()
	recorder := &eventRecorder{}
	o.Subscribe(recorder.handle)

	o.Start(context.Background(), alice, bob, climate)
	waitForSignal(t, text.started, "turn generation")

	o.lifecycle.Lock()
	loopDone := o.done
	o.lifecycle.Unlock()

	began := time.Now()
	o.Reset()
	if elapsed := time.Since(began); elapsed > time.Second {
		t.Fatalf("Reset waited %s for a loop that ignores cancellation", elapsed)
	}
	assertIdle(t, o.CurrentState())

	close(text.release)
	waitForSignal(t, loopDone, "detached loop to exit")

	assertIdle(t, o.CurrentState())
	if ready := recorder.ofKind(events.KindTurnReady); len(ready) != 0 {
		t.Fatalf("detached loop published %d turns", len(ready))
	}
	kinds := recorder.kinds()
	if last := kinds[len(kinds)-1]; last != events.KindSessionReset {
		t.Fatalf("expected reset to be the last event, got %v", kinds)
	}
}
