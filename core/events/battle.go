package events

import "github.com/koscakluka/ema-battle/core/session"

const (
	KindSessionStarted    Kind = "session.started"
	KindSessionIntroduced Kind = "session.introduced"
	KindJudgingStarted    Kind = "session.judging"
	KindSessionFinished   Kind = "session.finished"
	KindSessionFailed     Kind = "session.failed"
	KindSessionReset      Kind = "session.reset"

	KindTurnStarted   Kind = "turn.started"
	KindTurnReady     Kind = "turn.ready"
	KindTurnCompleted Kind = "turn.completed"
)

// StateChanged is the event emitted after every state mutation.
type StateChanged struct {
	Base
	state session.State
}

// Snapshot returns a copy of the session state the event was emitted with.
func (e StateChanged) Snapshot() session.State {
	return e.state.Clone()
}

func newStateChanged(kind Kind, state session.State) StateChanged {
	return StateChanged{Base: NewBase(kind), state: state}
}

func NewSessionStarted(state session.State) StateChanged {
	return newStateChanged(KindSessionStarted, state)
}

func NewSessionIntroduced(state session.State) StateChanged {
	return newStateChanged(KindSessionIntroduced, state)
}

func NewJudgingStarted(state session.State) StateChanged {
	return newStateChanged(KindJudgingStarted, state)
}

func NewSessionFinished(state session.State) StateChanged {
	return newStateChanged(KindSessionFinished, state)
}

func NewSessionFailed(state session.State) StateChanged {
	return newStateChanged(KindSessionFailed, state)
}

func NewSessionReset(state session.State) StateChanged {
	return newStateChanged(KindSessionReset, state)
}

func NewTurnStarted(state session.State) StateChanged {
	return newStateChanged(KindTurnStarted, state)
}

func NewTurnReady(state session.State) StateChanged {
	return newStateChanged(KindTurnReady, state)
}

func NewTurnCompleted(state session.State) StateChanged {
	return newStateChanged(KindTurnCompleted, state)
}
