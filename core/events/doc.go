// Package events defines the typed notifications emitted by the battle
// orchestrator.
//
// Every event carries a full snapshot of the session taken right after the
// mutation that caused it, so a receiver never needs to combine events to
// know the current state. Delivery is best-effort: receivers that miss an
// event recover by reading the current state.
//
// session events
//
//   - SessionStarted (session.started): a new battle was initialised.
//   - SessionIntroduced (session.introduced): the introduction audio is ready.
//   - JudgingStarted (session.judging): all turns are done, the judge is
//     deciding.
//   - SessionFinished (session.finished): the winner is known.
//   - SessionFailed (session.failed): the battle stopped on an unexpected
//     error.
//   - SessionReset (session.reset): the battle was cancelled and the state
//     is idle again.
//
// turn events
//
//   - TurnStarted (turn.started): generation of a turn began.
//   - TurnReady (turn.ready): text and audio for the turn are published and
//     the orchestrator waits for playback to complete.
//   - TurnCompleted (turn.completed): playback was acknowledged.
package events
