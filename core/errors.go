package orchestration

import "errors"

var (
	// ErrNoScopeFactory is recorded when the orchestrator was built without
	// WithScopeFactory and a battle is started.
	ErrNoScopeFactory = errors.New("no collaborator scope factory configured")

	errPlaybackTimeout = errors.New("timed out waiting for playback")
	errNoJudge         = errors.New("judge not configured")
)

var errStaleSession = errors.New("battle session was replaced")
