package orchestration

import "time"

const (
	defaultTotalTurns = 10
	defaultMaxTokens  = 400
)

type OrchestratorOption func(*Orchestrator)

func WithScopeFactory(factory ScopeFactory) OrchestratorOption {
	return func(o *Orchestrator) {
		if factory != nil {
			o.newScope = factory
		}
	}
}

// WithTotalTurns sets the number of turns in a battle, counting both
// participants.
func WithTotalTurns(totalTurns int) OrchestratorOption {
	return func(o *Orchestrator) {
		if totalTurns > 0 {
			o.totalTurns = totalTurns
		}
	}
}

// WithMaxTokens sets the token budget passed to the text generator for every
// verse.
func WithMaxTokens(maxTokens int) OrchestratorOption {
	return func(o *Orchestrator) {
		if maxTokens > 0 {
			o.maxTokens = maxTokens
		}
	}
}

// WithVoices sets the voice identifiers passed to the speech synthesizer.
// Empty identifiers leave the synthesizer's default in place.
func WithVoices(first, second, announcer string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.voices = voices{first: first, second: second, announcer: announcer}
	}
}

// WithPlaybackTimeout bounds how long a turn waits for playback to be
// acknowledged before moving on. Zero waits until reset.
func WithPlaybackTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout >= 0 {
			o.playbackTimeout = timeout
		}
	}
}

func WithVerseAnalysis(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) { o.analyzeVerses = enabled }
}

type voices struct {
	first     string
	second    string
	announcer string
}

func (v voices) forSpeaker(isFirstParticipantTurn bool) string {
	if isFirstParticipantTurn {
		return v.first
	}
	return v.second
}
