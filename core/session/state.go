package session

import (
	"strings"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-battle/core/verse"
)

// Phase is the lifecycle phase of a battle.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseIntroducing      Phase = "introducing"
	PhaseTurnInProgress   Phase = "turn_in_progress"
	PhaseAwaitingPlayback Phase = "awaiting_playback"
	PhaseJudging          Phase = "judging"
	PhaseFinished         Phase = "finished"
	PhaseFailed           Phase = "failed"
)

// ErrorJudging replaces the winner name when the judge could not decide.
const ErrorJudging = "Error Judging"

type Participant struct {
	Name   string `json:"name"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
}

type Topic struct {
	Title    string `json:"title"`
	Category string `json:"category"`
}

func (t Topic) String() string {
	if t.Category == "" {
		return t.Title
	}
	return t.Title + " (" + t.Category + ")"
}

// State is a point-in-time view of the battle.
type State struct {
	ID    string `json:"id"`
	Phase Phase  `json:"phase"`

	First  Participant `json:"first"`
	Second Participant `json:"second"`
	Topic  Topic       `json:"topic"`

	IsInProgress     bool `json:"isInProgress"`
	IsFinished       bool `json:"isFinished"`
	IsGeneratingTurn bool `json:"isGeneratingTurn"`

	CurrentTurnIndex       int  `json:"currentTurnIndex"`
	TotalTurns             int  `json:"totalTurns"`
	IsFirstParticipantTurn bool `json:"isFirstParticipantTurn"`

	// Transcript only ever grows within a session.
	Transcript          string          `json:"transcript"`
	CurrentTurnText     string          `json:"currentTurnText"`
	CurrentTurnAudio    []byte          `json:"currentTurnAudio,omitempty"`
	CurrentTurnAnalysis *verse.Analysis `json:"currentTurnAnalysis,omitempty"`

	WinnerName     string `json:"winnerName"`
	JudgeReasoning string `json:"judgeReasoning"`
	Scores         Scores `json:"scores"`
	ScoreSummary   string `json:"scoreSummary"`

	ErrorMessage string `json:"errorMessage"`
}

// Idle returns the empty snapshot used before the first start and after a
// reset.
func Idle() State {
	return State{Phase: PhaseIdle}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	var clone State
	if err := copier.CopyWithOption(&clone, &s, copier.Option{DeepCopy: true}); err != nil {
		clone = s
		clone.CurrentTurnAudio = append([]byte(nil), s.CurrentTurnAudio...)
		if s.CurrentTurnAnalysis != nil {
			analysis := *s.CurrentTurnAnalysis
			clone.CurrentTurnAnalysis = &analysis
		}
	}
	return clone
}

// Speaker is the participant whose turn is active.
func (s State) Speaker() Participant {
	if s.IsFirstParticipantTurn {
		return s.First
	}
	return s.Second
}

// Opponent is the participant waiting for their turn.
func (s State) Opponent() Participant {
	if s.IsFirstParticipantTurn {
		return s.Second
	}
	return s.First
}

// Loser returns the participant that did not win. The second return value
// is false when winner does not name either participant.
func (s State) Loser(winner string) (Participant, bool) {
	winner = strings.TrimSpace(winner)
	if winner == "" || winner == ErrorJudging {
		return Participant{}, false
	}

	switch {
	case strings.EqualFold(winner, s.First.Name):
		return s.Second, true
	case strings.EqualFold(winner, s.Second.Name):
		return s.First, true
	default:
		return Participant{}, false
	}
}
