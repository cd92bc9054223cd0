package session

import "fmt"

// ParticipantScores is the judge's breakdown for one participant.
type ParticipantScores struct {
	Lyricism int `json:"lyricism" jsonschema:"minimum=0,maximum=10"`
	Flow     int `json:"flow" jsonschema:"minimum=0,maximum=10"`
	Wordplay int `json:"wordplay" jsonschema:"minimum=0,maximum=10"`
	Rebuttal int `json:"rebuttal" jsonschema:"minimum=0,maximum=10"`
}

func (p ParticipantScores) Total() int {
	return p.Lyricism + p.Flow + p.Wordplay + p.Rebuttal
}

// Scores holds the structured judge scores for both participants.
type Scores struct {
	First  ParticipantScores `json:"first"`
	Second ParticipantScores `json:"second"`
}

func (s Scores) IsZero() bool {
	return s == Scores{}
}

// Summary renders the scores as a single line.
func (s Scores) Summary(first, second string) string {
	return fmt.Sprintf("%s %d - %d %s", first, s.First.Total(), s.Second.Total(), second)
}

// Verdict is what the judge returns at the end of a battle. Scores is nil
// when the judge did not provide them.
type Verdict struct {
	WinnerName string
	Reasoning  string
	Scores     *Scores
}
