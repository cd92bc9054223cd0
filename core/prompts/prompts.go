// Package prompts builds the instructions sent to the text generator and
// keeps the battle transcript format in one place.
//
// Everything here is pure. Transcript helpers never fail: malformed or empty
// transcripts simply produce no entries.
package prompts

import (
	"fmt"
	"strings"

	"github.com/koscakluka/ema-battle/core/session"
)

// MaxExcerptRunes bounds how much of the opponent's last verse is quoted
// back in a response prompt.
const MaxExcerptRunes = 1200

type Role string

const (
	RoleFor     Role = "for"
	RoleAgainst Role = "against"
)

// RoleOf returns the side argued by the participant whose turn it is. The
// first participant always argues for the topic.
func RoleOf(isFirstParticipantTurn bool) Role {
	if isFirstParticipantTurn {
		return RoleFor
	}
	return RoleAgainst
}

type Request struct {
	Speaker    string
	Opponent   string
	Role       Role
	Topic      session.Topic
	TurnIndex  int
	TotalTurns int
	Transcript string
}

// Build returns the instruction for a single turn. Without an earlier
// contribution from the opponent the opening variant is used, otherwise the
// opponent's latest verse is quoted so the speaker can respond to it.
func Build(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a battle rapper facing %s.\n", req.Speaker, req.Opponent)
	fmt.Fprintf(&b, "Topic: %s.\n", req.Topic)
	fmt.Fprintf(&b, "You argue %s the topic. This is turn %d of %d.\n\n", req.Role, req.TurnIndex, req.TotalTurns)

	if excerpt := LastContribution(req.Transcript, req.Speaker, req.Opponent); excerpt == "" {
		b.WriteString("You open the battle. Introduce yourself, stake out your side of the topic and set the tone.\n")
	} else {
		fmt.Fprintf(&b, "%s just said:\n\"\"\"\n%s\n\"\"\"\n", req.Opponent, truncate(excerpt, MaxExcerptRunes))
		b.WriteString("Respond to their verse directly. Flip their arguments and punchlines against them.\n")
	}

	if req.TotalTurns > 0 && req.TurnIndex >= req.TotalTurns-1 {
		b.WriteString("This is your final verse, close the battle strong.\n")
	}

	b.WriteString("\nWrite 8 to 12 rhyming lines. Keep it witty and on topic, no slurs or profanity. ")
	b.WriteString("Reply with the verse only, without labels, titles or stage directions.")
	return b.String()
}

// Intro is the announcer's introduction read out before the first turn.
func Intro(first, second session.Participant, topic session.Topic) string {
	return fmt.Sprintf(
		"Ladies and gentlemen, welcome to the battle! In this corner, %s, with %s. "+
			"And in the other corner, %s, with %s. Tonight's topic: %s. Let's get it started!",
		first.Name, record(first), second.Name, record(second), topic,
	)
}

// Judge returns the system instructions and the prompt used to pick a
// winner from the full transcript.
func Judge(transcript, first, second, topic string) (instructions string, prompt string) {
	instructions = fmt.Sprintf(
		"You are the judge of a rap battle between %s and %s on the topic %q. "+
			"Score each rapper from 0 to 10 on lyricism, flow, wordplay and rebuttal. "+
			"The winner must be exactly %q or %q. Explain your decision in two or three sentences.",
		first, second, topic, first, second,
	)
	prompt = "Battle transcript:\n\n" + strings.TrimSpace(transcript)
	return instructions, prompt
}

func record(p session.Participant) string {
	return plural(p.Wins, "win") + " and " + plural(p.Losses, "loss")
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	if strings.HasSuffix(noun, "s") {
		return fmt.Sprintf("%d %ses", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
