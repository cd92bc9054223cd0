package prompts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var labelPattern = regexp.MustCompile(`^\[Turn (\d+)\] (.+):$`)

type Entry struct {
	Turn    int
	Speaker string
	Text    string
}

// TurnLabel is the header line preceding every verse in a transcript.
func TurnLabel(turn int, speaker string) string {
	return fmt.Sprintf("[Turn %d] %s:", turn, speaker)
}

// AppendEntry returns transcript with a new labeled verse appended.
func AppendEntry(transcript string, turn int, speaker, text string) string {
	return transcript + TurnLabel(turn, speaker) + "\n" + strings.TrimSpace(text) + "\n\n"
}

// Entries parses the labeled verses of a transcript in order. Text before
// the first label is ignored.
func Entries(transcript string) []Entry {
	var (
		entries []Entry
		body    []string
	)
	flush := func() {
		if len(entries) > 0 {
			entries[len(entries)-1].Text = strings.TrimSpace(strings.Join(body, "\n"))
		}
		body = nil
	}

	for _, line := range strings.Split(transcript, "\n") {
		if turn, speaker, ok := parseLabel(line); ok {
			flush()
			entries = append(entries, Entry{Turn: turn, Speaker: speaker})
			continue
		}
		body = append(body, line)
	}
	flush()

	return entries
}

// LastContribution returns the most recent verse by opponent, reading up to
// the next label of speaker. It returns "" when the opponent has not spoken.
func LastContribution(transcript, speaker, opponent string) string {
	lines := strings.Split(transcript, "\n")

	start := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if _, name, ok := parseLabel(lines[i]); ok && name == opponent {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	var body []string
	for _, line := range lines[start+1:] {
		if _, name, ok := parseLabel(line); ok && name == speaker {
			break
		}
		body = append(body, line)
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}

func parseLabel(line string) (int, string, bool) {
	match := labelPattern.FindStringSubmatch(strings.TrimSpace(line))
	if match == nil {
		return 0, "", false
	}
	turn, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, "", false
	}
	return turn, match[2], true
}
