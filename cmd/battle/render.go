package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-battle/core/events"
	"github.com/koscakluka/ema-battle/core/records"
	"github.com/koscakluka/ema-battle/core/session"
	"github.com/muesli/reflow/wordwrap"
)

const defaultWidth = 72

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	firstStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	secondStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	verdictStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	standingHeader = lipgloss.NewStyle().Bold(true).Underline(true)
)

// printer renders battle events to a terminal.
type printer struct {
	out   io.Writer
	width int

	mu sync.Mutex
}

func newPrinter(out io.Writer, width int) *printer {
	if width <= 0 {
		width = defaultWidth
	}
	return &printer{out: out, width: width}
}

func (p *printer) Handle(event events.Event) error {
	text := p.render(event.Kind(), event.Snapshot())
	if text == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.out, text)
	return err
}

func (p *printer) render(kind events.Kind, state session.State) string {
	switch kind {
	case events.KindSessionIntroduced:
		lines := []string{
			titleStyle.Render(fmt.Sprintf("%s vs %s", state.First.Name, state.Second.Name)),
			mutedStyle.Render(state.Topic.String()),
			"",
			p.wrap(state.CurrentTurnText),
		}
		return p.withError(strings.Join(lines, "\n"), state.ErrorMessage)

	case events.KindTurnReady:
		header := speakerStyle(state).Render(fmt.Sprintf("[Turn %d/%d] %s",
			state.CurrentTurnIndex, state.TotalTurns, state.Speaker().Name))
		lines := []string{"", header, p.wrap(state.CurrentTurnText)}
		if analysis := state.CurrentTurnAnalysis; analysis != nil {
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("crowd %s (%.0f)", analysis.Reaction, analysis.Score)))
		}
		return p.withError(strings.Join(lines, "\n"), state.ErrorMessage)

	case events.KindTurnCompleted:
		if state.ErrorMessage == "" {
			return ""
		}
		return errorStyle.Render(state.ErrorMessage)

	case events.KindJudgingStarted:
		return "\n" + mutedStyle.Render("The judge is deliberating...")

	case events.KindSessionFinished:
		lines := []string{
			titleStyle.Render("Winner: " + state.WinnerName),
			p.wrap(state.JudgeReasoning),
		}
		if state.ScoreSummary != "" {
			lines = append(lines, "", state.ScoreSummary)
		}
		return p.withError(verdictStyle.Render(strings.Join(lines, "\n")), state.ErrorMessage)

	case events.KindSessionFailed:
		return errorStyle.Render("Battle failed: " + state.ErrorMessage)
	}
	return ""
}

func (p *printer) wrap(text string) string {
	return wordwrap.String(strings.TrimSpace(text), p.width)
}

func (p *printer) withError(text, message string) string {
	if message == "" {
		return text
	}
	return text + "\n" + errorStyle.Render(p.wrap(message))
}

func speakerStyle(state session.State) lipgloss.Style {
	if state.IsFirstParticipantTurn {
		return firstStyle
	}
	return secondStyle
}

func renderStandings(standings []records.Record) string {
	if len(standings) == 0 {
		return mutedStyle.Render("No battles recorded yet.")
	}

	nameWidth := len("Name")
	for _, record := range standings {
		nameWidth = max(nameWidth, lipgloss.Width(record.Name))
	}

	var b strings.Builder
	b.WriteString(standingHeader.Render(fmt.Sprintf("%-*s %5s %7s", nameWidth, "Name", "Wins", "Losses")))
	for _, record := range standings {
		fmt.Fprintf(&b, "\n%-*s %5d %7d", nameWidth, record.Name, record.Wins, record.Losses)
	}
	return b.String()
}
