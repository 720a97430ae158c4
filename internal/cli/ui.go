package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1).
			MarginBottom(1)

	answerStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	summaryStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#10B981")).
			Padding(1, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6"))
)

const banner = `
  ____  _       _ _
 / ___|| |_ ___| | | __ _
 \___ \| __/ _ \ | |/ _' |
  ___) | ||  __/ | | (_| |
 |____/ \__\___|_|_|\__,_|
`

func displayWelcomeBanner(w io.Writer) {
	welcome := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true)
	tagline := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#3B82F6")).
		Italic(true).
		MarginBottom(1)

	fmt.Fprintln(w, welcome.Render(banner))
	fmt.Fprintln(w, tagline.Render("Ask about company reports, overviews, news and market highlights."))
}

func displayAnswer(w io.Writer, answer string) {
	fmt.Fprintln(w, answerStyle.Render(strings.TrimSpace(answer)))
}

func displayError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("✗ "+err.Error()))
}

func displayInfo(w io.Writer, msg string) {
	fmt.Fprintln(w, infoStyle.Render(msg))
}

func displaySuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, successStyle.Render("✓ "+msg))
}

// kv renders aligned "label: value" rows.
func kv(rows [][2]string) string {
	width := 0
	for _, r := range rows {
		if len(r[0]) > width {
			width = len(r[0])
		}
	}
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-*s", width+1, r[0]+":")))
		b.WriteString(" ")
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}
