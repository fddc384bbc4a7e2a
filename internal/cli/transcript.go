package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/raphaelgruber/flowsim-go/internal/models"
)

// isTTY reports whether stdout is an interactive terminal. Piped output
// gets plain text.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// renderTranscript renders a conversation, one utterance per line, with
// role-colored prefixes on a terminal.
func renderTranscript(conv *models.Conversation) string {
	if !isTTY() {
		return conv.String() + "\n"
	}

	var b strings.Builder
	for _, msg := range conv.Msgs {
		prefix := lipgloss.NewStyle().
			Foreground(msg.Role.Color()).
			Bold(true).
			Render(strings.TrimSpace(msg.Role.Prefix()))
		fmt.Fprintf(&b, "%s %s\n", prefix, msg.Content)
		if msg.ContentPredict != "" {
			pred := lipgloss.NewStyle().Faint(true).
				Render("predicted: " + msg.ContentPredict)
			fmt.Fprintf(&b, "  %s\n", pred)
		}
	}
	return b.String()
}
