package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/flowsim-go/internal/runner"
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// batchMsg carries pool progress counts.
type batchMsg struct {
	done   int
	total  int
	failed int
}

// batchDoneMsg signals that the pool drained.
type batchDoneMsg struct {
	summary *runner.Summary
}

// batchModel is the bubbletea model for batch progress.
type batchModel struct {
	label    string
	progress progress.Model
	theme    Theme
	cancel   context.CancelFunc

	done    int
	total   int
	failed  int
	summary *runner.Summary
}

func newBatchModel(label string, total int, cancel context.CancelFunc) batchModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return batchModel{
		label:    label,
		progress: prog,
		theme:    defaultTheme,
		total:    total,
		cancel:   cancel,
	}
}

func (m batchModel) Init() tea.Cmd {
	return m.progress.Init()
}

func (m batchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
			return m, nil
		}

	case batchMsg:
		m.done = msg.done
		m.total = msg.total
		m.failed = msg.failed
		return m, nil

	case batchDoneMsg:
		m.summary = msg.summary
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m batchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m batchModel) renderContent() string {
	if m.summary != nil {
		return renderSummary(m.theme, m.summary)
	}

	var pct float64
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.label))
	counts := fmt.Sprintf("%d/%d units", m.done, m.total)
	if m.failed > 0 {
		counts += m.theme.errorStyle().Render(fmt.Sprintf(" (%d failed)", m.failed))
	}
	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop after in-flight units")

	return fmt.Sprintf("%s %s %s\n%s\n", status, m.progress.ViewAs(pct), counts, hint)
}

func renderSummary(theme Theme, s *runner.Summary) string {
	var output string
	if s.Failed == 0 {
		output += theme.completedStyle().Render("✓ Completed") + "\n\n"
	} else {
		output += theme.errorStyle().Render(fmt.Sprintf("✗ Completed with %d failures", s.Failed)) + "\n\n"
	}
	output += fmt.Sprintf("  Units:     %d\n", s.Total)
	output += fmt.Sprintf("  Completed: %d\n", s.Completed)
	output += fmt.Sprintf("  Skipped:   %d\n", s.Skipped)
	output += fmt.Sprintf("  Elapsed:   %s\n", s.Elapsed.Round(time.Millisecond))
	if len(s.Errors) > 0 {
		output += theme.errorStyle().Render(fmt.Sprintf("\nErrors (%d):\n", len(s.Errors)))
		for _, e := range s.Errors {
			output += fmt.Sprintf("  • %s\n", e)
		}
	}
	return output
}

// runBatch drains units over the worker pool, with a live progress bar on
// a terminal and plain log output otherwise.
func runBatch(ctx context.Context, label string, units []runner.Unit, workers int, do runner.Do) *runner.Summary {
	if !isTTY() {
		return runner.RunAll(ctx, units, workers, do, nil, logger)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newBatchModel(label, len(units), cancel))

	summaryCh := make(chan *runner.Summary, 1)
	go func() {
		summary := runner.RunAll(ctx, units, workers, do, func(done, total, failed int) {
			p.Send(batchMsg{done: done, total: total, failed: failed})
		}, logger)
		summaryCh <- summary
		p.Send(batchDoneMsg{summary: summary})
	}()

	if _, err := p.Run(); err != nil {
		// Terminal trouble does not abort the batch, fall back to waiting.
		fmt.Printf("progress display failed: %v\n", err)
	}
	return <-summaryCh
}
