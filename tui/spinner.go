// Package tui provides the small terminal frontend shown while a
// classification request is in flight.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// doneMsg carries the outcome of the background work back into the
// bubbletea loop.
type doneMsg struct {
	err error
}

// waitModel spins until the work function finishes or the user quits.
type waitModel struct {
	spinner  spinner.Model
	status   string
	work     func() error
	cancel   func()
	err      error
	canceled bool
}

// NewWait builds a spinner program around a blocking work function.
// cancel is invoked when the user quits before the work finishes, so
// callers can abort the underlying request context.
func NewWait(status string, work func() error, cancel func()) *tea.Program {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return tea.NewProgram(waitModel{
		spinner: s,
		status:  status,
		work:    work,
		cancel:  cancel,
	})
}

func (m waitModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg {
			return doneMsg{err: m.work()}
		},
	)
}

func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		if m.canceled {
			// Quit already handled; ignore the late result.
			return m, nil
		}
		m.err = msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.canceled = true
			m.err = context.Canceled
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
}

func (m waitModel) View() string {
	if m.canceled {
		return errorStyle.Render("✗ canceled") + "\n"
	}
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("✗ %v", m.err)) + "\n"
	}
	return fmt.Sprintf("%s %s\n", m.spinner.View(), statusStyle.Render(m.status))
}

// Canceled reports whether the user quit before the work finished.
func Canceled(m tea.Model) bool {
	if wm, ok := m.(waitModel); ok {
		return wm.canceled
	}
	return false
}

// Err returns the error recorded by the finished model, if any.
func Err(m tea.Model) error {
	if wm, ok := m.(waitModel); ok {
		return wm.err
	}
	return nil
}
