package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrPromptCancelled is returned when the user aborts a prompt.
var ErrPromptCancelled = errors.New("prompt cancelled")

// Choice is one selectable prompt answer.
type Choice struct {
	Key   string
	Label string
}

// promptModel is a minimal single-question choice screen.
type promptModel struct {
	title     string
	choices   []Choice
	selection int
	chosen    bool
	cancelled bool
}

func newPromptModel(title string, choices []Choice) promptModel {
	return promptModel{
		title:   title,
		choices: choices,
	}
}

// Init initializes the model
func (m promptModel) Init() tea.Cmd {
	return nil
}

// Update handles key presses for the prompt.
func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.cancelled = true
		return m, tea.Quit
	case tea.KeyUp:
		return m.navigateUp(), nil
	case tea.KeyDown:
		return m.navigateDown(), nil
	case tea.KeyEnter, tea.KeySpace:
		m.chosen = true
		return m, tea.Quit
	case tea.KeyRunes:
		return m.handleRune(string(keyMsg.Runes))
	}
	return m, nil
}

func (m promptModel) handleRune(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q":
		m.cancelled = true
		return m, tea.Quit
	case "k":
		return m.navigateUp(), nil
	case "j":
		return m.navigateDown(), nil
	}

	for i, choice := range m.choices {
		if choice.Key == key {
			m.selection = i
			m.chosen = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m promptModel) navigateUp() promptModel {
	if m.selection > 0 {
		m.selection--
	} else {
		m.selection = len(m.choices) - 1
	}
	return m
}

func (m promptModel) navigateDown() promptModel {
	if m.selection < len(m.choices)-1 {
		m.selection++
	} else {
		m.selection = 0
	}
	return m
}

// View renders the prompt.
func (m promptModel) View() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff")).MarginBottom(1)
	itemStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#00d7ff")).Bold(true)
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(1)

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	for i, choice := range m.choices {
		line := fmt.Sprintf("[%s] %s", choice.Key, choice.Label)
		if i == m.selection {
			b.WriteString(selectedStyle.Render(line))
		} else {
			b.WriteString(itemStyle.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Navigate: ↑/↓ or keys | Select: Enter | Cancel: Esc/q"))
	b.WriteString("\n")

	return b.String()
}

// Prompt runs a single choice prompt on the terminal and returns the
// selected choice. Callers must not invoke this in non-interactive
// runs; they answer with their safe default instead.
func Prompt(title string, choices []Choice) (Choice, error) {
	if len(choices) == 0 {
		return Choice{}, errors.New("prompt needs at least one choice")
	}

	program := tea.NewProgram(newPromptModel(title, choices))
	final, err := program.Run()
	if err != nil {
		return Choice{}, fmt.Errorf("prompt failed: %w", err)
	}

	m, ok := final.(promptModel)
	if !ok || m.cancelled || !m.chosen {
		return Choice{}, ErrPromptCancelled
	}
	return m.choices[m.selection], nil
}

// Confirm asks a yes/no question; cancelling counts as no.
func Confirm(title string) (bool, error) {
	choice, err := Prompt(title, []Choice{
		{Key: "y", Label: "Yes"},
		{Key: "n", Label: "No"},
	})
	if err != nil {
		if errors.Is(err, ErrPromptCancelled) {
			return false, nil
		}
		return false, err
	}
	return choice.Key == "y", nil
}
