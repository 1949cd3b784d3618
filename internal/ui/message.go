package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

var _ tea.Msg = choicesLoadedMsg{}

// choicesLoadedMsg carries the result of the picker's loader.
type choicesLoadedMsg struct {
	choices []Choice
	err     error
}

func loadChoices(load func() ([]Choice, error)) tea.Cmd {
	return func() tea.Msg {
		choices, err := load()
		return choicesLoadedMsg{choices: choices, err: err}
	}
}
