package ui

import (
	"github.com/charmbracelet/bubbles/list"
)

var _ list.Item = choiceItem{}

// Choice is one selectable row: a favorites list, a playlist or a search result.
type Choice struct {
	ID          string
	Label       string
	Description string
}

// choiceItem wraps [Choice] to implement [list.Item].
type choiceItem struct {
	choice  Choice
	checked bool
}

func (i choiceItem) FilterValue() string { return i.choice.Label }
func (i choiceItem) Title() string {
	if i.checked {
		return "[x] " + i.choice.Label
	}
	return "[ ] " + i.choice.Label
}
func (i choiceItem) Description() string { return i.choice.Description }
