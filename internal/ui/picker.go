package ui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned by [RunPicker] when the user quits without confirming.
var ErrCancelled = errors.New("selection cancelled")

// Picker is a multi-select list model.
type Picker struct {
	title     string
	load      func() ([]Choice, error)
	list      list.Model
	loaded    bool
	done      bool
	cancelled bool
	err       error
	width     int
	height    int
	help      help.Model
	keys      keyMap
}

// NewPicker creates a picker whose choices come from load.
func NewPicker(title string, load func() ([]Choice, error)) *Picker {
	return &Picker{
		title:  title,
		load:   load,
		list:   list.New(nil, list.NewDefaultDelegate(), 0, 0),
		width:  80,
		height: 24,
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// Init starts loading choices.
func (m *Picker) Init() tea.Cmd {
	return loadChoices(m.load)
}

// Update handles incoming messages and updates the model state.
func (m *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(max(m.width-4, 0), max(m.height-6, 0))
		return m, nil

	case choicesLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		items := make([]list.Item, len(msg.choices))
		for i, c := range msg.choices {
			items[i] = choiceItem{choice: c}
		}
		m.list = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.list.Title = m.title
		m.list.SetShowHelp(false)
		m.list.SetSize(max(m.width-4, 0), max(m.height-6, 0))
		m.loaded = true
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, m.keys.quit):
			m.cancelled = true
			return m, tea.Quit
		case !m.loaded:
			return m, nil
		case key.Matches(msg, m.keys.toggle):
			m.toggle(m.list.GlobalIndex())
			return m, nil
		case key.Matches(msg, m.keys.all):
			m.toggleAll()
			return m, nil
		case key.Matches(msg, m.keys.enter):
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Picker) toggle(index int) {
	items := m.list.Items()
	if index < 0 || index >= len(items) {
		return
	}
	item := items[index].(choiceItem)
	item.checked = !item.checked
	m.list.SetItem(index, item)
}

// toggleAll checks everything unless everything is already checked.
func (m *Picker) toggleAll() {
	items := m.list.Items()
	allChecked := len(items) > 0
	for _, it := range items {
		if !it.(choiceItem).checked {
			allChecked = false
			break
		}
	}
	for i, it := range items {
		item := it.(choiceItem)
		item.checked = !allChecked
		m.list.SetItem(i, item)
	}
}

// Selected returns the checked choices in list order. Confirming with nothing checked
// selects the highlighted row.
func (m *Picker) Selected() []Choice {
	var out []Choice
	for _, it := range m.list.Items() {
		if item := it.(choiceItem); item.checked {
			out = append(out, item.choice)
		}
	}
	if len(out) == 0 && m.done {
		if item, ok := m.list.SelectedItem().(choiceItem); ok {
			out = append(out, item.choice)
		}
	}
	return out
}

// Cancelled reports whether the user quit without confirming.
func (m *Picker) Cancelled() bool { return m.cancelled }

// Err is the loader error, if any.
func (m *Picker) Err() error { return m.err }

// View renders the UI based on the current state.
func (m *Picker) View() string {
	if m.err != nil {
		return Error(fmt.Sprintf("Error: %v", m.err))
	}
	if !m.loaded {
		return Muted(fmt.Sprintf("Loading %s...", m.title))
	}
	return fmt.Sprintf("%s\n\n%s", m.list.View(), m.help.ShortHelpView(m.keys.ShortHelp()))
}

// RunPicker shows the picker full screen and returns the confirmed choices.
func RunPicker(title string, load func() ([]Choice, error)) ([]Choice, error) {
	picker := NewPicker(title, load)
	if _, err := tea.NewProgram(picker, tea.WithAltScreen()).Run(); err != nil {
		return nil, fmt.Errorf("picker failed: %w", err)
	}
	if picker.Err() != nil {
		return nil, picker.Err()
	}
	if picker.Cancelled() {
		return nil, ErrCancelled
	}
	return picker.Selected(), nil
}
