// Package ui holds the terminal presentation layer: a lipgloss palette for CLI output, a
// confirmation prompt and a bubbletea multi-select [Picker].
//
// The [Picker] follows bubbletea's Init/Update/View pattern. Choices are loaded by a command
// returned from Init so the list appears as soon as the catalog answers. Space toggles an
// entry, enter confirms, q or esc cancels.
package ui
