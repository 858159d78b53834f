package ui

import (
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

var (
	modelStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")) // bright green
	explanationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))             // grey
)

// formatModel renders a model option, marking the current one
func formatModel(id string, current bool) string {
	if current {
		return modelStyle.Render(id) + explanationStyle.Render("  (current)")
	}
	return id
}

// modelOptions builds the picker options for offered, in registry order.
func modelOptions(offered []string, current string) []huh.Option[string] {
	options := make([]huh.Option[string], 0, len(offered))
	for _, id := range offered {
		options = append(options, huh.NewOption(formatModel(id, id == current), id))
	}
	return options
}

// SelectModel presents the offered models and returns the chosen one.
// The current model is preselected.
func SelectModel(offered []string, current string) (string, error) {
	selected := current

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select a model").
				Options(modelOptions(offered, current)...).
				Value(&selected),
		),
	)

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}
