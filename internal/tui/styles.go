package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/charlesng35/learnhub/internal/models"
)

var (
	colorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	colorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorOrange = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	colorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	colorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite).
			Background(colorBlue).
			Padding(0, 1)

	bannerStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Italic(true)

	itemStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			Bold(true).
			Foreground(colorBlue).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(colorBlue)

	readStyle = lipgloss.NewStyle().Foreground(colorGray)

	mutedStyle = lipgloss.NewStyle().Foreground(colorGray)

	statusStyle = lipgloss.NewStyle().Foreground(colorGreen)

	dividerStyle = lipgloss.NewStyle().Foreground(colorBorder)

	popupStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorOrange)

	popupTitleStyle = lipgloss.NewStyle().Bold(true)
)

func notificationTypeStyle(kind string) lipgloss.Style {
	switch kind {
	case models.NotificationTypeSuccess:
		return lipgloss.NewStyle().Foreground(colorGreen)
	case models.NotificationTypeWarning:
		return lipgloss.NewStyle().Foreground(colorYellow)
	case models.NotificationTypeError:
		return lipgloss.NewStyle().Foreground(colorRed)
	default:
		return lipgloss.NewStyle().Foreground(colorBlue)
	}
}

func reminderPriorityStyle(priority string) lipgloss.Style {
	switch priority {
	case models.ReminderPriorityUrgent:
		return lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	case models.ReminderPriorityHigh:
		return lipgloss.NewStyle().Foreground(colorOrange)
	case models.ReminderPriorityLow:
		return lipgloss.NewStyle().Foreground(colorGray)
	default:
		return lipgloss.NewStyle().Foreground(colorBlue)
	}
}
