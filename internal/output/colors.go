package output

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// NoColor returns true if colored output should be disabled.
// Respects the NO_COLOR environment variable (https://no-color.org/).
func NoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

var (
	ColorSuccess = lipgloss.Color("#2ECC71")
	ColorWarning = lipgloss.Color("#F39C12")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorInfo    = lipgloss.Color("#3498DB")
	ColorMuted   = lipgloss.Color("#95A5A6")
	ColorAccent  = lipgloss.Color("#9B59B6")
)

var (
	StyleBold    = lipgloss.NewStyle().Bold(true)
	StyleTitle   = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError)
	StyleInfo    = lipgloss.NewStyle().Foreground(ColorInfo)
	StyleMuted   = lipgloss.NewStyle().Foreground(ColorMuted)

	// StyleBox frames the end-of-run summary.
	StyleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1)
)

// LevelStyle maps a summary level ("success", "warn", "error", "info") to a
// style. Unknown levels render plain.
func LevelStyle(level string) lipgloss.Style {
	if NoColor() {
		return lipgloss.NewStyle()
	}
	switch level {
	case "success":
		return StyleSuccess
	case "warn":
		return StyleWarning
	case "error":
		return StyleError
	case "info":
		return StyleInfo
	}
	return lipgloss.NewStyle()
}

// plainStyles returns log styles with level colors removed.
func plainStyles() *log.Styles {
	styles := log.DefaultStyles()
	for lvl, st := range styles.Levels {
		styles.Levels[lvl] = st.UnsetForeground()
	}
	return styles
}
