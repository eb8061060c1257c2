package styles

import "github.com/charmbracelet/lipgloss"

// Palette holds the colors a scheme is built from.
type Palette struct {
	Accent  lipgloss.Color
	Surface lipgloss.Color
	Raised  lipgloss.Color
	Dim     lipgloss.Color
	Muted   lipgloss.Color
	Text    lipgloss.Color
	Like    lipgloss.Color
	Repost  lipgloss.Color
	Error   lipgloss.Color
}

var (
	Dark = Palette{
		Accent:  lipgloss.Color("#1185FE"),
		Surface: lipgloss.Color("#161E27"),
		Raised:  lipgloss.Color("#2E4052"),
		Dim:     lipgloss.Color("#6B7F94"),
		Muted:   lipgloss.Color("#AEBBC9"),
		Text:    lipgloss.Color("#F1F3F5"),
		Like:    lipgloss.Color("#EC4899"),
		Repost:  lipgloss.Color("#20BC07"),
		Error:   lipgloss.Color("#EF4444"),
	}
	Light = Palette{
		Accent:  lipgloss.Color("#0A7AFF"),
		Surface: lipgloss.Color("#FFFFFF"),
		Raised:  lipgloss.Color("#E2E7EE"),
		Dim:     lipgloss.Color("#8D9CAD"),
		Muted:   lipgloss.Color("#42576C"),
		Text:    lipgloss.Color("#0B0F14"),
		Like:    lipgloss.Color("#D0237A"),
		Repost:  lipgloss.Color("#13880A"),
		Error:   lipgloss.Color("#C81E1E"),
	}
)

// Current is the palette the styles below were built from.
var Current = Dark

// Borders
var (
	ActiveBorder   lipgloss.Style
	InactiveBorder lipgloss.Style
)

// Text styles
var (
	TitleStyle     lipgloss.Style
	HandleStyle    lipgloss.Style
	BodyStyle      lipgloss.Style
	DimStyle       lipgloss.Style
	AccentStyle    lipgloss.Style
	ErrorStyle     lipgloss.Style
	LikedStyle     lipgloss.Style
	RepostedStyle  lipgloss.Style
	SelectedStyle  lipgloss.Style
	BannerStyle    lipgloss.Style
	BadgeStyle     lipgloss.Style
	SpinnerStyle   lipgloss.Style
	FilterStyle    lipgloss.Style
	FilterPrompt   lipgloss.Style
	ModalStyle     lipgloss.Style
	ModalTitle     lipgloss.Style
	HelpKeyStyle   lipgloss.Style
	HelpDescStyle  lipgloss.Style
	SuggestStyle   lipgloss.Style
	SuggestCurrent lipgloss.Style
)

func init() { Use(Dark) }

// Use rebuilds every style from p.
func Use(p Palette) {
	Current = p

	ActiveBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.Accent)
	InactiveBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.Dim)

	TitleStyle = lipgloss.NewStyle().Foreground(p.Text).Bold(true)
	HandleStyle = lipgloss.NewStyle().Foreground(p.Dim)
	BodyStyle = lipgloss.NewStyle().Foreground(p.Muted)
	DimStyle = lipgloss.NewStyle().Foreground(p.Dim)
	AccentStyle = lipgloss.NewStyle().Foreground(p.Accent)
	ErrorStyle = lipgloss.NewStyle().Foreground(p.Error)
	LikedStyle = lipgloss.NewStyle().Foreground(p.Like)
	RepostedStyle = lipgloss.NewStyle().Foreground(p.Repost)
	SelectedStyle = lipgloss.NewStyle().Background(p.Raised)
	BannerStyle = lipgloss.NewStyle().Foreground(p.Text).Background(p.Accent).Bold(true).Padding(0, 1)
	BadgeStyle = lipgloss.NewStyle().Foreground(p.Text).Background(p.Accent).Padding(0, 1)
	SpinnerStyle = lipgloss.NewStyle().Foreground(p.Accent)
	FilterStyle = lipgloss.NewStyle().Foreground(p.Accent)
	FilterPrompt = lipgloss.NewStyle().Foreground(p.Accent).Bold(true)
	ModalStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.Accent).
		Padding(1, 2).
		Background(p.Surface)
	ModalTitle = lipgloss.NewStyle().Foreground(p.Text).Bold(true).MarginBottom(1)
	HelpKeyStyle = lipgloss.NewStyle().Foreground(p.Accent)
	HelpDescStyle = lipgloss.NewStyle().Foreground(p.Dim)
	SuggestStyle = lipgloss.NewStyle().Foreground(p.Muted)
	SuggestCurrent = lipgloss.NewStyle().Foreground(p.Text).Background(p.Raised)
}

// UseScheme selects the palette for a color scheme setting. "system"
// follows the terminal background.
func UseScheme(scheme string) {
	switch scheme {
	case "light":
		Use(Light)
	case "dark":
		Use(Dark)
	default:
		if lipgloss.HasDarkBackground() {
			Use(Dark)
		} else {
			Use(Light)
		}
	}
}

// Truncate shortens s to width cells, ending with an ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
