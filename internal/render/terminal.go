package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const barCells = 20

// Palette maps tones to terminal colours
type Palette struct {
	Red    lipgloss.Color
	Yellow lipgloss.Color
	Green  lipgloss.Color
	Blue   lipgloss.Color
	Cyan   lipgloss.Color
	Purple lipgloss.Color
	Muted  lipgloss.Color
	Border lipgloss.Color
}

// DefaultPalette returns the dark-background palette
func DefaultPalette() Palette {
	return Palette{
		Red:    lipgloss.Color("#F38BA8"),
		Yellow: lipgloss.Color("#F9E2AF"),
		Green:  lipgloss.Color("#A6E3A1"),
		Blue:   lipgloss.Color("#89B4FA"),
		Cyan:   lipgloss.Color("#06B6D4"),
		Purple: lipgloss.Color("#7C3AED"),
		Muted:  lipgloss.Color("#6C7086"),
		Border: lipgloss.Color("#45475A"),
	}
}

func (p Palette) color(t Tone) lipgloss.Color {
	switch t {
	case ToneRed:
		return p.Red
	case ToneYellow:
		return p.Yellow
	case ToneGreen:
		return p.Green
	case ToneBlue:
		return p.Blue
	case TonePurple:
		return p.Purple
	default:
		return p.Cyan
	}
}

// Terminal renders dashboards as bordered cards for the CLI
type Terminal struct {
	palette Palette
	card    lipgloss.Style
	title   lipgloss.Style
	label   lipgloss.Style
}

// NewTerminal creates a terminal renderer; width is the card width in cells
func NewTerminal(width int) *Terminal {
	if width <= 0 {
		width = 72
	}
	p := DefaultPalette()
	return &Terminal{
		palette: p,
		card: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(p.Border).
			Padding(0, 1).
			Width(width),
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.Cyan),
		label: lipgloss.NewStyle().
			Foreground(p.Muted),
	}
}

func (t *Terminal) tone(tone Tone) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.palette.color(tone))
}

// Dashboard renders every card, one below the other
func (t *Terminal) Dashboard(d Dashboard) string {
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		t.title.Render(d.FileName),
		"  ",
		t.tone(ToneGreen).Render("✓ "+d.Badge),
	)
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		t.OCR(d.OCR),
		t.Manipulation(d.Manipulation),
		t.Metadata(d.Metadata),
		t.Location(d.Location),
	)
}

// OCR renders the text extraction card
func (t *Terminal) OCR(c OCRCard) string {
	var b strings.Builder
	b.WriteString(t.title.Render("Text Extraction & Content Signals") + "\n")
	b.WriteString(c.Text + "\n\n")
	b.WriteString(t.row("Text Confidence", c.Confidence, ToneBlue))
	b.WriteString(t.row("Language", c.Language, TonePurple))

	if c.Verification != nil {
		b.WriteString(t.row("Expected Text", c.Verification.ExpectedText, ToneCyan))
		b.WriteString(t.row("Match Score", c.Verification.MatchScore, c.Verification.MatchTone))
		b.WriteString(t.row("CER / WER", c.Verification.CER+" / "+c.Verification.WER, ToneCyan))
	}

	b.WriteString("\n")
	if c.NoSignals {
		b.WriteString(t.tone(ToneGreen).Render("✓ "+NoContentSignals) + "\n")
	}
	for _, s := range c.Signals {
		b.WriteString(t.signal(s))
	}
	if c.HighRisk {
		b.WriteString(t.tone(ToneRed).Bold(true).Render("⚠ "+HighRiskTitle) + "\n")
	}
	return t.card.Render(strings.TrimRight(b.String(), "\n"))
}

// Manipulation renders the forensics card
func (t *Terminal) Manipulation(c ManipulationCard) string {
	var b strings.Builder
	b.WriteString(t.title.Render("Manipulation Analysis") + "\n")
	for _, m := range []Meter{c.Blur, c.Edge, c.Entropy} {
		b.WriteString(t.meter(m))
	}
	b.WriteString(t.row("Manipulation Likelihood", c.Likelihood, c.LikelihoodTone))
	for _, f := range c.Findings {
		b.WriteString(t.signal(f))
	}
	if c.Clean {
		b.WriteString(t.tone(ToneGreen).Render("✓ "+NoManipulationIndicators) + "\n")
	}
	return t.card.Render(strings.TrimRight(b.String(), "\n"))
}

// Metadata renders the EXIF card
func (t *Terminal) Metadata(c MetadataCard) string {
	var b strings.Builder
	b.WriteString(t.title.Render("Metadata & Forensics") + "\n")
	for _, r := range c.Rows {
		b.WriteString(t.row(r.Label, r.Value, r.Tone))
	}
	if c.Warning != "" {
		b.WriteString(t.tone(ToneYellow).Render("! "+c.Warning) + "\n")
	}
	if c.NoEXIF {
		b.WriteString(t.tone(ToneBlue).Render("i "+NoEXIFNotice) + "\n")
	}
	return t.card.Render(strings.TrimRight(b.String(), "\n"))
}

// Location renders the GPS card
func (t *Terminal) Location(c LocationCard) string {
	var b strings.Builder
	b.WriteString(t.title.Render("Location Intelligence") + "\n")
	if !c.Available {
		b.WriteString(t.label.Render(c.Message))
	} else {
		b.WriteString(t.row("Coordinates", c.Coordinates, ToneCyan))
		b.WriteString(t.row("Map", c.MapURL, ToneBlue))
	}
	return t.card.Render(strings.TrimRight(b.String(), "\n"))
}

func (t *Terminal) row(label, value string, tone Tone) string {
	return fmt.Sprintf("%s %s\n", t.label.Render(label+":"), t.tone(tone).Render(value))
}

func (t *Terminal) signal(s SignalView) string {
	marker := "•"
	if s.Alert {
		marker = "⚠"
	}
	line := marker + " " + s.Label
	if s.Confidence != "" {
		line += " (" + s.Confidence + ")"
	}
	return t.tone(s.Tone).Render(line) + "\n"
}

func (t *Terminal) meter(m Meter) string {
	filled := int(m.Width / 100 * barCells)
	if filled < 0 {
		filled = 0
	}
	if filled > barCells {
		filled = barCells
	}
	bar := t.tone(m.Tone).Render(strings.Repeat("█", filled)) +
		t.label.Render(strings.Repeat("░", barCells-filled))
	return fmt.Sprintf("%s %s %s %s\n",
		t.label.Render(m.Name+":"), t.tone(m.Tone).Render(m.Label), bar, t.label.Render(m.Caption))
}
