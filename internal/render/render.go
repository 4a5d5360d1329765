// Package render turns analysis payloads into display-ready card view models.
//
// Every builder accepts nil or partially filled payloads and degrades to a
// neutral "no data" view instead of failing. The thresholds used to label
// scores are display heuristics.
package render

import (
	"strconv"

	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/models"
)

// Tone is the colour family a value is displayed with
type Tone string

const (
	ToneRed    Tone = "red"
	ToneYellow Tone = "yellow"
	ToneGreen  Tone = "green"
	ToneBlue   Tone = "blue"
	ToneCyan   Tone = "cyan"
	TonePurple Tone = "purple"
)

// SignalView is one classified observation ready for display
type SignalView struct {
	Label      string
	Tone       Tone
	Alert      bool
	Confidence string
}

// Row is a label/value line of a card
type Row struct {
	Label string
	Value string
	Tone  Tone
	Mono  bool
}

// severityTone maps danger to red and warning to yellow; anything else is blue
func severityTone(s models.Severity) Tone {
	switch s {
	case models.SeverityDanger:
		return ToneRed
	case models.SeverityWarning:
		return ToneYellow
	default:
		return ToneBlue
	}
}

func signalViews(signals []models.Signal, confidenceOnlyIfSet bool) []SignalView {
	views := make([]SignalView, 0, len(signals))
	for _, s := range signals {
		v := SignalView{
			Label: s.Label,
			Tone:  severityTone(s.Type),
			Alert: s.Type == models.SeverityDanger || s.Type == models.SeverityWarning,
		}
		if !confidenceOnlyIfSet || s.Confidence != 0 {
			v.Confidence = formatNumber(s.Confidence) + "%"
		}
		views = append(views, v)
	}
	return views
}

// fixed formats with a fixed number of decimals
func fixed(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// formatNumber prints the shortest representation, so 92 stays "92"
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
