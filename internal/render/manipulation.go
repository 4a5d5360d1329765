package render

import (
	"math"
	"strings"

	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/models"
)

const (
	edgeHighThreshold   = 15.0
	edgeMediumThreshold = 8.0
	entropyThreshold    = 6.5
	entropyMax          = 8.0

	NoManipulationIndicators = "No significant manipulation indicators detected"
	defaultLikelihood        = "low"
)

// Meter is a labelled score with a horizontal bar; Width is a percentage
type Meter struct {
	Name    string
	Label   string
	Tone    Tone
	Width   float64
	Caption string
}

// ManipulationCard is the forensics card
type ManipulationCard struct {
	Blur    Meter
	Edge    Meter
	Entropy Meter

	Likelihood     string
	LikelihoodTone Tone

	Findings []SignalView
	Clean    bool
}

// BlurMeter labels blur as Detected or Clear; the bar is min(100, score/5)
func BlurMeter(a models.ForensicsAnalysis) Meter {
	m := Meter{
		Name:    "Blur Detection",
		Label:   "Clear",
		Tone:    ToneGreen,
		Width:   math.Min(100, a.BlurScore/5),
		Caption: "Score: " + fixed(a.BlurScore, 2),
	}
	if a.BlurDetected {
		m.Label = "Detected"
		m.Tone = ToneYellow
	}
	return m
}

// EdgeMeter works on the density as a percentage: above 15 is High,
// above 8 is Medium, anything else Low. The bar is min(100, pct*5).
func EdgeMeter(a models.ForensicsAnalysis) Meter {
	pct := a.EdgeDensity * 100
	return Meter{
		Name:    "Edge Density",
		Label:   EdgeLabel(pct),
		Tone:    ToneBlue,
		Width:   math.Min(100, pct*5),
		Caption: fixed(pct, 2) + "%",
	}
}

// EdgeLabel classifies an edge density percentage
func EdgeLabel(pct float64) string {
	switch {
	case pct > edgeHighThreshold:
		return "High"
	case pct > edgeMediumThreshold:
		return "Medium"
	default:
		return "Low"
	}
}

// EntropyMeter flags entropy below 6.5 bits as Compressed
func EntropyMeter(a models.ForensicsAnalysis) Meter {
	m := Meter{
		Name:    "Histogram Entropy",
		Label:   "Normal",
		Tone:    ToneGreen,
		Width:   a.HistogramEntropy / entropyMax * 100,
		Caption: "Entropy: " + fixed(a.HistogramEntropy, 2),
	}
	if a.HistogramEntropy < entropyThreshold {
		m.Label = "Compressed"
		m.Tone = ToneYellow
	}
	return m
}

// LikelihoodTone colours a manipulation likelihood label
func LikelihoodTone(likelihood string) Tone {
	switch likelihood {
	case "high":
		return ToneRed
	case "medium":
		return ToneYellow
	default:
		return ToneGreen
	}
}

// BuildManipulationCard renders the forensics payload
func BuildManipulationCard(p *models.ForensicsPayload) ManipulationCard {
	if p == nil {
		p = &models.ForensicsPayload{}
	}

	likelihood := strings.TrimSpace(p.ManipulationLikelihood)
	if likelihood == "" {
		likelihood = defaultLikelihood
	}

	return ManipulationCard{
		Blur:           BlurMeter(p.Analysis),
		Edge:           EdgeMeter(p.Analysis),
		Entropy:        EntropyMeter(p.Analysis),
		Likelihood:     likelihood,
		LikelihoodTone: LikelihoodTone(likelihood),
		Findings:       signalViews(p.Findings, true),
		Clean:          len(p.Findings) == 0 && likelihood == defaultLikelihood,
	}
}
