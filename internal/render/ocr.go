package render

import (
	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/models"
)

const (
	NoTextDetected   = "No text detected in image"
	UnknownLanguage  = "Unknown"
	NoContentSignals = "No suspicious content signals detected"
	HighRiskTitle    = "High-Risk Content Detected"
	HighRiskMessage  = "Image contains text patterns commonly associated with phishing attempts and social engineering attacks."
)

// OCRCard is the text extraction and content signal card
type OCRCard struct {
	Text       string
	Confidence string
	Language   string

	Signals   []SignalView
	NoSignals bool
	HighRisk  bool

	Verification *VerificationView
}

// VerificationView compares the extracted text with what the user expected
type VerificationView struct {
	ExpectedText string
	MatchScore   string
	MatchTone    Tone
	CER          string
	WER          string
}

// BuildOCRCard renders the OCR payload and, when present, text verification
func BuildOCRCard(p *models.OCRPayload, v *models.TextVerification) OCRCard {
	if p == nil {
		p = &models.OCRPayload{}
	}

	card := OCRCard{
		Text:       p.Text,
		Confidence: fixed(p.Confidence, 1) + "%",
		Language:   p.Language,
		Signals:    signalViews(p.Signals, false),
		NoSignals:  len(p.Signals) == 0,
	}
	if card.Text == "" {
		card.Text = NoTextDetected
	}
	if card.Language == "" {
		card.Language = UnknownLanguage
	}
	for _, s := range p.Signals {
		if s.Type == models.SeverityDanger {
			card.HighRisk = true
			break
		}
	}

	if v != nil {
		card.Verification = &VerificationView{
			ExpectedText: v.ExpectedText,
			MatchScore:   fixed(v.MatchScore, 2) + "%",
			MatchTone:    matchTone(v.MatchScore),
			CER:          fixed(v.CER, 2),
			WER:          fixed(v.WER, 2),
		}
	}
	return card
}

func matchTone(score float64) Tone {
	switch {
	case score >= 90:
		return ToneGreen
	case score >= 60:
		return ToneYellow
	default:
		return ToneRed
	}
}
