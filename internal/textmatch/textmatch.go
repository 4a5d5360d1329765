// Package textmatch scores OCR output against text the user expected to see.
package textmatch

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/models"

	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"
)

// Normalize lowercases and collapses whitespace
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Verify compares expected against extracted text. It returns nil when no
// expected text was given.
//
// MatchScore is 100 * (1 - distance/max(len)), CER is distance/len(expected)
// and WER is the word error rate; all on normalized text.
func Verify(expected, extracted string) *models.TextVerification {
	ref := Normalize(expected)
	if ref == "" {
		return nil
	}
	hyp := Normalize(extracted)

	distance := levenshtein.Distance(ref, hyp)
	refLen := utf8.RuneCountInString(ref)
	longest := refLen
	if n := utf8.RuneCountInString(hyp); n > longest {
		longest = n
	}

	match := 100 * (1 - float64(distance)/float64(longest))
	wordErrorRate, _ := wer.WER(strings.Fields(ref), strings.Fields(hyp))

	return &models.TextVerification{
		ExpectedText: strings.TrimSpace(expected),
		MatchScore:   round2(match),
		CER:          round2(float64(distance) / float64(refLen)),
		WER:          round2(wordErrorRate),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
