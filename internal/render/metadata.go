package render

import (
	"fmt"

	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/models"
)

const NoEXIFNotice = "No EXIF metadata found - image may have been processed or edited"

const hashPrefixLen = 8

// MetadataCard is the EXIF, file and hash card
type MetadataCard struct {
	Rows    []Row
	Warning string
	NoEXIF  bool
}

var exifRows = []struct {
	key   string
	label string
	tone  Tone
}{
	{"Make", "Camera Make", ToneCyan},
	{"Model", "Camera Model", ToneCyan},
	{"DateTime", "Date Taken", ToneCyan},
	{"Software", "Software", ToneYellow},
}

// BuildMetadataCard renders the metadata payload plus the hashes the
// forensics facet reports. Either argument may be nil.
func BuildMetadataCard(md *models.MetadataPayload, fx *models.ForensicsPayload) MetadataCard {
	if md == nil {
		md = &models.MetadataPayload{}
	}

	var card MetadataCard
	for _, r := range exifRows {
		if value := exifString(md.EXIF, r.key); value != "" {
			card.Rows = append(card.Rows, Row{Label: r.label, Value: value, Tone: r.tone, Mono: true})
		}
	}

	if md.Size != nil {
		card.Rows = append(card.Rows, Row{
			Label: "Resolution",
			Value: fmt.Sprintf("%d × %d", md.Size.Width, md.Size.Height),
			Tone:  ToneCyan,
			Mono:  true,
		})
	}
	if md.FileSize != 0 {
		card.Rows = append(card.Rows, Row{Label: "File Size", Value: FormatFileSize(md.FileSize), Tone: ToneCyan, Mono: true})
	}
	if md.Format != "" {
		card.Rows = append(card.Rows, Row{Label: "Format", Value: md.Format, Tone: ToneCyan, Mono: true})
	}

	if fx != nil && fx.Hashes != nil {
		if fx.Hashes.SHA256 != "" {
			card.Rows = append(card.Rows, Row{Label: "File Hash (SHA-256)", Value: HashPrefix(fx.Hashes.SHA256), Tone: ToneCyan, Mono: true})
		}
		if fx.Hashes.MD5 != "" {
			card.Rows = append(card.Rows, Row{Label: "MD5 Hash", Value: HashPrefix(fx.Hashes.MD5), Tone: ToneCyan, Mono: true})
		}
	}

	card.Warning = WarningMessage(md.Warnings)
	card.NoEXIF = len(md.EXIF) == 0
	return card
}

// FormatFileSize prints bytes as B, KB or MB
func FormatFileSize(bytes float64) string {
	switch {
	case bytes < 1024:
		return formatNumber(bytes) + " B"
	case bytes < 1024*1024:
		return fixed(bytes/1024, 2) + " KB"
	default:
		return fixed(bytes/(1024*1024), 2) + " MB"
	}
}

// HashPrefix shortens a digest for display
func HashPrefix(hash string) string {
	if len(hash) > hashPrefixLen {
		hash = hash[:hashPrefixLen]
	}
	return hash + "..."
}

// WarningMessage picks the first danger warning, else the first warning
func WarningMessage(warnings []models.MetadataWarning) string {
	if len(warnings) == 0 {
		return ""
	}
	for _, w := range warnings {
		if w.Type == string(models.SeverityDanger) {
			return w.Message
		}
	}
	return warnings[0].Message
}

func exifString(exif map[string]any, key string) string {
	v, ok := exif[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatNumber(t)
	default:
		return fmt.Sprint(t)
	}
}
