package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	NoGPSData = "No GPS data"

	mapSpan = 0.01
)

// LocationCard shows where the image was taken when EXIF carries GPS data
type LocationCard struct {
	Available   bool
	Latitude    float64
	Longitude   float64
	Coordinates string
	MapURL      string
	Message     string
}

// BuildLocationCard derives coordinates from EXIF GPSLatitude/GPSLongitude.
// Values may be decimal degrees, numeric strings or [deg, min, sec] triples;
// a Ref of S or W negates them.
func BuildLocationCard(exif map[string]any) LocationCard {
	lat, okLat := gpsCoordinate(exif, "GPSLatitude", "GPSLatitudeRef", "S")
	lon, okLon := gpsCoordinate(exif, "GPSLongitude", "GPSLongitudeRef", "W")
	if !okLat || !okLon || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return LocationCard{Message: NoGPSData}
	}

	return LocationCard{
		Available:   true,
		Latitude:    lat,
		Longitude:   lon,
		Coordinates: FormatCoordinates(lat, lon),
		MapURL:      MapURL(lat, lon),
	}
}

// FormatCoordinates prints a position with hemisphere letters
func FormatCoordinates(lat, lon float64) string {
	ns, ew := "N", "E"
	if lat < 0 {
		ns = "S"
	}
	if lon < 0 {
		ew = "W"
	}
	return fmt.Sprintf("%.4f° %s, %.4f° %s", math.Abs(lat), ns, math.Abs(lon), ew)
}

// MapURL is an OpenStreetMap embed centred on the position with a marker
func MapURL(lat, lon float64) string {
	return fmt.Sprintf(
		"https://www.openstreetmap.org/export/embed.html?bbox=%.6f,%.6f,%.6f,%.6f&layer=mapnik&marker=%.6f,%.6f",
		lon-mapSpan, lat-mapSpan, lon+mapSpan, lat+mapSpan, lat, lon)
}

func gpsCoordinate(exif map[string]any, key, refKey, negativeRef string) (float64, bool) {
	raw, ok := exif[key]
	if !ok || raw == nil {
		return 0, false
	}

	value, ok := toDegrees(raw)
	if !ok {
		return 0, false
	}
	if ref, _ := exif[refKey].(string); strings.EqualFold(strings.TrimSpace(ref), negativeRef) {
		value = -math.Abs(value)
	}
	return value, true
}

func toDegrees(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	case []any:
		if len(v) == 0 || len(v) > 3 {
			return 0, false
		}
		var parts [3]float64
		for i, p := range v {
			f, ok := toDegrees(p)
			if !ok {
				return 0, false
			}
			parts[i] = f
		}
		return parts[0] + parts[1]/60 + parts[2]/3600, true
	default:
		return 0, false
	}
}
