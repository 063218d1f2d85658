package format

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/couchcryptid/wildfire-data-service/internal/domain"
)

// acqLayout is the combined acquisition timestamp emitted in feature properties.
const acqLayout = "2006-01-02T15:04:05Z"

var confidenceLetters = map[string]int{
	"l":       0,
	"low":     0,
	"n":       50,
	"nominal": 50,
	"m":       50,
	"medium":  50,
	"h":       100,
	"high":    100,
}

// ConfidenceScore maps a FIRMS confidence value onto 0..100. Letter codes
// use the fixed table above; integers are clamped. ok is false for anything
// else.
func ConfidenceScore(raw string) (score int, ok bool) {
	text := strings.TrimSpace(raw)
	if isDigits(text) {
		n, err := strconv.Atoi(text)
		if err != nil {
			// Only overflow gets here.
			return 100, true
		}
		return min(n, 100), true
	}
	score, ok = confidenceLetters[strings.ToLower(text)]
	return score, ok
}

// AcquisitionTime combines acq_date and an HHMM acq_time (zero-padded to four
// digits) into an ISO-8601 UTC timestamp.
func AcquisitionTime(date, hhmm string) (string, bool) {
	if date == "" || hhmm == "" {
		return "", false
	}
	if len(hhmm) < 4 {
		hhmm = strings.Repeat("0", 4-len(hhmm)) + hhmm
	}
	t, err := time.Parse("2006-01-02 1504", date+" "+hhmm)
	if err != nil {
		return "", false
	}
	return t.Format(acqLayout), true
}

// Feature converts a record to a GeoJSON Point feature keyed by its
// detection ID. ok is false when latitude or longitude is not numeric.
// Columns every record carries are passed through as strings, empty or not;
// the optional ones are null when blank.
func Feature(r domain.Record) (*geojson.Feature, bool) {
	lat, latOK := parseFloat(r.Latitude)
	lon, lonOK := parseFloat(r.Longitude)
	if !latOK || !lonOK {
		return nil, false
	}

	brightness := optionalFloat(r.BrightnessPrimary)
	if brightness == nil {
		brightness = optionalFloat(r.BrightnessSecondary)
	}

	props := map[string]any{
		"brightness":      brightness,
		"frp":             optionalFloat(r.FRP),
		"satellite":       optionalString(r.Satellite),
		"instrument":      optionalString(r.Instrument),
		"daynight":        optionalString(r.DayNight),
		"source":          r.SourceID,
		"country_id":      optionalString(r.CountryID),
		"confidence":      nil,
		"confidence_text": optionalString(r.Confidence),
		"acq_datetime":    nil,
		"acq_date":        r.AcquisitionDate,
		"acq_time":        r.AcquisitionTime,
		"bright_ti4":      r.BrightnessPrimary,
		"bright_ti5":      optionalString(r.BrightnessSecondary),
	}
	if c, ok := ConfidenceScore(r.Confidence); ok {
		props["confidence"] = c
	}
	if ts, ok := AcquisitionTime(r.AcquisitionDate, r.AcquisitionTime); ok {
		props["acq_datetime"] = ts
	}

	return &geojson.Feature{
		ID:         r.ID(),
		Geometry:   geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{lon, lat}),
		Properties: props,
	}, true
}

// FeatureCollection converts records in order, skipping those without
// numeric coordinates.
func FeatureCollection(records []domain.Record) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(records))}
	for _, r := range records {
		if f, ok := Feature(r); ok {
			fc.Features = append(fc.Features, f)
		}
	}
	return fc
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func optionalFloat(s string) any {
	if f, ok := parseFloat(s); ok {
		return f
	}
	return nil
}

func optionalString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
