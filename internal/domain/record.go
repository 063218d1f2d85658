package domain

import (
	"sort"
	"strings"
)

// RawRow maps source-native CSV column names to their string values.
type RawRow map[string]string

// Record is one normalized fire detection. The five required fields are
// always present and default to "" (unknown); optional fields are omitted
// from JSON when the source had no matching column.
type Record struct {
	Latitude            string `json:"latitude"`
	Longitude           string `json:"longitude"`
	BrightnessPrimary   string `json:"bright_ti4"`
	BrightnessSecondary string `json:"bright_ti5,omitempty"`
	FRP                 string `json:"frp,omitempty"`
	AcquisitionDate     string `json:"acq_date"`
	AcquisitionTime     string `json:"acq_time"`
	Confidence          string `json:"confidence,omitempty"`
	Satellite           string `json:"satellite,omitempty"`
	Instrument          string `json:"instrument,omitempty"`
	DayNight            string `json:"daynight,omitempty"`
	CountryID           string `json:"country_id,omitempty"`
	SourceID            string `json:"source,omitempty"`
}

type fieldAliases struct {
	aliases []string
	set     func(r *Record, v string)
}

// recordFields lists, per canonical field, the accepted column names in
// priority order. Matching is case-insensitive.
var recordFields = []fieldAliases{
	{[]string{"latitude", "lat"}, func(r *Record, v string) { r.Latitude = v }},
	{[]string{"longitude", "lon", "long"}, func(r *Record, v string) { r.Longitude = v }},
	{[]string{"bright_ti4", "brightness", "bright_t31"}, func(r *Record, v string) { r.BrightnessPrimary = v }},
	{[]string{"bright_ti5", "bright_t21", "bright_t22"}, func(r *Record, v string) { r.BrightnessSecondary = v }},
	{[]string{"frp", "fire_radiative_power"}, func(r *Record, v string) { r.FRP = v }},
	{[]string{"acq_date", "acquisition_date", "date"}, func(r *Record, v string) { r.AcquisitionDate = v }},
	{[]string{"acq_time", "acquisition_time", "time"}, func(r *Record, v string) { r.AcquisitionTime = v }},
	{[]string{"confidence", "conf"}, func(r *Record, v string) { r.Confidence = v }},
	{[]string{"satellite", "satellite_name"}, func(r *Record, v string) { r.Satellite = v }},
	{[]string{"instrument", "instrument_name"}, func(r *Record, v string) { r.Instrument = v }},
	{[]string{"daynight", "day_night"}, func(r *Record, v string) { r.DayNight = v }},
	{[]string{"country_id", "country"}, func(r *Record, v string) { r.CountryID = v }},
}

// Blank reports whether every column of the row is empty, which is how
// FIRMS pads header-only responses.
func (row RawRow) Blank() bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

// NormalizeRow maps a raw CSV row onto the canonical field set and stamps the
// producing source. ok is false for blank rows, which are not detections.
//
// When several columns fold to the same alias, the lexically smallest column
// name wins so the result never depends on map iteration order.
func NormalizeRow(row RawRow, source Source) (rec Record, ok bool) {
	if row.Blank() {
		return Record{}, false
	}

	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	folded := make(map[string]string, len(row))
	for _, k := range keys {
		lk := strings.ToLower(strings.TrimSpace(k))
		if _, dup := folded[lk]; !dup {
			folded[lk] = row[k]
		}
	}

	for _, f := range recordFields {
		for _, alias := range f.aliases {
			if v, found := folded[alias]; found {
				f.set(&rec, v)
				break
			}
		}
	}
	rec.SourceID = string(source)
	return rec, true
}
