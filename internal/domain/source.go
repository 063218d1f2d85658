package domain

import (
	"strings"
	"time"
)

// Source identifies one FIRMS dataset variant (satellite, sensor, product).
type Source string

const (
	SourceVIIRSNOAA21NRT Source = "VIIRS_NOAA21_NRT"
	SourceVIIRSNOAA20NRT Source = "VIIRS_NOAA20_NRT"
	SourceVIIRSSNPPNRT   Source = "VIIRS_SNPP_NRT"
	SourceVIIRSNOAA20SP  Source = "VIIRS_NOAA20_SP"
	SourceVIIRSSNPPSP    Source = "VIIRS_SNPP_SP"
	SourceMODISNRT       Source = "MODIS_NRT"
	SourceMODISSP        Source = "MODIS_SP"
	SourceLandsatNRT     Source = "LANDSAT_NRT"
)

var whitelist = map[Source]bool{
	SourceVIIRSNOAA21NRT: true,
	SourceVIIRSNOAA20NRT: true,
	SourceVIIRSSNPPNRT:   true,
	SourceVIIRSNOAA20SP:  true,
	SourceVIIRSSNPPSP:    true,
	SourceMODISNRT:       true,
	SourceMODISSP:        true,
	SourceLandsatNRT:     true,
}

// DefaultPriority is the built-in source ranking, best first.
var DefaultPriority = []Source{
	SourceVIIRSSNPPNRT,
	SourceVIIRSNOAA21NRT,
	SourceVIIRSNOAA20NRT,
	SourceMODISNRT,
	SourceVIIRSNOAA20SP,
	SourceVIIRSSNPPSP,
	SourceMODISSP,
}

// Whitelisted reports whether s is a known dataset identifier.
func (s Source) Whitelisted() bool { return whitelist[s] }

// ParseSource validates a single source identifier, case-insensitively.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToUpper(strings.TrimSpace(s)))
	if !src.Whitelisted() {
		return "", Errorf(KindInvalidSource, "unknown source %q", s)
	}
	return src, nil
}

// ParsePriority splits a comma-separated ranking. Entries are trimmed and
// uppercased; blanks are dropped. Unknown names are kept because the selector
// skips them. An empty result means "use DefaultPriority".
func ParsePriority(raw string) []Source {
	var out []Source
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			out = append(out, Source(part))
		}
	}
	return out
}

// AvailabilityWindow is the advisory date span a source covers. Raw holds
// the upstream strings so rows with unparsable dates are still visible.
type AvailabilityWindow struct {
	MinDate time.Time
	MaxDate time.Time
	RawMin  string
	RawMax  string
}

// Valid reports whether both bounds parsed.
func (a AvailabilityWindow) Valid() bool {
	return !a.MinDate.IsZero() && !a.MaxDate.IsZero()
}

// Covers reports whether the window fully contains w.
func (a AvailabilityWindow) Covers(w DateWindow) bool {
	if !a.Valid() {
		return false
	}
	return DateWindow{Start: a.MinDate, End: a.MaxDate}.Contains(w)
}

// Availability maps source identifiers (FIRMS data_id) to their windows.
type Availability map[Source]AvailabilityWindow

// NewAvailabilityWindow parses upstream min/max strings. Unparsable bounds
// leave the corresponding time zero so the window never covers anything.
func NewAvailabilityWindow(minDate, maxDate string) AvailabilityWindow {
	a := AvailabilityWindow{RawMin: minDate, RawMax: maxDate}
	if t, err := time.Parse(DateLayout, strings.TrimSpace(minDate)); err == nil {
		a.MinDate = t
	}
	if t, err := time.Parse(DateLayout, strings.TrimSpace(maxDate)); err == nil {
		a.MaxDate = t
	}
	return a
}

// SelectSource walks priorities in order and returns the first whitelisted
// candidate whose availability fully covers w. ok is false when nothing
// matches, which callers treat as "no data in range", not as a failure.
func SelectSource(priorities []Source, avail Availability, w DateWindow) (src Source, ok bool) {
	if len(priorities) == 0 {
		priorities = DefaultPriority
	}
	for _, candidate := range priorities {
		if !candidate.Whitelisted() {
			continue
		}
		window, found := avail[candidate]
		if !found {
			continue
		}
		if window.Covers(w) {
			return candidate, true
		}
	}
	return "", false
}
