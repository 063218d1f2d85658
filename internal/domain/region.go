package domain

import (
	"regexp"
	"strconv"
	"strings"
)

var iso3Re = regexp.MustCompile(`^[A-Z]{3}$`)

// BBox is a WGS-84 rectangle in degrees.
type BBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Valid reports whether the box satisfies west < east, south < north and lies
// within [-180,180]x[-90,90].
func (b BBox) Valid() bool {
	return -180 <= b.West && b.West < b.East && b.East <= 180 &&
		-90 <= b.South && b.South < b.North && b.North <= 90
}

// String renders the box in the "w,s,e,n" form used by FIRMS area paths.
func (b BBox) String() string {
	return strings.Join([]string{
		formatCoord(b.West), formatCoord(b.South), formatCoord(b.East), formatCoord(b.North),
	}, ",")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Region is the resolved spatial part of a query. Country is empty when the
// caller supplied an explicit box.
type Region struct {
	Country string
	BBox    BBox
}

// RegionInput is the caller's raw spatial selector. Coordinates are pointers so
// that "not supplied" differs from zero.
type RegionInput struct {
	Country string
	West    *float64
	South   *float64
	East    *float64
	North   *float64
}

// countryBBoxes is the static ISO-3 lookup table (west, south, east, north).
var countryBBoxes = map[string]BBox{
	"USA": {-179.14, 18.91, -66.97, 71.39},
	"CHN": {73.66, 18.16, 134.77, 53.56},
	"IND": {68.17665, 6.554607, 97.40256, 35.674545},
	"RUS": {-180.0, 41.19, 180.0, 81.86},
	"BRA": {-73.99, -33.77, -34.73, 5.27},
	"AUS": {112.92, -43.74, 153.64, -10.06},
	"CAN": {-141.0, 41.68, -52.65, 83.11},
	"MEX": {-118.37, 14.53, -86.71, 32.72},
	"IDN": {95.01, -10.36, 141.02, 5.90},
	"ZAF": {16.45, -34.82, 32.89, -22.13},
	"ARG": {-73.58, -55.11, -53.64, -21.78},
	"COL": {-79.06, -4.23, -66.87, 13.39},
	"SAU": {34.5, 16.37, 55.67, 32.16},
	"IRN": {44.04, 25.06, 63.32, 39.78},
	"TUR": {25.66, 35.82, 44.82, 42.11},
	"FRA": {-5.14, 41.33, 9.56, 51.09},
	"DEU": {5.87, 47.27, 15.04, 55.06},
	"GBR": {-8.62, 49.84, 1.76, 60.85},
	"ESP": {-9.3, 35.96, 3.32, 43.79},
	"ITA": {6.62, 36.65, 18.51, 47.09},
	"JPN": {122.94, 24.25, 153.99, 45.52},
	"KOR": {125.07, 33.10, 131.87, 38.62},
	"VNM": {102.14, 8.56, 109.47, 23.35},
	"THA": {97.35, 5.61, 105.64, 20.42},
	"PAK": {60.88, 23.69, 77.84, 37.08},
	"BGD": {88.0, 20.74, 92.67, 26.63},
}

// CountryBBox returns the bounding box for an ISO-3 code, case-insensitively.
func CountryBBox(code string) (BBox, bool) {
	b, ok := countryBBoxes[strings.ToUpper(strings.TrimSpace(code))]
	return b, ok
}

// ResolveRegion turns caller input into a single normalized box. Exactly one of
// a country code or a complete box must be given.
func ResolveRegion(in RegionInput) (Region, error) {
	country := strings.ToUpper(strings.TrimSpace(in.Country))
	coords := 0
	for _, c := range []*float64{in.West, in.South, in.East, in.North} {
		if c != nil {
			coords++
		}
	}

	switch {
	case coords > 0 && coords < 4:
		return Region{}, Errorf(KindInvalidRegion, "bounding box requires west, south, east and north")
	case coords == 4 && country != "":
		return Region{}, Errorf(KindInvalidRegion, "provide either a country code or a bounding box, not both")
	case coords == 0 && country == "":
		return Region{}, Errorf(KindInvalidRegion, "must provide either a country code or a complete coordinate range")
	}

	if coords == 4 {
		b := BBox{West: *in.West, South: *in.South, East: *in.East, North: *in.North}
		if !b.Valid() {
			return Region{}, Errorf(KindInvalidRegion, "invalid coordinate range %s", b)
		}
		return Region{BBox: b}, nil
	}

	if !iso3Re.MatchString(country) {
		return Region{}, Errorf(KindInvalidRegion, "country code must be ISO-3 (3 letters), got %q", in.Country)
	}
	b, ok := countryBBoxes[country]
	if !ok {
		return Region{}, Errorf(KindUnknownRegion, "unknown or unsupported ISO-3 country code %q; use bbox coordinates", country)
	}
	return Region{Country: country, BBox: b}, nil
}
