package firms

import (
	"strconv"
	"strings"

	"github.com/couchcryptid/wildfire-data-service/internal/domain"
)

// DefaultBaseURL is the public FIRMS API root.
const DefaultBaseURL = "https://firms.modaps.eosdis.nasa.gov/api"

const redactedKey = "<MAP_KEY>"

// QueryMode selects the FIRMS path family.
type QueryMode string

const (
	ModeArea    QueryMode = "area"
	ModeCountry QueryMode = "country"
)

// Composer renders FetchTargets using the FIRMS path grammar
// <base>/<mode>/csv/<key>/<source>/<location>/<days>/<start>. It performs no I/O.
type Composer struct {
	baseURL string
	mapKey  string
	mode    QueryMode
}

// NewComposer creates an area-mode composer. Country mode exists in the API
// grammar but FIRMS v4 reports it as unavailable, so area mode is used even
// for country queries (the country's bbox is sent).
func NewComposer(baseURL, mapKey string) *Composer {
	return &Composer{
		baseURL: strings.TrimRight(baseURL, "/"),
		mapKey:  mapKey,
		mode:    ModeArea,
	}
}

// WithMode returns a copy of c that renders paths in the given mode.
func (c *Composer) WithMode(mode QueryMode) *Composer {
	cp := *c
	cp.mode = mode
	return &cp
}

// Compose renders one target per segment, in segment order.
func (c *Composer) Compose(src domain.Source, region domain.Region, segments []domain.DateSegment) ([]domain.FetchTarget, error) {
	if !src.Whitelisted() {
		return nil, domain.Errorf(domain.KindInvalidSource, "unknown source %q", src)
	}
	if c.mapKey == "" {
		return nil, domain.Errorf(domain.KindInvalidCredential, "FIRMS_MAP_KEY is not configured")
	}

	location, err := c.location(region)
	if err != nil {
		return nil, err
	}

	targets := make([]domain.FetchTarget, 0, len(segments))
	for i, seg := range segments {
		u := c.locator(src, location, seg)
		targets = append(targets, domain.FetchTarget{
			Index:    i,
			Source:   src,
			Region:   region,
			Segment:  seg,
			URL:      u,
			Redacted: c.Redact(u),
		})
	}
	return targets, nil
}

func (c *Composer) location(region domain.Region) (string, error) {
	if c.mode == ModeCountry {
		if region.Country == "" {
			return "", domain.Errorf(domain.KindInvalidRegion, "country mode requires a country code")
		}
		return region.Country, nil
	}
	if !region.BBox.Valid() {
		return "", domain.Errorf(domain.KindInvalidRegion, "invalid coordinate range %s", region.BBox)
	}
	return region.BBox.String(), nil
}

func (c *Composer) locator(src domain.Source, location string, seg domain.DateSegment) string {
	return strings.Join([]string{
		c.baseURL,
		string(c.mode),
		"csv",
		c.mapKey,
		string(src),
		location,
		strconv.Itoa(seg.Days()),
		seg.Start.Format(domain.DateLayout),
	}, "/")
}

// Redact masks the credential in s.
func (c *Composer) Redact(s string) string {
	return redact(s, c.mapKey)
}

func redact(s, key string) string {
	if key == "" {
		return s
	}
	return strings.ReplaceAll(s, key, redactedKey)
}
