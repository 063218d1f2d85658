package domain

// FetchTarget is one resolvable request unit: a source, a region and a date
// segment rendered into a locator. Index is the target's position in the
// composed list and fixes merge order.
type FetchTarget struct {
	Index   int
	Source  Source
	Region  Region
	Segment DateSegment
	URL     string
	// Redacted is URL with the credential masked, safe for logs and debug output.
	Redacted string
}
