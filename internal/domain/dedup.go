package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// DedupKey identifies one physical detection across overlapping segments.
type DedupKey struct {
	AcquisitionDate string
	AcquisitionTime string
	Latitude        string
	Longitude       string
	SourceID        string
}

// Key returns the record's identity tuple.
func (r Record) Key() DedupKey {
	return DedupKey{
		AcquisitionDate: r.AcquisitionDate,
		AcquisitionTime: r.AcquisitionTime,
		Latitude:        r.Latitude,
		Longitude:       r.Longitude,
		SourceID:        r.SourceID,
	}
}

// ID is a deterministic identifier derived from the DedupKey, so the same
// detection gets the same ID on every query. Each field is length-prefixed
// before hashing, so distinct keys never share an input.
func (r Record) ID() string {
	k := r.Key()
	var b strings.Builder
	for _, f := range []string{k.AcquisitionDate, k.AcquisitionTime, k.Latitude, k.Longitude, k.SourceID} {
		b.WriteString(strconv.Itoa(len(f)))
		b.WriteByte(':')
		b.WriteString(f)
	}
	h := xxh3.HashString128(b.String())
	return fmt.Sprintf("fire-%016x%016x", h.Hi, h.Lo)
}

// Deduplicator remembers every key it has admitted. The zero value is not
// usable; call NewDeduplicator. It is not safe for concurrent use.
type Deduplicator struct {
	seen    map[DedupKey]struct{}
	dropped int
}

// NewDeduplicator returns an empty key set.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[DedupKey]struct{})}
}

// Admit reports whether r is the first record with its key, recording it.
func (d *Deduplicator) Admit(r Record) bool {
	k := r.Key()
	if _, dup := d.seen[k]; dup {
		d.dropped++
		return false
	}
	d.seen[k] = struct{}{}
	return true
}

// Dropped returns how many records Admit has rejected.
func (d *Deduplicator) Dropped() int { return d.dropped }

// Merge concatenates per-target results in target order and keeps only the
// first record of each DedupKey. Because order comes from the slice index and
// not from arrival time, the output is identical for any fetch interleaving.
func Merge(results [][]Record) (merged []Record, dropped int) {
	total := 0
	for _, rs := range results {
		total += len(rs)
	}
	d := NewDeduplicator()
	merged = make([]Record, 0, total)
	for _, rs := range results {
		for _, r := range rs {
			if d.Admit(r) {
				merged = append(merged, r)
			}
		}
	}
	return merged, d.Dropped()
}
