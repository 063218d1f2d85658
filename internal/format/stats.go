package format

import (
	"strconv"
	"strings"

	"github.com/couchcryptid/wildfire-data-service/internal/domain"
)

// Thresholds split detections into FRP tiers: frp >= High is high,
// frp >= Mid is mid, anything else (including missing FRP) is low.
type Thresholds struct {
	High float64
	Mid  float64
}

// DefaultThresholds returns the standard 20 / 5 MW tiers.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 20, Mid: 5}
}

// DailyCount is the number of detections acquired on one date.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Stats summarizes a detection set.
type Stats struct {
	TotalPoints      int          `json:"totalPoints"`
	AvgFRP           float64      `json:"avgFrp"`
	MaxFRP           float64      `json:"maxFrp"`
	SumFRP           float64      `json:"sumFrp"`
	DayCount         int          `json:"dayCount"`
	NightCount       int          `json:"nightCount"`
	HighConfidence   int          `json:"highConfidence"`
	MediumConfidence int          `json:"mediumConfidence"`
	LowConfidence    int          `json:"lowConfidence"`
	VIIRSCount       int          `json:"viirsCount"`
	TerraCount       int          `json:"terraCount"`
	AquaCount        int          `json:"aquaCount"`
	FRPHighCount     int          `json:"frpHighCount"`
	FRPMidCount      int          `json:"frpMidCount"`
	FRPLowCount      int          `json:"frpLowCount"`
	DailyCounts      []DailyCount `json:"dailyCounts"`
}

// ComputeStats aggregates records. window drives DailyCounts; a zero window
// yields an empty series.
//
// Confidence tiers are h or >= 80 (high) and n or >= 30 (medium). This is a
// different scale from ConfidenceScore.
func ComputeStats(records []domain.Record, th Thresholds, window domain.DateWindow) Stats {
	s := Stats{TotalPoints: len(records)}
	for _, r := range records {
		frp, _ := parseFloat(r.FRP)
		s.SumFRP += frp
		s.MaxFRP = max(s.MaxFRP, frp)
		switch {
		case frp >= th.High:
			s.FRPHighCount++
		case frp >= th.Mid:
			s.FRPMidCount++
		default:
			s.FRPLowCount++
		}

		if strings.EqualFold(r.DayNight, "D") {
			s.DayCount++
		} else {
			s.NightCount++
		}

		switch confidenceTier(r.Confidence) {
		case tierHigh:
			s.HighConfidence++
		case tierMedium:
			s.MediumConfidence++
		default:
			s.LowConfidence++
		}

		sat := strings.ToUpper(r.Satellite)
		switch {
		case strings.HasPrefix(sat, "N"):
			s.VIIRSCount++
		case sat == "T":
			s.TerraCount++
		default:
			s.AquaCount++
		}
	}
	if s.TotalPoints > 0 {
		s.AvgFRP = s.SumFRP / float64(s.TotalPoints)
	}
	s.DailyCounts = DailyCounts(records, window)
	return s
}

type tier int

const (
	tierLow tier = iota
	tierMedium
	tierHigh
)

func confidenceTier(raw string) tier {
	c := strings.ToLower(raw)
	n := -1
	if isDigits(c) {
		if v, err := strconv.Atoi(c); err == nil {
			n = v
		} else {
			n = 100
		}
	}
	switch {
	case c == "h" || n >= 80:
		return tierHigh
	case c == "n" || n >= 30:
		return tierMedium
	}
	return tierLow
}

// DailyCounts returns one entry per day of window, in order, counting the
// records whose acq_date falls on that day. Records outside the window are
// ignored.
func DailyCounts(records []domain.Record, window domain.DateWindow) []DailyCount {
	out := []DailyCount{}
	if window.Start.IsZero() || window.End.Before(window.Start) {
		return out
	}
	index := make(map[string]int)
	for d := window.Start; !d.After(window.End); d = d.AddDate(0, 0, 1) {
		key := d.Format(domain.DateLayout)
		index[key] = len(out)
		out = append(out, DailyCount{Date: key})
	}
	for _, r := range records {
		if i, ok := index[strings.TrimSpace(r.AcquisitionDate)]; ok {
			out[i].Count++
		}
	}
	return out
}
