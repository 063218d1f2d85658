package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRow(t *testing.T) {
	t.Run("aliases are case-insensitive and required fields default to empty", func(t *testing.T) {
		rec, ok := NormalizeRow(RawRow{"Lat": "1.0", "Long": "2.0"}, SourceVIIRSSNPPNRT)
		require.True(t, ok)
		assert.Equal(t, Record{
			Latitude:  "1.0",
			Longitude: "2.0",
			SourceID:  "VIIRS_SNPP_NRT",
		}, rec)

		data, err := json.Marshal(rec)
		require.NoError(t, err)
		assert.JSONEq(t, `{"latitude":"1.0","longitude":"2.0","bright_ti4":"","acq_date":"","acq_time":"","source":"VIIRS_SNPP_NRT"}`, string(data))
	})

	t.Run("VIIRS columns", func(t *testing.T) {
		row := RawRow{
			"latitude": "-12.5", "longitude": "130.1", "bright_ti4": "330.2", "bright_ti5": "290.1",
			"scan": "0.4", "track": "0.4", "acq_date": "2024-01-05", "acq_time": "0412",
			"satellite": "N", "instrument": "VIIRS", "confidence": "n", "version": "2.0NRT",
			"frp": "4.5", "daynight": "D",
		}
		rec, ok := NormalizeRow(row, SourceVIIRSSNPPNRT)
		require.True(t, ok)
		assert.Equal(t, "330.2", rec.BrightnessPrimary)
		assert.Equal(t, "290.1", rec.BrightnessSecondary)
		assert.Equal(t, "4.5", rec.FRP)
		assert.Equal(t, "n", rec.Confidence)
		assert.Equal(t, "N", rec.Satellite)
		assert.Equal(t, "VIIRS", rec.Instrument)
		assert.Equal(t, "D", rec.DayNight)
		assert.Equal(t, "2024-01-05", rec.AcquisitionDate)
		assert.Equal(t, "0412", rec.AcquisitionTime)
	})

	t.Run("MODIS columns map brightness aliases", func(t *testing.T) {
		row := RawRow{"LATITUDE": "10", "LONGITUDE": "20", "Brightness": "310.5", "BRIGHT_T21": "295.0", "ACQ_DATE": "2024-01-01", "ACQ_TIME": "930", "Conf": "77"}
		rec, ok := NormalizeRow(row, SourceMODISNRT)
		require.True(t, ok)
		assert.Equal(t, "310.5", rec.BrightnessPrimary)
		assert.Equal(t, "295.0", rec.BrightnessSecondary)
		assert.Equal(t, "77", rec.Confidence)
		assert.Equal(t, "930", rec.AcquisitionTime)
	})

	t.Run("bright_t31 is primary and bright_t22 secondary", func(t *testing.T) {
		row := RawRow{"latitude": "10", "longitude": "20", "bright_t31": "301.0", "bright_t22": "288.0"}
		rec, ok := NormalizeRow(row, SourceMODISSP)
		require.True(t, ok)
		assert.Equal(t, "301.0", rec.BrightnessPrimary)
		assert.Equal(t, "288.0", rec.BrightnessSecondary)
	})

	t.Run("earlier alias has priority", func(t *testing.T) {
		rec, ok := NormalizeRow(RawRow{"lat": "9", "latitude": "1"}, SourceMODISNRT)
		require.True(t, ok)
		assert.Equal(t, "1", rec.Latitude)
	})

	t.Run("blank rows are dropped", func(t *testing.T) {
		_, ok := NormalizeRow(RawRow{"latitude": "", "longitude": ""}, SourceMODISNRT)
		assert.False(t, ok)
		_, ok = NormalizeRow(RawRow{}, SourceMODISNRT)
		assert.False(t, ok)
	})
}
