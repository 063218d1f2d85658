// Package domain models NASA FIRMS active-fire detections and the pure parts of
// the query pipeline: region resolution, date partitioning, source selection,
// row normalization and deduplication.
//
// # Data Source
//
// FIRMS (Fire Information for Resource Management System) serves one CSV
// resource per (source, area|country, dayRange, startDate) tuple:
//
//	<base>/area/csv/<MAP_KEY>/<SOURCE>/<west,south,east,north>/<days>/<YYYY-MM-DD>
//	<base>/country/csv/<MAP_KEY>/<SOURCE>/<ISO3>/<days>/<YYYY-MM-DD>
//
// A single request covers at most 10 days, so longer windows are split into
// consecutive segments by [Partition]. The first CSV row is the header.
//
// # Sources
//
// A source is a satellite/sensor/product combination, e.g. VIIRS_SNPP_NRT
// (Suomi NPP near-real-time) or MODIS_SP (MODIS standard processing). Each
// has an availability window published at
//
//	<base>/data_availability/csv/<MAP_KEY>/ALL   (data_id,min_date,max_date)
//
// [SelectSource] picks the first ranked source whose window covers the whole
// request; no match means "no data in range", which is not an error.
//
// # Column conventions
//
// VIIRS and MODIS products name columns differently. bright_ti4 may arrive
// as brightness or bright_t31 and bright_ti5 as bright_t21 or bright_t22.
// [NormalizeRow] folds them onto one field set. Values stay strings: FIRMS mixes letter and numeric confidence
// codes (l/n/h vs 0-100) and downstream consumers interpret them.
//
//	acq_date   YYYY-MM-DD (UTC)
//	acq_time   HHMM, sometimes without leading zeros ("930" = 09:30 UTC)
//	daynight   D or N
//	satellite  N, N20, N21 (VIIRS), T (Terra), A (Aqua), L8/L9 (Landsat)
//
// # Identity
//
// Overlapping segments and retried requests can return the same detection
// twice. (acq_date, acq_time, latitude, longitude, source) identifies a
// detection; [Merge] keeps the first occurrence in target order.
package domain
