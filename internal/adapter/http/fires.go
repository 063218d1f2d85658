package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/wildfire-data-service/internal/adapter/firms"
	"github.com/couchcryptid/wildfire-data-service/internal/domain"
	"github.com/couchcryptid/wildfire-data-service/internal/format"
	"github.com/couchcryptid/wildfire-data-service/internal/pipeline"
)

const (
	formatJSON    = "json"
	formatGeoJSON = "geojson"

	ndjsonType = "application/x-ndjson"

	availabilityHeader = "X-Data-Availability"
	noDataAdvisory     = "No data available for requested date range"
	noDataNote         = "No data for requested date range"
)

// requestError is a malformed query parameter that has no domain kind.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(msg, args...)}
}

type errorBody struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type composeResponse struct {
	SelectedSource *domain.Source `json:"selected_source"`
	URLs           []string       `json:"urls"`
	Note           string         `json:"note,omitempty"`
}

func (s *Server) handleFires(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	outFormat, err := parseFormat(v)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	plan, ok := s.prepare(w, r, v)
	if !ok {
		return
	}
	if plan.NoSource {
		writeFires(w, outFormat, nil)
		return
	}
	if acceptsNDJSON(r) {
		s.streamFires(w, r, plan)
		return
	}

	res, err := s.fires.Execute(r.Context(), plan)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeFires(w, outFormat, res.Records)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	th, err := parseThresholds(v)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	plan, ok := s.prepare(w, r, v)
	if !ok {
		return
	}

	var records []domain.Record
	if !plan.NoSource {
		res, err := s.fires.Execute(r.Context(), plan)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		records = res.Records
	}
	writeJSON(w, http.StatusOK, format.ComputeStats(records, th, plan.Window))
}

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.prepare(w, r, r.URL.Query())
	if !ok {
		return
	}
	if plan.NoSource {
		writeJSON(w, http.StatusOK, composeResponse{URLs: []string{}, Note: noDataNote})
		return
	}

	urls := make([]string, len(plan.Targets))
	for i, t := range plan.Targets {
		urls[i] = t.Redacted
	}
	src := plan.Source
	writeJSON(w, http.StatusOK, composeResponse{SelectedSource: &src, URLs: urls})
}

// prepare parses the region, date and source parameters and plans the query.
// It writes the error response itself and reports whether the caller should
// continue.
func (s *Server) prepare(w http.ResponseWriter, r *http.Request, v url.Values) (*pipeline.Plan, bool) {
	q, err := parseQuery(v)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	plan, err := s.fires.Prepare(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	w.Header().Set("X-Request-ID", plan.RequestID)
	if plan.NoSource {
		w.Header().Set(availabilityHeader, noDataAdvisory)
	}
	return plan, true
}

// streamFires writes one GeoJSON feature per line as records arrive. Errors
// before the first line still produce an error response; later errors can
// only end the body early.
func (s *Server) streamFires(w http.ResponseWriter, r *http.Request, plan *pipeline.Plan) {
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	started := false
	begin := func() {
		w.Header().Set("Content-Type", ndjsonType)
		w.WriteHeader(http.StatusOK)
		started = true
	}

	n, err := s.fires.Stream(r.Context(), plan, func(rec domain.Record) error {
		f, ok := format.Feature(rec)
		if !ok {
			return nil
		}
		if !started {
			begin()
		}
		if err := enc.Encode(f); err != nil {
			return err
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		return nil
	})
	if err != nil {
		if !started {
			s.writeError(w, r, err)
			return
		}
		s.logger.Warn("fire stream ended early",
			"request_id", plan.RequestID,
			"emitted", n,
			"error", err,
		)
		return
	}
	if !started {
		begin()
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Code:    http.StatusBadRequest,
			Kind:    "InvalidRequest",
			Message: reqErr.msg,
		})
		return
	}

	kind := domain.KindOf(err)
	status := statusFor(kind)
	body := errorBody{Code: status, Kind: string(kind), Message: "internal error"}
	var de *domain.Error
	if errors.As(err, &de) {
		body.Message = de.Message
		body.Details = de.Detail
		if body.Message == "" {
			body.Message = string(kind)
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Warn("fire query failed", "path", r.URL.Path, "kind", kind, "status", status, "error", err)
	} else {
		s.logger.Debug("fire query rejected", "path", r.URL.Path, "kind", kind, "error", err)
	}
	writeJSON(w, status, body)
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidRegion, domain.KindUnknownRegion, domain.KindInvalidDateRange, domain.KindInvalidSource:
		return http.StatusBadRequest
	case domain.KindQuotaExceeded, domain.KindInvalidCredential, domain.KindNoSourceAvailable:
		return http.StatusServiceUnavailable
	case domain.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case domain.KindUpstreamUnavailable, domain.KindMalformedUpstreamData:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeFires(w http.ResponseWriter, outFormat string, records []domain.Record) {
	if outFormat == formatJSON {
		if records == nil {
			records = []domain.Record{}
		}
		writeJSON(w, http.StatusOK, records)
		return
	}
	writeJSON(w, http.StatusOK, format.FeatureCollection(records))
}

func acceptsNDJSON(r *http.Request) bool {
	for _, v := range r.Header.Values("Accept") {
		if strings.Contains(strings.ToLower(v), ndjsonType) {
			return true
		}
	}
	return false
}

func parseQuery(v url.Values) (pipeline.Query, error) {
	q := pipeline.Query{
		Region:    domain.RegionInput{Country: v.Get("country")},
		StartDate: v.Get("start_date"),
		EndDate:   v.Get("end_date"),
		Priority:  domain.ParsePriority(v.Get("sourcePriority")),
	}

	coords := []struct {
		name string
		dst  **float64
	}{
		{"west", &q.Region.West},
		{"south", &q.Region.South},
		{"east", &q.Region.East},
		{"north", &q.Region.North},
	}
	for _, c := range coords {
		raw := strings.TrimSpace(v.Get(c.name))
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, domain.Errorf(domain.KindInvalidRegion, "%s must be a number, got %q", c.name, raw)
		}
		*c.dst = &f
	}

	if raw := v.Get("maxConcurrency"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > firms.MaxConcurrency {
			return q, badRequest("maxConcurrency must be an integer between 1 and %d", firms.MaxConcurrency)
		}
		q.Concurrency = n
	}
	return q, nil
}

func parseFormat(v url.Values) (string, error) {
	switch f := strings.ToLower(v.Get("format")); f {
	case "", formatGeoJSON:
		return formatGeoJSON, nil
	case formatJSON:
		return formatJSON, nil
	default:
		return "", badRequest("format must be json or geojson, got %q", f)
	}
}

func parseThresholds(v url.Values) (format.Thresholds, error) {
	th := format.DefaultThresholds()
	for name, dst := range map[string]*float64{"frpHigh": &th.High, "frpMid": &th.Mid} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return th, badRequest("%s must be a number, got %q", name, raw)
		}
		*dst = f
	}
	return th, nil
}
