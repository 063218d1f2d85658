package firms

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/wildfire-data-service/internal/domain"
)

// AllSensors requests availability for every dataset.
const AllSensors = "ALL"

// AvailabilityLookup reports the advisory date span of each FIRMS source.
type AvailabilityLookup interface {
	Availability(ctx context.Context, sensor string) (domain.Availability, error)
}

// AvailabilityClient implements AvailabilityLookup against the FIRMS
// data_availability endpoint. It does not retry.
type AvailabilityClient struct {
	baseURL    string
	mapKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAvailabilityClient creates a client; timeout bounds the whole request.
func NewAvailabilityClient(baseURL, mapKey string, timeout time.Duration, logger *slog.Logger) *AvailabilityClient {
	return &AvailabilityClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		mapKey:  mapKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Availability fetches the table for sensor (AllSensors when empty).
func (c *AvailabilityClient) Availability(ctx context.Context, sensor string) (domain.Availability, error) {
	if c.mapKey == "" {
		return nil, domain.Errorf(domain.KindInvalidCredential, "FIRMS_MAP_KEY is not configured")
	}
	if sensor == "" {
		sensor = AllSensors
	}

	u := strings.Join([]string{c.baseURL, "data_availability", "csv", c.mapKey, sensor}, "/")
	redacted := redact(u, c.mapKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, redactURLError(err, redacted), "create request")
	}
	req.Header.Set("Accept-Encoding", acceptEncoding)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		_, err = classifyTransport(ctx, redactURLError(err, redacted))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.Errorf(domain.KindQuotaExceeded, "FIRMS rate limit exceeded")
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	br, head := peekBody(body)
	if err := checkCredential(head); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.Errorf(domain.KindUpstreamUnavailable, "FIRMS availability returned status %d", resp.StatusCode)
	}

	avail, err := parseAvailability(br)
	if err != nil {
		_, err = classifyRead(ctx, err)
		return nil, err
	}
	c.logger.Debug("firms availability fetched", "url", redacted, "sources", len(avail))
	return avail, nil
}

func parseAvailability(r io.Reader) (domain.Availability, error) {
	rows, err := newRowReader(r)
	if err != nil {
		return nil, err
	}
	avail := make(domain.Availability)
	checked := false
	for {
		row, err := rows.next()
		if errors.Is(err, io.EOF) {
			return avail, nil
		}
		if err != nil {
			return nil, err
		}
		if !checked {
			if _, ok := row["data_id"]; !ok {
				return nil, domain.Errorf(domain.KindMalformedUpstreamData, "availability table has no data_id column")
			}
			checked = true
		}
		id := strings.TrimSpace(row["data_id"])
		if id == "" {
			continue
		}
		avail[domain.Source(strings.ToUpper(id))] = domain.NewAvailabilityWindow(row["min_date"], row["max_date"])
	}
}
