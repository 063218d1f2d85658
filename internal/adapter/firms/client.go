package firms

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/couchcryptid/wildfire-data-service/internal/domain"
	"github.com/couchcryptid/wildfire-data-service/internal/observability"
)

// Concurrency bounds for a single request's fetches.
const (
	DefaultConcurrency = 5
	MaxConcurrency     = 20
)

// ClampConcurrency maps non-positive values to the default and caps the rest.
func ClampConcurrency(n int) int {
	switch {
	case n <= 0:
		return DefaultConcurrency
	case n > MaxConcurrency:
		return MaxConcurrency
	}
	return n
}

// Fetcher resolves FetchTargets against FIRMS with per-attempt timeouts,
// bounded retries and bounded parallelism.
type Fetcher struct {
	httpClient  *http.Client
	timeout     time.Duration
	policy      RetryPolicy
	concurrency int
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewFetcher creates a fetcher. timeout applies to each attempt separately.
func NewFetcher(timeout time.Duration, policy RetryPolicy, concurrency int, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	return &Fetcher{
		httpClient:  &http.Client{},
		timeout:     timeout,
		policy:      policy,
		concurrency: ClampConcurrency(concurrency),
		clock:       clockwork.NewRealClock(),
		logger:      logger,
		metrics:     metrics,
	}
}

// FetchAll resolves every target and returns the normalized records indexed
// like targets. concurrency overrides the configured limit when positive.
// The first failure cancels all outstanding fetches and is returned.
func (f *Fetcher) FetchAll(ctx context.Context, targets []domain.FetchTarget, concurrency int) ([][]domain.Record, error) {
	limit := f.concurrency
	if concurrency > 0 {
		limit = ClampConcurrency(concurrency)
	}

	results := make([][]domain.Record, len(targets))
	sem := semaphore.NewWeighted(int64(limit))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			recs, err := f.Fetch(gctx, t)
			if err != nil {
				return err
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Fetch resolves one target. A 404 yields no records and no error.
func (f *Fetcher) Fetch(ctx context.Context, t domain.FetchTarget) ([]domain.Record, error) {
	var recs []domain.Record
	_, err := f.policy.run(ctx, f.clock, func(ctx context.Context, attempt int) (outcome, error) {
		start := time.Now()
		r, o, err := f.fetchOnce(ctx, t)
		f.observe(t, attempt, o, time.Since(start), err)
		recs = r
		return o, err
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Stream resolves one target and hands each normalized record to emit as it
// is parsed. Only opening the response is retried; once rows are flowing a
// failure is returned as is. An error from emit stops the stream.
func (f *Fetcher) Stream(ctx context.Context, t domain.FetchTarget, emit func(domain.Record) error) error {
	var s *openBody
	_, err := f.policy.run(ctx, f.clock, func(ctx context.Context, attempt int) (outcome, error) {
		start := time.Now()
		opened, o, err := f.open(ctx, t)
		f.observe(t, attempt, o, time.Since(start), err)
		s = opened
		return o, err
	})
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	defer s.Close()

	for {
		row, err := s.rows.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			_, err = classifyRead(ctx, err)
			return err
		}
		rec, ok := domain.NormalizeRow(row, t.Source)
		if !ok {
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, t domain.FetchTarget) ([]domain.Record, outcome, error) {
	s, o, err := f.open(ctx, t)
	if s == nil {
		return nil, o, err
	}
	defer s.Close()

	var recs []domain.Record
	for {
		row, err := s.rows.next()
		if errors.Is(err, io.EOF) {
			return recs, outcomeSuccess, nil
		}
		if err != nil {
			o, err := classifyRead(ctx, err)
			return nil, o, err
		}
		if rec, ok := domain.NormalizeRow(row, t.Source); ok {
			recs = append(recs, rec)
		}
	}
}

// openBody is a response positioned after its CSV header.
type openBody struct {
	body   io.ReadCloser
	rows   *rowReader
	cancel context.CancelFunc
}

func (b *openBody) Close() error {
	defer b.cancel()
	return b.body.Close()
}

// open performs one request and prepares the body for row iteration. It
// returns a nil body for 404 and for every failure.
func (f *Fetcher) open(ctx context.Context, t domain.FetchTarget) (*openBody, outcome, error) {
	actx, cancel := context.WithTimeout(ctx, f.timeout)
	req, err := http.NewRequestWithContext(actx, http.MethodGet, t.URL, nil)
	if err != nil {
		cancel()
		return nil, outcomeInternal, domain.Wrap(domain.KindInternal, redactURLError(err, t.Redacted), "create request")
	}
	req.Header.Set("Accept-Encoding", acceptEncoding)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		cancel()
		o, err := classifyTransport(ctx, redactURLError(err, t.Redacted))
		return nil, o, err
	}

	fail := func(o outcome, err error) (*openBody, outcome, error) {
		resp.Body.Close()
		cancel()
		return nil, o, err
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fail(outcomeNotFound, nil)
	case http.StatusTooManyRequests:
		return fail(outcomeQuota, domain.Errorf(domain.KindQuotaExceeded, "FIRMS rate limit exceeded"))
	}

	body, err := decodeBody(resp)
	if err != nil {
		return fail(outcomeMalformed, err)
	}
	br, head := peekBody(body)
	if err := checkCredential(head); err != nil {
		return fail(outcomeCredential, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(outcomeTransport, domain.Errorf(domain.KindUpstreamUnavailable, "FIRMS returned status %d", resp.StatusCode))
	}

	rows, err := newRowReader(br)
	if err != nil {
		o, err := classifyRead(ctx, err)
		body.Close()
		cancel()
		return nil, o, err
	}
	return &openBody{body: body, rows: rows, cancel: cancel}, outcomeSuccess, nil
}

func (f *Fetcher) observe(t domain.FetchTarget, attempt int, o outcome, d time.Duration, err error) {
	src := string(t.Source)
	f.metrics.FetchAttempts.WithLabelValues(src, string(o)).Inc()
	f.metrics.FetchDuration.WithLabelValues(src).Observe(d.Seconds())

	attrs := []any{
		"url", t.Redacted,
		"source", src,
		"segment", t.Segment.String(),
		"attempt", attempt,
		"outcome", string(o),
		"duration", d,
	}
	if err != nil {
		f.logger.Warn("firms fetch attempt failed", append(attrs, "error", err)...)
		return
	}
	f.logger.Debug("firms fetch attempt", attrs...)
}

// classifyRead maps a failure that happened after the response arrived.
func classifyRead(ctx context.Context, err error) (outcome, error) {
	var de *domain.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case domain.KindMalformedUpstreamData:
			return outcomeMalformed, err
		case domain.KindInvalidCredential:
			return outcomeCredential, err
		}
	}
	return classifyTransport(ctx, err)
}

// classifyTransport separates caller cancellation, attempt timeouts and
// other network failures. parent is the caller's context, not the attempt's.
func classifyTransport(parent context.Context, err error) (outcome, error) {
	if perr := parent.Err(); perr != nil {
		return outcomeCanceled, perr
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return outcomeTimeout, domain.Wrap(domain.KindUpstreamTimeout, err, "FIRMS request timed out")
	}
	return outcomeTransport, domain.Wrap(domain.KindUpstreamUnavailable, err, "FIRMS request failed")
}

// redactURLError replaces the locator inside a *url.Error so the credential
// never reaches logs or response details.
func redactURLError(err error, redacted string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = redacted
	}
	return err
}
