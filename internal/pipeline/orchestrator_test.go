package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/wildfire-data-service/internal/domain"
	"github.com/couchcryptid/wildfire-data-service/internal/observability"
	"github.com/couchcryptid/wildfire-data-service/internal/pipeline"
)

// --- mocks ---

type fakeAvailability struct {
	mu    sync.Mutex
	avail domain.Availability
	err   error
	calls int
}

func (f *fakeAvailability) Availability(_ context.Context, _ string) (domain.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.avail, f.err
}

type fakeComposer struct{}

func (fakeComposer) Compose(src domain.Source, region domain.Region, segs []domain.DateSegment) ([]domain.FetchTarget, error) {
	out := make([]domain.FetchTarget, len(segs))
	for i, s := range segs {
		out[i] = domain.FetchTarget{Index: i, Source: src, Region: region, Segment: s, URL: s.String(), Redacted: s.String()}
	}
	return out, nil
}

// fakeFetcher answers target i with results[i].
type fakeFetcher struct {
	mu       sync.Mutex
	results  [][]domain.Record
	err      error
	calls    int
	lastConc int
}

func (f *fakeFetcher) FetchAll(_ context.Context, targets []domain.FetchTarget, concurrency int) ([][]domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastConc = concurrency
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]domain.Record, len(targets))
	for _, t := range targets {
		out[t.Index] = f.results[t.Index]
	}
	return out, nil
}

func (f *fakeFetcher) Stream(_ context.Context, t domain.FetchTarget, emit func(domain.Record) error) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, r := range f.results[t.Index] {
		if err := emit(r); err != nil {
			return err
		}
	}
	return nil
}

type fakePublisher struct {
	published []domain.Record
	err       error
	// hang makes Publish wait for its context.
	hang bool
}

func (p *fakePublisher) Publish(ctx context.Context, records []domain.Record) error {
	if p.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	p.published = append(p.published, records...)
	return p.err
}

// --- helpers ---

func freezeToday(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.January, 20, 15, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func detection(name string) domain.Record {
	return domain.Record{
		Latitude:        name,
		Longitude:       name,
		AcquisitionDate: "2024-01-02",
		AcquisitionTime: "0130",
		SourceID:        string(domain.SourceVIIRSSNPPNRT),
	}
}

func names(records []domain.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Latitude
	}
	return out
}

func fullAvailability() domain.Availability {
	return domain.Availability{
		domain.SourceVIIRSSNPPNRT: domain.NewAvailabilityWindow("2023-06-01", "2024-01-20"),
		domain.SourceMODISNRT:     domain.NewAvailabilityWindow("2023-01-01", "2024-01-20"),
	}
}

func usaQuery(start, end string) pipeline.Query {
	return pipeline.Query{Region: domain.RegionInput{Country: "USA"}, StartDate: start, EndDate: end}
}

func newOrchestrator(a pipeline.AvailabilityLookup, f pipeline.SegmentFetcher, s pipeline.Settings) (*pipeline.Orchestrator, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return pipeline.New(a, fakeComposer{}, f, logger, m, s), m
}

// --- tests ---

func TestOrchestrator_Query_DeduplicatesAcrossSegments(t *testing.T) {
	freezeToday(t)
	avail := &fakeAvailability{avail: fullAvailability()}
	fetcher := &fakeFetcher{results: [][]domain.Record{
		{detection("A"), detection("A"), detection("B")},
		{detection("B"), detection("C")},
		{detection("C")},
	}}
	o, m := newOrchestrator(avail, fetcher, pipeline.Settings{SegmentDays: 1})

	res, err := o.Query(context.Background(), usaQuery("2024-01-01", "2024-01-03"))
	require.NoError(t, err)

	require.Len(t, res.Targets, 3)
	if diff := cmp.Diff([]string{"A", "B", "C"}, names(res.Records)); diff != "" {
		t.Errorf("merged records mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, res.Dropped)
	assert.Equal(t, domain.SourceVIIRSSNPPNRT, res.Source)
	assert.Equal(t, pipeline.StateDone, res.State())
	assert.NotEmpty(t, res.RequestID)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Queries.WithLabelValues("done")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.DuplicatesDropped), 0)
}

func TestOrchestrator_Query_NoSourceIsEmptyNotError(t *testing.T) {
	freezeToday(t)
	avail := &fakeAvailability{avail: domain.Availability{
		domain.SourceVIIRSSNPPNRT: domain.NewAvailabilityWindow("2024-01-10", "2024-01-20"),
	}}
	fetcher := &fakeFetcher{}
	o, m := newOrchestrator(avail, fetcher, pipeline.Settings{})

	res, err := o.Query(context.Background(), usaQuery("2024-01-01", "2024-01-02"))
	require.NoError(t, err)
	assert.True(t, res.NoSource)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Targets)
	assert.Equal(t, pipeline.StateNoSourceFound, res.State())
	assert.Zero(t, fetcher.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Queries.WithLabelValues("no_source")), 0)
}

func TestOrchestrator_Query_ValidationBeforeNetwork(t *testing.T) {
	freezeToday(t)
	tests := []struct {
		name  string
		query pipeline.Query
		want  error
	}{
		{"no region", pipeline.Query{StartDate: "2024-01-01", EndDate: "2024-01-02"}, domain.ErrInvalidRegion},
		{"unknown country", pipeline.Query{Region: domain.RegionInput{Country: "ZZZ"}}, domain.ErrUnknownRegion},
		{"inverted dates", usaQuery("2024-01-05", "2024-01-01"), domain.ErrInvalidDateRange},
		{"future end", usaQuery("2024-01-01", "2024-02-01"), domain.ErrInvalidDateRange},
		{"bad date", usaQuery("01/01/2024", "2024-01-02"), domain.ErrInvalidDateRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avail := &fakeAvailability{avail: fullAvailability()}
			o, _ := newOrchestrator(avail, &fakeFetcher{}, pipeline.Settings{})

			_, err := o.Query(context.Background(), tt.query)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Zero(t, avail.calls, "no availability lookup on invalid input")
		})
	}
}

func TestOrchestrator_Query_FatalFetchFailure(t *testing.T) {
	freezeToday(t)
	fetcher := &fakeFetcher{err: domain.Errorf(domain.KindQuotaExceeded, "slow down")}
	o, m := newOrchestrator(&fakeAvailability{avail: fullAvailability()}, fetcher, pipeline.Settings{})

	res, err := o.Query(context.Background(), usaQuery("2024-01-01", "2024-01-02"))
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, domain.ErrQuotaExceeded))
	assert.InDelta(t, 1, testutil.ToFloat64(m.Queries.WithLabelValues("failed")), 0)
}

func TestOrchestrator_Query_AvailabilityFailure(t *testing.T) {
	freezeToday(t)
	avail := &fakeAvailability{err: domain.Errorf(domain.KindInvalidCredential, "bad key")}
	o, _ := newOrchestrator(avail, &fakeFetcher{}, pipeline.Settings{})

	_, err := o.Query(context.Background(), usaQuery("2024-01-01", "2024-01-02"))
	assert.True(t, errors.Is(err, domain.ErrInvalidCredential))
	assert.Error(t, o.CheckReadiness(context.Background()))
}

func TestOrchestrator_Query_PriorityOverride(t *testing.T) {
	freezeToday(t)
	fetcher := &fakeFetcher{results: [][]domain.Record{{}}}
	o, _ := newOrchestrator(&fakeAvailability{avail: fullAvailability()}, fetcher, pipeline.Settings{
		Priority: []domain.Source{domain.SourceVIIRSSNPPNRT},
	})

	q := usaQuery("2024-01-01", "2024-01-02")
	q.Priority = []domain.Source{"GOES", domain.SourceMODISNRT}
	q.Concurrency = 7
	res, err := o.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceMODISNRT, res.Source)
	assert.Equal(t, 7, fetcher.lastConc)
}

func TestOrchestrator_Query_SettingsPriority(t *testing.T) {
	freezeToday(t)
	fetcher := &fakeFetcher{results: [][]domain.Record{{}}}
	o, _ := newOrchestrator(&fakeAvailability{avail: fullAvailability()}, fetcher, pipeline.Settings{
		Priority: []domain.Source{domain.SourceMODISNRT, domain.SourceVIIRSSNPPNRT},
	})

	res, err := o.Query(context.Background(), usaQuery("2024-01-01", "2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, domain.SourceMODISNRT, res.Source)
}

func TestOrchestrator_CheckReadiness(t *testing.T) {
	freezeToday(t)
	o, _ := newOrchestrator(&fakeAvailability{avail: fullAvailability()}, &fakeFetcher{results: [][]domain.Record{{}}}, pipeline.Settings{})

	require.Error(t, o.CheckReadiness(context.Background()))
	_, err := o.Query(context.Background(), usaQuery("2024-01-01", "2024-01-02"))
	require.NoError(t, err)
	assert.NoError(t, o.CheckReadiness(context.Background()))
}

func TestOrchestrator_Warm(t *testing.T) {
	avail := &fakeAvailability{err: domain.Errorf(domain.KindUpstreamTimeout, "slow")}
	o, _ := newOrchestrator(avail, &fakeFetcher{}, pipeline.Settings{})

	_, err := o.Warm(context.Background())
	require.ErrorIs(t, err, domain.ErrUpstreamTimeout)
	require.Error(t, o.CheckReadiness(context.Background()))

	avail.err = nil
	avail.avail = fullAvailability()
	n, err := o.Warm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(fullAvailability()), n)
	assert.NoError(t, o.CheckReadiness(context.Background()))
}

func TestOrchestrator_Query_Publishes(t *testing.T) {
	freezeToday(t)
	pub := &fakePublisher{}
	fetcher := &fakeFetcher{results: [][]domain.Record{{detection("A"), detection("A")}}}
	o, m := newOrchestrator(&fakeAvailability{avail: fullAvailability()}, fetcher, pipeline.Settings{Publisher: pub})

	_, err := o.Query(context.Background(), usaQuery("2024-01-01", "2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, names(pub.published))
	assert.InDelta(t, 1, testutil.ToFloat64(m.RecordsPublished), 0)
}

func TestOrchestrator_Query_PublishFailureIsNotReturned(t *testing.T) {
	freezeToday(t)
	pub := &fakePublisher{err: errors.New("broker down")}
	fetcher := &fakeFetcher{results: [][]domain.Record{{detection("A")}}}
	o, m := newOrchestrator(&fakeAvailability{avail: fullAvailability()}, fetcher, pipeline.Settings{Publisher: pub})

	res, err := o.Query(context.Background(), usaQuery("2024-01-01", "2024-01-02"))
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PublishErrors), 0)
}

func TestOrchestrator_Query_PublishIsBounded(t *testing.T) {
	freezeToday(t)
	pub := &fakePublisher{hang: true}
	fetcher := &fakeFetcher{results: [][]domain.Record{{detection("A")}}}
	o, m := newOrchestrator(&fakeAvailability{avail: fullAvailability()}, fetcher, pipeline.Settings{
		Publisher:      pub,
		PublishTimeout: 20 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() {
		_, err := o.Query(context.Background(), usaQuery("2024-01-01", "2024-01-02"))
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("query blocked on a stalled publisher")
	}
	assert.InDelta(t, 1, testutil.ToFloat64(m.PublishErrors), 0)
}

func TestOrchestrator_QueryDurationByOutcome(t *testing.T) {
	freezeToday(t)
	o, m := newOrchestrator(&fakeAvailability{avail: fullAvailability()}, &fakeFetcher{err: domain.Errorf(domain.KindUpstreamTimeout, "slow")}, pipeline.Settings{})
	_, err := o.Query(context.Background(), usaQuery("2024-01-01", "2024-01-02"))
	require.Error(t, err)
	assert.Equal(t, 1, testutil.CollectAndCount(m.QueryDuration))

	o2, m2 := newOrchestrator(&fakeAvailability{avail: domain.Availability{}}, &fakeFetcher{}, pipeline.Settings{})
	_, err = o2.Query(context.Background(), usaQuery("2024-01-01", "2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, 1, testutil.CollectAndCount(m2.QueryDuration))

	_, err = o.Query(context.Background(), pipeline.Query{})
	require.Error(t, err)
	assert.Equal(t, 1, testutil.CollectAndCount(m.QueryDuration), "failed series is shared")
}

func TestOrchestrator_Stream_DeduplicatesInOrder(t *testing.T) {
	freezeToday(t)
	fetcher := &fakeFetcher{results: [][]domain.Record{
		{detection("A"), detection("A"), detection("B")},
		{detection("B"), detection("C")},
		{detection("C")},
	}}
	o, _ := newOrchestrator(&fakeAvailability{avail: fullAvailability()}, fetcher, pipeline.Settings{SegmentDays: 1})

	plan, err := o.Prepare(context.Background(), usaQuery("2024-01-01", "2024-01-03"))
	require.NoError(t, err)

	var got []domain.Record
	n, err := o.Stream(context.Background(), plan, func(r domain.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"A", "B", "C"}, names(got))
	assert.Equal(t, pipeline.StateDone, plan.State())
}

func TestOrchestrator_Stream_NoSource(t *testing.T) {
	freezeToday(t)
	fetcher := &fakeFetcher{}
	o, _ := newOrchestrator(&fakeAvailability{avail: domain.Availability{}}, fetcher, pipeline.Settings{})

	plan, err := o.Prepare(context.Background(), usaQuery("2024-01-01", "2024-01-02"))
	require.NoError(t, err)
	require.True(t, plan.NoSource)

	n, err := o.Stream(context.Background(), plan, func(domain.Record) error {
		t.Fatal("emit called without a source")
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, fetcher.calls)
}

func TestOrchestrator_Stream_Failure(t *testing.T) {
	freezeToday(t)
	fetcher := &fakeFetcher{err: domain.Errorf(domain.KindUpstreamTimeout, "slow")}
	o, _ := newOrchestrator(&fakeAvailability{avail: fullAvailability()}, fetcher, pipeline.Settings{})

	plan, err := o.Prepare(context.Background(), usaQuery("2024-01-01", "2024-01-02"))
	require.NoError(t, err)
	_, err = o.Stream(context.Background(), plan, func(domain.Record) error { return nil })
	assert.True(t, errors.Is(err, domain.ErrUpstreamTimeout))
	assert.Equal(t, pipeline.StateFailed, plan.State())
}
