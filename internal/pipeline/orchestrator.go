package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/wildfire-data-service/internal/domain"
	"github.com/couchcryptid/wildfire-data-service/internal/observability"
)

const allSensors = "ALL"

// AvailabilityLookup reports the advisory date span of each source.
type AvailabilityLookup interface {
	Availability(ctx context.Context, sensor string) (domain.Availability, error)
}

// Composer renders fetch targets for a selected source.
type Composer interface {
	Compose(src domain.Source, region domain.Region, segments []domain.DateSegment) ([]domain.FetchTarget, error)
}

// SegmentFetcher resolves fetch targets, either all at once or one target
// as a stream of records.
type SegmentFetcher interface {
	FetchAll(ctx context.Context, targets []domain.FetchTarget, concurrency int) ([][]domain.Record, error)
	Stream(ctx context.Context, t domain.FetchTarget, emit func(domain.Record) error) error
}

// DetectionPublisher receives the records of every successful batch query.
type DetectionPublisher interface {
	Publish(ctx context.Context, records []domain.Record) error
}

// Settings holds orchestrator tuning. Zero values select defaults.
type Settings struct {
	// Priority is the source ranking used when a query supplies none.
	Priority []domain.Source
	// SegmentDays is the maximum span of one fetch target.
	SegmentDays int
	// Publisher is optional.
	Publisher DetectionPublisher
	// PublishTimeout bounds one Publish call. It is detached from the
	// request, so a caller going away does not abort publication.
	PublishTimeout time.Duration
}

// DefaultPublishTimeout applies when Settings.PublishTimeout is zero.
const DefaultPublishTimeout = 10 * time.Second

// Query describes one fire request as received from a caller.
type Query struct {
	Region      domain.RegionInput
	StartDate   string
	EndDate     string
	Priority    []domain.Source
	Concurrency int
}

// Plan is a validated query with its selected source and composed targets.
// NoSource marks the "no data in range" outcome, which is not an error.
type Plan struct {
	RequestID string
	Region    domain.Region
	Window    domain.DateWindow
	Source    domain.Source
	NoSource  bool
	Targets   []domain.FetchTarget

	concurrency int
	run         *run
}

// Result is the outcome of a batch query.
type Result struct {
	*Plan
	Records []domain.Record
	// Dropped counts records removed as duplicates.
	Dropped int
}

// Orchestrator runs fire queries end to end: validation, source selection,
// partitioning, target composition, fetching and deduplication.
type Orchestrator struct {
	availability AvailabilityLookup
	composer     Composer
	fetcher      SegmentFetcher
	publisher    DetectionPublisher
	publishWait  time.Duration
	priority     []domain.Source
	segmentDays  int
	logger       *slog.Logger
	metrics      *observability.Metrics
	ready        atomic.Bool
}

// New creates an Orchestrator with the given collaborators and observability.
func New(a AvailabilityLookup, c Composer, f SegmentFetcher, logger *slog.Logger, metrics *observability.Metrics, s Settings) *Orchestrator {
	if s.SegmentDays <= 0 {
		s.SegmentDays = domain.DefaultMaxSpan
	}
	if s.PublishTimeout <= 0 {
		s.PublishTimeout = DefaultPublishTimeout
	}
	return &Orchestrator{
		availability: a,
		composer:     c,
		fetcher:      f,
		publisher:    s.Publisher,
		publishWait:  s.PublishTimeout,
		priority:     s.Priority,
		segmentDays:  s.SegmentDays,
		logger:       logger,
		metrics:      metrics,
	}
}

// CheckReadiness returns nil once an availability lookup has succeeded.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if !o.ready.Load() {
		return errors.New("no successful FIRMS availability lookup yet")
	}
	return nil
}

// Warm performs one availability lookup so readiness does not wait for the
// first query. It returns the number of sources listed.
func (o *Orchestrator) Warm(ctx context.Context) (int, error) {
	avail, err := o.availability.Availability(ctx, allSensors)
	if err != nil {
		return 0, err
	}
	o.ready.Store(true)
	return len(avail), nil
}

// Prepare validates q, selects a source and composes fetch targets. It makes
// no network call other than the availability lookup, and validation errors
// are returned before that lookup.
func (o *Orchestrator) Prepare(ctx context.Context, q Query) (*Plan, error) {
	r := o.newRun()
	plan := &Plan{RequestID: r.id, concurrency: q.Concurrency, run: r}

	region, err := domain.ResolveRegion(q.Region)
	if err != nil {
		return nil, r.fail(err)
	}
	window, err := domain.NewDateWindow(q.StartDate, q.EndDate)
	if err != nil {
		return nil, r.fail(err)
	}
	segments, err := domain.Partition(window, o.segmentDays)
	if err != nil {
		return nil, r.fail(err)
	}
	plan.Region = region
	plan.Window = window

	r.transition(StateSelectingSource, "window", window.String())
	avail, err := o.availability.Availability(ctx, allSensors)
	if err != nil {
		return nil, r.fail(err)
	}
	o.ready.Store(true)

	priorities := q.Priority
	if len(priorities) == 0 {
		priorities = o.priority
	}
	src, ok := domain.SelectSource(priorities, avail, window)
	if !ok {
		plan.NoSource = true
		r.noSource()
		return plan, nil
	}
	plan.Source = src

	targets, err := o.composer.Compose(src, region, segments)
	if err != nil {
		return nil, r.fail(err)
	}
	plan.Targets = targets
	o.metrics.SegmentsPerQuery.Observe(float64(len(targets)))
	r.logger.Debug("fire query planned", "source", src, "targets", len(targets))
	return plan, nil
}

// Query runs q in batch mode.
func (o *Orchestrator) Query(ctx context.Context, q Query) (*Result, error) {
	plan, err := o.Prepare(ctx, q)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, plan)
}

// Execute fetches every target of plan concurrently and merges the results in
// target order. Any failure discards partial results.
func (o *Orchestrator) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	if plan.NoSource {
		return &Result{Plan: plan, Records: []domain.Record{}}, nil
	}
	r := plan.run
	o.metrics.QueriesInFlight.Inc()
	defer o.metrics.QueriesInFlight.Dec()

	r.transition(StateFetching, "targets", len(plan.Targets))
	results, err := o.fetcher.FetchAll(ctx, plan.Targets, plan.concurrency)
	if err != nil {
		return nil, r.fail(err)
	}

	r.transition(StateMerging)
	merged, dropped := domain.Merge(results)
	r.done(len(merged), dropped)

	o.publish(ctx, r, merged)
	return &Result{Plan: plan, Records: merged, Dropped: dropped}, nil
}

// Stream resolves plan's targets one at a time in chronological order and
// passes each record not seen earlier in the request to emit as soon as it
// is parsed. It returns the number of records emitted. An emit error ends
// the stream and is returned.
func (o *Orchestrator) Stream(ctx context.Context, plan *Plan, emit func(domain.Record) error) (int, error) {
	if plan.NoSource {
		return 0, nil
	}
	r := plan.run
	o.metrics.QueriesInFlight.Inc()
	defer o.metrics.QueriesInFlight.Dec()

	r.transition(StateFetching, "targets", len(plan.Targets), "mode", "stream")
	seen := domain.NewDeduplicator()
	emitted := 0
	for _, t := range plan.Targets {
		err := o.fetcher.Stream(ctx, t, func(rec domain.Record) error {
			if !seen.Admit(rec) {
				return nil
			}
			emitted++
			return emit(rec)
		})
		if err != nil {
			return emitted, r.fail(err)
		}
	}
	r.done(emitted, seen.Dropped())
	return emitted, nil
}

func (o *Orchestrator) publish(ctx context.Context, r *run, records []domain.Record) {
	if o.publisher == nil || len(records) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.publishWait)
	defer cancel()
	if err := o.publisher.Publish(ctx, records); err != nil {
		o.metrics.PublishErrors.Inc()
		r.logger.Error("publish detections failed", "error", err, "records", len(records))
		return
	}
	o.metrics.RecordsPublished.Add(float64(len(records)))
}

func (o *Orchestrator) newRun() *run {
	id := uuid.NewString()
	r := &run{
		id:      id,
		state:   StateValidating,
		start:   time.Now(),
		logger:  o.logger.With("request_id", id),
		metrics: o.metrics,
	}
	r.logger.Debug("fire query state", "state", r.state)
	return r
}
