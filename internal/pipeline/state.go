package pipeline

import (
	"log/slog"
	"time"

	"github.com/couchcryptid/wildfire-data-service/internal/domain"
	"github.com/couchcryptid/wildfire-data-service/internal/observability"
)

// State is a query's position in its lifecycle.
type State string

const (
	StateValidating      State = "validating"
	StateSelectingSource State = "selecting_source"
	StateNoSourceFound   State = "no_source_found"
	StateFetching        State = "fetching"
	StateMerging         State = "merging"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateNoSourceFound || s == StateDone || s == StateFailed
}

// run tracks one request through the state machine. A request belongs to a
// single goroutine, so run is not synchronized.
type run struct {
	id      string
	state   State
	start   time.Time
	logger  *slog.Logger
	metrics *observability.Metrics
}

func (r *run) transition(to State, attrs ...any) {
	if r.state.Terminal() {
		return
	}
	r.state = to
	r.logger.Debug("fire query state", append([]any{"state", to}, attrs...)...)
}

func (r *run) noSource() {
	r.transition(StateNoSourceFound)
	r.finish("no_source")
	r.logger.Info("fire query found no source", "duration", time.Since(r.start))
}

func (r *run) done(records, dropped int) {
	r.transition(StateDone)
	r.finish("done")
	r.metrics.RecordsReturned.Add(float64(records))
	r.metrics.DuplicatesDropped.Add(float64(dropped))
	r.logger.Info("fire query done",
		"records", records,
		"duplicates_dropped", dropped,
		"duration", time.Since(r.start),
	)
}

// fail moves the run to Failed and returns err unchanged so callers can
// write `return nil, r.fail(err)`.
func (r *run) fail(err error) error {
	from := r.state
	r.transition(StateFailed)
	r.finish("failed")
	r.logger.Warn("fire query failed",
		"from_state", from,
		"kind", domain.KindOf(err),
		"error", err,
		"duration", time.Since(r.start),
	)
	return err
}

func (r *run) finish(outcome string) {
	r.metrics.Queries.WithLabelValues(outcome).Inc()
	r.metrics.QueryDuration.WithLabelValues(outcome).Observe(time.Since(r.start).Seconds())
}

// State returns the plan's current lifecycle state.
func (p *Plan) State() State {
	if p.run == nil {
		return StateValidating
	}
	return p.run.state
}
