package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trustscore/internal/aggregate"
	"github.com/sells-group/trustscore/internal/signals"
)

// MetricsSnapshot holds a point-in-time view of aggregation health.
type MetricsSnapshot struct {
	// Ratings still waiting for a pass.
	UnprocessedRatings int `json:"unprocessed_ratings"`

	// Last successful pass. Zero when no pass has completed yet.
	LastPassAt        time.Time `json:"last_pass_at,omitempty"`
	LastPassProcessed int       `json:"last_pass_processed"`
	LastPassSkipped   int       `json:"last_pass_skipped"`
	LastPassSkipRate  float64   `json:"last_pass_skip_rate"`
	LastPassError     string    `json:"last_pass_error,omitempty"`
	SkippedTicks      int64     `json:"skipped_ticks"`

	// Signal refresh health.
	OpenCircuits   []string `json:"open_circuits,omitempty"`
	RefreshQueued  int      `json:"refresh_queued"`
	RefreshDropped int64    `json:"refresh_dropped"`
	RefreshFailed  int64    `json:"refresh_failed"`

	CollectedAt time.Time `json:"collected_at"`
}

// BacklogCounter counts unprocessed ratings.
type BacklogCounter interface {
	CountUnprocessed(ctx context.Context) (int, error)
}

// PassSource exposes the outcome of recent aggregation passes.
type PassSource interface {
	LastReport() *aggregate.BatchReport
	LastError() error
	SkippedTicks() int64
}

// CircuitSource lists provider circuits that are currently open.
type CircuitSource interface {
	Open() []string
}

// RefreshSource exposes the signal refresher counters.
type RefreshSource interface {
	Stats() signals.Stats
}

// Collector gathers metrics from the store and the running components.
// Every source but the backlog counter is optional.
type Collector struct {
	backlog  BacklogCounter
	passes   PassSource
	circuits CircuitSource
	refresh  RefreshSource
	now      func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(backlog BacklogCounter, passes PassSource, circuits CircuitSource, refresh RefreshSource) *Collector {
	return &Collector{
		backlog:  backlog,
		passes:   passes,
		circuits: circuits,
		refresh:  refresh,
		now:      time.Now,
	}
}

// Collect gathers a snapshot of the current metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{CollectedAt: c.now().UTC()}

	n, err := c.backlog.CountUnprocessed(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count unprocessed")
	}
	snap.UnprocessedRatings = n

	if c.passes != nil {
		if r := c.passes.LastReport(); r != nil {
			snap.LastPassAt = r.FinishedAt
			snap.LastPassProcessed = r.Processed
			snap.LastPassSkipped = r.Skipped
			snap.LastPassSkipRate = r.SkipRate()
		}
		if err := c.passes.LastError(); err != nil {
			snap.LastPassError = err.Error()
		}
		snap.SkippedTicks = c.passes.SkippedTicks()
	}

	if c.circuits != nil {
		snap.OpenCircuits = c.circuits.Open()
	}

	if c.refresh != nil {
		st := c.refresh.Stats()
		snap.RefreshQueued = st.Queued
		snap.RefreshDropped = st.Dropped
		snap.RefreshFailed = st.Failed
	}

	return snap, nil
}
