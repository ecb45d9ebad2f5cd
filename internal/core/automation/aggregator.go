package automation

import (
	"context"
	"time"

	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
)

// Aggregator turns Metrics Store sums into snapshots for lookback windows
type Aggregator struct {
	store    MetricsStore
	location *time.Location
	timeout  time.Duration
}

// NewAggregator creates an aggregator. Windows end on today's date in
// location; timeout bounds each store query when positive.
func NewAggregator(store MetricsStore, location *time.Location, timeout time.Duration) *Aggregator {
	if location == nil {
		location = time.UTC
	}
	return &Aggregator{store: store, location: location, timeout: timeout}
}

// Window returns the inclusive day range of a lookback ending today
func (a *Aggregator) Window(lookbackDays int, now time.Time) (time.Time, time.Time) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	end := StartOfDay(now, a.location)
	start := end.AddDate(0, 0, -(lookbackDays - 1))
	return start, end
}

// Snapshot aggregates campaignIDs over the lookback window ending today.
// An empty campaign set yields a zero snapshot without querying.
func (a *Aggregator) Snapshot(ctx context.Context, campaignIDs []string, lookbackDays int, now time.Time) (MetricSnapshot, error) {
	start, end := a.Window(lookbackDays, now)
	return a.SnapshotRange(ctx, campaignIDs, start, end)
}

// SnapshotRange aggregates campaignIDs over an explicit day range
func (a *Aggregator) SnapshotRange(ctx context.Context, campaignIDs []string, start, end time.Time) (MetricSnapshot, error) {
	if len(campaignIDs) == 0 {
		return MetricSnapshot{}, nil
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	raw, err := a.store.Aggregate(ctx, campaignIDs, start, end)
	if err != nil {
		return MetricSnapshot{}, apperrors.Transient("metrics aggregate", err)
	}
	return NewSnapshot(raw), nil
}

// Snapshots returns one snapshot per distinct lookback in days
func (a *Aggregator) Snapshots(ctx context.Context, campaignIDs []string, days []int, now time.Time) (map[int]MetricSnapshot, error) {
	snapshots := make(map[int]MetricSnapshot, len(days))
	for _, d := range days {
		s, err := a.Snapshot(ctx, campaignIDs, d, now)
		if err != nil {
			return nil, err
		}
		snapshots[d] = s
	}
	return snapshots, nil
}
