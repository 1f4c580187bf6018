// Package stats computes windowed metric graphs over stored telemetry.
//
// A graph call slices the last W seconds into N equal buckets and
// averages one reserved metric per bucket. The previous window of the
// same length supplies a percentage trend. A window with no records is
// not an error; the response degrades to the session's cached last
// value with isEnough=false.
package stats

import (
	"context"
	"time"

	"github.com/fieldtrace/fieldtrace-core/internal/session"
	"github.com/fieldtrace/fieldtrace-core/internal/telemetry"
)

// Metric names a reserved numeric column a graph can be built over.
type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricBattery     Metric = "battery"
)

// Valid checks whether the metric is recognised.
func (m Metric) Valid() bool {
	return m == MetricTemperature || m == MetricBattery
}

// Range names a supported window length.
type Range string

const (
	RangeMinute Range = "minute"
	RangeHour   Range = "hour"
	RangeDay    Range = "day"
	RangeWeek   Range = "week"
	RangeMonth  Range = "month"
)

// Window returns the window length for the range, or false for an
// unrecognised range. A month is a fixed 28 days.
func (r Range) Window() (time.Duration, bool) {
	switch r {
	case RangeMinute:
		return time.Minute, true
	case RangeHour:
		return time.Hour, true
	case RangeDay:
		return 24 * time.Hour, true
	case RangeWeek:
		return 7 * 24 * time.Hour, true
	case RangeMonth:
		return 28 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Bucket is one averaged sub-interval of the window. Average is nil
// when no record in the bucket carried the metric.
type Bucket struct {
	Midpoint time.Time `json:"midpoint"`
	Average  *float64  `json:"average"`
}

// Graph is the full response for a graph query. When IsEnough is
// false the window held no records and only Current is meaningful.
type Graph struct {
	Metric   Metric   `json:"metric"`
	Range    Range    `json:"range"`
	Buckets  []Bucket `json:"buckets,omitempty"`
	Current  *float64 `json:"current"`
	Change   float64  `json:"change"`
	Sign     int      `json:"sign"`
	IsEnough bool     `json:"is_enough"`
}

// SessionReader supplies the cached last metric values for the
// degraded response.
type SessionReader interface {
	GetByID(ctx context.Context, id string) (*session.Session, error)
}

// TelemetryReader supplies windowed records.
type TelemetryReader interface {
	ListWindow(ctx context.Context, sessionID string, from, to time.Time, limit int) ([]telemetry.Record, error)
}

// Engine computes graphs.
type Engine struct {
	sessions  SessionReader
	telemetry TelemetryReader

	// now is swappable for tests.
	now func() time.Time
}

// NewEngine creates a statistics engine.
func NewEngine(sessions SessionReader, tel TelemetryReader) *Engine {
	return &Engine{
		sessions:  sessions,
		telemetry: tel,
		now:       time.Now,
	}
}

// Graph builds an N-bucket graph of the metric over the trailing
// window. points must be at least 1.
func (e *Engine) Graph(ctx context.Context, sessionID string, metric Metric, rng Range, points int) (*Graph, error) {
	if !metric.Valid() {
		return nil, ErrInvalidMetric
	}
	window, ok := rng.Window()
	if !ok {
		return nil, ErrInvalidRange
	}
	if points < 1 {
		return nil, ErrInvalidPoints
	}

	sess, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	current := lastMetric(sess, metric)

	now := e.now().UTC()
	from := now.Add(-window)

	// The window upper bound is inclusive of "now": [now-W, now].
	records, err := e.telemetry.ListWindow(ctx, sessionID, from, now.Add(time.Second), 0)
	if err != nil {
		return nil, err
	}

	g := &Graph{Metric: metric, Range: rng, Current: current}
	if len(records) == 0 {
		return g, nil
	}
	g.IsEnough = true
	g.Buckets = bucketise(records, metric, from, now, points)

	currentAvg, currentOK := average(records, metric)
	previous, err := e.telemetry.ListWindow(ctx, sessionID, now.Add(-2*window), from, 0)
	if err != nil {
		return nil, err
	}
	previousAvg, previousOK := average(previous, metric)

	switch {
	case !previousOK || previousAvg == 0:
		// No baseline to compare against.
		g.Change = 100
		g.Sign = 1
	case currentOK:
		g.Change = (currentAvg - previousAvg) / previousAvg * 100
		g.Sign = sign(g.Change)
	}
	return g, nil
}

// bucketise partitions [from, to] into n equal buckets, oldest first.
// Integer-nanosecond rounding is absorbed by the last bucket so the
// widths always sum to the full window.
func bucketise(records []telemetry.Record, metric Metric, from, to time.Time, n int) []Bucket {
	window := to.Sub(from)
	width := window / time.Duration(n)

	buckets := make([]Bucket, n)
	sums := make([]float64, n)
	counts := make([]int, n)

	for _, rec := range records {
		v := metricValue(&rec, metric)
		if v == nil {
			continue
		}
		i := 0
		if width > 0 {
			i = int(rec.ReceivedAt.Sub(from) / width)
		}
		if i < 0 {
			continue
		}
		if i >= n {
			i = n - 1
		}
		sums[i] += *v
		counts[i]++
	}

	for i := range buckets {
		start := from.Add(time.Duration(i) * width)
		end := start.Add(width)
		if i == n-1 {
			end = to
		}
		buckets[i].Midpoint = start.Add(end.Sub(start) / 2)
		if counts[i] > 0 {
			avg := sums[i] / float64(counts[i])
			buckets[i].Average = &avg
		}
	}
	return buckets
}

// average returns the mean of the metric over records that carry it.
func average(records []telemetry.Record, metric Metric) (float64, bool) {
	var sum float64
	var count int
	for _, rec := range records {
		if v := metricValue(&rec, metric); v != nil {
			sum += *v
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

func metricValue(rec *telemetry.Record, metric Metric) *float64 {
	switch metric {
	case MetricTemperature:
		return rec.Temperature
	case MetricBattery:
		return rec.Battery
	default:
		return nil
	}
}

func lastMetric(sess *session.Session, metric Metric) *float64 {
	switch metric {
	case MetricTemperature:
		return sess.LastTemperature
	case MetricBattery:
		return sess.LastBattery
	default:
		return nil
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
