// Package telemetry provides OpenTelemetry integration for the application.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/myk-org/hooktrail/pkg/logger"
)

const (
	// MeterName is the default meter name for the application
	MeterName = "github.com/myk-org/hooktrail"
)

// Metrics holds all application metrics
type Metrics struct {
	// Log store metrics
	AppendsTotal   metric.Int64Counter
	AppendBytes    metric.Int64Counter
	RotationsTotal metric.Int64Counter

	// Query metrics
	QueriesTotal       metric.Int64Counter
	LinesScanned       metric.Int64Counter
	PartialScansTotal  metric.Int64Counter
	MalformedLines     metric.Int64Counter
	QueryDuration      metric.Float64Histogram
	FlowReconstructions metric.Int64Counter

	// Live subscription metrics
	ActiveSubscriptions metric.Int64UpDownCounter
	DroppedEntriesTotal metric.Int64Counter

	// Trace recorder metrics
	ActiveContexts  metric.Int64UpDownCounter
	StepsTotal      metric.Int64Counter
	FinalizedTotal  metric.Int64Counter
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the global metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		var err error
		globalMetrics, err = initMetrics()
		if err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			// Return empty metrics to avoid nil pointer
			globalMetrics = &Metrics{}
		}
	})
	return globalMetrics
}

// initMetrics initializes all application metrics
func initMetrics() (*Metrics, error) {
	meter := otel.Meter(MeterName)
	m := &Metrics{}

	var err error

	m.AppendsTotal, err = meter.Int64Counter(
		"hooktrail_appends_total",
		metric.WithDescription("Total number of records appended to the log store"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	m.AppendBytes, err = meter.Int64Counter(
		"hooktrail_append_bytes_total",
		metric.WithDescription("Total bytes written to the log store"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	m.RotationsTotal, err = meter.Int64Counter(
		"hooktrail_rotations_total",
		metric.WithDescription("Total number of log file rotations"),
		metric.WithUnit("{rotation}"),
	)
	if err != nil {
		return nil, err
	}

	m.QueriesTotal, err = meter.Int64Counter(
		"hooktrail_queries_total",
		metric.WithDescription("Total number of historical log queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, err
	}

	m.LinesScanned, err = meter.Int64Counter(
		"hooktrail_query_lines_scanned_total",
		metric.WithDescription("Total log lines examined by queries"),
		metric.WithUnit("{line}"),
	)
	if err != nil {
		return nil, err
	}

	m.PartialScansTotal, err = meter.Int64Counter(
		"hooktrail_partial_scans_total",
		metric.WithDescription("Queries truncated by the scan cap"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, err
	}

	m.MalformedLines, err = meter.Int64Counter(
		"hooktrail_malformed_lines_total",
		metric.WithDescription("Malformed lines skipped during scans"),
		metric.WithUnit("{line}"),
	)
	if err != nil {
		return nil, err
	}

	m.QueryDuration, err = meter.Float64Histogram(
		"hooktrail_query_duration_seconds",
		metric.WithDescription("Duration of historical log queries in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.FlowReconstructions, err = meter.Int64Counter(
		"hooktrail_flow_reconstructions_total",
		metric.WithDescription("Total number of flow reconstructions"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveSubscriptions, err = meter.Int64UpDownCounter(
		"hooktrail_active_subscriptions",
		metric.WithDescription("Number of currently active live-tail subscriptions"),
		metric.WithUnit("{subscription}"),
	)
	if err != nil {
		return nil, err
	}

	m.DroppedEntriesTotal, err = meter.Int64Counter(
		"hooktrail_dropped_entries_total",
		metric.WithDescription("Entries dropped from subscriber buffers under backpressure"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveContexts, err = meter.Int64UpDownCounter(
		"hooktrail_active_contexts",
		metric.WithDescription("Number of currently active execution contexts"),
		metric.WithUnit("{context}"),
	)
	if err != nil {
		return nil, err
	}

	m.StepsTotal, err = meter.Int64Counter(
		"hooktrail_steps_total",
		metric.WithDescription("Workflow step transitions by status"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	m.FinalizedTotal, err = meter.Int64Counter(
		"hooktrail_contexts_finalized_total",
		metric.WithDescription("Execution contexts finalized by outcome"),
		metric.WithUnit("{context}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordAppend records one log store append of the given encoded size.
func (m *Metrics) RecordAppend(bytes int) {
	ctx := context.Background()
	if m.AppendsTotal != nil {
		m.AppendsTotal.Add(ctx, 1)
	}
	if m.AppendBytes != nil {
		m.AppendBytes.Add(ctx, int64(bytes))
	}
}

// RecordRotation records one log file rotation.
func (m *Metrics) RecordRotation() {
	if m.RotationsTotal != nil {
		m.RotationsTotal.Add(context.Background(), 1)
	}
}

// RecordQuery records one historical query with its scan accounting.
func (m *Metrics) RecordQuery(ctx context.Context, scanned, malformed int, partial bool, seconds float64) {
	if m.QueriesTotal != nil {
		m.QueriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("partial", partial)))
	}
	if m.LinesScanned != nil {
		m.LinesScanned.Add(ctx, int64(scanned))
	}
	if m.MalformedLines != nil && malformed > 0 {
		m.MalformedLines.Add(ctx, int64(malformed))
	}
	if partial && m.PartialScansTotal != nil {
		m.PartialScansTotal.Add(ctx, 1)
	}
	if m.QueryDuration != nil {
		m.QueryDuration.Record(ctx, seconds)
	}
}

// RecordFlowReconstruction records one flow reconstruction call.
func (m *Metrics) RecordFlowReconstruction(ctx context.Context) {
	if m.FlowReconstructions != nil {
		m.FlowReconstructions.Add(ctx, 1)
	}
}

// RecordSubscription records a subscription being opened or closed.
func (m *Metrics) RecordSubscription(delta int64) {
	if m.ActiveSubscriptions != nil {
		m.ActiveSubscriptions.Add(context.Background(), delta)
	}
}

// RecordDroppedEntry records one entry evicted from a subscriber buffer.
func (m *Metrics) RecordDroppedEntry() {
	if m.DroppedEntriesTotal != nil {
		m.DroppedEntriesTotal.Add(context.Background(), 1)
	}
}

// RecordContext records an execution context being created or discarded.
func (m *Metrics) RecordContext(delta int64) {
	if m.ActiveContexts != nil {
		m.ActiveContexts.Add(context.Background(), delta)
	}
}

// RecordStep records one workflow step transition.
func (m *Metrics) RecordStep(status string) {
	if m.StepsTotal != nil {
		m.StepsTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("status", status)),
		)
	}
}

// RecordFinalized records one execution context finalization.
func (m *Metrics) RecordFinalized(success bool) {
	if m.FinalizedTotal != nil {
		m.FinalizedTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.Bool("success", success)),
		)
	}
}
