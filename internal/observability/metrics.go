package observability

import (
	"context"
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the packaging run metrics:
// - Latency: how long each stage takes
// - Traffic: stages run, files copied, paths thinned
// - Errors: failed stages
// - Output: size of the archive written
//
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	meter    metric.Meter
	registry *promclient.Registry

	StageDuration    metric.Float64Histogram
	StagesTotal      metric.Int64Counter
	StageErrorsTotal metric.Int64Counter

	FilesCopied  metric.Int64Counter
	PathsThinned metric.Int64Counter
	ArchiveBytes metric.Int64Gauge
}

// NewMetrics creates all instruments on a private Prometheus registry, so
// a run only exports its own series.
func NewMetrics(ctx context.Context) (*Metrics, error) {
	registry := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("packager")
	m := &Metrics{meter: meter, registry: registry}

	m.StageDuration, err = meter.Float64Histogram(
		"pack_stage_duration_seconds",
		metric.WithDescription("Stage execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	m.StagesTotal, err = meter.Int64Counter(
		"pack_stages_total",
		metric.WithDescription("Total number of stages run"),
	)
	if err != nil {
		return nil, err
	}

	m.StageErrorsTotal, err = meter.Int64Counter(
		"pack_stage_errors_total",
		metric.WithDescription("Total number of failed stages"),
	)
	if err != nil {
		return nil, err
	}

	m.FilesCopied, err = meter.Int64Counter(
		"pack_files_copied_total",
		metric.WithDescription("Total number of files copied into the output directory"),
	)
	if err != nil {
		return nil, err
	}

	m.PathsThinned, err = meter.Int64Counter(
		"pack_paths_thinned_total",
		metric.WithDescription("Total number of excluded paths removed from the output directory"),
	)
	if err != nil {
		return nil, err
	}

	m.ArchiveBytes, err = meter.Int64Gauge(
		"pack_archive_bytes",
		metric.WithDescription("Size of the last archive written"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Gatherer exposes the registry the metrics are exported to.
func (m *Metrics) Gatherer() promclient.Gatherer {
	return m.registry
}

// WriteTextfile writes every series in Prometheus text format, for the
// node-exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := promclient.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

// RecordStage records a completed stage (success or failure).
func (m *Metrics) RecordStage(ctx context.Context, stage string, success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(stageAttr(stage), successAttr(success))
	m.StageDuration.Record(ctx, durationSeconds, attrs)
	m.StagesTotal.Add(ctx, 1, attrs)

	if !success {
		m.StageErrorsTotal.Add(ctx, 1, metric.WithAttributes(stageAttr(stage)))
	}
}

// RecordFilesCopied records files mirrored by the copy stage.
func (m *Metrics) RecordFilesCopied(ctx context.Context, files int) {
	if m == nil {
		return
	}
	m.FilesCopied.Add(ctx, int64(files))
}

// RecordPathsThinned records exclusion-list paths removed by the thin stage.
func (m *Metrics) RecordPathsThinned(ctx context.Context, paths int) {
	if m == nil {
		return
	}
	m.PathsThinned.Add(ctx, int64(paths))
}

// RecordArchiveBytes records the size of the archive written.
func (m *Metrics) RecordArchiveBytes(ctx context.Context, archive string, bytes int64) {
	if m == nil {
		return
	}
	m.ArchiveBytes.Record(ctx, bytes, WithArchive(archive))
}
