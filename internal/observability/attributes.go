// Package observability provides run metrics exported in Prometheus format.
package observability

import (
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	attrStage   = "stage"
	attrSuccess = "success"
	attrArchive = "archive"
)

func stageAttr(stage string) attribute.KeyValue {
	return attribute.String(attrStage, stage)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

func archiveAttr(archive string) attribute.KeyValue {
	// Only the base name, so moving the project root does not create a new series
	return attribute.String(attrArchive, filepath.Base(archive))
}

// WithStage returns a metric option with the stage attribute.
func WithStage(stage string) metric.MeasurementOption {
	return metric.WithAttributes(stageAttr(stage))
}

// WithSuccess returns a metric option with the success attribute.
func WithSuccess(success bool) metric.MeasurementOption {
	return metric.WithAttributes(successAttr(success))
}

// WithArchive returns a metric option with the archive attribute.
func WithArchive(archive string) metric.MeasurementOption {
	return metric.WithAttributes(archiveAttr(archive))
}
