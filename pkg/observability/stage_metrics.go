package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricStagesTotal   = "coarsen.pipeline.stages.total"
	metricStageDuration = "coarsen.pipeline.stage.duration.seconds"
	metricStageErrors   = "coarsen.pipeline.stage.errors.total"
	metricResiduesSkipped = "coarsen.pipeline.residues.skipped.total"

	attrStage  = "stage"
	attrStatus = "status"

	statusOK    = "ok"
	statusError = "error"
)

// stageDurationBoundaries covers 1ms to 5min: single-residue matching is
// sub-millisecond, whole-structure mapping of large assemblies takes minutes.
var stageDurationBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300}

// StageMetrics holds the instruments recorded around each pipeline stage.
type StageMetrics struct {
	stagesTotal     metric.Int64Counter
	stageDuration   metric.Float64Histogram
	stageErrors     metric.Int64Counter
	residuesSkipped metric.Int64Counter
}

// NewStageMetrics creates the pipeline stage instruments from the given
// meter.
func NewStageMetrics(mt metric.Meter) (*StageMetrics, error) {
	total, err := mt.Int64Counter(metricStagesTotal,
		metric.WithDescription("Total number of pipeline stage executions"),
		metric.WithUnit("{stage}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricStagesTotal, err)
	}

	duration, err := mt.Float64Histogram(metricStageDuration,
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageDurationBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricStageDuration, err)
	}

	errs, err := mt.Int64Counter(metricStageErrors,
		metric.WithDescription("Total number of failed pipeline stages"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricStageErrors, err)
	}

	skipped, err := mt.Int64Counter(metricResiduesSkipped,
		metric.WithDescription("Residues skipped due to structural inconsistencies"),
		metric.WithUnit("{residue}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricResiduesSkipped, err)
	}

	return &StageMetrics{
		stagesTotal:     total,
		stageDuration:   duration,
		stageErrors:     errs,
		residuesSkipped: skipped,
	}, nil
}

// RecordStage records one completed stage with its outcome and duration.
func (sm *StageMetrics) RecordStage(ctx context.Context, stage string, err error, duration time.Duration) {
	status := statusOK
	if err != nil {
		status = statusError

		sm.stageErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStage, stage)))
	}

	attrs := metric.WithAttributes(
		attribute.String(attrStage, stage),
		attribute.String(attrStatus, status),
	)

	sm.stagesTotal.Add(ctx, 1, attrs)
	sm.stageDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSkippedResidue counts one residue dropped by a recoverable
// structural failure.
func (sm *StageMetrics) RecordSkippedResidue(ctx context.Context, stage string) {
	sm.residuesSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStage, stage)))
}
