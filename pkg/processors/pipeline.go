// Package processors sequences the transformation stages that turn an input
// system into its coarse-grained image: bond inference, modification
// annotation, mapping, and chain merging. Each processor mutates the system
// in place; the pipeline adds tracing, metrics, and logging around them.
package processors

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/coarsen-md/coarsen/pkg/molecule"
	"github.com/coarsen-md/coarsen/pkg/observability"
)

// Processor is one transformation stage over a system.
type Processor interface {
	// Name identifies the stage in logs, spans, and metrics.
	Name() string

	// RunSystem transforms the system in place.
	RunSystem(ctx context.Context, sys *molecule.System) error
}

// Pipeline runs processors in order with one span per stage.
type Pipeline struct {
	procs   []Processor
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *observability.StageMetrics
}

// PipelineOption configures a pipeline.
type PipelineOption func(*Pipeline)

// WithTracer sets the tracer used for per-stage spans.
func WithTracer(tracer trace.Tracer) PipelineOption {
	return func(p *Pipeline) { p.tracer = tracer }
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics sets the stage metric instruments.
func WithMetrics(metrics *observability.StageMetrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = metrics }
}

// NewPipeline returns a pipeline running the given processors in order.
func NewPipeline(procs []Processor, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		procs:  procs,
		tracer: nooptrace.NewTracerProvider().Tracer("coarsen"),
		logger: slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run executes every stage against the system, stopping at the first failure.
func (p *Pipeline) Run(ctx context.Context, sys *molecule.System) error {
	for _, proc := range p.procs {
		if err := p.runStage(ctx, proc, sys); err != nil {
			return fmt.Errorf("processor %s: %w", proc.Name(), err)
		}
	}

	return nil
}

func (p *Pipeline) runStage(ctx context.Context, proc Processor, sys *molecule.System) error {
	stageCtx, span := p.tracer.Start(ctx, "processor."+proc.Name())
	defer span.End()

	start := time.Now()
	err := proc.RunSystem(stageCtx, sys)
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordStage(stageCtx, proc.Name(), err, elapsed)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	p.logger.InfoContext(stageCtx, "processor finished",
		"processor", proc.Name(),
		"molecules", len(sys.Molecules),
		"atoms", sys.AtomCount(),
		"elapsed", elapsed)

	return nil
}
