package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fdemarco/cyclearb/internal/apm"
)

// PipelineConfig tunes the detection loop.
type PipelineConfig struct {
	PollInterval time.Duration
}

// Pipeline drives the snapshot -> graph -> detect -> sink loop on a fixed
// interval. One round in flight at a time: a slow venue delays the next
// round instead of piling up concurrent rounds against the rate limiters.
type Pipeline struct {
	source   SnapshotSource
	builder  *Builder
	detector *Detector
	sink     CycleSink
	cfg      PipelineConfig
	logger   *slog.Logger
	tracer   apm.Tracer

	rounds         metric.Int64Counter
	cyclesDetected metric.Int64Counter
	roundDuration  metric.Float64Histogram
}

func NewPipeline(
	source SnapshotSource,
	builder *Builder,
	detector *Detector,
	sink CycleSink,
	cfg PipelineConfig,
	logger *slog.Logger,
) *Pipeline {
	meter := otel.Meter("arbitrage.pipeline")
	rounds, _ := meter.Int64Counter("arbitrage_rounds_total",
		metric.WithDescription("Detection rounds executed"))
	cycles, _ := meter.Int64Counter("arbitrage_cycles_detected_total",
		metric.WithDescription("Profitable cycles detected"))
	duration, _ := meter.Float64Histogram("arbitrage_round_duration_seconds",
		metric.WithDescription("Wall time of one detection round"))

	return &Pipeline{
		source:         source,
		builder:        builder,
		detector:       detector,
		sink:           sink,
		cfg:            cfg,
		logger:         logger.With(slog.String("component", "arbitrage.pipeline")),
		tracer:         apm.NewTracer("arbitrage.pipeline"),
		rounds:         rounds,
		cyclesDetected: cycles,
		roundDuration:  duration,
	}
}

// Run loops until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.logger.Info("detection loop started", slog.Duration("interval", p.cfg.PollInterval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("detection loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("detection round failed", slog.Any("error", err))
			}
		}
	}
}

// RunOnce executes a single detection round.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	ctx, span := p.tracer.StartSpanFromContext(ctx, "pipeline.round")
	defer span.End()

	started := time.Now()
	defer func() {
		p.roundDuration.Record(ctx, time.Since(started).Seconds())
	}()
	p.rounds.Add(ctx, 1)

	snap, err := p.source.Snapshot(ctx)
	if err != nil {
		span.NoticeError(err)
		return err
	}

	now := time.Now()
	graph := p.builder.Build(snap, now)
	span.SetAttributes(
		attribute.Int("graph.nodes", graph.NodeCount()),
		attribute.Int("graph.edges", graph.EdgeCount()),
		attribute.Bool("snapshot.degraded", snap.Degraded),
	)

	cycles := p.detector.Detect(graph, now)
	if len(cycles) == 0 {
		return nil
	}

	p.cyclesDetected.Add(ctx, int64(len(cycles)))
	span.SetAttributes(attribute.Int("cycles", len(cycles)))

	for _, c := range cycles {
		p.logger.Info("profitable cycle detected",
			slog.String("path", c.String()),
			slog.Float64("profit_fraction", c.ProfitFraction()),
			slog.Int("legs", c.Length()))
	}

	if p.sink == nil {
		return nil
	}
	if err := p.sink.HandleCycles(ctx, cycles); err != nil {
		span.NoticeError(err)
		return err
	}
	return nil
}
