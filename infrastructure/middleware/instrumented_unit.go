package middleware

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-spaneval/internal/domain"
	"github.com/ahrav/go-spaneval/internal/ports"
)

var _ ports.Unit = (*InstrumentedUnit)(nil)

// InstrumentedUnit decorates a Unit with a tracing span, execution latency
// and success/error counters, structured logging and an optional execution
// timeout. It is stateless and safe for concurrent use.
type InstrumentedUnit struct {
	next    ports.Unit
	metrics ports.MetricsCollector
	logger  *slog.Logger
	timeout time.Duration
	tracer  trace.Tracer
}

// InstrumentOption configures an InstrumentedUnit.
type InstrumentOption func(*InstrumentedUnit)

// WithMetrics sets the collector that receives latency and outcome counts.
func WithMetrics(m ports.MetricsCollector) InstrumentOption {
	return func(iu *InstrumentedUnit) {
		if m != nil {
			iu.metrics = m
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) InstrumentOption {
	return func(iu *InstrumentedUnit) {
		if l != nil {
			iu.logger = l
		}
	}
}

// WithTimeout bounds each Execute call. Zero disables the limit.
func WithTimeout(d time.Duration) InstrumentOption {
	return func(iu *InstrumentedUnit) { iu.timeout = d }
}

// NewInstrumentedUnit wraps next. It panics if next is nil.
func NewInstrumentedUnit(next ports.Unit, opts ...InstrumentOption) *InstrumentedUnit {
	if next == nil {
		panic("instrumented unit: next unit is required")
	}
	iu := &InstrumentedUnit{
		next:    next,
		metrics: ports.NopMetrics{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:  otel.Tracer("instrumented-unit"),
	}
	for _, opt := range opts {
		opt(iu)
	}
	return iu
}

// Name returns the name of the wrapped unit.
func (iu *InstrumentedUnit) Name() string { return iu.next.Name() }

// Unwrap returns the wrapped unit.
func (iu *InstrumentedUnit) Unwrap() ports.Unit { return iu.next }

// Validate delegates to the wrapped unit.
func (iu *InstrumentedUnit) Validate() error { return iu.next.Validate() }

// Execute runs the wrapped unit inside a span, applying the configured
// timeout. On failure the input state is returned with the error.
func (iu *InstrumentedUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	name := iu.next.Name()
	ctx, span := iu.tracer.Start(ctx, "InstrumentedUnit.Execute",
		trace.WithAttributes(
			attribute.String("middleware.type", "instrumented"),
			attribute.String("unit.id", name),
			attribute.Int64("config.timeout_ms", iu.timeout.Milliseconds()),
		),
	)
	defer span.End()

	logger := iu.logger
	if ec, ok := state.GetExecutionContext(); ok {
		span.SetAttributes(
			attribute.String("execution.graph_id", ec.GraphID),
			attribute.String("execution.id", ec.ExecutionID),
			attribute.String("execution.evaluation_type", ec.EvaluationType),
		)
		logger = logger.With("graph_id", ec.GraphID, "execution_id", ec.ExecutionID)
	}

	if iu.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, iu.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := iu.next.Execute(ctx, state)
	elapsed := time.Since(start)

	labels := map[string]string{ports.LabelUnit: name, "status": "success"}
	iu.metrics.RecordLatency("execute", elapsed, labels)

	if err != nil {
		labels["status"] = "error"
		iu.metrics.RecordCounter("execute", 1, labels)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "unit execution failed",
			"unit", name,
			"duration", elapsed,
			"error", err,
		)
		return state, fmt.Errorf("unit %s: %w", name, err)
	}

	iu.metrics.RecordCounter("execute", 1, labels)
	span.SetStatus(codes.Ok, "")
	logger.DebugContext(ctx, "unit executed", "unit", name, "duration", elapsed)
	return out, nil
}
