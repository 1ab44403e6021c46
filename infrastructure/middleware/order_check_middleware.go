package middleware

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-spaneval/internal/domain"
	"github.com/ahrav/go-spaneval/internal/ports"
)

var _ ports.Unit = (*OrderCheckMiddleware)(nil)

// ErrOrderDependent is returned when a matching unit classifies the same
// predictions differently depending on the order they are given in.
var ErrOrderDependent = errors.New("evaluation depends on prediction order")

// OrderCheckMiddleware runs a matching unit twice, once with the predictions
// as given and once reversed, and fails if the per-type true positive,
// false positive or false negative counts differ between the runs. The
// result of the first run is returned.
type OrderCheckMiddleware struct {
	next ports.Unit
	name string
}

// NewOrderCheckMiddleware wraps next. It panics if next is nil or name is
// empty.
func NewOrderCheckMiddleware(next ports.Unit, name string) *OrderCheckMiddleware {
	if next == nil {
		panic("order check middleware: next unit is required")
	}
	if name == "" {
		panic("order check middleware: name is required")
	}
	return &OrderCheckMiddleware{next: next, name: name}
}

// Name returns the middleware's identifier.
func (ocm *OrderCheckMiddleware) Name() string { return ocm.name }

// Unwrap returns the checked unit.
func (ocm *OrderCheckMiddleware) Unwrap() ports.Unit { return ocm.next }

func (ocm *OrderCheckMiddleware) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("order-check-middleware").Start(ctx, name)
	span.SetAttributes(
		attribute.String("middleware.name", ocm.name),
		attribute.String("middleware.type", "order_check"),
	)
	span.SetAttributes(attrs...)
	return ctx, span
}

// Execute runs the wrapped unit on the predictions in order and reversed.
// With fewer than two predictions the unit runs once.
func (ocm *OrderCheckMiddleware) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := ocm.startSpan(ctx, "OrderCheckMiddleware.Execute",
		attribute.String("wrapped_unit.name", ocm.next.Name()))
	defer span.End()

	preds, err := domain.Require(state, domain.KeyPredictions)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}
	if len(preds) < 2 {
		return ocm.next.Execute(ctx, state)
	}

	first, err := ocm.run(ctx, state, 0)
	if err != nil {
		return state, fmt.Errorf("first execution failed: %w", err)
	}

	reversed := slices.Clone(preds)
	slices.Reverse(reversed)
	second, err := ocm.run(ctx, domain.With(state, domain.KeyPredictions, reversed), 1)
	if err != nil {
		return state, fmt.Errorf("second execution failed: %w", err)
	}

	if err := compareOutcomes(first, second); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, fmt.Errorf("unit %s: %w", ocm.next.Name(), err)
	}

	span.SetStatus(codes.Ok, "")
	return first, nil
}

func (ocm *OrderCheckMiddleware) run(ctx context.Context, state domain.State, runIndex int) (domain.State, error) {
	ctx, span := ocm.startSpan(ctx, fmt.Sprintf("OrderCheckMiddleware.Run%d", runIndex),
		attribute.Int("run_index", runIndex),
		attribute.String("unit.name", ocm.next.Name()))
	defer span.End()

	out, err := ocm.next.Execute(ctx, state)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}
	return out, nil
}

// compareOutcomes reduces both runs to per-type counts and reports the
// first type whose counts differ.
func compareOutcomes(first, second domain.State) error {
	a, err := domain.Require(first, domain.KeyEvalSets)
	if err != nil {
		return err
	}
	b, err := domain.Require(second, domain.KeyEvalSets)
	if err != nil {
		return err
	}

	ra, rb := domain.NewScoreReport(a), domain.NewScoreReport(b)
	if len(ra.PerType) != len(rb.PerType) {
		return fmt.Errorf("%w: %d types in order, %d reversed", ErrOrderDependent, len(ra.PerType), len(rb.PerType))
	}
	for i, x := range ra.PerType {
		y := rb.PerType[i]
		if x.Type != y.Type || x.TruePositives != y.TruePositives ||
			x.FalsePositives != y.FalsePositives || x.FalseNegatives != y.FalseNegatives {
			return fmt.Errorf("%w: type %q tp/fp/fn %d/%d/%d in order, %q %d/%d/%d reversed",
				ErrOrderDependent, x.Type, x.TruePositives, x.FalsePositives, x.FalseNegatives,
				y.Type, y.TruePositives, y.FalsePositives, y.FalseNegatives)
		}
	}
	return nil
}

// Validate checks the middleware and delegates to the wrapped unit.
func (ocm *OrderCheckMiddleware) Validate() error {
	if err := ocm.next.Validate(); err != nil {
		return fmt.Errorf("wrapped unit validation failed: %w", err)
	}
	return nil
}
