// Package service implements the garage business operations on top of a domain.Store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"fadedreams/garage/domain"
	"fadedreams/garage/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "garage-service"

// Policy holds the configurable inventory rules.
type Policy struct {
	// RejectOutOfStock makes AssignParts fail when a PART cannot cover every
	// occurrence in the request. When off, stock may go negative.
	RejectOutOfStock bool
	// RejectActionStock makes AddStock fail on ACTION items.
	RejectActionStock bool
}

// DefaultPolicy rejects out-of-stock parts and ignores stock added to actions.
func DefaultPolicy() Policy {
	return Policy{RejectOutOfStock: true}
}

type options struct {
	policy  Policy
	encoder domain.EventEncoder
	metrics *metrics.Metrics
	nowFn   func() time.Time
}

// Option configures a service.
type Option func(*options)

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option { return func(o *options) { o.policy = p } }

// WithEventEncoder enables outbox events for repair mutations.
func WithEventEncoder(enc domain.EventEncoder) Option { return func(o *options) { o.encoder = enc } }

// WithMetrics records operation outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *options) { o.nowFn = now } }

func buildOptions(opts []Option) options {
	o := options{policy: DefaultPolicy(), nowFn: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// isBusinessError reports whether err is a rule violation rather than an infrastructure failure.
func isBusinessError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrPreconditionFailed) ||
		errors.Is(err, domain.ErrCustomerDisagreed) ||
		errors.Is(err, domain.ErrRepairCompleted) ||
		errors.Is(err, domain.ErrOutOfStock) ||
		errors.Is(err, domain.ErrActionStock)
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }

type base struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func newBase(logger *slog.Logger, m *metrics.Metrics) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{tracer: otel.Tracer(tracerName), logger: logger, metrics: m}
}

// finish records a finished operation on the metrics and, when it failed, on the span
// and the log. op is a lower-case phrase such as "create repair".
func (b base) finish(ctx context.Context, span trace.Span, op string, err error, attrs ...any) error {
	b.metrics.ObserveOperation(strings.ReplaceAll(op, " ", "_"), err)
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "Failed to "+op)
	attrs = append(attrs, "error", err)
	if isBusinessError(err) {
		b.logger.WarnContext(ctx, "Rejected "+op, attrs...)
		return err
	}
	b.logger.ErrorContext(ctx, "Failed to "+op, attrs...)
	return err
}

func newEventID() string { return uuid.NewString() }
