package store

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// read results used as metric label values
const (
	ResultHit      = "hit"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// ReadObserver receives one observation per read, metrics.ServerMetrics implements it.
type ReadObserver interface {
	ObserveStoreRead(ctx context.Context, store, result string, seconds float64)
}

type instrumented struct {
	name   string
	next   Store
	obs    ReadObserver
	tracer trace.Tracer
}

// Instrument wraps next so every read gets a span and, when obs is non-nil,
// a duration observation labelled with name and the read result.
func Instrument(name string, next Store, obs ReadObserver) Store {
	return &instrumented{
		name:   name,
		next:   next,
		obs:    obs,
		tracer: otel.Tracer("sitestore/store"),
	}
}

func (s *instrumented) Read(ctx context.Context, name string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "store.read", trace.WithAttributes(
		attribute.String("store.name", s.name),
		attribute.String("store.path", name),
	))
	defer span.End()

	start := time.Now()
	b, err := s.next.Read(ctx, name)
	elapsed := time.Since(start)

	result := ResultHit
	switch {
	case err == nil:
		span.SetAttributes(attribute.Int("store.bytes", len(b)))
	case errors.Is(err, ErrNotFound):
		result = ResultNotFound
	default:
		result = ResultError
		span.RecordError(err)
		span.SetStatus(codes.Error, "store read failed")
	}
	span.SetAttributes(attribute.String("store.result", result))

	if s.obs != nil {
		s.obs.ObserveStoreRead(ctx, s.name, result, elapsed.Seconds())
	}
	return b, err
}
