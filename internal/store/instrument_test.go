package store

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type observation struct {
	store, result string
	seconds       float64
}

type recordingObserver struct{ got []observation }

func (r *recordingObserver) ObserveStoreRead(_ context.Context, store, result string, seconds float64) {
	r.got = append(r.got, observation{store, result, seconds})
}

func TestInstrument_Results(t *testing.T) {
	obs := &recordingObserver{}
	mem := NewMemoryStoreStrings(map[string]string{"a.html": "A"})
	ctx := context.Background()

	s := Instrument("memory", mem, obs)
	if b, err := s.Read(ctx, "a.html"); err != nil || string(b) != "A" {
		t.Fatalf("Read(a.html) = %q, %v", b, err)
	}
	if _, err := s.Read(ctx, "b.html"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read(b.html) err = %v, want not found", err)
	}
	boom := errors.New("boom")
	if _, err := Instrument("broken", errStore{err: boom}, obs).Read(ctx, "a.html"); !errors.Is(err, boom) {
		t.Fatalf("error not passed through: %v", err)
	}

	want := []observation{
		{store: "memory", result: ResultHit},
		{store: "memory", result: ResultNotFound},
		{store: "broken", result: ResultError},
	}
	if len(obs.got) != len(want) {
		t.Fatalf("observations = %+v", obs.got)
	}
	for i, w := range want {
		g := obs.got[i]
		if g.store != w.store || g.result != w.result || g.seconds < 0 {
			t.Fatalf("observation %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestInstrument_NilObserver(t *testing.T) {
	s := Instrument("memory", NewMemoryStoreStrings(map[string]string{"a": "A"}), nil)
	if _, err := s.Read(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
}

func TestInstrument_Span(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	s := Instrument("file", NewMemoryStoreStrings(map[string]string{"a": "A"}), nil)
	if _, err := s.Read(context.Background(), "missing"); err == nil {
		t.Fatal("expected not found")
	}

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	sp := spans[0]
	if sp.Name() != "store.read" {
		t.Fatalf("span name = %q", sp.Name())
	}
	attrs := map[string]string{}
	for _, kv := range sp.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["store.name"] != "file" || attrs["store.path"] != "missing" || attrs["store.result"] != ResultNotFound {
		t.Fatalf("span attributes = %v", attrs)
	}
}
