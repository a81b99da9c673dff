package emit

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*tracetest.InMemoryExporter, *OTelEmitter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, NewOTelEmitter(tp.Tracer("test"))
}

func TestOTelEmitterSpanAttributes(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	emitter.Emit(Event{
		RunID:   "run-1",
		Step:    3,
		StageID: "analyze",
		Msg:     "stage_start",
		Meta:    map[string]interface{}{"attempt": 2},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}

	span := spans[0]
	if span.Name != "stage_start" {
		t.Errorf("span name = %q, want stage_start", span.Name)
	}

	attrs := make(map[attribute.Key]attribute.Value, len(span.Attributes))
	for _, kv := range span.Attributes {
		attrs[kv.Key] = kv.Value
	}
	if got := attrs["repoatlas.run_id"].AsString(); got != "run-1" {
		t.Errorf("run_id attribute = %q", got)
	}
	if got := attrs["repoatlas.step"].AsInt64(); got != 3 {
		t.Errorf("step attribute = %d", got)
	}
	if got := attrs["repoatlas.stage_id"].AsString(); got != "analyze" {
		t.Errorf("stage_id attribute = %q", got)
	}
	if got := attrs["repoatlas.attempt"].AsInt64(); got != 2 {
		t.Errorf("attempt attribute = %d", got)
	}
}

func TestOTelEmitterErrorStatus(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	emitter.Emit(Event{
		RunID:   "run-1",
		StageID: "fetch",
		Msg:     "pipeline_abort",
		Meta:    map[string]interface{}{"error": "repository not found"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}

	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status.Code)
	}
	if span.Status.Description != "repository not found" {
		t.Errorf("description = %q", span.Status.Description)
	}
	if len(span.Events) == 0 {
		t.Error("expected a recorded error event")
	}
}
