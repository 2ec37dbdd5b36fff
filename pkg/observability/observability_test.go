package observability

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNoopBeforeInitialize(t *testing.T) {
	require.NoError(t, Initialize(DefaultTracingConfig()))
	_, span := NewTaskTracer("load").StartTask(context.Background(), "a.csv")
	assert.NotPanics(t, func() { span.End(nil) })
}

func TestTaskSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	require.NoError(t, InitializeWithProcessor(DefaultTracingConfig(), rec))
	defer Shutdown(context.Background())

	tt := NewTaskTracer("load")
	ctx, run := tt.StartRun(context.Background(), "ks.t", 2)
	_, ok := tt.StartTask(ctx, "a.csv")
	ok.SetAttribute("rows", int64(10))
	ok.End(nil)
	_, bad := tt.StartTask(ctx, "b.csv")
	bad.End(errors.New("too many errors"))
	run.End(nil)

	spans := rec.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "load.task", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "too many errors", spans[1].Status().Description)
	assert.Equal(t, spans[2].SpanContext().SpanID(), spans[0].Parent().SpanID())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "a.csv", attrs["task.name"])
	assert.Equal(t, "10", attrs["rows"])
}

func TestStdoutExporter(t *testing.T) {
	cfg := DefaultTracingConfig()
	cfg.Exporter = "stdout"
	cfg.OutputPath = filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, Initialize(cfg))

	_, span := NewTaskTracer("unload").StartTask(context.Background(), "out.0")
	span.End(nil)
	require.NoError(t, Shutdown(context.Background()))

	cfg.Exporter = "jaeger"
	assert.Error(t, Initialize(cfg))
}
