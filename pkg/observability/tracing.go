// Package observability traces load and unload tasks with OpenTelemetry.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span wraps a trace span, collecting attributes until End.
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan starts a span named operationName.
func NewSpan(ctx context.Context, operationName string) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, operationName)
	return ctx, &Span{span: span, startTime: time.Now()}
}

// SetAttribute adds an attribute, written to the span on End.
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue
	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}
	s.attributes = append(s.attributes, attr)
}

// AddEvent records an event on the span.
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// End sets the status from err and ends the span.
func (s *Span) End(err error) {
	s.attributes = append(s.attributes, attribute.Int64("duration_ms", time.Since(s.startTime).Milliseconds()))
	s.span.SetAttributes(s.attributes...)
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// TaskTracer starts spans for the tasks of one run.
type TaskTracer struct {
	mode string
}

// NewTaskTracer returns a tracer for mode ("load" or "unload").
func NewTaskTracer(mode string) *TaskTracer {
	return &TaskTracer{mode: mode}
}

// StartRun starts the span enclosing every task of a run.
func (tt *TaskTracer) StartRun(ctx context.Context, table string, tasks int) (context.Context, *Span) {
	ctx, span := NewSpan(ctx, tt.mode+".run")
	span.SetAttribute("cql.table", table)
	span.SetAttribute("run.tasks", tasks)
	return ctx, span
}

// StartTask starts a span for the task reading or writing name.
func (tt *TaskTracer) StartTask(ctx context.Context, name string) (context.Context, *Span) {
	ctx, span := NewSpan(ctx, tt.mode+".task")
	span.SetAttribute("task.mode", tt.mode)
	span.SetAttribute("task.name", name)
	return ctx, span
}
