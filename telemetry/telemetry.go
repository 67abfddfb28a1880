// Package telemetry records one OpenTelemetry span per operation and mirrors
// it as a structured "observability.event" log entry.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// EventMessage is the log message of every observability entry.
	EventMessage = "observability.event"
	eventDomain  = "app"
	tracerName   = "taskboard"
)

// Operation names an instrumented unit of work.
type Operation struct {
	Span   string // span name
	Event  string // event.name of the log entry
	Prefix string // attribute namespace, e.g. "taskboard.store"
}

// Event collects attributes for one running operation.
type Event struct {
	logger *log.Logger
	op     Operation
	span   trace.Span
	start  time.Time
	keys   []string
	attrs  map[string]any
}

// Start opens a span for op. A nil logger disables the log mirror but spans
// are still recorded.
func Start(ctx context.Context, logger *log.Logger, op Operation) (context.Context, *Event) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, op.Span)
	return ctx, &Event{
		logger: logger,
		op:     op,
		span:   span,
		start:  time.Now(),
		attrs:  map[string]any{},
	}
}

// Set records an attribute under the operation prefix.
func (e *Event) Set(key string, value any) {
	if e == nil {
		return
	}
	full := key
	if e.op.Prefix != "" {
		full = e.op.Prefix + "." + key
	}
	e.SetRaw(full, value)
}

// SetRaw records an attribute without the operation prefix.
func (e *Event) SetRaw(key string, value any) {
	if e == nil {
		return
	}
	if _, ok := e.attrs[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.attrs[key] = value
}

// End closes the span and writes the log entry. status is an HTTP status
// code, or 0 for operations outside a request.
func (e *Event) End(status int, err error) {
	if e == nil {
		return
	}
	e.Set("total_ms", durationToMillis(time.Since(e.start)))
	if status > 0 {
		e.SetRaw("http.status_code", status)
	}
	if err != nil {
		e.SetRaw("error.message", err.Error())
	}

	severityText, severityNumber := SeverityForStatus(status, err)

	spanAttrs := make([]attribute.KeyValue, 0, len(e.keys))
	for _, k := range e.keys {
		spanAttrs = append(spanAttrs, toAttribute(k, e.attrs[k]))
	}
	e.span.SetAttributes(spanAttrs...)

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", e.op.Event),
		attribute.String("event.domain", eventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, spanAttrs...)
	e.span.AddEvent(EventMessage, trace.WithAttributes(eventAttrs...))

	if err != nil || status >= http.StatusInternalServerError {
		desc := http.StatusText(status)
		if err != nil {
			desc = err.Error()
		}
		e.span.SetStatus(codes.Error, desc)
	} else {
		e.span.SetStatus(codes.Ok, "")
	}
	sc := e.span.SpanContext()
	e.span.End()

	if e.logger == nil {
		return
	}
	attrs := make(map[string]any, len(e.attrs))
	for k, v := range e.attrs {
		attrs[k] = v
	}
	fields := log.Fields{
		"event.name":      e.op.Event,
		"event.domain":    eventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrs,
	}
	if sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		fields["span_id"] = sc.SpanID().String()
	}
	entry := e.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(EventMessage)
	case "WARN":
		entry.Warn(EventMessage)
	default:
		entry.Info(EventMessage)
	}
}

// SeverityForStatus maps an outcome to OpenTelemetry log severity.
func SeverityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func toAttribute(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	default:
		return attribute.String(key, fmt.Sprint(val))
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
