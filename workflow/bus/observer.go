package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LogObserver writes every event to a writer.
//
// Two output modes:
//   - Text mode (default): human-readable key=value lines
//   - JSON mode: one JSON object per line (JSONL)
//
// Example text output:
//
//	[step_completed] task=t-001 step=curriculum_design
type LogObserver struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogObserver creates a LogObserver. A nil writer defaults to stdout.
func NewLogObserver(writer io.Writer, jsonMode bool) *LogObserver {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogObserver{writer: writer, jsonMode: jsonMode}
}

// Observe writes one event (implements Observer).
func (l *LogObserver) Observe(ev Event) {
	if l.jsonMode {
		data, err := json.Marshal(ev)
		if err != nil {
			fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
			return
		}
		fmt.Fprintf(l.writer, "%s\n", data)
		return
	}

	fmt.Fprintf(l.writer, "[%s] task=%s", ev.Type, ev.TaskID)
	if ev.Step != "" {
		fmt.Fprintf(l.writer, " step=%s", ev.Step)
	}
	if ev.ConceptID != "" {
		fmt.Fprintf(l.writer, " concept=%s", ev.ConceptID)
	}
	if ev.Message != "" {
		fmt.Fprintf(l.writer, " msg=%q", ev.Message)
	}
	if len(ev.Meta) > 0 {
		if metaJSON, err := json.Marshal(ev.Meta); err == nil {
			fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		}
	}
	fmt.Fprintln(l.writer)
}

// OTelObserver turns every event into an OpenTelemetry span.
//
// Each span is named after the event type, carries the task/step/concept
// identifiers as attributes, and is ended immediately (events are points in
// time). Failure events get an error status.
type OTelObserver struct {
	tracer trace.Tracer
}

// NewOTelObserver creates an OTelObserver from a tracer, typically
// otel.Tracer("roadmapper").
func NewOTelObserver(tracer trace.Tracer) *OTelObserver {
	return &OTelObserver{tracer: tracer}
}

// Observe creates a span for the event (implements Observer).
func (o *OTelObserver) Observe(ev Event) {
	_, span := o.tracer.Start(context.Background(), ev.Type)
	defer span.End()

	span.SetAttributes(
		attribute.String("roadmapper.task_id", ev.TaskID),
		attribute.String("roadmapper.step", ev.Step),
	)
	if ev.RoadmapID != "" {
		span.SetAttributes(attribute.String("roadmapper.roadmap_id", ev.RoadmapID))
	}
	if ev.ConceptID != "" {
		span.SetAttributes(attribute.String("roadmapper.concept_id", ev.ConceptID))
	}
	for key, value := range ev.Meta {
		attrKey := "roadmapper." + key
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}

	if ev.Type == EventWorkflowFailed || ev.Type == EventConceptFailed {
		span.SetStatus(codes.Error, ev.Message)
		if ev.Message != "" {
			span.RecordError(fmt.Errorf("%s", ev.Message))
		}
	}
}

// NullObserver discards all events. Useful as a default when no
// observability backend is configured.
type NullObserver struct{}

// Observe discards the event (implements Observer).
func (NullObserver) Observe(Event) {}
