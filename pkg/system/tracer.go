package system

import (
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// GetTracer returns the tracer used for spans on the marketplace entry
// points. Exporter wiring is left to the embedding process; by default the
// global provider is a no-op and spans cost nothing.
func GetTracer() oteltrace.Tracer {
	return otel.Tracer("jobmesh")
}
