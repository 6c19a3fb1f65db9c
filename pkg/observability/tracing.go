package observability

import (
    "context"
    "io"

    "go.opentelemetry.io/otel"
    "go.opentelemetry.io/otel/attribute"
    "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
    sdktrace "go.opentelemetry.io/otel/sdk/trace"
    "go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every buildnode span.
const TracerName = "buildnode"

// SetupTracing installs a tracer provider that writes spans to w. The
// returned function flushes and stops it.
func SetupTracing(w io.Writer, pretty bool) (func(context.Context) error, error) {
    opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
    if pretty { opts = append(opts, stdouttrace.WithPrettyPrint()) }
    exp, err := stdouttrace.New(opts...)
    if err != nil { return nil, err }
    tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
    otel.SetTracerProvider(tp)
    return tp.Shutdown, nil
}

// Tracer returns the buildnode tracer from the global provider.
func Tracer() trace.Tracer { return otel.Tracer(TracerName) }

// Span attributes used across packages.
func NodeID(id int) attribute.KeyValue           { return attribute.Int("buildnode.node.id", id) }
func NodePID(pid int) attribute.KeyValue         { return attribute.Int("buildnode.node.pid", pid) }
func NodeEndpoint(ep string) attribute.KeyValue  { return attribute.String("buildnode.node.endpoint", ep) }
func HandshakeKey(key string) attribute.KeyValue { return attribute.String("buildnode.handshake", key) }
