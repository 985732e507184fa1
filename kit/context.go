// Package kit holds typed context keys shared by the control plane and the
// packages it drives, so request correlation doesn't rely on string keys
// scattered across the codebase.
package kit

import "context"

type contextKey string

const (
	TransportKey   contextKey = "kit_transport" // "http"
	RequestIDKey   contextKey = "kit_request_id"
	TraceIDKey     contextKey = "kit_trace_id"
	RemoteAddrKey  contextKey = "kit_remote_addr"
	IngestionIDKey contextKey = "kit_ingestion_id"
)

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}
func GetRemoteAddr(ctx context.Context) string {
	v, _ := ctx.Value(RemoteAddrKey).(string)
	return v
}

func WithIngestionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, IngestionIDKey, id)
}
func GetIngestionID(ctx context.Context) string {
	v, _ := ctx.Value(IngestionIDKey).(string)
	return v
}
