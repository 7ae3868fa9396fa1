package domain

import "context"

type contextKey string

const (
	requestIDKey contextKey = "hybrid.request.id"
	tenantIDKey  contextKey = "hybrid.tenant.id"
)

// WithRequestID attaches the request id used for logs and observability.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFrom returns the request id, or "" if none was attached.
func RequestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithTenantID attaches the caller's tenant scope.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantIDFrom returns the tenant scope, or "" if none was attached.
func TenantIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(tenantIDKey).(string)
	return v
}
