package logger

import (
	"context"
	"log/slog"

	"hybrid-retrieval/internal/domain"
)

// Attribute keys for request-scoped fields. These follow OpenTelemetry naming with a
// service prefix.
const (
	RequestIDKey = "hybrid.request.id"
	TenantIDKey  = "hybrid.tenant.id"
)

// contextAttrs extracts request-scoped fields carried on ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if id := domain.RequestIDFrom(ctx); id != "" {
		attrs = append(attrs, slog.String(RequestIDKey, id))
	}
	if tenant := domain.TenantIDFrom(ctx); tenant != "" {
		attrs = append(attrs, slog.String(TenantIDKey, tenant))
	}
	return attrs
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
