package http

import (
	"context"
	"log/slog"
)

const serviceName = "commerce-api"

func httpLogger() *slog.Logger {
	return slog.Default().With(
		"service", serviceName,
		"module", "http",
	)
}

// logHTTPOperationError records a failed request once, at the level its
// status deserves: 5xx are errors, everything else is caller-induced and
// logged as a warning.
func logHTTPOperationError(ctx context.Context, operation string, statusCode int, code, message string, err error) {
	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", statusCode,
		"error_code", code,
		"message", message,
		"request_id", requestIDFromContext(ctx),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	if statusCode >= 500 {
		httpLogger().ErrorContext(ctx, "request failed", fields...)
		return
	}
	httpLogger().WarnContext(ctx, "request rejected", fields...)
}
