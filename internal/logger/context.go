package logger

import (
	"context"
	"log/slog"
)

// Ключи для context
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userIDKey    contextKey = "user_id"
	tierKey      contextKey = "tier"
	jobKey       contextKey = "job"
)

// WithRequestID добавляет request ID в context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithUserID добавляет ID аккаунта в context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithTier добавляет тариф аккаунта в context
func WithTier(ctx context.Context, tier string) context.Context {
	return context.WithValue(ctx, tierKey, tier)
}

// WithJob помечает context фоновой задачи (cron, crmctl)
func WithJob(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, jobKey, job)
}

// GetRequestID извлекает request ID из context
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// GetUserID извлекает user ID из context
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, userIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// FromContext создает логгер с полями из context
func FromContext(ctx context.Context) *slog.Logger {
	logger := GetLogger()

	var fields []any
	for _, key := range []contextKey{requestIDKey, userIDKey, tierKey, jobKey} {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}

	if len(fields) > 0 {
		logger = logger.With(fields...)
	}
	return logger
}

// CtxDebug логирует debug с контекстом
func CtxDebug(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Debug(msg, args...)
}

// CtxInfo логирует info с контекстом
func CtxInfo(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Info(msg, args...)
}

// CtxWarn логирует warning с контекстом
func CtxWarn(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Warn(msg, args...)
}

// CtxError логирует error с контекстом
func CtxError(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Error(msg, args...)
}

// CtxWithError логирует error с error объектом
func CtxWithError(ctx context.Context, msg string, err error, args ...any) {
	fields := append([]any{"error", err.Error()}, args...)
	FromContext(ctx).Error(msg, fields...)
}
