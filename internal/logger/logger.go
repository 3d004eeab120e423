package logger

import (
	"log/slog"
	"os"
	"time"
)

var log *slog.Logger

// Init инициализирует глобальный логгер
// env: "development" или "production"
func Init(env string) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true,
	}

	if env == "development" || env == "" {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log = slog.New(handler)
	slog.SetDefault(log)
}

// GetLogger возвращает глобальный логгер
func GetLogger() *slog.Logger {
	if log == nil {
		Init("development")
	}
	return log
}

// Debug логирует debug сообщение
func Debug(msg string, args ...any) {
	GetLogger().Debug(msg, args...)
}

// Info логирует info сообщение
func Info(msg string, args ...any) {
	GetLogger().Info(msg, args...)
}

// Warn логирует warning сообщение
func Warn(msg string, args ...any) {
	GetLogger().Warn(msg, args...)
}

// Error логирует error сообщение
func Error(msg string, args ...any) {
	GetLogger().Error(msg, args...)
}

// Fatal логирует fatal ошибку и завершает программу
func Fatal(msg string, args ...any) {
	GetLogger().Error(msg, args...)
	os.Exit(1)
}

// With создает новый логгер с дополнительными полями
func With(args ...any) *slog.Logger {
	return GetLogger().With(args...)
}

// WithError создает логгер с полем error
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}

// HTTPLog логирует HTTP запрос
func HTTPLog(method, path string, status int, duration time.Duration, size int) {
	GetLogger().Info("http request",
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"size_bytes", size,
	)
}

// WorkerLog логирует background worker операцию
func WorkerLog(worker, operation string, err error) {
	fields := []any{
		"worker", worker,
		"operation", operation,
	}

	if err != nil {
		fields = append(fields, "error", err.Error())
		GetLogger().Error("worker operation failed", fields...)
	} else {
		GetLogger().Info("worker operation completed", fields...)
	}
}

// ProviderLog логирует вызов внешнего провайдера (stripe, twilio, smtp, openai)
func ProviderLog(provider, operation string, duration time.Duration, err error) {
	fields := []any{
		"provider", provider,
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	}

	if err != nil {
		fields = append(fields, "error", err.Error())
		GetLogger().Warn("provider call failed", fields...)
	} else {
		GetLogger().Debug("provider call", fields...)
	}
}

// UsageLog логирует решение квоты
func UsageLog(accountID, feature, month string, usage, limit int64, allowed bool) {
	GetLogger().Debug("usage check",
		"account_id", accountID,
		"feature", feature,
		"month", month,
		"usage_count", usage,
		"limit", limit,
		"allowed", allowed,
	)
}
