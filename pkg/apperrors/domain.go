package apperrors

import (
	"net/http"
)

/*
Фабрики и предопределенные переменные для ошибок бизнес-логики CRM.
*/

// =========================================================================
// Фабричные ФУНКЦИИ (оборачивание ошибок репозитория)
// =========================================================================

// ErrNotFound - фабрика для ошибки "не найдено" (404)
func ErrNotFound(err error) *AppError {
	return Wrap(err, CodeNotFound, "resource", "Resource not found", http.StatusNotFound)
}

// ErrAlreadyExists - фабрика для ошибки "уже существует" (409)
func ErrAlreadyExists(err error) *AppError {
	return Wrap(err, CodeAlreadyExists, "resource", "Resource already exists", http.StatusConflict)
}

// ErrConflict - общая фабрика для конфликтов (409)
func ErrConflict(err error, domain, message string) *AppError {
	return Wrap(err, CodeConflict, domain, message, http.StatusConflict)
}

// ErrInvalidOperation - фабрика для невалидных операций (400)
func ErrInvalidOperation(domain, message string) *AppError {
	return New(CodeInvalidOperation, domain, message, http.StatusBadRequest)
}

// ErrInvalidStatus - фабрика для невалидных статусов (400)
func ErrInvalidStatus(domain, message string) *AppError {
	return New(CodeInvalidStatus, domain, message, http.StatusBadRequest)
}

// =========================================================================
// Доступ и квоты
// =========================================================================

// ErrSubscriptionRequired - подписка неактивна (403)
func ErrSubscriptionRequired(daysRemaining int) *AppError {
	return New(CodeSubscriptionRequired, "subscription", "Active subscription required", http.StatusForbidden).
		WithDetails(map[string]interface{}{
			"reason":         ReasonSubscriptionRequired,
			"days_remaining": daysRemaining,
		})
}

// ErrTrialExpired - пробный период закончился (403)
func ErrTrialExpired() *AppError {
	return New(CodeTrialExpired, "subscription", "Your free trial has expired. Please upgrade to continue.", http.StatusForbidden).
		WithDetails(map[string]interface{}{
			"reason":         ReasonTrialExpired,
			"days_remaining": 0,
		})
}

// ErrQuotaExceeded - исчерпан лимит фичи тарифа за месяц (403)
func ErrQuotaExceeded(feature string, usage, limit int64) *AppError {
	return New(CodeLimitExceeded, "usage", "Feature limit reached for the current billing month", http.StatusForbidden).
		WithDetails(map[string]interface{}{
			"reason":      ReasonQuotaExceeded,
			"feature":     feature,
			"usage_count": usage,
			"limit":       limit,
		})
}

// ErrProviderUnavailable - внешний провайдер недоступен, а деградировать нельзя (503)
func ErrProviderUnavailable(provider string, err error) *AppError {
	return Wrap(err, CodeExternalServiceError, provider, "External provider unavailable", http.StatusServiceUnavailable)
}

// =========================================================================
// Предопределенные ПЕРЕМЕННЫЕ
// =========================================================================

// --- Auth ---

var ErrEmailAlreadyExists = New(
	CodeAlreadyExists,
	"auth",
	"Email already in use",
	http.StatusConflict,
)

var ErrInvalidCredentials = New(
	CodeInvalidCredentials,
	"auth",
	"Invalid email or password",
	http.StatusUnauthorized,
)

var ErrInvalidToken = New(
	CodeInvalidToken,
	"auth",
	"Invalid or expired token",
	http.StatusUnauthorized,
)

var ErrInsufficientPermissions = New(
	CodeForbidden,
	"auth",
	"Insufficient permissions",
	http.StatusForbidden,
)

// --- Subscription & Payments ---

// ErrUnknownTier - тариф отсутствует в каталоге
var ErrUnknownTier = New(
	CodeValidationFailed,
	"subscription",
	"Unknown subscription tier",
	http.StatusBadRequest,
)

// ErrNotAnUpgrade - переход на тот же или более низкий тариф через checkout
var ErrNotAnUpgrade = New(
	CodeInvalidOperation,
	"subscription",
	"Requested tier is not an upgrade",
	http.StatusBadRequest,
)

// ErrInvalidWebhook - подпись или payload вебхука платежного провайдера невалидны
var ErrInvalidWebhook = New(
	CodeValidationFailed,
	"payment",
	"Invalid webhook payload or signature",
	http.StatusBadRequest,
)

// --- CRM ---

var ErrInvalidStage = New(
	CodeInvalidStatus,
	"pipeline",
	"Stage does not belong to this pipeline",
	http.StatusBadRequest,
)

var ErrCampaignNotDraft = New(
	CodeInvalidStatus,
	"campaign",
	"Only draft or paused campaigns can be sent",
	http.StatusConflict,
)

var ErrConversationClosed = New(
	CodeInvalidStatus,
	"communication",
	"Conversation is not open",
	http.StatusConflict,
)
