package helpers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"crm_backend/internal/auth"
	"crm_backend/internal/config"
	"crm_backend/internal/models"
	"crm_backend/internal/subscription"
)

const DefaultPassword = "password123"

// UniqueEmail - тесты не чистят таблицы, поэтому email всегда уникален
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s_%s@test.com", prefix, uuid.NewString()[:8])
}

// CreateUser создает аккаунт напрямую в БД с хешированием пароля.
// Без явного статуса аккаунт получает свежий триал.
func CreateUser(t *testing.T, db *gorm.DB, user *models.User, password string) *models.User {
	t.Helper()

	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	user.PasswordHash = hash
	user.IsActive = true
	if user.Role == "" {
		user.Role = models.UserRoleUser
	}
	if user.SubscriptionStatus == "" {
		subscription.NewTrial(user, time.Now(), config.DefaultTrialDays)
	}

	require.NoError(t, db.Create(user).Error, "не удалось создать пользователя %s", user.Email)
	return user
}

// Login логинит через API и возвращает токен
func Login(t *testing.T, ts *TestServer, email, password string) string {
	t.Helper()

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, res.StatusCode, "Логин должен быть успешным. Ответ: %s", body)

	var resp struct {
		Token string `json:"access_token"`
	}
	DecodeJSON(t, body, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

// RegisterAndLogin проходит регистрацию через API (триал + тенант по умолчанию)
func RegisterAndLogin(t *testing.T, ts *TestServer, prefix string) (string, *models.User) {
	t.Helper()

	email := UniqueEmail(prefix)
	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"email":      email,
		"password":   DefaultPassword,
		"first_name": "Test",
		"last_name":  "User",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, "Регистрация должна быть успешной. Ответ: %s", body)

	var user models.User
	require.NoError(t, ts.DB.Where("email = ?", email).First(&user).Error)
	return Login(t, ts, email, DefaultPassword), &user
}

// CreateAndLoginMaster - аккаунт без ограничений тарифа
func CreateAndLoginMaster(t *testing.T, ts *TestServer) (string, *models.User) {
	t.Helper()

	user := CreateUser(t, ts.DB, &models.User{
		Email:     UniqueEmail("master"),
		FirstName: "Master",
		Role:      models.UserRoleMaster,
	}, DefaultPassword)
	return Login(t, ts, user.Email, DefaultPassword), user
}

// ExpireTrial переводит триал в прошлое, не меняя статус
func ExpireTrial(t *testing.T, db *gorm.DB, userID string) {
	t.Helper()

	err := db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("trial_expires_at", time.Now().Add(-time.Hour)).Error
	require.NoError(t, err)
}
