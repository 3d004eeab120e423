package integration_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm_backend/internal/models"
	"crm_backend/test/helpers"
)

// TestAuthFlow - регистрация открывает триал, /auth/me отдает состояние доступа
func TestAuthFlow(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	email := helpers.UniqueEmail("register")
	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"email":        email,
		"password":     "super_password123",
		"first_name":   "Ada",
		"company_name": "Ada Agency",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, body)

	var registered struct {
		AccessToken string `json:"access_token"`
		User        struct {
			SubscriptionStatus string `json:"subscription_status"`
			SubscriptionTier   string `json:"subscription_tier"`
		} `json:"user"`
		Access struct {
			Allowed       bool `json:"allowed"`
			DaysRemaining int  `json:"days_remaining"`
		} `json:"access"`
	}
	helpers.DecodeJSON(t, body, &registered)
	assert.NotEmpty(t, registered.AccessToken)
	assert.Equal(t, string(models.SubscriptionStatusTrial), registered.User.SubscriptionStatus)
	assert.Equal(t, string(models.TierStarter), registered.User.SubscriptionTier)
	assert.True(t, registered.Access.Allowed)
	assert.InDelta(t, 30, registered.Access.DaysRemaining, 1)

	token := helpers.Login(t, ts, email, "super_password123")
	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, email)
	assert.Contains(t, body, "Ada Agency")
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	user := helpers.CreateUser(t, ts.DB, &models.User{Email: helpers.UniqueEmail("dup"), FirstName: "One"}, helpers.DefaultPassword)

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"email":      user.Email,
		"password":   "password_is_long_enough_123",
		"first_name": "Two",
	})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Contains(t, body, "ALREADY_EXISTS")
}

func TestLogin_BadPassword(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	user := helpers.CreateUser(t, ts.DB, &models.User{Email: helpers.UniqueEmail("badpass"), FirstName: "User"}, "correct-password")

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"email":    user.Email,
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Contains(t, body, "INVALID_CREDENTIALS")
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	res, _ := ts.SendRequest(t, http.MethodGet, "/api/v1/contacts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = ts.SendRequest(t, http.MethodGet, "/api/v1/contacts", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

// TestExpiredTrial_BlocksCRMButNotAccount - истекший триал закрывает CRM,
// но профиль и тарифы остаются доступны
func TestExpiredTrial_BlocksCRMButNotAccount(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, user := helpers.RegisterAndLogin(t, ts, "expired")
	helpers.ExpireTrial(t, ts.DB, user.ID)

	res, body := ts.SendRequest(t, http.MethodGet, "/api/v1/contacts", token, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Contains(t, body, "TRIAL_EXPIRED")
	assert.Contains(t, body, `"reason":"trial_expired"`)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode, body)

	res, _ = ts.SendRequest(t, http.MethodGet, "/api/v1/subscription/current", token, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestMasterBypassesSubscriptionGate(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, master := helpers.CreateAndLoginMaster(t, ts)
	helpers.ExpireTrial(t, ts.DB, master.ID)

	res, body := ts.SendRequest(t, http.MethodGet, "/api/v1/contacts", token, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode, body)
}
