package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm_backend/internal/models"
	"crm_backend/internal/subscription"
	"crm_backend/pkg/contextkeys"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// withUser имитирует AuthMiddleware: кладет аккаунт и решение гейта
func withUser(u *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		if u != nil {
			c.Set(contextkeys.UserIDKey, u.ID)
			c.Set(contextkeys.RoleKey, u.Role)
			c.Set(contextkeys.UserKey, u)
			c.Set(contextkeys.AccessKey, subscription.EvaluateAccess(u, time.Now()))
		}
		c.Next()
	}
}

func serve(t *testing.T, chain ...gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	handlers := append(chain, func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/x", handlers...)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w
}

func account(role models.UserRole, status models.SubscriptionStatus, trialEnds time.Time) *models.User {
	u := &models.User{Role: role, SubscriptionStatus: status, SubscriptionTier: models.TierStarter, TrialExpiresAt: trialEnds}
	u.ID = "u-1"
	return u
}

func TestSubscriptionRequired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name       string
		user       *models.User
		wantStatus int
		wantReason string
	}{
		{"active trial", account(models.UserRoleUser, models.SubscriptionStatusTrial, now.Add(48*time.Hour)), http.StatusOK, ""},
		{"expired trial", account(models.UserRoleUser, models.SubscriptionStatusTrial, now.Add(-time.Hour)), http.StatusForbidden, `"reason":"trial_expired"`},
		{"expired paid", account(models.UserRoleUser, models.SubscriptionStatusExpired, now.Add(-time.Hour)), http.StatusForbidden, `"reason":"subscription_required"`},
		{"master bypass", account(models.UserRoleMaster, models.SubscriptionStatusExpired, now.Add(-time.Hour)), http.StatusOK, ""},
		{"no auth", nil, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, withUser(tt.user), SubscriptionRequired())
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantReason != "" {
				assert.Contains(t, w.Body.String(), tt.wantReason)
			}
		})
	}
}

func TestAdminOnly(t *testing.T) {
	trial := time.Now().Add(time.Hour)

	w := serve(t, withUser(account(models.UserRoleUser, models.SubscriptionStatusTrial, trial)), AdminOnly())
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(t, withUser(account(models.UserRoleAdmin, models.SubscriptionStatusTrial, trial)), AdminOnly())
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(t, withUser(account(models.UserRoleMaster, models.SubscriptionStatusTrial, trial)), AdminOnly())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFeatureRequired(t *testing.T) {
	resolver := subscription.NewResolver(nil)
	starter := account(models.UserRoleUser, models.SubscriptionStatusTrial, time.Now().Add(time.Hour))

	w := serve(t, withUser(starter), FeatureRequired(resolver, subscription.FeatureAdvancedReporting))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), subscription.FeatureAdvancedReporting)

	enterprise := account(models.UserRoleUser, models.SubscriptionStatusActive, time.Now())
	enterprise.SubscriptionTier = models.TierEnterprise
	w = serve(t, withUser(enterprise), FeatureRequired(resolver, subscription.FeatureAdvancedReporting))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("https://app.example.com/"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Stripe-Signature")

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
