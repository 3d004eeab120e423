package integration_test

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm_backend/internal/models"
	"crm_backend/test/helpers"
)

func TestSubscription_PublicPlanListing(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	res, body := ts.SendRequest(t, http.MethodGet, "/api/v1/subscription/plans", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `"starter"`)
	assert.Contains(t, body, `"professional"`)
	assert.Contains(t, body, `"enterprise"`)
}

// TestSubscription_UpgradeWithoutGateway - без Stripe тариф применяется сразу
func TestSubscription_UpgradeWithoutGateway(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, user := helpers.RegisterAndLogin(t, ts, "upgrade")

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/subscription/upgrade", token, map[string]interface{}{
		"tier":          "professional",
		"billing_cycle": "monthly",
	})
	require.Equal(t, http.StatusOK, res.StatusCode, body)

	var upgraded struct {
		Mode string `json:"mode"`
		User struct {
			SubscriptionStatus string `json:"subscription_status"`
			SubscriptionTier   string `json:"subscription_tier"`
		} `json:"user"`
	}
	helpers.DecodeJSON(t, body, &upgraded)
	assert.Equal(t, "direct", upgraded.Mode)
	assert.Equal(t, string(models.SubscriptionStatusActive), upgraded.User.SubscriptionStatus)
	assert.Equal(t, string(models.TierProfessional), upgraded.User.SubscriptionTier)

	var stored models.User
	require.NoError(t, ts.DB.First(&stored, "id = ?", user.ID).Error)
	assert.Equal(t, models.SubscriptionStatusActive, stored.SubscriptionStatus)
	require.NotNil(t, stored.SubscriptionExpiresAt)

	// истекший триал уже не важен: подписка активна
	helpers.ExpireTrial(t, ts.DB, user.ID)
	res, _ = ts.SendRequest(t, http.MethodGet, "/api/v1/contacts", token, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// понижение через checkout запрещено
	res, body = ts.SendRequest(t, http.MethodPost, "/api/v1/subscription/upgrade", token, map[string]interface{}{
		"tier":          "starter",
		"billing_cycle": "monthly",
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, body, "INVALID_OPERATION")
}

func TestSubscription_WebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	res, body := ts.SendRaw(t, http.MethodPost, "/api/v1/subscription/webhooks/stripe", "",
		strings.NewReader(`{"id":"evt_1","type":"checkout.session.completed"}`),
		map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, body, "VALIDATION_FAILED")
}

func TestSubscription_UsageIncrementAndQuota(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, _ := helpers.RegisterAndLogin(t, ts, "usage")
	const feature = "content_pieces_per_month" // starter: 50

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/subscription/usage/"+feature+"/increment", token, map[string]interface{}{"amount": 49})
	require.Equal(t, http.StatusOK, res.StatusCode, body)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/subscription/usage/"+feature, token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	var status struct {
		Allowed    bool  `json:"allowed"`
		UsageCount int64 `json:"usage_count"`
		Limit      int64 `json:"limit"`
		Available  int64 `json:"available"`
	}
	helpers.DecodeJSON(t, body, &status)
	assert.True(t, status.Allowed)
	assert.Equal(t, int64(49), status.UsageCount)
	assert.Equal(t, int64(50), status.Limit)
	assert.Equal(t, int64(1), status.Available)

	res, body = ts.SendRequest(t, http.MethodPost, "/api/v1/subscription/usage/"+feature+"/consume", token, map[string]interface{}{"amount": 2})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Contains(t, body, `"reason":"quota_exceeded"`)

	res, body = ts.SendRequest(t, http.MethodPost, "/api/v1/subscription/usage/"+feature+"/consume", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)

	res, body = ts.SendRequest(t, http.MethodPost, "/api/v1/subscription/usage/"+feature+"/increment", token, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Contains(t, body, "LIMIT_EXCEEDED")

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/subscription/recommendations", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `"should_upgrade":true`)
	assert.Contains(t, body, feature)
}

// TestSubscription_ConcurrentConsumeNeverExceedsLimit - атомарный consume на настоящей БД
func TestSubscription_ConcurrentConsumeNeverExceedsLimit(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, _ := helpers.RegisterAndLogin(t, ts, "race")
	const feature = "content_pieces_per_month" // starter: 50
	path := "/api/v1/subscription/usage/" + feature

	res, body := ts.SendRequest(t, http.MethodPost, path+"/increment", token, map[string]interface{}{"amount": 45})
	require.Equal(t, http.StatusOK, res.StatusCode, body)

	const workers = 20
	var ok, denied int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, ts.Server.URL+path+"/consume", strings.NewReader(`{"amount":1}`))
			if err != nil {
				return
			}
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Content-Type", "application/json")
			resp, err := ts.Server.Client().Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusOK:
				atomic.AddInt32(&ok, 1)
			case http.StatusForbidden:
				atomic.AddInt32(&denied, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok)
	assert.Equal(t, int32(workers-5), denied)

	res, body = ts.SendRequest(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, `"usage_count":50`)
}

func TestSubscription_UnknownFeature(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, _ := helpers.RegisterAndLogin(t, ts, "unknown")
	res, _ := ts.SendRequest(t, http.MethodGet, "/api/v1/subscription/usage/teleportation", token, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

// TestSubscription_AdminSetSubscription - ручная смена тарифа доступна только admin/master
func TestSubscription_AdminSetSubscription(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	userToken, user := helpers.RegisterAndLogin(t, ts, "managed")
	masterToken, _ := helpers.CreateAndLoginMaster(t, ts)
	path := fmt.Sprintf("/api/v1/admin/accounts/%s/subscription", user.ID)
	body := map[string]interface{}{"tier": "enterprise", "status": "active"}

	res, _ := ts.SendRequest(t, http.MethodPut, path, userToken, body)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, respBody := ts.SendRequest(t, http.MethodPut, path, masterToken, body)
	require.Equal(t, http.StatusOK, res.StatusCode, respBody)
	assert.Contains(t, respBody, `"subscription_tier":"enterprise"`)

	var stored models.User
	require.NoError(t, ts.DB.First(&stored, "id = ?", user.ID).Error)
	assert.Equal(t, models.TierEnterprise, stored.SubscriptionTier)
	assert.Equal(t, models.SubscriptionStatusActive, stored.SubscriptionStatus)
}
