package integration_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"crm_backend/internal/models"
	"crm_backend/test/helpers"
)

// CreateTestNotification симулирует уведомление от другого сервиса
func CreateTestNotification(t *testing.T, db *gorm.DB, userID, title, message string) models.Notification {
	notification := models.Notification{
		UserID:  userID,
		Type:    "test_notification",
		Title:   title,
		Message: message,
	}
	require.NoError(t, db.Create(&notification).Error)
	return notification
}

func unreadCount(t *testing.T, ts *helpers.TestServer, token string) int64 {
	t.Helper()
	res, body := ts.SendRequest(t, http.MethodGet, "/api/v1/notifications/unread-count", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	var resp struct {
		Count int64 `json:"unread_count"`
	}
	helpers.DecodeJSON(t, body, &resp)
	return resp.Count
}

func TestNotification_UserFlow(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, user := helpers.RegisterAndLogin(t, ts, "notify")
	// регистрация уже создала приветственное уведомление
	base := unreadCount(t, ts, token)

	first := CreateTestNotification(t, ts.DB, user.ID, "Trial ends soon", "7 days left")
	CreateTestNotification(t, ts.DB, user.ID, "New message", "Inbound SMS")
	assert.Equal(t, base+2, unreadCount(t, ts, token))

	res, body := ts.SendRequest(t, http.MethodGet, "/api/v1/notifications?unread_only=true", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, "Trial ends soon")
	assert.Contains(t, body, "New message")

	res, body = ts.SendRequest(t, http.MethodPut, "/api/v1/notifications/"+first.ID+"/read", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Equal(t, base+1, unreadCount(t, ts, token))

	res, _ = ts.SendRequest(t, http.MethodPut, "/api/v1/notifications/read-all", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int64(0), unreadCount(t, ts, token))
}

// TestNotification_Security - чужое уведомление отдается как несуществующее
func TestNotification_Security(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	_, owner := helpers.RegisterAndLogin(t, ts, "owner")
	strangerToken, _ := helpers.RegisterAndLogin(t, ts, "stranger")
	notification := CreateTestNotification(t, ts.DB, owner.ID, "Private", "owner only")

	res, _ := ts.SendRequest(t, http.MethodGet, "/api/v1/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = ts.SendRequest(t, http.MethodPut, "/api/v1/notifications/"+notification.ID+"/read", strangerToken, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	var stored models.Notification
	require.NoError(t, ts.DB.First(&stored, "id = ?", notification.ID).Error)
	assert.False(t, stored.IsRead)
}

// TestNotification_AvailableAfterTrialExpiry - уведомления не закрыты гейтом подписки
func TestNotification_AvailableAfterTrialExpiry(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, user := helpers.RegisterAndLogin(t, ts, "expired_notify")
	helpers.ExpireTrial(t, ts.DB, user.ID)

	res, body := ts.SendRequest(t, http.MethodGet, "/api/v1/notifications", token, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode, body)
}
