package integration_test

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm_backend/internal/models"
	"crm_backend/test/helpers"
)

func createContact(t *testing.T, ts *helpers.TestServer, token string, body map[string]interface{}) models.Contact {
	t.Helper()
	res, respBody := ts.SendRequest(t, http.MethodPost, "/api/v1/contacts", token, body)
	require.Equal(t, http.StatusCreated, res.StatusCode, respBody)
	var contact models.Contact
	helpers.DecodeJSON(t, respBody, &contact)
	return contact
}

// TestContacts_CRUDAndQuota - создание контакта списывает квоту contacts
func TestContacts_CRUDAndQuota(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, _ := helpers.RegisterAndLogin(t, ts, "contacts")
	contact := createContact(t, ts, token, map[string]interface{}{
		"first_name": "Grace",
		"last_name":  "Hopper",
		"email":      "Grace@Example.com",
		"tags":       []string{"VIP", "vip", "lead"},
	})
	assert.Equal(t, "grace@example.com", contact.Email)
	assert.Equal(t, models.ContactStatusActive, contact.Status)

	res, body := ts.SendRequest(t, http.MethodGet, "/api/v1/contacts?search=grace", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, contact.ID)
	assert.Contains(t, body, `"total":1`)

	res, body = ts.SendRequest(t, http.MethodPut, "/api/v1/contacts/"+contact.ID, token, map[string]interface{}{"company": "Navy"})
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, `"company":"Navy"`)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/subscription/usage/contacts", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, `"usage_count":1`)

	res, _ = ts.SendRequest(t, http.MethodDelete, "/api/v1/contacts/"+contact.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = ts.SendRequest(t, http.MethodGet, "/api/v1/contacts/"+contact.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

// TestContacts_TenantIsolation - чужой контакт не виден и не изменяем
func TestContacts_TenantIsolation(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	ownerToken, _ := helpers.RegisterAndLogin(t, ts, "tenant_a")
	otherToken, _ := helpers.RegisterAndLogin(t, ts, "tenant_b")
	contact := createContact(t, ts, ownerToken, map[string]interface{}{"first_name": "Private"})

	res, _ := ts.SendRequest(t, http.MethodGet, "/api/v1/contacts/"+contact.ID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = ts.SendRequest(t, http.MethodPut, "/api/v1/contacts/"+contact.ID, otherToken, map[string]interface{}{"company": "Hijack"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, body := ts.SendRequest(t, http.MethodGet, "/api/v1/contacts", otherToken, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotContains(t, body, contact.ID)
}

func TestContacts_NotesTasksAndScore(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, _ := helpers.RegisterAndLogin(t, ts, "activity")
	contact := createContact(t, ts, token, map[string]interface{}{
		"first_name":   "Linus",
		"email":        "linus@example.com",
		"phone":        "+15550001111",
		"company":      "Kernel Inc",
		"job_title":    "CTO",
		"company_size": 250,
	})

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/contacts/"+contact.ID+"/notes", token, map[string]interface{}{"content": "Met at conference"})
	assert.Equal(t, http.StatusCreated, res.StatusCode, body)

	res, body = ts.SendRequest(t, http.MethodPost, "/api/v1/contacts/"+contact.ID+"/tasks", token, map[string]interface{}{"title": "Follow up", "priority": "high"})
	assert.Equal(t, http.StatusCreated, res.StatusCode, body)

	// без OpenAI скоринг идет по эвристике
	res, body = ts.SendRequest(t, http.MethodPost, "/api/v1/contacts/"+contact.ID+"/score", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, `"score"`)
}

// TestContacts_ExportAndDownload - CSV сохраняется в storage и скачивается только владельцем
func TestContacts_ExportAndDownload(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, _ := helpers.RegisterAndLogin(t, ts, "export")
	otherToken, _ := helpers.RegisterAndLogin(t, ts, "export_other")
	createContact(t, ts, token, map[string]interface{}{"first_name": "Alan", "email": "alan@example.com"})
	createContact(t, ts, token, map[string]interface{}{"first_name": "Barbara", "email": "barbara@example.com"})

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/contacts/export", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	var export struct {
		URL   string `json:"url"`
		Count int    `json:"count"`
	}
	helpers.DecodeJSON(t, body, &export)
	assert.Equal(t, 2, export.Count)
	require.True(t, strings.HasPrefix(export.URL, "/api/v1/files/exports/"), export.URL)

	res, csvBody := ts.SendRaw(t, http.MethodGet, export.URL, token, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, csvBody)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, csvBody, "alan@example.com")
	assert.Contains(t, csvBody, "barbara@example.com")

	res, _ = ts.SendRaw(t, http.MethodGet, export.URL, otherToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

// TestPipeline_BoardAndStageMove - сделка двигается только по этапам своего пайплайна
func TestPipeline_BoardAndStageMove(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, _ := helpers.RegisterAndLogin(t, ts, "pipeline")
	contact := createContact(t, ts, token, map[string]interface{}{"first_name": "Margaret"})

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/pipelines", token, map[string]interface{}{"name": "Sales"})
	require.Equal(t, http.StatusCreated, res.StatusCode, body)
	var pipeline models.Pipeline
	helpers.DecodeJSON(t, body, &pipeline)
	require.NotEmpty(t, pipeline.Stages)

	res, body = ts.SendRequest(t, http.MethodPost, "/api/v1/pipelines/opportunities", token, map[string]interface{}{
		"pipeline_id": pipeline.ID,
		"contact_id":  contact.ID,
		"title":       "Apollo guidance",
		"value":       "12500.50",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, body)
	var opportunity models.Opportunity
	helpers.DecodeJSON(t, body, &opportunity)
	assert.Equal(t, pipeline.Stages[0].Name, opportunity.Stage)

	res, body = ts.SendRequest(t, http.MethodPut, "/api/v1/pipelines/opportunities/"+opportunity.ID+"/stage", token, map[string]interface{}{"stage": "Nowhere"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, body, "INVALID_STATUS")

	target := pipeline.Stages[1].Name
	res, body = ts.SendRequest(t, http.MethodPut, "/api/v1/pipelines/opportunities/"+opportunity.ID+"/stage", token, map[string]interface{}{"stage": target})
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, `"stage":"`+target+`"`)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/pipelines/"+pipeline.ID+"/board", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, opportunity.ID)
	assert.Contains(t, body, `"total_value":"12500.5"`)
}

// TestCommunication_SendWithDisabledProvider - без SMS-провайдера сообщение сохраняется как failed
func TestCommunication_SendWithDisabledProvider(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, _ := helpers.RegisterAndLogin(t, ts, "comms")
	contact := createContact(t, ts, token, map[string]interface{}{"first_name": "Katherine", "phone": "+15550002222"})

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/communications/conversations", token, map[string]interface{}{
		"contact_id": contact.ID,
		"channel":    "sms",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, body)
	var conversation models.Conversation
	helpers.DecodeJSON(t, body, &conversation)

	res, body = ts.SendRequest(t, http.MethodPost, "/api/v1/communications/conversations/"+conversation.ID+"/messages", token, map[string]interface{}{
		"content":   "Your launch window opens at 09:00",
		"direction": "outbound",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, body)
	var result struct {
		Delivered     bool   `json:"delivered"`
		ProviderError string `json:"provider_error"`
		Message       struct {
			Status string `json:"status"`
		} `json:"message"`
	}
	helpers.DecodeJSON(t, body, &result)
	assert.False(t, result.Delivered)
	assert.NotEmpty(t, result.ProviderError)
	assert.Equal(t, string(models.MessageStatusFailed), result.Message.Status)

	// выключенный провайдер квоту не тратит
	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/subscription/usage/sms_sends_per_month", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `"usage_count":0`)
}

func TestDashboard_Overview(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, _ := helpers.RegisterAndLogin(t, ts, "dashboard")
	createContact(t, ts, token, map[string]interface{}{"first_name": "Dorothy"})

	res, body := ts.SendRequest(t, http.MethodGet, "/api/v1/dashboard", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, `"total_contacts":1`)
}

// TestDashboard_Reports - базовые отчеты доступны всем, /analytics только тарифам с advanced_reporting
func TestDashboard_Reports(t *testing.T) {
	t.Parallel()
	ts := GetTestServer(t)

	token, user := helpers.RegisterAndLogin(t, ts, "reports")
	contact := createContact(t, ts, token, map[string]interface{}{"first_name": "Grace", "source": "webinar"})

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/pipelines", token, map[string]interface{}{"name": "Reports"})
	require.Equal(t, http.StatusCreated, res.StatusCode, body)
	var pipeline models.Pipeline
	helpers.DecodeJSON(t, body, &pipeline)

	res, body = ts.SendRequest(t, http.MethodPost, "/api/v1/pipelines/opportunities", token, map[string]interface{}{
		"pipeline_id": pipeline.ID,
		"contact_id":  contact.ID,
		"title":       "COBOL compiler",
		"value":       "4000",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, body)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/dashboard/pipeline-overview", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, `"total_count":1`)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/dashboard/leads-over-time?days=7", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, `"days":7`)
	assert.Contains(t, body, `"total":1`)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/dashboard/campaign-performance", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, `"campaigns":[]`)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/dashboard/upcoming-tasks", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/analytics/lead-sources", token, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode, body)

	masterToken, _ := helpers.CreateAndLoginMaster(t, ts)
	res, body = ts.SendRequest(t, http.MethodPut, fmt.Sprintf("/api/v1/admin/accounts/%s/subscription", user.ID), masterToken,
		map[string]interface{}{"tier": "enterprise", "status": "active"})
	require.Equal(t, http.StatusOK, res.StatusCode, body)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/analytics/lead-sources", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, `"source":"webinar"`)

	res, _ = ts.SendRequest(t, http.MethodGet, "/api/v1/analytics/pipeline-conversion", token, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/analytics/pipeline-conversion?pipeline_id="+pipeline.ID, token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, `"total":1`)

	res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/analytics/channel-performance", token, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	assert.Contains(t, body, `"channels":[]`)
}
