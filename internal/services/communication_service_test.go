package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm_backend/internal/models"
	"crm_backend/internal/services/dto"
	"crm_backend/internal/sms"
	"crm_backend/internal/subscription"
)

func newDeliverService(sender *fakeSMSSender) (*communicationService, *usageService) {
	usage := newTestUsageService(newMemUsageRepo(), nil)
	outbound := &Outbound{SMS: sms.NewNotifier(sender, "CRM", "", 30)}
	svc := NewCommunicationService(nil, nil, allowTenant{}, usage, nil, nil, outbound, nil).(*communicationService)
	return svc, usage
}

func smsConversation(phone string) *models.Conversation {
	contact := contactWith("c-1", "", phone)
	return &models.Conversation{Channel: models.ChannelSMS, Contact: &contact}
}

func TestDeliver_SendsAndConsumesQuota(t *testing.T) {
	sender := &fakeSMSSender{enabled: true}
	svc, usage := newDeliverService(sender)
	user := starterUser()
	ctx := context.Background()

	msg := &models.Message{Content: "hello"}
	result := &dto.MessageResult{Message: msg}
	require.NoError(t, svc.deliver(ctx, nil, user, smsConversation("(555) 123-4567"), msg, result))

	assert.True(t, result.Delivered)
	assert.Equal(t, models.MessageStatusSent, msg.Status)
	assert.Equal(t, "+15551234567", msg.ToAddress)
	assert.Equal(t, "SM+15551234567", msg.ExternalID)

	st, err := usage.Check(ctx, nil, user, subscription.FeatureSMSSends, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.UsageCount)
}

func TestDeliver_DegradesWithoutProviderOrRecipient(t *testing.T) {
	ctx := context.Background()
	user := starterUser()

	disabled, usage := newDeliverService(&fakeSMSSender{enabled: false})
	msg := &models.Message{Content: "hello"}
	result := &dto.MessageResult{Message: msg}
	require.NoError(t, disabled.deliver(ctx, nil, user, smsConversation("+15550000001"), msg, result))
	assert.False(t, result.Delivered)
	assert.Equal(t, models.MessageStatusFailed, msg.Status)
	assert.Equal(t, errProviderDisabled.Error(), result.ProviderError)

	noPhone, _ := newDeliverService(&fakeSMSSender{enabled: true})
	msg = &models.Message{Content: "hello"}
	result = &dto.MessageResult{Message: msg}
	require.NoError(t, noPhone.deliver(ctx, nil, user, smsConversation(""), msg, result))
	assert.Equal(t, errNoRecipient.Error(), result.ProviderError)

	st, err := usage.Check(ctx, nil, user, subscription.FeatureSMSSends, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.UsageCount)
}

func TestDeliver_ProviderFailureKeepsMessage(t *testing.T) {
	sender := &fakeSMSSender{enabled: true, failFor: map[string]bool{"+15550000009": true}}
	svc, _ := newDeliverService(sender)

	msg := &models.Message{Content: "hello"}
	result := &dto.MessageResult{Message: msg}
	require.NoError(t, svc.deliver(context.Background(), nil, starterUser(), smsConversation("+15550000009"), msg, result))

	assert.False(t, result.Delivered)
	assert.Equal(t, models.MessageStatusFailed, msg.Status)
	assert.Contains(t, result.ProviderError, "21211")
}

func TestDeliver_QuotaExceededIsAnError(t *testing.T) {
	svc, usage := newDeliverService(&fakeSMSSender{enabled: true})
	user := starterUser()
	ctx := context.Background()

	_, err := usage.Increment(ctx, nil, user, subscription.FeatureSMSSends, 100, "")
	require.NoError(t, err)

	msg := &models.Message{Content: "hello"}
	err = svc.deliver(ctx, nil, user, smsConversation("+15550000001"), msg, &dto.MessageResult{Message: msg})
	require.Error(t, err)
}

func TestDeliver_UnmeteredChannel(t *testing.T) {
	svc, _ := newDeliverService(&fakeSMSSender{})
	contact := contactWith("c-1", "", "")
	conv := &models.Conversation{Channel: models.ChannelChat, Contact: &contact}

	msg := &models.Message{Content: "hi"}
	result := &dto.MessageResult{Message: msg}
	require.NoError(t, svc.deliver(context.Background(), nil, starterUser(), conv, msg, result))
	assert.True(t, result.Delivered)
	assert.Equal(t, models.MessageStatusSent, msg.Status)
}
