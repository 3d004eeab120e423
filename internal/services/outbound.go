package services

import (
	"context"
	"errors"

	"crm_backend/internal/email"
	"crm_backend/internal/models"
	"crm_backend/internal/sms"
	"crm_backend/internal/subscription"
)

var (
	errProviderDisabled = errors.New("provider is disabled")
	errNoRecipient      = errors.New("contact has no address for this channel")
)

// Outbound - доставка сообщений контактам через email/SMS адаптеры
type Outbound struct {
	Mailer *email.Mailer
	SMS    *sms.Notifier
}

// QuotaFeature - фича тарифа, которую списывает отправка по каналу
func QuotaFeature(channel models.Channel) (string, bool) {
	switch channel {
	case models.ChannelEmail:
		return subscription.FeatureEmailSends, true
	case models.ChannelSMS:
		return subscription.FeatureSMSSends, true
	}
	return "", false
}

func (o *Outbound) Enabled(channel models.Channel) bool {
	switch channel {
	case models.ChannelEmail:
		return o != nil && o.Mailer != nil && o.Mailer.Enabled()
	case models.ChannelSMS:
		return o != nil && o.SMS != nil && o.SMS.Enabled()
	}
	return false
}

// Recipient - адрес контакта для канала
func Recipient(channel models.Channel, c *models.Contact) string {
	if c == nil {
		return ""
	}
	switch channel {
	case models.ChannelEmail:
		return c.Email
	case models.ChannelSMS:
		return sms.NormalizeE164(c.Phone)
	}
	return ""
}

// Send возвращает внешний id сообщения, если провайдер его дал
func (o *Outbound) Send(ctx context.Context, channel models.Channel, to, subject, body string) (string, error) {
	if !o.Enabled(channel) {
		return "", errProviderDisabled
	}
	if to == "" {
		return "", errNoRecipient
	}

	switch channel {
	case models.ChannelEmail:
		res := o.Mailer.SendPlain(ctx, to, subject, body)
		if !res.Success {
			return "", errors.New(res.Error)
		}
		return "", nil
	case models.ChannelSMS:
		res := o.SMS.SendMarketing(ctx, to, body)
		if !res.Success {
			return "", errors.New(res.Error)
		}
		return res.SID, nil
	}
	return "", errProviderDisabled
}

// SendCampaign - email идет через шаблон кампании, SMS как есть
func (o *Outbound) SendCampaign(ctx context.Context, channel models.Channel, c *models.Contact, subject, content string) (string, error) {
	if channel != models.ChannelEmail {
		return o.Send(ctx, channel, Recipient(channel, c), subject, content)
	}
	if !o.Enabled(channel) {
		return "", errProviderDisabled
	}
	to := Recipient(channel, c)
	if to == "" {
		return "", errNoRecipient
	}
	res := o.Mailer.SendCampaign(ctx, to, c.FirstName, subject, content)
	if !res.Success {
		return "", errors.New(res.Error)
	}
	return "", nil
}
