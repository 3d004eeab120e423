package email

import (
	"context"
	"fmt"
)

// Mailer - транзакционные письма продукта поверх Provider
type Mailer struct {
	provider    Provider
	frontendURL string
	companyName string
	trialDays   int
}

func NewMailer(provider Provider, frontendURL, companyName string, trialDays int) *Mailer {
	if companyName == "" {
		companyName = "CRM"
	}
	return &Mailer{
		provider:    provider,
		frontendURL: frontendURL,
		companyName: companyName,
		trialDays:   trialDays,
	}
}

func (m *Mailer) Enabled() bool {
	return m.provider.Enabled()
}

func (m *Mailer) base(userName, action string) TemplateData {
	return TemplateData{
		"UserName":    userName,
		"CompanyName": m.companyName,
		"ActionURL":   m.frontendURL + action,
	}
}

func (m *Mailer) SendWelcome(ctx context.Context, to, userName string) Result {
	data := m.base(userName, "/dashboard")
	data["TrialDays"] = m.trialDays
	subject := fmt.Sprintf("Welcome to %s - your %d-day trial starts now!", m.companyName, m.trialDays)
	return m.provider.SendTemplate(ctx, []string{to}, subject, TemplateWelcome, data)
}

func (m *Mailer) SendTrialWarning(ctx context.Context, to, userName string, daysRemaining int) Result {
	data := m.base(userName, "/upgrade")
	data["DaysRemaining"] = daysRemaining

	subject := fmt.Sprintf("Your %s trial expires in %d days", m.companyName, daysRemaining)
	if daysRemaining == 1 {
		subject = "Last chance! Your trial expires tomorrow"
	}
	return m.provider.SendTemplate(ctx, []string{to}, subject, TemplateTrialWarning, data)
}

func (m *Mailer) SendTrialExpired(ctx context.Context, to, userName string) Result {
	subject := fmt.Sprintf("Your %s trial has expired", m.companyName)
	return m.provider.SendTemplate(ctx, []string{to}, subject, TemplateTrialExpired, m.base(userName, "/upgrade"))
}

func (m *Mailer) SendPaymentFailed(ctx context.Context, to, userName, tier string) Result {
	data := m.base(userName, "/billing")
	data["Tier"] = tier
	return m.provider.SendTemplate(ctx, []string{to}, "Payment failed", TemplatePaymentFailed, data)
}

// SendCampaign отправляет письмо кампании одному контакту
func (m *Mailer) SendCampaign(ctx context.Context, to, firstName, subject, content string) Result {
	if firstName == "" {
		firstName = "there"
	}
	data := TemplateData{
		"FirstName":   firstName,
		"Content":     content,
		"CompanyName": m.companyName,
	}
	return m.provider.SendTemplate(ctx, []string{to}, subject, TemplateCampaign, data)
}

// SendPlain отправляет письмо без шаблона (исходящие сообщения из переписки)
func (m *Mailer) SendPlain(ctx context.Context, to, subject, body string) Result {
	return m.provider.Send(ctx, &Email{To: []string{to}, Subject: subject, Body: body})
}
