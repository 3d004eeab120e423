package sms

import (
	"context"
	"fmt"
)

// Notifier - продуктовые SMS поверх Sender
type Notifier struct {
	sender      Sender
	productName string
	appURL      string
	trialDays   int
}

func NewNotifier(sender Sender, productName, appURL string, trialDays int) *Notifier {
	if productName == "" {
		productName = "CRM"
	}
	return &Notifier{sender: sender, productName: productName, appURL: appURL, trialDays: trialDays}
}

func (n *Notifier) Enabled() bool {
	return n.sender.Enabled()
}

func (n *Notifier) SendWelcome(ctx context.Context, to, firstName string) Result {
	return n.sender.Send(ctx, to, WelcomeText(n.productName, n.appURL, firstName, n.trialDays))
}

func (n *Notifier) SendTrialWarning(ctx context.Context, to, firstName string, daysRemaining int) Result {
	return n.sender.Send(ctx, to, TrialWarningText(n.productName, n.appURL, firstName, daysRemaining))
}

func (n *Notifier) SendMarketing(ctx context.Context, to, text string) Result {
	return n.sender.Send(ctx, to, text)
}

func WelcomeText(product, appURL, firstName string, trialDays int) string {
	return fmt.Sprintf("Hi %s! Welcome to %s. Your %d-day free trial is now active! Login to start building: %s",
		firstName, product, trialDays, appURL)
}

func TrialWarningText(product, appURL, firstName string, daysRemaining int) string {
	upgrade := appURL + "/upgrade"
	switch daysRemaining {
	case 1:
		return fmt.Sprintf("URGENT: Hi %s! Your trial expires TOMORROW. Upgrade now to keep your account active: %s",
			firstName, upgrade)
	case 7:
		return fmt.Sprintf("Hi %s! Your %s trial expires in 7 days. Don't lose your data - upgrade now: %s",
			firstName, product, upgrade)
	default:
		return fmt.Sprintf("Hi %s! Your %s trial expires in %d days. Upgrade: %s",
			firstName, product, daysRemaining, upgrade)
	}
}
