// Package payments оборачивает Stripe Checkout и вебхуки Stripe.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crm_backend/internal/config"
	"crm_backend/internal/logger"
	"crm_backend/internal/utils"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

var (
	ErrNotConfigured    = errors.New("payment provider is not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// Типы событий, которые мы обрабатываем
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventInvoicePaid       = "invoice.payment_succeeded"
	EventInvoiceFailed     = "invoice.payment_failed"
)

type CheckoutRequest struct {
	UserID       string
	Email        string
	Tier         string
	BillingCycle string
	PlanName     string
	Amount       decimal.Decimal
	Currency     string
}

type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"checkout_url"`
}

// WebhookEvent - нормализованное событие вебхука
type WebhookEvent struct {
	ID             string
	Type           string
	SessionID      string
	SubscriptionID string
	CustomerID     string
	CustomerEmail  string
	Metadata       map[string]string
	AmountCents    int64
	Currency       string
	PeriodEnd      *time.Time
}

type Gateway interface {
	Enabled() bool
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// StripeGateway - без STRIPE_SECRET_KEY выключен
type StripeGateway struct {
	sc            *client.API
	webhookSecret string
	frontendURL   string
	prices        map[string]string
	timeout       time.Duration
	maxRetries    int
	newSession    func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewStripeGateway(cfg *config.Config) *StripeGateway {
	g := &StripeGateway{
		webhookSecret: cfg.Stripe.WebhookSecret,
		frontendURL:   cfg.Server.FrontendURL,
		prices:        cfg.Stripe.Prices,
		timeout:       cfg.Providers.Timeout,
		maxRetries:    cfg.Providers.MaxRetries,
	}
	if cfg.Stripe.SecretKey == "" {
		logger.Warn("Stripe API key not configured, payments are disabled")
		return g
	}

	g.sc = &client.API{}
	g.sc.Init(cfg.Stripe.SecretKey, nil)
	g.newSession = g.sc.CheckoutSessions.New
	return g
}

func (g *StripeGateway) Enabled() bool {
	return g.newSession != nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if !g.Enabled() {
		return nil, ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(g.frontendURL + "/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(g.frontendURL + "/upgrade"),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems:  []*stripe.CheckoutSessionLineItemParams{g.lineItem(req)},
		Metadata: map[string]string{
			"user_id":       req.UserID,
			"tier":          req.Tier,
			"billing_cycle": req.BillingCycle,
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	params.Context = ctx

	var sess *stripe.CheckoutSession
	start := time.Now()
	err := utils.Retry(ctx, g.maxRetries, func() error {
		var err error
		sess, err = g.newSession(params)
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != 429 {
			return utils.Permanent(err)
		}
		return err
	})
	logger.ProviderLog("stripe", "checkout_session", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// lineItem берет price id из конфига (ключ tier_cycle), иначе цену передаем inline
func (g *StripeGateway) lineItem(req CheckoutRequest) *stripe.CheckoutSessionLineItemParams {
	if priceID, ok := g.prices[req.Tier+"_"+req.BillingCycle]; ok && priceID != "" {
		return &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}
	}

	interval := "month"
	if req.BillingCycle == "yearly" {
		interval = "year"
	}
	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency: stripe.String(currency),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name:        stripe.String(req.PlanName),
				Description: stripe.String("CRM & Marketing Automation Platform"),
			},
			UnitAmount: stripe.Int64(ToCents(req.Amount)),
			Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval: stripe.String(interval),
			},
		},
		Quantity: stripe.Int64(1),
	}
}

// ParseWebhook проверяет подпись. Без webhook secret события не принимаем.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, ErrNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return normalizeEvent(event)
}

func normalizeEvent(event stripe.Event) (*WebhookEvent, error) {
	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return nil, ErrMalformedEvent
	}

	switch out.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		out.SessionID = sess.ID
		out.Metadata = sess.Metadata
		out.AmountCents = sess.AmountTotal
		out.Currency = string(sess.Currency)
		out.CustomerEmail = sess.CustomerEmail
		if sess.CustomerDetails != nil && out.CustomerEmail == "" {
			out.CustomerEmail = sess.CustomerDetails.Email
		}
		if sess.Customer != nil {
			out.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			out.SubscriptionID = sess.Subscription.ID
		}

	case EventInvoicePaid, EventInvoiceFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		out.AmountCents = inv.AmountPaid
		out.Currency = string(inv.Currency)
		out.CustomerEmail = inv.CustomerEmail
		if inv.Customer != nil {
			out.CustomerID = inv.Customer.ID
		}
		if inv.Subscription != nil {
			out.SubscriptionID = inv.Subscription.ID
		}
		end := inv.PeriodEnd
		if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period != nil {
			end = inv.Lines.Data[0].Period.End
		}
		if end > 0 {
			t := time.Unix(end, 0).UTC()
			out.PeriodEnd = &t
		}
	}
	return out, nil
}

// ToCents переводит сумму в минимальные единицы валюты
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromCents - обратное преобразование
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
