package payments

import (
	"context"
	"testing"
	"time"

	"crm_backend/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

const testSecret = "whsec_test"

func signed(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	p := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  testSecret,
	})
	return p.Header, p.Payload
}

func TestStripeGateway_DisabledWithoutKey(t *testing.T) {
	g := NewStripeGateway(&config.Config{})
	assert.False(t, g.Enabled())

	_, err := g.CreateCheckoutSession(context.Background(), CheckoutRequest{UserID: "u"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = g.ParseWebhook([]byte("{}"), "sig")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStripeGateway_CheckoutParams(t *testing.T) {
	var got *stripe.CheckoutSessionParams
	g := &StripeGateway{
		frontendURL: "https://app.test",
		prices:      map[string]string{"business_yearly": "price_biz_y"},
		newSession: func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			got = p
			return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.test/cs_1"}, nil
		},
	}

	sess, err := g.CreateCheckoutSession(context.Background(), CheckoutRequest{
		UserID: "user-1", Tier: "professional", BillingCycle: "monthly", PlanName: "Professional",
		Amount: decimal.NewFromInt(297),
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", sess.ID)

	require.NotNil(t, got)
	assert.Equal(t, "https://app.test/success?session_id={CHECKOUT_SESSION_ID}", *got.SuccessURL)
	assert.Equal(t, "https://app.test/upgrade", *got.CancelURL)
	assert.Equal(t, "user-1", got.Metadata["user_id"])
	assert.Equal(t, "professional", got.Metadata["tier"])
	assert.Equal(t, int64(29700), *got.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "month", *got.LineItems[0].PriceData.Recurring.Interval)

	_, err = g.CreateCheckoutSession(context.Background(), CheckoutRequest{
		UserID: "user-1", Tier: "business", BillingCycle: "yearly",
	})
	require.NoError(t, err)
	assert.Equal(t, "price_biz_y", *got.LineItems[0].Price)
}

func TestStripeGateway_ParseCheckoutCompleted(t *testing.T) {
	g := &StripeGateway{webhookSecret: testSecret}
	header, payload := signed(t, `{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"object": "checkout.session",
			"subscription": "sub_9",
			"customer": "cus_7",
			"amount_total": 29700,
			"currency": "usd",
			"metadata": {"user_id": "user-1", "tier": "professional", "billing_cycle": "monthly"}
		}}
	}`)

	ev, err := g.ParseWebhook(payload, header)
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutCompleted, ev.Type)
	assert.Equal(t, "cs_1", ev.SessionID)
	assert.Equal(t, "sub_9", ev.SubscriptionID)
	assert.Equal(t, "cus_7", ev.CustomerID)
	assert.Equal(t, "professional", ev.Metadata["tier"])
	assert.True(t, FromCents(ev.AmountCents).Equal(decimal.NewFromInt(297)))
}

func TestStripeGateway_ParseInvoicePaid(t *testing.T) {
	g := &StripeGateway{webhookSecret: testSecret}
	end := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	header, payload := signed(t, `{
		"id": "evt_2",
		"type": "invoice.payment_succeeded",
		"data": {"object": {
			"id": "in_1",
			"object": "invoice",
			"subscription": "sub_9",
			"customer": "cus_7",
			"customer_email": "a@b.test",
			"amount_paid": 9700,
			"period_end": `+itoa(end.Unix())+`
		}}
	}`)

	ev, err := g.ParseWebhook(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "sub_9", ev.SubscriptionID)
	assert.Equal(t, "a@b.test", ev.CustomerEmail)
	require.NotNil(t, ev.PeriodEnd)
	assert.True(t, end.Equal(*ev.PeriodEnd))
}

func TestStripeGateway_RejectsBadSignature(t *testing.T) {
	g := &StripeGateway{webhookSecret: testSecret}
	_, err := g.ParseWebhook([]byte(`{"type":"checkout.session.completed"}`), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func itoa(n int64) string {
	return decimal.NewFromInt(n).String()
}
