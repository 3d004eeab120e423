package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upgradeInput struct {
	Tier         string `json:"tier" validate:"required,is-tier"`
	BillingCycle string `json:"billing_cycle" validate:"omitempty,is-billing-cycle"`
}

type messageInput struct {
	Channel string `json:"channel" validate:"required,is-channel"`
	Feature string `json:"feature" validate:"omitempty,is-feature"`
}

func TestValidate_CustomRules(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(upgradeInput{Tier: "professional", BillingCycle: "yearly"}))
	assert.NoError(t, v.Validate(messageInput{Channel: "sms", Feature: "sms_sends_per_month"}))

	err := v.Validate(upgradeInput{Tier: "platinum", BillingCycle: "weekly"})
	require.Error(t, err)
	vErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "Unknown subscription tier", vErr.Errors["tier"])
	assert.Contains(t, vErr.Errors, "billing_cycle")

	err = v.Validate(messageInput{Channel: "pigeon", Feature: "teleport"})
	require.Error(t, err)
	vErr = err.(*ValidationError)
	assert.Contains(t, vErr.Errors, "channel")
	assert.Equal(t, "Unknown feature", vErr.Errors["feature"])
}

func TestValidate_RequiredUsesJSONNames(t *testing.T) {
	err := New().Validate(upgradeInput{})
	require.Error(t, err)
	assert.Equal(t, "This field is required", err.(*ValidationError).Errors["tier"])
}
