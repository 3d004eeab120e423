package validator

import (
	"log"

	"crm_backend/internal/models"
	"crm_backend/internal/subscription"

	"github.com/go-playground/validator/v10"
)

// registerCustomRules регистрирует все кастомные функции валидации в
// переданном экземпляре валидатора.
func registerCustomRules(v *validator.Validate) {
	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			// без правила приложение не должно стартовать
			log.Fatalf("failed to register custom validation tag '%s': %v", tag, err)
		}
	}

	// --- Аккаунт и подписка ---
	mustRegister("is-user-role", validateUserRole)
	mustRegister("is-tier", validateTier)
	mustRegister("is-billing-cycle", validateBillingCycle)
	mustRegister("is-payment-status", validatePaymentStatus)
	mustRegister("is-feature", validateFeature)

	// --- CRM ---
	mustRegister("is-contact-status", validateContactStatus)
	mustRegister("is-task-priority", validateTaskPriority)
	mustRegister("is-opportunity-status", validateOpportunityStatus)
	mustRegister("is-campaign-type", validateCampaignType)
	mustRegister("is-campaign-status", validateCampaignStatus)
	mustRegister("is-conversation-status", validateConversationStatus)
	mustRegister("is-channel", validateChannel)
	mustRegister("is-message-direction", validateMessageDirection)
}

// oneOf - пустое значение пропускаем, для этого есть 'required'
func oneOf[T ~string](allowed ...T) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if value == "" {
			return true
		}
		for _, a := range allowed {
			if T(value) == a {
				return true
			}
		}
		return false
	}
}

var (
	validateUserRole = oneOf(models.UserRoleUser, models.UserRoleAdmin, models.UserRoleMaster)

	validateBillingCycle = oneOf(models.BillingMonthly, models.BillingYearly)

	validatePaymentStatus = oneOf(models.PaymentStatusPending, models.PaymentStatusPaid,
		models.PaymentStatusFailed, models.PaymentStatusRefunded)

	validateContactStatus = oneOf(models.ContactStatusActive, models.ContactStatusInactive, models.ContactStatusArchived)

	validateTaskPriority = oneOf(models.TaskPriorityLow, models.TaskPriorityMedium, models.TaskPriorityHigh)

	validateOpportunityStatus = oneOf(models.OpportunityStatusOpen, models.OpportunityStatusWon, models.OpportunityStatusLost)

	validateCampaignType = oneOf(models.CampaignTypeEmail, models.CampaignTypeSMS, models.CampaignTypeMixed)

	validateCampaignStatus = oneOf(models.CampaignStatusDraft, models.CampaignStatusActive,
		models.CampaignStatusPaused, models.CampaignStatusSending, models.CampaignStatusCompleted)

	validateConversationStatus = oneOf(models.ConversationStatusOpen, models.ConversationStatusClosed,
		models.ConversationStatusArchived)

	validateChannel = oneOf(models.ChannelEmail, models.ChannelSMS, models.ChannelChat,
		models.ChannelPhone, models.ChannelSocial)

	validateMessageDirection = oneOf(models.DirectionInbound, models.DirectionOutbound)
)

func validateTier(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, ok := subscription.ParseTier(value)
	return ok
}

func validateFeature(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return subscription.IsFeature(value)
}
