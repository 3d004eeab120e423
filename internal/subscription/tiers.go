package subscription

import (
	"strings"

	"crm_backend/internal/models"
)

var tierOrder = []models.SubscriptionTier{
	models.TierStarter,
	models.TierProfessional,
	models.TierBusiness,
	models.TierEnterprise,
	models.TierWhiteLabel,
}

// DefaultTier is used for unknown or empty tiers.
const DefaultTier = models.TierStarter

// Tiers returns all tiers from lowest to highest.
func Tiers() []models.SubscriptionTier {
	out := make([]models.SubscriptionTier, len(tierOrder))
	copy(out, tierOrder)
	return out
}

// ParseTier normalizes s and reports whether it names a known tier.
func ParseTier(s string) (models.SubscriptionTier, bool) {
	t := models.SubscriptionTier(strings.ToLower(strings.TrimSpace(s)))
	return t, TierRank(t) >= 0
}

// TierRank returns the position of t in the tier order, -1 if unknown.
func TierRank(t models.SubscriptionTier) int {
	for i, known := range tierOrder {
		if known == t {
			return i
		}
	}
	return -1
}

// TiersAbove lists tiers strictly higher than t. Unknown tiers rank as starter.
func TiersAbove(t models.SubscriptionTier) []models.SubscriptionTier {
	rank := TierRank(t)
	if rank < 0 {
		rank = TierRank(DefaultTier)
	}
	out := make([]models.SubscriptionTier, 0, len(tierOrder)-rank-1)
	out = append(out, tierOrder[rank+1:]...)
	return out
}
