package subscription

import "crm_backend/internal/models"

var countedFeatures = []string{
	FeatureContacts, FeatureWebsites, FeatureFunnels, FeatureContentPieces, FeatureAutomations,
	FeatureEmailSends, FeatureSMSSends, FeatureStorageGB, FeatureTeamMembers, FeatureSubAccounts,
	FeatureAPICalls, FeatureAnalyticsRetentionDays,
}

var booleanFeatures = []string{
	FeatureWhiteLabel, FeatureCustomDomain, FeaturePrioritySupport, FeaturePhoneSupport,
	FeatureABTesting, FeatureAdvancedAutomations, FeatureMultiLanguage, FeatureAdvancedReporting,
	FeatureDedicatedManager, FeatureCustomIntegrations, FeatureSSO, FeatureAuditLogs,
	FeatureResellerProgram, FeatureCustomBranding, FeatureRevenueSharing, FeatureWhiteLabelMobileApp,
}

// IsFeature reports whether name is one of the built-in feature keys.
func IsFeature(name string) bool {
	for _, f := range countedFeatures {
		if f == name {
			return true
		}
	}
	for _, f := range booleanFeatures {
		if f == name {
			return true
		}
	}
	return false
}

// IsCounted reports whether the feature has a numeric monthly limit.
func IsCounted(name string) bool {
	for _, f := range countedFeatures {
		if f == name {
			return true
		}
	}
	return false
}

// DefaultFeatureLimitTable returns the built-in limits of every tier.
func DefaultFeatureLimitTable() *FeatureLimitTable {
	table, err := NewFeatureLimitTable(defaultLimits())
	if err != nil {
		panic("subscription: invalid built-in feature table: " + err.Error())
	}
	return table
}

func defaultLimits() map[models.SubscriptionTier]map[string]Limit {
	whiteLabel := map[string]Limit{}
	for _, f := range countedFeatures {
		whiteLabel[f] = unlimited()
	}
	for _, f := range booleanFeatures {
		whiteLabel[f] = flag(true)
	}

	return map[models.SubscriptionTier]map[string]Limit{
		models.TierStarter: withOff(map[string]Limit{
			FeatureContacts:               count(1000),
			FeatureWebsites:               count(3),
			FeatureFunnels:                count(5),
			FeatureContentPieces:          count(50),
			FeatureAutomations:            count(10),
			FeatureEmailSends:             count(2000),
			FeatureSMSSends:               count(100),
			FeatureStorageGB:              count(5),
			FeatureTeamMembers:            count(2),
			FeatureSubAccounts:            count(0),
			FeatureAPICalls:               count(1000),
			FeatureAnalyticsRetentionDays: count(90),
		}),
		models.TierProfessional: withOff(map[string]Limit{
			FeatureContacts:               count(10000),
			FeatureWebsites:               count(25),
			FeatureFunnels:                count(50),
			FeatureContentPieces:          count(500),
			FeatureAutomations:            count(100),
			FeatureEmailSends:             count(20000),
			FeatureSMSSends:               count(1000),
			FeatureStorageGB:              count(50),
			FeatureTeamMembers:            count(10),
			FeatureSubAccounts:            count(0),
			FeatureAPICalls:               count(10000),
			FeatureAnalyticsRetentionDays: count(365),
			FeatureCustomDomain:           flag(true),
			FeaturePrioritySupport:        flag(true),
			FeatureABTesting:              flag(true),
			FeatureAdvancedAutomations:    flag(true),
		}),
		models.TierBusiness: withOff(map[string]Limit{
			FeatureContacts:               count(100000),
			FeatureWebsites:               count(100),
			FeatureFunnels:                count(200),
			FeatureContentPieces:          count(2000),
			FeatureAutomations:            count(500),
			FeatureEmailSends:             count(100000),
			FeatureSMSSends:               count(5000),
			FeatureStorageGB:              count(200),
			FeatureTeamMembers:            count(50),
			FeatureSubAccounts:            count(0),
			FeatureAPICalls:               count(50000),
			FeatureAnalyticsRetentionDays: count(1095),
			FeatureCustomDomain:           flag(true),
			FeaturePrioritySupport:        flag(true),
			FeaturePhoneSupport:           flag(true),
			FeatureABTesting:              flag(true),
			FeatureAdvancedAutomations:    flag(true),
			FeatureMultiLanguage:          flag(true),
			FeatureAdvancedReporting:      flag(true),
		}),
		models.TierEnterprise: withOff(map[string]Limit{
			FeatureContacts:               count(1000000),
			FeatureWebsites:               count(500),
			FeatureFunnels:                count(1000),
			FeatureContentPieces:          count(10000),
			FeatureAutomations:            count(2000),
			FeatureEmailSends:             count(1000000),
			FeatureSMSSends:               count(25000),
			FeatureStorageGB:              count(1000),
			FeatureTeamMembers:            count(200),
			FeatureSubAccounts:            count(0),
			FeatureAPICalls:               count(500000),
			FeatureAnalyticsRetentionDays: count(2555),
			FeatureCustomDomain:           flag(true),
			FeaturePrioritySupport:        flag(true),
			FeaturePhoneSupport:           flag(true),
			FeatureABTesting:              flag(true),
			FeatureAdvancedAutomations:    flag(true),
			FeatureMultiLanguage:          flag(true),
			FeatureAdvancedReporting:      flag(true),
			FeatureDedicatedManager:       flag(true),
			FeatureCustomIntegrations:     flag(true),
			FeatureSSO:                    flag(true),
			FeatureAuditLogs:              flag(true),
		}),
		models.TierWhiteLabel: whiteLabel,
	}
}

// withOff fills boolean features a lower tier does not mention with false.
func withOff(limits map[string]Limit) map[string]Limit {
	for _, f := range booleanFeatures {
		if _, ok := limits[f]; !ok {
			limits[f] = flag(false)
		}
	}
	return limits
}
