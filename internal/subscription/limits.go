package subscription

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"

	"crm_backend/internal/models"
)

// Feature keys of the limit table.
const (
	FeatureContacts               = "contacts"
	FeatureWebsites               = "websites"
	FeatureFunnels                = "funnels"
	FeatureContentPieces          = "content_pieces_per_month"
	FeatureAutomations            = "automations"
	FeatureEmailSends             = "email_sends_per_month"
	FeatureSMSSends               = "sms_sends_per_month"
	FeatureStorageGB              = "storage_gb"
	FeatureTeamMembers            = "team_members"
	FeatureWhiteLabel             = "white_label"
	FeatureSubAccounts            = "sub_accounts"
	FeatureAPICalls               = "api_calls_per_month"
	FeatureCustomDomain           = "custom_domain"
	FeaturePrioritySupport        = "priority_support"
	FeaturePhoneSupport           = "phone_support"
	FeatureAnalyticsRetentionDays = "analytics_retention_days"
	FeatureABTesting              = "a_b_testing"
	FeatureAdvancedAutomations    = "advanced_automations"
	FeatureMultiLanguage          = "multi_language"
	FeatureAdvancedReporting      = "advanced_reporting"
	FeatureDedicatedManager       = "dedicated_account_manager"
	FeatureCustomIntegrations     = "custom_integrations"
	FeatureSSO                    = "sso"
	FeatureAuditLogs              = "audit_logs"
	FeatureResellerProgram        = "reseller_program"
	FeatureCustomBranding         = "custom_branding"
	FeatureRevenueSharing         = "revenue_sharing"
	FeatureWhiteLabelMobileApp    = "white_label_mobile_app"
)

// Unlimited is the numeric sentinel used when a limit is stored or rendered as a number.
const Unlimited int64 = -1

const unlimitedLiteral = "unlimited"

// Limit is the resolved value of one feature for one tier.
// Boolean features resolve to Unlimited (on) or Value 0 (off).
type Limit struct {
	Unlimited bool
	Value     int64
	Boolean   bool
}

func count(n int64) Limit { return Limit{Value: n} }

func flag(on bool) Limit { return Limit{Unlimited: on, Boolean: true} }

func unlimited() Limit { return Limit{Unlimited: true} }

// Allows reports whether usage is still below the limit.
func (l Limit) Allows(usage int64) bool {
	return l.Unlimited || usage < l.Value
}

// Enabled is false for switched-off booleans and zero limits.
func (l Limit) Enabled() bool {
	return l.Unlimited || l.Value > 0
}

// Number renders the limit with Unlimited as -1.
func (l Limit) Number() int64 {
	if l.Unlimited {
		return Unlimited
	}
	return l.Value
}

// MarshalJSON renders booleans as true/false, unlimited as "unlimited" and counts as numbers.
func (l Limit) MarshalJSON() ([]byte, error) {
	switch {
	case l.Boolean:
		return json.Marshal(l.Unlimited)
	case l.Unlimited:
		return json.Marshal(unlimitedLiteral)
	default:
		return json.Marshal(l.Value)
	}
}

// FeatureLimitTable is the immutable tier -> feature -> limit mapping.
type FeatureLimitTable struct {
	features []string
	tiers    map[models.SubscriptionTier]map[string]Limit
}

// NewFeatureLimitTable validates and copies the given mapping. Every known tier
// must be present, every tier must define every feature and white_label must
// be unlimited everywhere.
func NewFeatureLimitTable(tiers map[models.SubscriptionTier]map[string]Limit) (*FeatureLimitTable, error) {
	keys := map[string]struct{}{}
	for _, limits := range tiers {
		for feature := range limits {
			keys[feature] = struct{}{}
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("feature limit table is empty")
	}

	features := make([]string, 0, len(keys))
	for feature := range keys {
		features = append(features, feature)
	}
	sort.Strings(features)

	table := &FeatureLimitTable{
		features: features,
		tiers:    make(map[models.SubscriptionTier]map[string]Limit, len(tierOrder)),
	}

	for tier := range tiers {
		if TierRank(tier) < 0 {
			return nil, fmt.Errorf("unknown tier %q in feature limit table", tier)
		}
	}

	for _, tier := range tierOrder {
		limits, ok := tiers[tier]
		if !ok {
			return nil, fmt.Errorf("tier %q is missing from feature limit table", tier)
		}

		var missing []string
		cp := make(map[string]Limit, len(features))
		for _, feature := range features {
			l, ok := limits[feature]
			if !ok {
				missing = append(missing, feature)
				continue
			}
			if tier == models.TierWhiteLabel && !l.Unlimited {
				return nil, fmt.Errorf("white_label feature %q must be unlimited", feature)
			}
			if !l.Unlimited && l.Value < 0 {
				return nil, fmt.Errorf("tier %q feature %q has negative limit", tier, feature)
			}
			cp[feature] = l
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("tier %q does not define: %s", tier, strings.Join(missing, ", "))
		}
		table.tiers[tier] = cp
	}

	return table, nil
}

// Features lists all feature keys in sorted order.
func (t *FeatureLimitTable) Features() []string {
	out := make([]string, len(t.features))
	copy(out, t.features)
	return out
}

// Lookup returns the limit of feature for tier.
func (t *FeatureLimitTable) Lookup(tier models.SubscriptionTier, feature string) (Limit, bool) {
	limits, ok := t.tiers[tier]
	if !ok {
		return Limit{}, false
	}
	l, ok := limits[feature]
	return l, ok
}

// LoadFeatureLimitTable reads a table override from a YAML file of the form
//
//	starter:
//	  contacts: 1000
//	  white_label: false
//	white_label:
//	  contacts: unlimited
func LoadFeatureLimitTable(path string) (*FeatureLimitTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feature limits %s: %w", path, err)
	}
	return ParseFeatureLimitTable(raw)
}

// ParseFeatureLimitTable decodes and validates a YAML table.
func ParseFeatureLimitTable(raw []byte) (*FeatureLimitTable, error) {
	var doc map[string]map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse feature limits: %w", err)
	}

	tiers := make(map[models.SubscriptionTier]map[string]Limit, len(doc))
	for tierName, features := range doc {
		tier, ok := ParseTier(tierName)
		if !ok {
			return nil, fmt.Errorf("unknown tier %q in feature limit table", tierName)
		}
		limits := make(map[string]Limit, len(features))
		for feature, v := range features {
			l, err := parseLimit(v)
			if err != nil {
				return nil, fmt.Errorf("tier %q feature %q: %w", tierName, feature, err)
			}
			limits[feature] = l
		}
		tiers[tier] = limits
	}

	return NewFeatureLimitTable(tiers)
}

func parseLimit(v interface{}) (Limit, error) {
	switch val := v.(type) {
	case bool:
		return flag(val), nil
	case int:
		return count(int64(val)), nil
	case int64:
		return count(val), nil
	case string:
		if strings.EqualFold(val, unlimitedLiteral) {
			return unlimited(), nil
		}
	}
	return Limit{}, fmt.Errorf("unsupported limit value %v", v)
}
