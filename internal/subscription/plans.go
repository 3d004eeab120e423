package subscription

import (
	"github.com/shopspring/decimal"

	"crm_backend/internal/models"
)

// Plan is a public catalog entry for one tier.
type Plan struct {
	Tier                 models.SubscriptionTier `json:"tier"`
	Name                 string                  `json:"name"`
	Tagline              string                  `json:"tagline"`
	MonthlyPrice         decimal.Decimal         `json:"monthly_price"`
	AnnualPrice          decimal.Decimal         `json:"annual_price"`
	AnnualSavings        decimal.Decimal         `json:"annual_savings"`
	AnnualSavingsPercent int64                   `json:"annual_savings_percent"`
	IsPopular            bool                    `json:"is_popular"`
	SortOrder            int                     `json:"sort_order"`
	Integrations         []string                `json:"integrations"`
	Highlights           []string                `json:"highlights"`
	Features             map[string]Limit        `json:"features"`
}

type planInfo struct {
	name         string
	tagline      string
	monthly      int64
	annual       int64
	integrations []string
	highlights   []string
}

var planCatalog = map[models.SubscriptionTier]planInfo{
	models.TierStarter: {
		name: "Starter", tagline: "Perfect for small businesses getting started",
		monthly: 29, annual: 290,
		integrations: []string{"basic"},
		highlights: []string{"1,000 Contacts", "3 Websites", "5 Marketing Funnels",
			"50 AI Content Pieces/month", "2,000 Email Sends/month", "Basic Analytics", "Email Support"},
	},
	models.TierProfessional: {
		name: "Professional", tagline: "Ideal for growing businesses and agencies",
		monthly: 99, annual: 990,
		integrations: []string{"basic", "premium"},
		highlights: []string{"10,000 Contacts", "25 Websites", "50 Marketing Funnels",
			"500 AI Content Pieces/month", "20,000 Email Sends/month", "Custom Domain", "A/B Testing", "Priority Support"},
	},
	models.TierBusiness: {
		name: "Business", tagline: "For established businesses scaling operations",
		monthly: 299, annual: 2990,
		integrations: []string{"basic", "premium", "enterprise"},
		highlights: []string{"100,000 Contacts", "100 Websites", "200 Marketing Funnels",
			"2,000 AI Content Pieces/month", "100,000 Email Sends/month", "Multi-language Support", "Advanced Reporting", "Phone Support"},
	},
	models.TierEnterprise: {
		name: "Enterprise", tagline: "Complete solution for large organizations",
		monthly: 999, annual: 9990,
		integrations: []string{"basic", "premium", "enterprise", "custom"},
		highlights: []string{"1,000,000 Contacts", "500 Websites", "1,000 Marketing Funnels",
			"10,000 AI Content Pieces/month", "1,000,000 Email Sends/month", "Dedicated Account Manager", "Custom Integrations", "SSO & Audit Logs"},
	},
	models.TierWhiteLabel: {
		name: "White Label", tagline: "Complete reseller solution with unlimited capabilities",
		monthly: 2999, annual: 29990,
		integrations: []string{"basic", "premium", "enterprise", "custom"},
		highlights: []string{"Unlimited Everything", "Complete White-Label Solution", "Unlimited Sub-Accounts",
			"Revenue Sharing Program", "Custom Branding", "Reseller Dashboard", "White-Label Mobile App", "Priority Implementation"},
	},
}

// Plans returns the catalog ordered by tier.
func (r *Resolver) Plans() []Plan {
	plans := make([]Plan, 0, len(tierOrder))
	for _, tier := range tierOrder {
		p, _ := r.Plan(tier)
		plans = append(plans, p)
	}
	return plans
}

// Plan returns the catalog entry of tier.
func (r *Resolver) Plan(tier models.SubscriptionTier) (Plan, bool) {
	info, ok := planCatalog[tier]
	if !ok {
		return Plan{}, false
	}

	monthly := decimal.NewFromInt(info.monthly)
	annual := decimal.NewFromInt(info.annual)
	yearOfMonthly := monthly.Mul(decimal.NewFromInt(12))
	savings := yearOfMonthly.Sub(annual)

	var percent int64
	if yearOfMonthly.IsPositive() {
		percent = savings.Div(yearOfMonthly).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	}

	features := make(map[string]Limit, len(r.table.features))
	for _, feature := range r.table.features {
		features[feature] = r.Resolve(tier, feature)
	}

	return Plan{
		Tier:                 tier,
		Name:                 info.name,
		Tagline:              info.tagline,
		MonthlyPrice:         monthly,
		AnnualPrice:          annual,
		AnnualSavings:        savings,
		AnnualSavingsPercent: percent,
		IsPopular:            tier == models.TierProfessional,
		SortOrder:            TierRank(tier) + 1,
		Integrations:         append([]string(nil), info.integrations...),
		Highlights:           append([]string(nil), info.highlights...),
		Features:             features,
	}, true
}

// Price returns the amount charged for tier and cycle.
func (r *Resolver) Price(tier models.SubscriptionTier, cycle models.BillingCycle) (decimal.Decimal, bool) {
	info, ok := planCatalog[tier]
	if !ok {
		return decimal.Zero, false
	}
	if cycle == models.BillingYearly {
		return decimal.NewFromInt(info.annual), true
	}
	return decimal.NewFromInt(info.monthly), true
}
