package subscription

import (
	"time"

	"crm_backend/internal/models"
)

// Resolver answers "what is the limit of feature F for this account".
type Resolver struct {
	table *FeatureLimitTable
}

func NewResolver(table *FeatureLimitTable) *Resolver {
	if table == nil {
		table = DefaultFeatureLimitTable()
	}
	return &Resolver{table: table}
}

// EffectiveTier maps unknown tiers to the default tier.
func (r *Resolver) EffectiveTier(tier models.SubscriptionTier) models.SubscriptionTier {
	if TierRank(tier) < 0 {
		return DefaultTier
	}
	return tier
}

// Resolve returns the limit of feature for tier. A feature the table does
// not know resolves to a zero limit.
func (r *Resolver) Resolve(tier models.SubscriptionTier, feature string) Limit {
	l, ok := r.table.Lookup(r.EffectiveTier(tier), feature)
	if !ok {
		return Limit{}
	}
	return l
}

// ResolveFor applies the exempt-role override before the tier lookup.
func (r *Resolver) ResolveFor(u *models.User, feature string) Limit {
	if u == nil {
		return Limit{}
	}
	if IsExempt(u.Role) {
		return unlimited()
	}
	return r.Resolve(u.SubscriptionTier, feature)
}

// LimitsFor returns every feature limit that applies to u.
func (r *Resolver) LimitsFor(u *models.User) map[string]Limit {
	out := make(map[string]Limit, len(r.table.features))
	for _, feature := range r.table.features {
		out[feature] = r.ResolveFor(u, feature)
	}
	return out
}

// Features lists the known feature keys.
func (r *Resolver) Features() []string {
	return r.table.Features()
}

// IsKnownFeature reports whether feature exists in the table.
func (r *Resolver) IsKnownFeature(feature string) bool {
	_, ok := r.table.Lookup(DefaultTier, feature)
	return ok
}

// MonthKey is the usage ledger period key, e.g. "2024-03".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
