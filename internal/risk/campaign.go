package risk

import (
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// CampaignBudget computes a campaign's total risk budget from account
// equity (MAX_CAMPAIGN_RISK, §6).
func CampaignBudget(equity decimal.Decimal) decimal.Decimal {
	return equity.Mul(MaxCampaignRiskPct).Div(decimal.NewFromInt(100))
}

// AllocateForPattern wraps Campaign.BMADAllocation with the package's
// risk-amount rounding convention.
func AllocateForPattern(campaign model.Campaign, pattern model.PatternType, used map[model.PatternType]decimal.Decimal) decimal.Decimal {
	return campaign.BMADAllocation(pattern, used).Round(2)
}
