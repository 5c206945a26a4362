package model

import "github.com/shopspring/decimal"

// BMAD allocation percentages of a campaign's total risk budget
// (5% of account equity, MAX_CAMPAIGN_RISK). Named BMAD after the
// source's risk-allocation scheme: Budget-Managed Allocation by
// Detection-pattern.
var (
	BMADSpringPct = decimal.NewFromFloat(0.40)
	BMADSOSPct    = decimal.NewFromFloat(0.35)
	BMADLPSPct    = decimal.NewFromFloat(0.25)
)

// Campaign groups a Spring->SOS->LPS sequence on one trading range
// under a single risk envelope (§3).
type Campaign struct {
	ID              string
	RangeID         string
	Symbol          string
	Sector          string
	TotalRiskBudget decimal.Decimal // account_equity * MAX_CAMPAIGN_RISK
	SpringSignalID  string
	SOSSignalID     string
	LPSSignalID     string
	PositionIDs     []string
}

// BMADAllocation computes the dollar risk budget for a pattern type
// within this campaign, redistributing any unused budget from earlier
// stages proportionally across the remaining patterns (§3).
//
// used holds the dollar amount already consumed by earlier-stage
// signals (e.g. {"SPRING": consumed}); pattern is the stage being
// sized now.
func (c Campaign) BMADAllocation(pattern PatternType, used map[PatternType]decimal.Decimal) decimal.Decimal {
	base := map[PatternType]decimal.Decimal{
		PatternSpring: BMADSpringPct,
		PatternSOS:    BMADSOSPct,
		PatternLPS:    BMADLPSPct,
	}

	// Redistribute unused allocation from patterns that have already
	// run (i.e. present in `used` with consumption below their base
	// budget) proportionally across remaining patterns, including the
	// one being priced now.
	remaining := []PatternType{}
	order := []PatternType{PatternSpring, PatternSOS, PatternLPS}
	seenPattern := false
	for _, p := range order {
		if p == pattern {
			seenPattern = true
		}
		if _, done := used[p]; !done {
			remaining = append(remaining, p)
		}
	}
	if !seenPattern {
		remaining = append(remaining, pattern)
	}

	unused := decimal.Zero
	for p, pct := range base {
		if consumed, ok := used[p]; ok {
			budget := c.TotalRiskBudget.Mul(pct)
			if consumed.LessThan(budget) {
				unused = unused.Add(budget.Sub(consumed))
			}
		}
	}

	if len(remaining) == 0 || unused.IsZero() {
		return c.TotalRiskBudget.Mul(base[pattern])
	}

	remainingBaseSum := decimal.Zero
	for _, p := range remaining {
		remainingBaseSum = remainingBaseSum.Add(base[p])
	}
	if remainingBaseSum.IsZero() {
		return c.TotalRiskBudget.Mul(base[pattern])
	}
	share := base[pattern].Div(remainingBaseSum)
	return c.TotalRiskBudget.Mul(base[pattern]).Add(unused.Mul(share))
}

// ExitRule defines a campaign's T1/T2/T3 partial-exit and
// invalidation-level plan (§3).
type ExitRule struct {
	CampaignID            string
	T1Price               decimal.Decimal
	T2Price               decimal.Decimal
	T3Price               decimal.Decimal
	T1ExitPct             decimal.Decimal
	T2ExitPct             decimal.Decimal
	T3ExitPct             decimal.Decimal
	TrailToBreakevenOnT1  bool
	TrailToT1OnT2         bool
	SpringLow             decimal.Decimal
	IceLevel              decimal.Decimal
	CreekLevel            decimal.Decimal
	UTADHigh              decimal.Decimal
	JumpTarget            decimal.Decimal
}

// ValidateExitPercentages checks the §8 invariant that t1+t2+t3 sums
// to exactly 100.00%.
func (e ExitRule) ValidateExitPercentages() error {
	sum := e.T1ExitPct.Add(e.T2ExitPct).Add(e.T3ExitPct)
	if !sum.Equal(decimal.NewFromInt(100)) {
		return NewDomainError(ErrKindConfigInvalid, "exit percentages must sum to exactly 100.00%", map[string]any{
			"sum": sum,
		})
	}
	return nil
}
