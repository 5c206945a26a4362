package risk_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"github.com/wyckoff-labs/signal-engine/internal/risk"
	"go.uber.org/zap"
)

func TestSizePosition(t *testing.T) {
	a := risk.NewAllocator(zap.NewNop())
	a.SetSnapshot(risk.Snapshot{Equity: decimal.NewFromInt(100000)})

	signal := &model.TradeSignal{PatternType: model.PatternSpring, EntryPrice: decimal.NewFromInt(100), StopLoss: decimal.NewFromInt(95)}
	require.NoError(t, a.SizePosition(signal, model.Campaign{}, nil))
	assert.False(t, signal.RiskAmount.GreaterThan(decimal.NewFromInt(2000)), "risk amount %s exceeds Spring's 40%% BMAD slice of the 5%% campaign cap", signal.RiskAmount)
	assert.True(t, signal.PositionSize.GreaterThan(decimal.Zero), "expected a positive position size")
}

func TestSizePosition_CapsAtMaxPositionValue(t *testing.T) {
	a := risk.NewAllocator(zap.NewNop())
	a.SetSnapshot(risk.Snapshot{Equity: decimal.NewFromInt(100000)})

	// A very tight stop would otherwise imply a huge position; the
	// 20% max-position-value cap should bind instead.
	signal := &model.TradeSignal{PatternType: model.PatternSpring, EntryPrice: decimal.NewFromInt(100), StopLoss: decimal.NewFromFloat(99.9)}
	require.NoError(t, a.SizePosition(signal, model.Campaign{}, nil))
	maxNotional := decimal.NewFromInt(20000)
	assert.False(t, signal.NotionalValue.GreaterThan(maxNotional.Add(decimal.NewFromInt(1))), "notional %s exceeds the 20%% position-value cap", signal.NotionalValue)
}

func TestCheckRisk_FailsOverPerTradeCap(t *testing.T) {
	a := risk.NewAllocator(zap.NewNop())
	a.SetSnapshot(risk.Snapshot{Equity: decimal.NewFromInt(100000)})

	signal := &model.TradeSignal{RiskAmount: decimal.NewFromInt(5000)}
	status, _, _ := a.CheckRisk(signal)
	assert.Equal(t, model.StageFail, status, "expected FAIL for risk exceeding 2%% of equity")
}

func TestCheckRisk_WarnsNearPortfolioHeat(t *testing.T) {
	a := risk.NewAllocator(zap.NewNop())
	a.SetSnapshot(risk.Snapshot{Equity: decimal.NewFromInt(100000), OpenRiskTotal: decimal.NewFromInt(8500)})

	signal := &model.TradeSignal{RiskAmount: decimal.NewFromInt(100)}
	status, reason, _ := a.CheckRisk(signal)
	assert.Equal(t, model.StageWarn, status, "expected WARN near the 8%% heat threshold (%s)", reason)
}

func TestSizePosition_UsesCampaignBMADSlice(t *testing.T) {
	a := risk.NewAllocator(zap.NewNop())
	a.SetSnapshot(risk.Snapshot{Equity: decimal.NewFromInt(100000)})
	campaign := model.Campaign{TotalRiskBudget: decimal.NewFromInt(5000)}

	// Same entry/stop for both patterns, with the stop wide enough that
	// the 20% position-value cap does not bind: only the BMAD share
	// (Spring 40% vs LPS 25% of the 5% campaign budget) should differ
	// their risk_amount, not the flat 2% per-trade cap.
	springSignal := &model.TradeSignal{PatternType: model.PatternSpring, EntryPrice: decimal.NewFromInt(100), StopLoss: decimal.NewFromInt(90)}
	require.NoError(t, a.SizePosition(springSignal, campaign, nil))
	assert.True(t, springSignal.RiskAmount.Equal(decimal.NewFromInt(2000)), "expected Spring risk_amount of 2000 (40%% of 5000), got %s", springSignal.RiskAmount)

	lpsSignal := &model.TradeSignal{PatternType: model.PatternLPS, EntryPrice: decimal.NewFromInt(100), StopLoss: decimal.NewFromInt(90)}
	require.NoError(t, a.SizePosition(lpsSignal, campaign, nil))
	assert.True(t, lpsSignal.RiskAmount.Equal(decimal.NewFromInt(1250)), "expected LPS risk_amount of 1250 (25%% of 5000), got %s", lpsSignal.RiskAmount)
}

func TestCampaignAllocation_BMADRedistribution(t *testing.T) {
	campaign := model.Campaign{TotalRiskBudget: decimal.NewFromInt(5000)}

	springAlloc := risk.AllocateForPattern(campaign, model.PatternSpring, nil)
	assert.True(t, springAlloc.Equal(decimal.NewFromInt(2000)), "expected spring allocation of 2000 (40%% of 5000), got %s", springAlloc)

	// Spring only used half its budget; SOS should receive its base
	// share plus a proportional cut of the unused Spring budget.
	used := map[model.PatternType]decimal.Decimal{model.PatternSpring: decimal.NewFromInt(1000)}
	sosAlloc := risk.AllocateForPattern(campaign, model.PatternSOS, used)
	assert.True(t, sosAlloc.GreaterThan(decimal.NewFromInt(1750)), "expected SOS allocation to exceed its base 35%% share after redistribution, got %s", sosAlloc)
}
