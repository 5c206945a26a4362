// Package risk sizes positions and enforces the hard portfolio-level
// risk caps (§4.12, §6 FR18/FR19). Allocator implements
// validation.RiskChecker.
package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"go.uber.org/zap"
)

// Hard and warn-level risk caps, expressed as percentages (§6).
var (
	MaxPerTradeRisk      = decimal.NewFromFloat(2.0)
	MaxPortfolioHeat     = decimal.NewFromFloat(10.0)
	WarnPortfolioHeat    = decimal.NewFromFloat(8.0)
	MaxCampaignRiskPct   = decimal.NewFromFloat(5.0)
	WarnCampaignRiskPct  = decimal.NewFromFloat(4.0)
	MaxCorrelatedRisk    = decimal.NewFromFloat(6.0)
	WarnCorrelatedRisk   = decimal.NewFromFloat(4.8)
	MaxPositionValuePct  = decimal.NewFromFloat(20.0)
	MaxCampaignPositions = 5
)

// Snapshot is the portfolio state the Allocator checks a new signal
// against. Callers refresh it (via SetSnapshot) before each
// validation run; the Allocator itself holds no broker or repo
// dependency.
type Snapshot struct {
	Equity                decimal.Decimal
	OpenRiskTotal         decimal.Decimal            // sum of dollars-at-risk across open positions
	CampaignRiskUsed      map[string]decimal.Decimal // campaignID -> dollars committed
	CampaignPositionCount map[string]int
	SectorRiskUsed        map[string]decimal.Decimal // sector -> dollars committed
	SymbolSector          map[string]string          // symbol -> sector, for correlated-risk grouping
}

// Allocator sizes positions and evaluates the risk validation stage.
type Allocator struct {
	logger *zap.Logger

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewAllocator creates an Allocator with an empty snapshot.
func NewAllocator(logger *zap.Logger) *Allocator {
	return &Allocator{
		logger: logger.Named("risk-allocator"),
		snapshot: Snapshot{
			Equity:                decimal.Zero,
			CampaignRiskUsed:      make(map[string]decimal.Decimal),
			CampaignPositionCount: make(map[string]int),
			SectorRiskUsed:        make(map[string]decimal.Decimal),
		},
	}
}

// SetSnapshot atomically replaces the portfolio state the Allocator
// checks against.
func (a *Allocator) SetSnapshot(s Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot = s
}

func (a *Allocator) snapshotCopy() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// SizePosition derives a signal's position_size, risk_amount and
// notional_value from the campaign's BMAD pattern allocation (§3,
// §4.12) and the max-position-value cap, whichever binds first. The
// campaign's risk budget is recomputed from current equity whenever
// it has not already been persisted (TotalRiskBudget zero) so callers
// never need a separate equity lookup. used holds the dollar risk
// already consumed by earlier-stage signals in this campaign, keyed
// by pattern, and is passed straight through to
// Campaign.BMADAllocation for unused-budget redistribution.
func (a *Allocator) SizePosition(signal *model.TradeSignal, campaign model.Campaign, used map[model.PatternType]decimal.Decimal) error {
	snap := a.snapshotCopy()
	if snap.Equity.IsZero() {
		return model.NewDomainError(model.ErrKindRiskLimitExceeded, "portfolio equity is zero, cannot size position", nil)
	}
	if campaign.TotalRiskBudget.IsZero() {
		campaign.TotalRiskBudget = CampaignBudget(snap.Equity)
	}

	riskBudget := AllocateForPattern(campaign, signal.PatternType, used)
	riskPerUnit := signal.EntryPrice.Sub(signal.StopLoss).Abs()
	if riskPerUnit.IsZero() {
		return model.NewDomainError(model.ErrKindRiskLimitExceeded, "zero risk-per-unit, cannot size position", nil)
	}

	units := riskBudget.Div(riskPerUnit)
	notional := units.Mul(signal.EntryPrice)

	maxNotional := snap.Equity.Mul(MaxPositionValuePct).Div(decimal.NewFromInt(100))
	if notional.GreaterThan(maxNotional) {
		units = maxNotional.Div(signal.EntryPrice)
		notional = units.Mul(signal.EntryPrice)
	}

	signal.PositionSize = units.Round(6)
	signal.PositionUnit = model.UnitShares
	signal.NotionalValue = notional.Round(2)
	signal.RiskAmount = units.Mul(riskPerUnit).Round(2)
	return nil
}

// CheckRisk implements validation.RiskChecker. It checks, in order,
// per-trade risk, portfolio heat, campaign risk and correlated
// (sector) risk, returning the first cap that FAILs; when none fails,
// it returns the first WARN among campaign risk, sector risk and
// portfolio heat, in that order.
func (a *Allocator) CheckRisk(signal *model.TradeSignal) (model.StageStatus, string, map[string]any) {
	snap := a.snapshotCopy()
	if snap.Equity.IsZero() {
		return model.StageFail, "portfolio equity unknown", nil
	}

	perTradePct := signal.RiskAmount.Div(snap.Equity).Mul(decimal.NewFromInt(100))
	if perTradePct.GreaterThan(MaxPerTradeRisk) {
		return model.StageFail, "per-trade risk exceeds the 2% cap", map[string]any{"per_trade_pct": perTradePct}
	}

	heatAfter := snap.OpenRiskTotal.Add(signal.RiskAmount)
	heatPct := heatAfter.Div(snap.Equity).Mul(decimal.NewFromInt(100))
	if heatPct.GreaterThan(MaxPortfolioHeat) {
		return model.StageFail, "projected portfolio heat exceeds the 10% cap", map[string]any{"heat_pct": heatPct}
	}

	var warnReason string
	var warnMeta map[string]any
	if signal.CampaignID != "" {
		used := snap.CampaignRiskUsed[signal.CampaignID]
		campaignPct := used.Add(signal.RiskAmount).Div(snap.Equity).Mul(decimal.NewFromInt(100))
		if campaignPct.GreaterThan(MaxCampaignRiskPct) {
			return model.StageFail, "campaign risk exceeds the 5% cap", map[string]any{"campaign_pct": campaignPct}
		}
		if count := snap.CampaignPositionCount[signal.CampaignID]; count >= MaxCampaignPositions {
			return model.StageFail, fmt.Sprintf("campaign already holds the maximum %d positions", MaxCampaignPositions), nil
		}
		if campaignPct.GreaterThan(WarnCampaignRiskPct) {
			warnReason, warnMeta = "campaign risk above the 4% warn threshold", map[string]any{"campaign_pct": campaignPct}
		}
	}

	sector := snap.SymbolSector[signal.Symbol]
	if sector != "" {
		usedSector := snap.SectorRiskUsed[sector]
		sectorPct := usedSector.Add(signal.RiskAmount).Div(snap.Equity).Mul(decimal.NewFromInt(100))
		if sectorPct.GreaterThan(MaxCorrelatedRisk) {
			return model.StageFail, "correlated (sector) risk exceeds the 6% cap", map[string]any{"sector_pct": sectorPct}
		}
		if warnReason == "" && sectorPct.GreaterThan(WarnCorrelatedRisk) {
			warnReason, warnMeta = "correlated (sector) risk above the 4.8% warn threshold", map[string]any{"sector_pct": sectorPct}
		}
	}

	if warnReason == "" && heatPct.GreaterThan(WarnPortfolioHeat) {
		warnReason, warnMeta = "portfolio heat above the 8% warn threshold", map[string]any{"heat_pct": heatPct}
	}
	if warnReason != "" {
		return model.StageWarn, warnReason, warnMeta
	}

	return model.StagePass, "", nil
}
