// Package strategy evaluates the portfolio-fit validation stage:
// campaign position limits and sector correlation caps ahead of
// approval (§4.11, §4.12). It implements validation.StrategyChecker,
// the counterpart to internal/risk's RiskChecker.
package strategy

import (
	"fmt"
	"sync"

	"github.com/wyckoff-labs/signal-engine/internal/model"
	"github.com/wyckoff-labs/signal-engine/internal/risk"
	"go.uber.org/zap"
)

// WarnCorrelatedPositions is the sector position count at which the
// Strategy stage starts warning ahead of the hard cap.
var WarnCorrelatedPositions = risk.MaxCampaignPositions - 1

// Snapshot is the portfolio state the Checker evaluates a new signal
// against. Callers refresh it before each validation run.
type Snapshot struct {
	CampaignPositionCount map[string]int // campaignID -> open positions
	SectorPositionCount   map[string]int // sector -> open positions across campaigns
	SymbolSector          map[string]string
}

// Checker evaluates the Strategy stage.
type Checker struct {
	logger *zap.Logger

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewChecker creates a Checker with an empty snapshot.
func NewChecker(logger *zap.Logger) *Checker {
	return &Checker{
		logger: logger.Named("strategy-checker"),
		snapshot: Snapshot{
			CampaignPositionCount: make(map[string]int),
			SectorPositionCount:   make(map[string]int),
			SymbolSector:          make(map[string]string),
		},
	}
}

// SetSnapshot atomically replaces the portfolio state the Checker
// evaluates against.
func (c *Checker) SetSnapshot(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = s
}

func (c *Checker) snapshotCopy() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// CheckStrategy rejects a signal whose campaign is already at its
// position cap, and warns when the signal's sector is approaching its
// correlated-position cap.
func (c *Checker) CheckStrategy(signal *model.TradeSignal) (model.StageStatus, string, map[string]any) {
	snap := c.snapshotCopy()

	campaignCount := snap.CampaignPositionCount[signal.CampaignID]
	if campaignCount >= risk.MaxCampaignPositions {
		return model.StageFail, fmt.Sprintf("campaign %s already holds %d open positions (max %d)",
				signal.CampaignID, campaignCount, risk.MaxCampaignPositions),
			map[string]any{"campaign_position_count": campaignCount}
	}

	sector := snap.SymbolSector[signal.Symbol]
	sectorCount := snap.SectorPositionCount[sector]
	if sector != "" && sectorCount >= WarnCorrelatedPositions {
		return model.StageWarn, fmt.Sprintf("sector %q already holds %d correlated open positions", sector, sectorCount),
			map[string]any{"sector": sector, "sector_position_count": sectorCount}
	}

	return model.StagePass, "", nil
}
