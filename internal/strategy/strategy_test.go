package strategy_test

import (
	"testing"

	"github.com/wyckoff-labs/signal-engine/internal/model"
	"github.com/wyckoff-labs/signal-engine/internal/risk"
	"github.com/wyckoff-labs/signal-engine/internal/strategy"
	"go.uber.org/zap"
)

func TestCheckStrategy_PassesWithEmptySnapshot(t *testing.T) {
	c := strategy.NewChecker(zap.NewNop())
	signal := &model.TradeSignal{Symbol: "AAPL", CampaignID: "campaign-1"}

	status, reason, _ := c.CheckStrategy(signal)
	if status != model.StagePass {
		t.Fatalf("expected PASS, got %s (%s)", status, reason)
	}
}

func TestCheckStrategy_FailsAtCampaignPositionCap(t *testing.T) {
	c := strategy.NewChecker(zap.NewNop())
	c.SetSnapshot(strategy.Snapshot{
		CampaignPositionCount: map[string]int{"campaign-1": risk.MaxCampaignPositions},
		SectorPositionCount:   map[string]int{},
		SymbolSector:          map[string]string{},
	})
	signal := &model.TradeSignal{Symbol: "AAPL", CampaignID: "campaign-1"}

	status, _, meta := c.CheckStrategy(signal)
	if status != model.StageFail {
		t.Fatalf("expected FAIL, got %s", status)
	}
	if meta["campaign_position_count"] != risk.MaxCampaignPositions {
		t.Errorf("expected campaign_position_count metadata, got %v", meta)
	}
}

func TestCheckStrategy_WarnsAtSectorCorrelationCap(t *testing.T) {
	c := strategy.NewChecker(zap.NewNop())
	c.SetSnapshot(strategy.Snapshot{
		CampaignPositionCount: map[string]int{},
		SectorPositionCount:   map[string]int{"tech": strategy.WarnCorrelatedPositions},
		SymbolSector:          map[string]string{"AAPL": "tech"},
	})
	signal := &model.TradeSignal{Symbol: "AAPL", CampaignID: "campaign-1"}

	status, reason, _ := c.CheckStrategy(signal)
	if status != model.StageWarn {
		t.Fatalf("expected WARN, got %s (%s)", status, reason)
	}
}

func TestCheckStrategy_PassesWithUnmappedSector(t *testing.T) {
	c := strategy.NewChecker(zap.NewNop())
	signal := &model.TradeSignal{Symbol: "UNKNOWN", CampaignID: "campaign-2"}

	status, _, _ := c.CheckStrategy(signal)
	if status != model.StagePass {
		t.Fatalf("expected PASS for an unmapped sector, got %s", status)
	}
}

func TestSetSnapshot_IsConcurrencySafe(t *testing.T) {
	c := strategy.NewChecker(zap.NewNop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			c.SetSnapshot(strategy.Snapshot{
				CampaignPositionCount: map[string]int{},
				SectorPositionCount:   map[string]int{},
				SymbolSector:          map[string]string{},
			})
		}
		close(done)
	}()
	for i := 0; i < 100; i++ {
		c.CheckStrategy(&model.TradeSignal{Symbol: "AAPL", CampaignID: "c"})
	}
	<-done
}
