package validation_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"github.com/wyckoff-labs/signal-engine/internal/validation"
)

type stubRisk struct {
	status model.StageStatus
	reason string
}

func (s stubRisk) CheckRisk(_ *model.TradeSignal) (model.StageStatus, string, map[string]any) {
	return s.status, s.reason, nil
}

type stubStrategy struct{ status model.StageStatus }

func (s stubStrategy) CheckStrategy(_ *model.TradeSignal) (model.StageStatus, string, map[string]any) {
	return s.status, "", nil
}

func readyVolume() model.VolumeAnalysis {
	ratio := decimal.NewFromFloat(1.2)
	spread := decimal.NewFromFloat(1.1)
	return model.VolumeAnalysis{VolumeRatio: &ratio, SpreadRatio: &spread, ClosePosition: decimal.NewFromFloat(0.7)}
}

func admittedRange() *model.TradingRange {
	rng := &model.TradingRange{}
	rng.Creek = &model.Level{Price: decimal.NewFromInt(100), StrengthScore: decimal.NewFromInt(70)}
	rng.Ice = &model.Level{Price: decimal.NewFromInt(110), StrengthScore: decimal.NewFromInt(70)}
	rng.Jump = &model.Level{Price: decimal.NewFromInt(120)}
	return rng
}

func TestChain_AllPassYieldsPass(t *testing.T) {
	chain := validation.NewChain()
	result := chain.Run(validation.Input{
		Signal:      &model.TradeSignal{},
		VolAnalysis: readyVolume(),
		PhaseClass:  model.PhaseClassification{TradingAllowed: true, Confidence: decimal.NewFromInt(90)},
		Range:       admittedRange(),
		Risk:        stubRisk{status: model.StagePass},
		Strategy:    stubStrategy{status: model.StagePass},
	})
	if len(result) != 5 {
		t.Fatalf("expected all 5 stages to run, got %d", len(result))
	}
	if result.Status() != model.StagePass {
		t.Errorf("expected overall PASS, got %s", result.Status())
	}
}

func TestChain_ShortCircuitsOnFirstFail(t *testing.T) {
	chain := validation.NewChain()
	result := chain.Run(validation.Input{
		Signal:      &model.TradeSignal{},
		VolAnalysis: model.VolumeAnalysis{}, // not ready -> Volume stage fails
		PhaseClass:  model.PhaseClassification{TradingAllowed: true},
		Range:       admittedRange(),
		Risk:        stubRisk{status: model.StagePass},
		Strategy:    stubStrategy{status: model.StagePass},
	})
	if len(result) != 1 {
		t.Fatalf("expected short-circuit after stage 1, got %d stages", len(result))
	}
	if result[0].Stage != model.StageVolume || result[0].Status != model.StageFail {
		t.Errorf("expected Volume/FAIL, got %s/%s", result[0].Stage, result[0].Status)
	}
	if result.Status() != model.StageFail {
		t.Error("overall status must be FAIL")
	}
}

func TestChain_PhaseStageFailsOnPatternPhaseMismatch(t *testing.T) {
	chain := validation.NewChain()
	result := chain.Run(validation.Input{
		Signal:      &model.TradeSignal{PatternType: model.PatternSpring},
		VolAnalysis: readyVolume(),
		// A Spring is only valid in Phase C; Phase D here must FAIL the stage.
		PhaseClass: model.PhaseClassification{Phase: model.PhaseD, TradingAllowed: true, Confidence: decimal.NewFromInt(90)},
		Range:      admittedRange(),
		Risk:       stubRisk{status: model.StagePass},
		Strategy:   stubStrategy{status: model.StagePass},
	})
	if len(result) != 2 {
		t.Fatalf("expected short-circuit after the Phase stage, got %d stages", len(result))
	}
	if result[1].Stage != model.StagePhase || result[1].Status != model.StageFail {
		t.Errorf("expected Phase/FAIL on a Spring signal classified outside Phase C, got %s/%s", result[1].Stage, result[1].Status)
	}
}

func TestChain_PhaseStagePassesOnMatchingPatternPhase(t *testing.T) {
	chain := validation.NewChain()
	result := chain.Run(validation.Input{
		Signal:      &model.TradeSignal{PatternType: model.PatternLPS},
		VolAnalysis: readyVolume(),
		PhaseClass:  model.PhaseClassification{Phase: model.PhaseE, TradingAllowed: true, Confidence: decimal.NewFromInt(90)},
		Range:       admittedRange(),
		Risk:        stubRisk{status: model.StagePass},
		Strategy:    stubStrategy{status: model.StagePass},
	})
	if result.Status() != model.StagePass {
		t.Errorf("expected overall PASS for an LPS signal classified in Phase E, got %s", result.Status())
	}
}

func TestChain_WarnDoesNotShortCircuit(t *testing.T) {
	chain := validation.NewChain()
	result := chain.Run(validation.Input{
		Signal:      &model.TradeSignal{},
		VolAnalysis: readyVolume(),
		PhaseClass:  model.PhaseClassification{TradingAllowed: true, Confidence: decimal.NewFromInt(60)}, // warn
		Range:       admittedRange(),
		Risk:        stubRisk{status: model.StageWarn, reason: "near portfolio heat cap"},
		Strategy:    stubStrategy{status: model.StagePass},
	})
	if len(result) != 5 {
		t.Fatalf("expected all stages to still run through a WARN, got %d", len(result))
	}
	if result.Status() != model.StagePass {
		t.Errorf("expected overall PASS when stages only warn, got %s", result.Status())
	}
}
