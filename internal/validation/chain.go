// Package validation runs a signal through the fixed five-stage
// validation chain (Volume -> Phase -> Levels -> Risk -> Strategy),
// short-circuiting on the first FAIL (§4.11).
package validation

import (
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// RiskChecker is implemented by internal/risk; validation depends on
// this narrow interface rather than the risk package directly so risk
// stays free of a reverse dependency.
type RiskChecker interface {
	CheckRisk(signal *model.TradeSignal) (model.StageStatus, string, map[string]any)
}

// StrategyChecker evaluates portfolio/sector-level strategy fit (e.g.
// correlation caps, campaign position limits) ahead of approval.
type StrategyChecker interface {
	CheckStrategy(signal *model.TradeSignal) (model.StageStatus, string, map[string]any)
}

// Input bundles everything a validation run needs.
type Input struct {
	Signal      *model.TradeSignal
	VolAnalysis model.VolumeAnalysis
	PhaseClass  model.PhaseClassification
	Range       *model.TradingRange
	Risk        RiskChecker
	Strategy    StrategyChecker
}

// minVolumeRatioForPass is the floor below which a signal's triggering
// volume is considered too thin to trust even on a WARN basis.
var minVolumeRatioForPass = decimal.NewFromFloat(0.3)

// Chain runs the fixed five ordered stages.
type Chain struct{}

// NewChain creates a Chain.
func NewChain() *Chain { return &Chain{} }

// Run executes Volume, Phase, Levels, Risk, Strategy in that fixed
// order. The first FAIL stops execution; later stages are omitted
// from the returned chain entirely (not run, not recorded as
// skipped) — the chain reflects what was actually evaluated.
func (c *Chain) Run(in Input) model.ValidationChain {
	stages := []func(Input) model.StageValidationResult{
		volumeStage, phaseStage, levelsStage, riskStage, strategyStage,
	}
	var chain model.ValidationChain
	for _, stage := range stages {
		result := stage(in)
		chain = append(chain, result)
		if result.Status == model.StageFail {
			break
		}
	}
	return chain
}

func volumeStage(in Input) model.StageValidationResult {
	if !in.VolAnalysis.Ready() {
		return model.StageValidationResult{
			Stage: model.StageVolume, Status: model.StageFail,
			Reason: "insufficient volume history to assess the trigger bar",
		}
	}
	if in.VolAnalysis.VolumeRatio.LessThan(minVolumeRatioForPass) {
		return model.StageValidationResult{
			Stage: model.StageVolume, Status: model.StageFail,
			Reason:   "trigger bar volume is implausibly thin",
			Metadata: map[string]any{"volume_ratio": *in.VolAnalysis.VolumeRatio},
		}
	}
	if in.VolAnalysis.VolumeRatio.LessThan(decimal.NewFromFloat(0.8)) {
		return model.StageValidationResult{
			Stage: model.StageVolume, Status: model.StageWarn,
			Reason:   "trigger bar volume is below average",
			Metadata: map[string]any{"volume_ratio": *in.VolAnalysis.VolumeRatio},
		}
	}
	return model.StageValidationResult{Stage: model.StageVolume, Status: model.StagePass}
}

// patternPhases lists the phase(s) a pattern is allowed to trigger
// from (§4.11 "phase must match pattern"; §8 universal invariants): a
// Spring only fires in Phase C, SOS only in Phase D, LPS in Phase D or
// E, and UTAD — the distribution mirror of Spring — in Phase C.
var patternPhases = map[model.PatternType][]model.Phase{
	model.PatternSpring: {model.PhaseC},
	model.PatternUTAD:   {model.PhaseC},
	model.PatternSOS:    {model.PhaseD},
	model.PatternLPS:    {model.PhaseD, model.PhaseE},
}

func patternMatchesPhase(pattern model.PatternType, ph model.Phase) bool {
	allowed, known := patternPhases[pattern]
	if !known {
		return true
	}
	for _, p := range allowed {
		if ph == p {
			return true
		}
	}
	return false
}

func phaseStage(in Input) model.StageValidationResult {
	if in.Signal != nil && !patternMatchesPhase(in.Signal.PatternType, in.PhaseClass.Phase) {
		return model.StageValidationResult{
			Stage: model.StagePhase, Status: model.StageFail,
			Reason:   "pattern does not match the range's classified phase",
			Metadata: map[string]any{"pattern": in.Signal.PatternType, "phase": in.PhaseClass.Phase},
		}
	}
	if !in.PhaseClass.TradingAllowed {
		return model.StageValidationResult{
			Stage: model.StagePhase, Status: model.StageFail,
			Reason:   in.PhaseClass.RejectionReason,
			Metadata: map[string]any{"phase": in.PhaseClass.Phase},
		}
	}
	if in.PhaseClass.Confidence.LessThan(decimal.NewFromInt(75)) {
		return model.StageValidationResult{
			Stage: model.StagePhase, Status: model.StageWarn,
			Reason:   "phase confidence below 75",
			Metadata: map[string]any{"confidence": in.PhaseClass.Confidence},
		}
	}
	return model.StageValidationResult{Stage: model.StagePhase, Status: model.StagePass}
}

func levelsStage(in Input) model.StageValidationResult {
	if in.Range == nil || !in.Range.LevelsAdmitted() {
		return model.StageValidationResult{
			Stage: model.StageLevels, Status: model.StageFail,
			Reason: "range's Creek/Ice levels do not meet the strength/ordering gate",
		}
	}
	return model.StageValidationResult{Stage: model.StageLevels, Status: model.StagePass}
}

func riskStage(in Input) model.StageValidationResult {
	if in.Risk == nil {
		return model.StageValidationResult{Stage: model.StageRisk, Status: model.StagePass}
	}
	status, reason, metadata := in.Risk.CheckRisk(in.Signal)
	return model.StageValidationResult{Stage: model.StageRisk, Status: status, Reason: reason, Metadata: metadata}
}

func strategyStage(in Input) model.StageValidationResult {
	if in.Strategy == nil {
		return model.StageValidationResult{Stage: model.StageStrategy, Status: model.StagePass}
	}
	status, reason, metadata := in.Strategy.CheckStrategy(in.Signal)
	return model.StageValidationResult{Stage: model.StageStrategy, Status: status, Reason: reason, Metadata: metadata}
}
