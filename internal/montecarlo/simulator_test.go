package montecarlo_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/montecarlo"
	"go.uber.org/zap"
)

func TestRunSimulation_EmptyReturnsYieldsZeroResult(t *testing.T) {
	sim := montecarlo.NewSimulator(zap.NewNop(), montecarlo.DefaultSimulatorConfig())
	result := sim.RunSimulation(&montecarlo.TradeSequence{}, decimal.NewFromInt(100000))
	if result.FinalEquity != nil {
		t.Fatalf("expected no distribution for an empty trade sequence, got %+v", result.FinalEquity)
	}
}

func TestRunSimulation_ConsistentlyPositiveReturnsScoreHighRobustness(t *testing.T) {
	returns := make([]float64, 50)
	for i := range returns {
		returns[i] = 1.0
	}
	sim := montecarlo.NewSimulator(zap.NewNop(), &montecarlo.SimulatorConfig{
		NumSimulations: 200, Seed: 42, ParallelWorkers: 4,
	})
	result := sim.RunSimulation(&montecarlo.TradeSequence{Returns: returns}, decimal.NewFromInt(100000))

	if result.ProbabilityOfRuin != 0 {
		t.Fatalf("expected zero ruin probability for an all-winning sequence, got %f", result.ProbabilityOfRuin)
	}
	if result.RobustnessScore < 0.5 {
		t.Fatalf("expected a high robustness score for a steadily profitable sequence, got %f", result.RobustnessScore)
	}
}

func TestRunSimulation_DeterministicWithFixedSeed(t *testing.T) {
	returns := []float64{2.0, -1.0, 3.0, -2.0, 1.5, -0.5}
	config := &montecarlo.SimulatorConfig{NumSimulations: 100, Seed: 7, ParallelWorkers: 1}

	first := montecarlo.NewSimulator(zap.NewNop(), config).RunSimulation(&montecarlo.TradeSequence{Returns: returns}, decimal.NewFromInt(50000))
	second := montecarlo.NewSimulator(zap.NewNop(), config).RunSimulation(&montecarlo.TradeSequence{Returns: returns}, decimal.NewFromInt(50000))

	if first.FinalEquity.Mean != second.FinalEquity.Mean {
		t.Fatalf("expected identical results for the same seed, got %f vs %f", first.FinalEquity.Mean, second.FinalEquity.Mean)
	}
}
