// Package engine coordinates one symbol-timeframe's path from an
// ingested bar through range/event/phase detection, signal
// construction, validation and queuing (§4, §5). It plays the role
// the teacher's internal/orchestrator.TradingOrchestrator plays for
// the legacy tick strategies: the single place bar events fan out to
// every downstream detector.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/barwindow"
	"github.com/wyckoff-labs/signal-engine/internal/cluster"
	"github.com/wyckoff-labs/signal-engine/internal/eventbus"
	"github.com/wyckoff-labs/signal-engine/internal/levels"
	"github.com/wyckoff-labs/signal-engine/internal/metrics"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"github.com/wyckoff-labs/signal-engine/internal/phase"
	"github.com/wyckoff-labs/signal-engine/internal/pivot"
	"github.com/wyckoff-labs/signal-engine/internal/queue"
	"github.com/wyckoff-labs/signal-engine/internal/repo"
	"github.com/wyckoff-labs/signal-engine/internal/risk"
	"github.com/wyckoff-labs/signal-engine/internal/signalbuilder"
	"github.com/wyckoff-labs/signal-engine/internal/strategy"
	"github.com/wyckoff-labs/signal-engine/internal/tradingrange"
	"github.com/wyckoff-labs/signal-engine/internal/validation"
	"github.com/wyckoff-labs/signal-engine/internal/volume"
	"github.com/wyckoff-labs/signal-engine/internal/wyckoffevents"
	"github.com/wyckoff-labs/signal-engine/internal/zones"
	"go.uber.org/zap"
)

// Engine wires the detection pipeline's stateless components to the
// per-range event history a streaming run needs to carry between
// bars.
type Engine struct {
	logger *zap.Logger
	bus    *eventbus.Bus
	metr   *metrics.Registry

	bars      *barwindow.Manager
	volAn     *volume.Analyzer
	rangeDet  *tradingrange.Detector
	phaseCls  *phase.Classifier
	builder   *signalbuilder.Builder
	chain     *validation.Chain
	riskCheck *risk.Allocator
	stratChk  *strategy.Checker
	queue     *queue.Queue

	campaigns repo.Campaigns
	signals   repo.Signals

	thresholds wyckoffevents.Thresholds

	rangeEvents map[string][]model.Event // rangeID -> accumulated events
}

// Config bundles an Engine's collaborators. Logger, Bus, Risk and
// Strategy are required. Metrics, Campaigns, Signals and Queue may be
// nil; the steps that use them are then skipped. MaxBars <= 0 selects
// the bar window's default size.
type Config struct {
	Logger    *zap.Logger
	Bus       *eventbus.Bus
	Metrics   *metrics.Registry
	Campaigns repo.Campaigns
	Signals   repo.Signals
	Risk      *risk.Allocator
	Strategy  *strategy.Checker
	Queue     *queue.Queue
	MaxBars   int
}

// New assembles an Engine and its internal detector chain.
func New(cfg Config) *Engine {
	pivotDet := pivot.NewDetector(pivot.DefaultLookback)
	clusterer := cluster.NewClusterer(cluster.DefaultTolerancePct, cluster.DefaultMinRangeWidthPct, cluster.DefaultMinSpanBars)
	levelCalc := levels.NewCalculator()
	zoneMapper := zones.NewMapper(zones.DefaultVolumeRatioThreshold, zones.DefaultSpreadRatioThreshold)

	return &Engine{
		logger:      cfg.Logger.Named("engine"),
		bus:         cfg.Bus,
		metr:        cfg.Metrics,
		bars:        barwindow.NewManager(cfg.Logger, cfg.MaxBars),
		volAn:       volume.NewAnalyzer(20),
		rangeDet:    tradingrange.NewDetector(cfg.Logger, pivotDet, clusterer, levelCalc, zoneMapper),
		phaseCls:    phase.NewClassifier(),
		builder:     signalbuilder.NewBuilder(),
		chain:       validation.NewChain(),
		riskCheck:   cfg.Risk,
		stratChk:    cfg.Strategy,
		queue:       cfg.Queue,
		campaigns:   cfg.Campaigns,
		signals:     cfg.Signals,
		thresholds:  wyckoffevents.DefaultThresholds(),
		rangeEvents: make(map[string][]model.Event),
	}
}

// ProcessBar ingests one bar and runs the full detection pipeline for
// its symbol/timeframe, publishing any detected events and generated
// signals onto the bus and approval queue.
func (e *Engine) ProcessBar(ctx context.Context, bar model.Bar, userID string, now time.Time) error {
	if err := e.bars.Append(bar); err != nil {
		return fmt.Errorf("appending bar: %w", err)
	}
	if e.metr != nil {
		e.metr.BarsIngested.WithLabelValues(bar.Symbol, string(bar.Timeframe)).Inc()
	}
	e.bus.Publish(eventbus.EventBarIngested, bar.Symbol, bar)

	bars := e.bars.GetBars(bar.Symbol, bar.Timeframe, e.bars.Len(bar.Symbol, bar.Timeframe))
	va := e.volAn.Analyze(bars)
	ranges := e.rangeDet.Detect(bar.Symbol, bar.Timeframe, bars, va)

	for _, rng := range ranges {
		e.processRange(ctx, rng, bars, va, userID, now)
	}
	return nil
}

func (e *Engine) processRange(ctx context.Context, rng *model.TradingRange, bars []model.Bar, va []model.VolumeAnalysis, userID string, now time.Time) {
	prior := e.rangeEvents[rng.ID]
	currentBarIndex := len(bars) - 1

	newEvents := e.runDetectors(rng, bars, va, prior)
	for _, ev := range newEvents {
		prior = append(prior, ev)
		if e.metr != nil {
			e.metr.EventsDetected.WithLabelValues(string(ev.Type), rng.Symbol).Inc()
		}
		e.bus.Publish(eventbus.EventPatternDetected, rng.Symbol, ev)
	}
	e.rangeEvents[rng.ID] = prior

	classification := e.phaseCls.Classify(rng, prior, &currentBarIndex)

	for _, ev := range newEvents {
		pattern, ok := patternFor(ev.Type)
		if !ok {
			continue
		}
		e.buildAndValidateSignal(ctx, pattern, ev, rng, bars, va, classification, userID, now)
	}
}

func patternFor(t model.EventType) (model.PatternType, bool) {
	switch t {
	case model.EventSpring:
		return model.PatternSpring, true
	case model.EventSignOfStrength:
		return model.PatternSOS, true
	case model.EventLastPointOfSupport:
		return model.PatternLPS, true
	case model.EventUTAD:
		return model.PatternUTAD, true
	default:
		return "", false
	}
}

func (e *Engine) runDetectors(rng *model.TradingRange, bars []model.Bar, va []model.VolumeAnalysis, prior []model.Event) []model.Event {
	var fresh []model.Event
	detect := func(ev *model.Event, err error) {
		if err != nil {
			e.logger.Warn("detector error", zap.Error(err), zap.String("range_id", rng.ID))
			return
		}
		if ev != nil {
			fresh = append(fresh, *ev)
		}
	}

	sc, _ := wyckoffevents.DetectSellingClimax(bars, va, rng, e.thresholds)
	if sc != nil && findByType(prior, model.EventSellingClimax) == nil {
		detect(sc, nil)
		prior = append(prior, *sc)
	}
	ar, err := wyckoffevents.DetectAutomaticRally(bars, va, rng, prior, e.thresholds)
	detect(ar, err)
	if ar != nil {
		prior = append(prior, *ar)
	}
	st, err := wyckoffevents.DetectSecondaryTest(bars, va, rng, prior, e.thresholds)
	detect(st, err)
	if st != nil {
		prior = append(prior, *st)
	}
	spring, err := wyckoffevents.DetectSpring(bars, va, rng, prior, e.thresholds)
	detect(spring, err)
	if spring != nil {
		prior = append(prior, *spring)
	}
	sos, err := wyckoffevents.DetectSignOfStrength(bars, va, rng, prior, e.thresholds)
	detect(sos, err)
	if sos != nil {
		prior = append(prior, *sos)
	}
	lps, err := wyckoffevents.DetectLastPointOfSupport(bars, va, rng, prior, e.thresholds)
	detect(lps, err)
	if lps != nil {
		prior = append(prior, *lps)
	}
	utad, err := wyckoffevents.DetectUTAD(bars, va, rng, prior, e.thresholds)
	detect(utad, err)

	return fresh
}

func findByType(events []model.Event, t model.EventType) *model.Event {
	for i := range events {
		if events[i].Type == t {
			return &events[i]
		}
	}
	return nil
}

func (e *Engine) buildAndValidateSignal(ctx context.Context, pattern model.PatternType, ev model.Event, rng *model.TradingRange, bars []model.Bar, va []model.VolumeAnalysis, classification model.PhaseClassification, userID string, now time.Time) {
	if ev.BarIndex < 0 || ev.BarIndex >= len(bars) {
		return
	}
	triggerBar := bars[ev.BarIndex]

	signal, err := e.builder.Build(pattern, ev, rng, triggerBar, classification.Phase)
	if err != nil {
		e.logger.Info("signal not built", zap.Error(err), zap.String("pattern", string(pattern)))
		return
	}

	campaign, err := e.resolveCampaign(ctx, rng, pattern, *signal)
	if err == nil {
		signal.CampaignID = campaign.ID
	}
	signal.CreatedAt = now
	signal.SchemaVersion = "1.0"

	if e.riskCheck != nil {
		if err := e.riskCheck.SizePosition(signal, campaign, e.campaignRiskUsed(ctx, campaign)); err != nil {
			e.logger.Info("position sizing failed", zap.Error(err), zap.String("pattern", string(pattern)))
		}
	}

	var volAnalysis model.VolumeAnalysis
	if ev.BarIndex < len(va) {
		volAnalysis = va[ev.BarIndex]
	}

	result := e.chain.Run(validation.Input{
		Signal:      signal,
		VolAnalysis: volAnalysis,
		PhaseClass:  classification,
		Range:       rng,
		Risk:        e.riskCheck,
		Strategy:    e.stratChk,
	})
	signal.ValidationChain = result
	e.bus.Publish(eventbus.EventSignalValidated, rng.Symbol, signal)

	if e.metr != nil {
		for _, stage := range result {
			e.metr.ValidationOutcomes.WithLabelValues(string(stage.Stage), string(stage.Status)).Inc()
		}
	}

	if result.Status() == model.StageFail {
		signal.Status = model.SignalRejected
		if e.metr != nil {
			e.metr.SignalsRejected.Inc()
		}
		e.bus.Publish(eventbus.EventSignalRejected, rng.Symbol, signal)
		return
	}

	signal.Status = model.SignalPending
	e.bus.Publish(eventbus.EventSignalGenerated, rng.Symbol, signal)
	if e.signals != nil {
		_ = e.signals.Save(ctx, *signal)
	}
	if e.queue != nil {
		e.queue.Submit(signal, userID, now)
	}
}

// campaignRiskUsed sums the dollar risk already committed per pattern
// by earlier signals in the campaign, for BMAD unused-budget
// redistribution ([[internal/risk]]'s Campaign.BMADAllocation).
func (e *Engine) campaignRiskUsed(ctx context.Context, campaign model.Campaign) map[model.PatternType]decimal.Decimal {
	used := make(map[model.PatternType]decimal.Decimal)
	if e.signals == nil || campaign.ID == "" {
		return used
	}
	sigs, err := e.signals.ListByCampaign(ctx, campaign.ID)
	if err != nil {
		return used
	}
	for _, s := range sigs {
		used[s.PatternType] = used[s.PatternType].Add(s.RiskAmount)
	}
	return used
}

func (e *Engine) resolveCampaign(ctx context.Context, rng *model.TradingRange, pattern model.PatternType, signal model.TradeSignal) (model.Campaign, error) {
	if e.campaigns == nil {
		return model.Campaign{}, fmt.Errorf("no campaign store configured")
	}
	existing, err := e.campaigns.List(ctx)
	if err == nil {
		for _, c := range existing {
			if c.RangeID == rng.ID {
				return c, nil
			}
		}
	}
	if pattern != model.PatternSpring {
		return model.Campaign{}, fmt.Errorf("no campaign exists yet for range %s", rng.ID)
	}
	c := model.Campaign{
		ID:      fmt.Sprintf("campaign-%s", rng.ID),
		RangeID: rng.ID,
		Symbol:  rng.Symbol,
	}
	if err := e.campaigns.Save(ctx, c); err != nil {
		return model.Campaign{}, err
	}
	return c, nil
}
