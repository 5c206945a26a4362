// Package main provides the entry point for the Wyckoff signal
// engine server: bar ingestion, event/phase/signal detection,
// validation, approval queuing, position lifecycle management and the
// real-time API surface (REST + WebSocket) over it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/broker"
	"github.com/wyckoff-labs/signal-engine/internal/config"
	"github.com/wyckoff-labs/signal-engine/internal/engine"
	"github.com/wyckoff-labs/signal-engine/internal/eventbus"
	"github.com/wyckoff-labs/signal-engine/internal/lifecycle"
	"github.com/wyckoff-labs/signal-engine/internal/metrics"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"github.com/wyckoff-labs/signal-engine/internal/notify"
	"github.com/wyckoff-labs/signal-engine/internal/queue"
	"github.com/wyckoff-labs/signal-engine/internal/repo"
	"github.com/wyckoff-labs/signal-engine/internal/risk"
	"github.com/wyckoff-labs/signal-engine/internal/strategy"
	"github.com/wyckoff-labs/signal-engine/internal/ws"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML config file")
	host := flag.String("host", "", "Server host (overrides config)")
	port := flag.Int("port", 0, "Server port (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting wyckoff signal engine",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("broker_mode", cfg.Broker.Mode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsReg := prometheusRegistry(cfg)

	bus := eventbus.New(logger, eventbus.DefaultConfig())
	defer bus.Close()

	campaignRepo := repo.NewInMemoryCampaigns()
	positionRepo := repo.NewInMemoryPositions()
	exitRuleRepo := repo.NewInMemoryExitRules()
	signalRepo := repo.NewInMemorySignals()

	riskAllocator := risk.NewAllocator(logger)
	strategyChecker := strategy.NewChecker(logger)
	approvalQueue := queue.NewQueue(logger, 50, 48*time.Hour)

	brokerAdapter, err := newBrokerAdapter(logger, cfg)
	if err != nil {
		logger.Fatal("constructing broker adapter", zap.Error(err))
	}
	if err := brokerAdapter.Connect(ctx); err != nil {
		logger.Warn("broker connect failed at startup, will retry on demand", zap.Error(err))
	}

	lifecycleMgr := lifecycle.NewManager(logger, broker.NewLifecycleBroker(brokerAdapter))

	notifyService := notify.NewService(logger, staticPreferences{}, map[notify.Channel]notify.Sender{
		notify.ChannelToast: loggingSender{logger: logger},
	}, nil)

	hub := ws.NewHub(logger, bus)
	hub.Attach()
	go hub.Run(ctx.Done())

	eng := engine.New(engine.Config{
		Logger:    logger,
		Bus:       bus,
		Metrics:   metricsReg,
		Campaigns: campaignRepo,
		Signals:   signalRepo,
		Risk:      riskAllocator,
		Strategy:  strategyChecker,
		Queue:     approvalQueue,
		MaxBars:   500,
	})

	wireNotifications(ctx, bus, notifyService, logger)
	goStaleQueueSweeper(ctx, approvalQueue, logger)
	goExitEvaluator(ctx, lifecycleMgr, positionRepo, exitRuleRepo, logger)

	router := mux.NewRouter()
	registerRoutes(router, eng, hub, metricsReg, cfg)

	var handler http.Handler = router
	if cfg.Server.EnableCORS {
		handler = cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: false,
		}).Handler(router)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-sigChan
	logger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func prometheusRegistry(cfg config.Config) *metrics.Registry {
	return metrics.New(prometheus.DefaultRegisterer)
}

func registerRoutes(r *mux.Router, eng *engine.Engine, hub *ws.Hub, metr *metrics.Registry, cfg config.Config) {
	r.HandleFunc("/api/v1/bars", barIngestHandler(eng)).Methods(http.MethodPost)
	r.HandleFunc(cfg.Server.WebSocketPath, hub.ServeHTTP)
	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, metrics.Handler())
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// barIngestRequest is the REST surface for feeding bars into the
// engine outside of a dedicated market-data feed (used by tests,
// backfills and manual replay).
type barIngestRequest struct {
	Bar    model.Bar `json:"bar"`
	UserID string    `json:"user_id"`
}

func barIngestHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body barIngestRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("decoding bar: %v", err), http.StatusBadRequest)
			return
		}
		if body.UserID == "" {
			body.UserID = "default"
		}
		if err := eng.ProcessBar(req.Context(), body.Bar, body.UserID, time.Now()); err != nil {
			http.Error(w, fmt.Sprintf("processing bar: %v", err), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func wireNotifications(ctx context.Context, bus *eventbus.Bus, svc *notify.Service, logger *zap.Logger) {
	bus.Subscribe(eventbus.EventSignalGenerated, func(ev eventbus.Event) {
		signal, ok := ev.Payload.(*model.TradeSignal)
		if !ok {
			return
		}
		n := notify.Notification{
			Type:     notify.TypeSignalGenerated,
			Priority: notify.PriorityInfo,
			Title:    fmt.Sprintf("%s signal on %s", signal.PatternType, signal.Symbol),
			Message:  fmt.Sprintf("confidence %s%%", signal.ConfidenceScore),
			Metadata: map[string]any{"signal_id": signal.ID},
		}
		if _, err := svc.Send(ctx, "default", n); err != nil {
			logger.Warn("notification send failed", zap.Error(err))
		}
	})
}

func goStaleQueueSweeper(ctx context.Context, q *queue.Queue, logger *zap.Logger) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := q.ExpireStale(now); n > 0 {
					logger.Info("expired stale queue entries", zap.Int("count", n))
				}
			}
		}
	}()
}

// goExitEvaluator periodically re-checks every open position's exit
// rule against its last known price. A real market-data feed would
// drive this from fresh bars instead of a fixed-interval poll.
func goExitEvaluator(ctx context.Context, mgr *lifecycle.Manager, positions repo.Positions, exitRules repo.ExitRules, logger *zap.Logger) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				open, err := positions.ListOpen(ctx)
				if err != nil {
					logger.Warn("listing open positions for exit evaluation", zap.Error(err))
					continue
				}
				for i := range open {
					pos := open[i]
					rule, err := exitRules.Get(ctx, pos.CampaignID)
					if err != nil {
						continue
					}
					syntheticBar := model.Bar{
						Symbol: pos.Symbol, Timestamp: now,
						Open: pos.CurrentPrice, High: pos.CurrentPrice,
						Low: pos.CurrentPrice, Close: pos.CurrentPrice,
					}
					records, err := mgr.EvaluateExits(ctx, &pos, rule, syntheticBar)
					if err != nil {
						logger.Warn("exit evaluation failed", zap.Error(err), zap.String("position_id", pos.ID))
						continue
					}
					if err := positions.Save(ctx, pos); err != nil {
						logger.Warn("saving position after exit evaluation", zap.Error(err))
					}
					for _, rec := range records {
						logger.Info("position exit executed",
							zap.String("position_id", rec.PositionID), zap.String("kind", rec.Kind))
					}
				}
			}
		}
	}()
}

func newBrokerAdapter(logger *zap.Logger, cfg config.Config) (broker.Adapter, error) {
	switch cfg.Broker.Mode {
	case "alpaca":
		return broker.NewAlpaca(logger, broker.AlpacaConfig{
			BaseURL:   cfg.Broker.BaseURL,
			APIKeyID:  cfg.Broker.APIKeyID,
			APISecret: cfg.Broker.APISecret,
		}), nil
	case "paper", "":
		return broker.NewPaper(logger, nopPriceSource{}), nil
	default:
		return nil, fmt.Errorf("unknown broker mode %q", cfg.Broker.Mode)
	}
}

// nopPriceSource answers no price for any symbol; paper-mode fills
// fall back to the order's limit price until a real market-data feed
// is wired in.
type nopPriceSource struct{}

func (nopPriceSource) LastPrice(string) (decimal.Decimal, bool) { return decimal.Zero, false }

// staticPreferences gives every user the same notification defaults
// until a persistent preferences store exists.
type staticPreferences struct{}

func (staticPreferences) GetPreferences(_ context.Context, userID string) (notify.Preferences, error) {
	return notify.Preferences{
		UserID:                 userID,
		PushEnabled:            true,
		MinConfidenceThreshold: 70,
		ChannelPreferences: notify.ChannelPreferences{
			InfoChannels:     []notify.Channel{notify.ChannelToast},
			WarningChannels:  []notify.Channel{notify.ChannelToast},
			CriticalChannels: []notify.Channel{notify.ChannelToast},
		},
	}, nil
}

// loggingSender delivers toast notifications by logging them until a
// real WebSocket-toast or push-gateway sender is wired in.
type loggingSender struct {
	logger *zap.Logger
}

func (s loggingSender) Send(_ context.Context, channel notify.Channel, prefs notify.Preferences, n notify.Notification) error {
	s.logger.Info("notification delivered",
		zap.String("channel", string(channel)),
		zap.String("user_id", prefs.UserID),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
	)
	return nil
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
