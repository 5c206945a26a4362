// Package config loads the engine's typed configuration from an
// optional YAML file, environment variables and defaults via viper,
// through a single structured loader (§2). It does not parse
// command-line flags; cmd/server applies its flag overrides to the
// returned Config itself.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Host           string
	Port           int
	WebSocketPath  string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
	EnableCORS     bool
}

// RiskLimits mirrors internal/risk's package-level constants so they
// can be overridden per-deployment instead of hardcoded.
type RiskLimits struct {
	MaxPerTradeRiskPct    float64
	MaxPortfolioHeatPct   float64
	WarnPortfolioHeatPct  float64
	MaxCampaignRiskPct    float64
	WarnCampaignRiskPct   float64
	MaxCorrelatedRiskPct  float64
	WarnCorrelatedRiskPct float64
	MaxPositionValuePct   float64
	MaxCampaignPositions  int
}

// BrokerConfig configures which adapter to connect and its
// credentials.
type BrokerConfig struct {
	Mode      string // "paper" or "alpaca"
	BaseURL   string
	APIKeyID  string
	APISecret string
}

// MetricsConfig configures the Prometheus HTTP surface.
type MetricsConfig struct {
	Enabled bool
	Path    string
	Port    int
}

// Config is the engine's fully resolved configuration.
type Config struct {
	LogLevel string
	DataDir  string
	Server   ServerConfig
	Risk     RiskLimits
	Broker   BrokerConfig
	Metrics  MetricsConfig
}

// Default returns the engine's baseline configuration before flags,
// env vars or a config file are applied.
func Default() Config {
	return Config{
		LogLevel: "info",
		DataDir:  "./data",
		Server: ServerConfig{
			Host:           "localhost",
			Port:           8080,
			WebSocketPath:  "/ws",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxConnections: 100,
			EnableCORS:     true,
		},
		Risk: RiskLimits{
			MaxPerTradeRiskPct:    2.0,
			MaxPortfolioHeatPct:   10.0,
			WarnPortfolioHeatPct:  8.0,
			MaxCampaignRiskPct:    5.0,
			WarnCampaignRiskPct:   4.0,
			MaxCorrelatedRiskPct:  6.0,
			WarnCorrelatedRiskPct: 4.8,
			MaxPositionValuePct:   20.0,
			MaxCampaignPositions:  5,
		},
		Broker: BrokerConfig{Mode: "paper"},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
	}
}

// Load builds a viper instance seeded with Default(), layers in an
// optional config file (YAML, via viper's SetConfigType("yaml")),
// environment variables prefixed WYCKOFF_, and returns the resolved
// Config.
func Load(configFile string) (Config, error) {
	def := Default()
	v := viper.New()
	v.SetEnvPrefix("WYCKOFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, def)

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	cfg := def
	cfg.LogLevel = v.GetString("log_level")
	cfg.DataDir = v.GetString("data_dir")
	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.WebSocketPath = v.GetString("server.websocket_path")
	cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	cfg.Server.MaxConnections = v.GetInt("server.max_connections")
	cfg.Server.EnableCORS = v.GetBool("server.enable_cors")

	cfg.Risk.MaxPerTradeRiskPct = v.GetFloat64("risk.max_per_trade_risk_pct")
	cfg.Risk.MaxPortfolioHeatPct = v.GetFloat64("risk.max_portfolio_heat_pct")
	cfg.Risk.WarnPortfolioHeatPct = v.GetFloat64("risk.warn_portfolio_heat_pct")
	cfg.Risk.MaxCampaignRiskPct = v.GetFloat64("risk.max_campaign_risk_pct")
	cfg.Risk.WarnCampaignRiskPct = v.GetFloat64("risk.warn_campaign_risk_pct")
	cfg.Risk.MaxCorrelatedRiskPct = v.GetFloat64("risk.max_correlated_risk_pct")
	cfg.Risk.WarnCorrelatedRiskPct = v.GetFloat64("risk.warn_correlated_risk_pct")
	cfg.Risk.MaxPositionValuePct = v.GetFloat64("risk.max_position_value_pct")
	cfg.Risk.MaxCampaignPositions = v.GetInt("risk.max_campaign_positions")

	cfg.Broker.Mode = v.GetString("broker.mode")
	cfg.Broker.BaseURL = v.GetString("broker.base_url")
	cfg.Broker.APIKeyID = v.GetString("broker.api_key_id")
	cfg.Broker.APISecret = v.GetString("broker.api_secret")

	cfg.Metrics.Enabled = v.GetBool("metrics.enabled")
	cfg.Metrics.Path = v.GetString("metrics.path")
	cfg.Metrics.Port = v.GetInt("metrics.port")

	return cfg, nil
}

func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.websocket_path", def.Server.WebSocketPath)
	v.SetDefault("server.read_timeout", def.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", def.Server.WriteTimeout)
	v.SetDefault("server.max_connections", def.Server.MaxConnections)
	v.SetDefault("server.enable_cors", def.Server.EnableCORS)

	v.SetDefault("risk.max_per_trade_risk_pct", def.Risk.MaxPerTradeRiskPct)
	v.SetDefault("risk.max_portfolio_heat_pct", def.Risk.MaxPortfolioHeatPct)
	v.SetDefault("risk.warn_portfolio_heat_pct", def.Risk.WarnPortfolioHeatPct)
	v.SetDefault("risk.max_campaign_risk_pct", def.Risk.MaxCampaignRiskPct)
	v.SetDefault("risk.warn_campaign_risk_pct", def.Risk.WarnCampaignRiskPct)
	v.SetDefault("risk.max_correlated_risk_pct", def.Risk.MaxCorrelatedRiskPct)
	v.SetDefault("risk.warn_correlated_risk_pct", def.Risk.WarnCorrelatedRiskPct)
	v.SetDefault("risk.max_position_value_pct", def.Risk.MaxPositionValuePct)
	v.SetDefault("risk.max_campaign_positions", def.Risk.MaxCampaignPositions)

	v.SetDefault("broker.mode", def.Broker.Mode)
	v.SetDefault("broker.base_url", def.Broker.BaseURL)

	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.path", def.Metrics.Path)
	v.SetDefault("metrics.port", def.Metrics.Port)
}
