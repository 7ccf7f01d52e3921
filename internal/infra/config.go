package infra

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent identifies the engine on REST and WebSocket calls
	DefaultUserAgent = "trader-go/1.0"
)

// Credentials is the access/secret key pair for the private API.
// An empty pair is valid: the engine runs in public-data-only mode.
type Credentials struct {
	AccessKey string `yaml:"access_key" envconfig:"UPBIT_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" envconfig:"UPBIT_SECRET_KEY"`
}

// Empty reports whether no credentials were supplied.
func (c Credentials) Empty() bool {
	return c.AccessKey == "" || c.SecretKey == ""
}

// Config는 애플리케이션의 모든 설정을 담습니다.
// 민감한 값은 환경 변수(.env 포함)로 덮어쓸 수 있습니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		Upbit struct {
			RestURL     string `yaml:"rest_url"`
			WSURL       string `yaml:"ws_url"`
			Credentials `yaml:",inline"`
		} `yaml:"upbit"`
	} `yaml:"api"`

	Engine struct {
		CandleUnitMin      int     `yaml:"candle_unit_min"`       // candle interval in minutes
		Lookback5m         int     `yaml:"lookback_5m"`           // max candles kept / fetched
		Lookback1m         int     `yaml:"lookback_1m"`           // selector candle history
		TopCandidates      int     `yaml:"top_candidates"`        // selector top-K
		TickerBatchSize    int     `yaml:"ticker_batch_size"`     // symbols per ticker call
		RefreshIntervalSec int     `yaml:"refresh_interval_sec"`  // authoritative candle refresh
		RetryDelaySec      int     `yaml:"retry_delay_sec"`       // fixed transport retry delay
		HeartbeatSec       int     `yaml:"heartbeat_sec"`         // ws ping interval
		EquityKRW          float64 `yaml:"equity_krw"`            // sizing base
		RiskPerTrade       float64 `yaml:"risk_per_trade"`        // fraction of equity at risk
		DailyStopRatio     float64 `yaml:"daily_stop_ratio"`      // circuit breaker threshold
		MinNotionalKRW     float64 `yaml:"min_notional_krw"`      // exchange hard minimum
		FeeRateTaker       float64 `yaml:"fee_rate_taker"`        // taker fee fraction
		JournalPath        string  `yaml:"journal_path"`          // sqlite file, empty disables
	} `yaml:"engine"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the yaml configuration, loads .env if
// present, applies env overrides for credentials and validates.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	// .env는 없어도 무방 (optional)
	_ = godotenv.Load()
	if err := envconfig.Process("", &cfg.API.Upbit.Credentials); err != nil {
		return nil, fmt.Errorf("env override failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	e := &c.Engine
	if c.API.Upbit.RestURL == "" {
		c.API.Upbit.RestURL = "https://api.upbit.com"
	}
	if c.API.Upbit.WSURL == "" {
		c.API.Upbit.WSURL = "wss://api.upbit.com/websocket/v1"
	}
	if e.CandleUnitMin <= 0 {
		e.CandleUnitMin = 5
	}
	if e.Lookback5m <= 0 {
		e.Lookback5m = 120
	}
	if e.Lookback1m <= 0 {
		e.Lookback1m = 60
	}
	if e.TopCandidates <= 0 {
		e.TopCandidates = 10
	}
	if e.TickerBatchSize <= 0 {
		e.TickerBatchSize = 15
	}
	if e.RefreshIntervalSec <= 0 {
		e.RefreshIntervalSec = 300
	}
	if e.RetryDelaySec <= 0 {
		e.RetryDelaySec = 2
	}
	if e.HeartbeatSec <= 0 {
		e.HeartbeatSec = 15
	}
	if e.MinNotionalKRW <= 0 {
		e.MinNotionalKRW = 5000
	}
	if e.FeeRateTaker <= 0 {
		e.FeeRateTaker = 0.0005
	}
	if e.RiskPerTrade <= 0 {
		e.RiskPerTrade = 0.01
	}
	if e.DailyStopRatio <= 0 {
		e.DailyStopRatio = 0.03
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.API.Upbit.RestURL, "http://") && !strings.HasPrefix(c.API.Upbit.RestURL, "https://") {
		return fmt.Errorf("invalid Upbit REST URL: %s", c.API.Upbit.RestURL)
	}
	if !strings.HasPrefix(c.API.Upbit.WSURL, "ws://") && !strings.HasPrefix(c.API.Upbit.WSURL, "wss://") {
		return fmt.Errorf("invalid Upbit WS URL: %s", c.API.Upbit.WSURL)
	}
	if c.Engine.EquityKRW < 0 {
		return fmt.Errorf("equity must not be negative")
	}
	if c.Engine.RiskPerTrade > 1 {
		return fmt.Errorf("risk per trade must be a fraction, got %v", c.Engine.RiskPerTrade)
	}
	return nil
}
