package app

import (
	"log/slog"
	"time"

	"trader_go/internal/domain"
	"trader_go/internal/engine"
	"trader_go/internal/infra"
	"trader_go/internal/infra/storage"
	"trader_go/internal/infra/upbit"
	"trader_go/internal/market"
	"trader_go/internal/order"
)

// Bootstrap orchestrates the application startup sequence: config,
// logger, journal, gateway, streams and engine, wired in dependency
// order. The gateway is injected into every component that needs it;
// there is no process-global client.
type Bootstrap struct {
	Config  *infra.Config
	Journal *storage.Journal
	Engine  *engine.Engine

	events chan domain.Event
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize builds the full component graph from configuration.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	if cfg.Engine.JournalPath != "" {
		journal, err := storage.NewJournal(cfg.Engine.JournalPath)
		if err != nil {
			return err
		}
		b.Journal = journal
		slog.Info("execution journal ready", "path", cfg.Engine.JournalPath)
	}

	creds := cfg.API.Upbit.Credentials
	client := upbit.NewClient(cfg.API.Upbit.RestURL, creds.AccessKey, creds.SecretKey)
	if creds.Empty() {
		slog.Info("no credentials, running in public-data-only mode")
	}

	b.events = make(chan domain.Event, 256)
	emit := func(ev domain.Event) {
		select {
		case b.events <- ev:
		default:
			slog.Warn("event channel full, dropping event")
		}
	}

	ecfg := cfg.Engine
	retryDelay := time.Duration(ecfg.RetryDelaySec) * time.Second
	heartbeat := time.Duration(ecfg.HeartbeatSec) * time.Second

	agg := market.NewAggregator(ecfg.CandleUnitMin, ecfg.Lookback5m)
	selector := market.NewSelector(client, ecfg.TopCandidates, ecfg.Lookback1m, retryDelay)
	orders := order.NewManager(client, ecfg.FeeRateTaker, ecfg.MinNotionalKRW, emit, b.Journal)

	streamCh := make(chan domain.StreamMessage, 1024)
	pub := upbit.NewPublicStream(cfg.API.Upbit.WSURL, streamCh, retryDelay, heartbeat)
	var priv domain.StreamWorker
	if !creds.Empty() {
		priv = upbit.NewPrivateStream(cfg.API.Upbit.WSURL, client.Signer(), streamCh, retryDelay, heartbeat)
	}

	b.Engine = engine.New(engine.Config{
		CandleUnitMin:   ecfg.CandleUnitMin,
		Lookback5m:      ecfg.Lookback5m,
		RefreshInterval: time.Duration(ecfg.RefreshIntervalSec) * time.Second,
		RetryDelay:      retryDelay,
		EquityKRW:       ecfg.EquityKRW,
		RiskPerTrade:    ecfg.RiskPerTrade,
		DailyStopRatio:  ecfg.DailyStopRatio,
	}, client, selector, agg, orders, pub, priv, streamCh, emit)

	return nil
}

// Events is the outbound notification stream for UI/telemetry.
func (b *Bootstrap) Events() <-chan domain.Event {
	return b.events
}
