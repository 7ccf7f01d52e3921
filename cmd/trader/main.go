package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"trader_go/internal/app"
	"trader_go/internal/domain"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Telemetry boundary: this is the only consumer of engine events in
	// the headless build. A UI would hang off the same channel.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-bootstrap.Events():
				logEvent(ev)
			}
		}
	}()

	slog.Info("trader started")
	if err := bootstrap.Engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("engine stopped", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("shutting down gracefully")
}

func logEvent(ev domain.Event) {
	switch e := ev.(type) {
	case domain.MarketSelected:
		slog.Info("market selected", "market", e.Market)
	case domain.CandlesUpdated:
		slog.Debug("candles updated", "market", e.Market)
	case domain.OrderExecuted:
		slog.Info("order executed", "market", e.Market, "price", e.Price, "is_buy", e.IsBuy, "ts_ms", e.TsMs)
	case domain.PositionChanged:
		slog.Info("position changed", "market", e.Market, "qty", e.Qty, "avg_price", e.AvgPrice)
	case domain.OrderAccepted:
		slog.Info("order accepted", "market", e.Market, "uuid", e.UUID, "is_buy", e.IsBuy, "price", e.Price, "volume", e.Volume)
	case domain.OrderRejected:
		slog.Warn("order rejected", "market", e.Market, "reason", e.Reason)
	}
}
