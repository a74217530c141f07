package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/goldbot/config"
	"github.com/alejandrodnm/goldbot/internal/adapters/marketctx"
	"github.com/alejandrodnm/goldbot/internal/adapters/mt5"
	"github.com/alejandrodnm/goldbot/internal/adapters/notify"
	"github.com/alejandrodnm/goldbot/internal/adapters/sim"
	"github.com/alejandrodnm/goldbot/internal/adapters/storage"
	"github.com/alejandrodnm/goldbot/internal/application"
	"github.com/alejandrodnm/goldbot/internal/application/profit"
	"github.com/alejandrodnm/goldbot/internal/application/recovery"
	"github.com/alejandrodnm/goldbot/internal/application/tracker"
	"github.com/alejandrodnm/goldbot/internal/domain"
	"github.com/alejandrodnm/goldbot/internal/ports"
)

// run arma el bot completo y lo ejecuta hasta que el contexto se cancele.
func run(ctx context.Context, cfg *config.Config, paper, once bool) error {
	log := slog.Default()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	var feed ports.PlatformFeed
	var gateway ports.OrderGateway

	if paper {
		exchange := sim.New(sim.Config{
			Symbol:     cfg.Trading.Symbol,
			BasePrice:  cfg.Sim.BasePrice,
			SpreadPips: cfg.Sim.SpreadPips,
			WalkPips:   cfg.Sim.WalkPips,
			Slippage:   cfg.Sim.Slippage,
			RejectRate: cfg.Sim.RejectRate,
		}, log.With("component", "sim"))
		feed = exchange
		gateway = exchange
	} else {
		client := mt5.NewClient(cfg.Bridge.BaseURL)
		if cfg.Bridge.StreamURL != "" {
			stream := mt5.NewTickStream(cfg.Bridge.StreamURL,
				[]string{cfg.Trading.Symbol}, log.With("component", "stream"))
			client.UseStream(stream)
			go stream.Run(ctx)
		}
		feed = client
		gateway = mt5.NewGateway(client, store, log.With("component", "gateway"))
	}

	notifier := notify.NewConsole(cfg.Trading.ReportTable)

	tr := tracker.New(feed, store, log.With("component", "tracker"), tracker.Config{
		Symbol:        cfg.Trading.Symbol,
		PollInterval:  cfg.PollInterval(),
		LossThreshold: cfg.Trading.LossThreshold,
		HistorySize:   cfg.Trading.HistorySize,
	})

	history := recovery.NewHistory(store, log.With("component", "recovery"))
	if err := history.Load(ctx); err != nil {
		log.Warn("could not load episode history", "err", err)
	}

	// El scorer muestrea el mercado en su propio loop; sin muestras
	// periódicas la ventana nunca mide el churn tick a tick.
	scorer := marketctx.NewScorer(feed, log.With("component", "marketctx"))
	go func() { _ = scorer.Run(ctx, cfg.Trading.Symbol, cfg.PollInterval()) }()

	planner := recovery.NewPlanner(scorer, history,
		log.With("component", "recovery"), recovery.PlannerConfig{
			MaxAttempts: cfg.Recovery.MaxAttempts,
		})

	manager := recovery.NewManager(planner, gateway, tr.Store(), history, notifier,
		log.With("component", "recovery"), recovery.ManagerConfig{
			Symbol:        cfg.Trading.Symbol,
			Interval:      cfg.PollInterval(),
			MaxConcurrent: cfg.Recovery.MaxConcurrent,
			Paper:         paper,
		})

	optimizer := profit.New(tr.Store(), gateway, log.With("component", "profit"), profit.Config{
		Symbol:   cfg.Trading.Symbol,
		Interval: cfg.PollInterval(),
	})

	if once {
		return runOnce(ctx, tr, manager, optimizer, notifier)
	}

	// El reporte periódico se emite desde el fan-out de snapshots del
	// tracker, throttled al intervalo configurado. Cero = sin reporte.
	if interval := cfg.ReportInterval(); interval > 0 {
		var lastReport time.Time
		tr.OnSnapshot(func(open []domain.Position) {
			if time.Since(lastReport) < interval {
				return
			}
			lastReport = time.Now()
			if err := notifier.PortfolioReport(ctx, tr.Summary(), open); err != nil {
				log.Error("portfolio report failed", "err", err)
			}
		})
	}

	app := application.New(tr, manager, optimizer, log, cfg.Metrics.Addr)
	app.Start(ctx)

	<-ctx.Done()
	return app.Stop()
}

// runOnce ejecuta un ciclo de cada loop y muestra el estado.
func runOnce(ctx context.Context, tr *tracker.Tracker, manager *recovery.Manager, optimizer *profit.Optimizer, notifier *notify.Console) error {
	if err := tr.Poll(ctx); err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	manager.Evaluate(ctx)
	optimizer.Evaluate(ctx)
	return notifier.PortfolioReport(ctx, tr.Summary(), tr.Store().Open())
}
