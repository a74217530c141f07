// Package metrics exposes the bot's Prometheus instrumentation.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "goldbot",
		Name:      "open_positions",
		Help:      "Number of currently open positions.",
	})

	FloatingProfit = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "goldbot",
		Name:      "floating_profit_usd",
		Help:      "Aggregate unrealized P&L of open positions.",
	})

	RecoveriesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "goldbot",
		Name:      "recoveries_active",
		Help:      "Recovery plans currently in flight.",
	})

	RecoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goldbot",
		Name:      "recoveries_total",
		Help:      "Completed recovery plans by outcome.",
	}, []string{"strategy", "outcome"})

	PartialCloses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goldbot",
		Name:      "partial_closes_total",
		Help:      "Partial profit exits executed.",
	})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goldbot",
		Name:      "orders_total",
		Help:      "Orders submitted to the broker by result.",
	}, []string{"result"})

	PollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goldbot",
		Name:      "poll_errors_total",
		Help:      "Failed broker snapshot polls.",
	})
)

// Serve expone /metrics hasta que el contexto se cancele.
func Serve(ctx context.Context, addr string, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
