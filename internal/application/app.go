// Package application wires the three core loops and supervises their
// lifecycle.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/goldbot/internal/application/profit"
	"github.com/alejandrodnm/goldbot/internal/application/recovery"
	"github.com/alejandrodnm/goldbot/internal/application/tracker"
	"github.com/alejandrodnm/goldbot/internal/metrics"
)

const defaultStopTimeout = 5 * time.Second

// App supervises the tracker, recovery and profit loops plus the optional
// metrics endpoint. All loops share one context; any non-cancel failure
// tears the whole app down.
type App struct {
	tracker  *tracker.Tracker
	recovery *recovery.Manager
	profit   *profit.Optimizer
	log      *slog.Logger

	metricsAddr string // empty disables the endpoint
	stopTimeout time.Duration

	cancel context.CancelFunc
	done   chan error
}

// New assembles the supervisor.
func New(tr *tracker.Tracker, rec *recovery.Manager, opt *profit.Optimizer, log *slog.Logger, metricsAddr string) *App {
	return &App{
		tracker:     tr,
		recovery:    rec,
		profit:      opt,
		log:         log,
		metricsAddr: metricsAddr,
		stopTimeout: defaultStopTimeout,
	}
}

// Start launches every loop and returns immediately.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan error, 1)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.tracker.Run(ctx) })
	g.Go(func() error { return a.recovery.Run(ctx) })
	g.Go(func() error { return a.profit.Run(ctx) })
	if a.metricsAddr != "" {
		g.Go(func() error { return metrics.Serve(ctx, a.metricsAddr, a.log) })
	}

	go func() {
		a.done <- g.Wait()
	}()

	a.log.Info("application started")
}

// Wait blocks until the loops exit on their own (loop failure or parent
// context cancellation). Cancellation is not an error.
func (a *App) Wait() error {
	err := <-a.done
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop cancels the loops and joins them with a bounded timeout.
func (a *App) Stop() error {
	if a.cancel == nil {
		return nil
	}
	a.cancel()

	select {
	case err := <-a.done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("application.Stop: %w", err)
		}
		a.log.Info("application stopped")
		return nil
	case <-time.After(a.stopTimeout):
		return fmt.Errorf("application.Stop: loops did not exit within %s", a.stopTimeout)
	}
}
