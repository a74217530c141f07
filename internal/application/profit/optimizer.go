// Package profit harvests gains from open positions through partial exits,
// trailing stops and absolute targets.
package profit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/goldbot/internal/application/tracker"
	"github.com/alejandrodnm/goldbot/internal/domain"
	"github.com/alejandrodnm/goldbot/internal/metrics"
	"github.com/alejandrodnm/goldbot/internal/ports"
)

const (
	minCloseLot  = 0.01
	completedCap = 200
)

// Config tunes the optimizer loop.
type Config struct {
	Symbol   string
	Interval time.Duration
}

// Optimizer owns one ProfitTarget per open position and walks each target's
// state machine once per cycle. It runs on a single goroutine; targets are
// never shared.
type Optimizer struct {
	store   *tracker.Store
	gateway ports.OrderGateway
	log     *slog.Logger
	cfg     Config

	targets   map[int64]*domain.ProfitTarget
	retired   map[int64]bool // completed tickets still visible in the snapshot
	completed []domain.ProfitTarget

	now func() time.Time
}

// New creates an optimizer reading positions from the tracker store.
func New(store *tracker.Store, gateway ports.OrderGateway, log *slog.Logger, cfg Config) *Optimizer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Optimizer{
		store:   store,
		gateway: gateway,
		log:     log,
		cfg:     cfg,
		targets: make(map[int64]*domain.ProfitTarget),
		retired: make(map[int64]bool),
		now:     time.Now,
	}
}

// Run evaluates until the context is cancelled.
func (o *Optimizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	o.log.Info("profit optimizer started", "interval", o.cfg.Interval.String())

	for {
		select {
		case <-ctx.Done():
			o.log.Info("profit optimizer stopped")
			return ctx.Err()
		case <-ticker.C:
			o.Evaluate(ctx)
		}
	}
}

// Evaluate syncs targets with the tracked position set and runs every
// target's checks once.
func (o *Optimizer) Evaluate(ctx context.Context) {
	open := o.store.Open()
	seen := make(map[int64]bool, len(open))

	for _, p := range open {
		seen[p.Ticket] = true
		// A completed ticket can linger in the snapshot until the broker
		// processes the close; it must never get a second target.
		if o.retired[p.Ticket] {
			continue
		}
		target, ok := o.targets[p.Ticket]
		if !ok {
			target = o.create(p)
			o.targets[p.Ticket] = target
		}

		target.Price = p.Price
		// An external partial close shrinks the broker-side volume.
		if p.Volume < target.RemainingVolume {
			target.RemainingVolume = p.Volume
		}
		target.UpdatedAt = o.now()

		o.step(ctx, target)
	}

	// Tickets gone from the open set force-complete their targets.
	for ticket, target := range o.targets {
		if !seen[ticket] {
			o.finish(target, "position gone")
		}
	}
	for ticket := range o.retired {
		if !seen[ticket] {
			delete(o.retired, ticket)
		}
	}
}

// Target returns a copy of the active target for a ticket.
func (o *Optimizer) Target(ticket int64) (domain.ProfitTarget, bool) {
	t, ok := o.targets[ticket]
	if !ok {
		return domain.ProfitTarget{}, false
	}
	cp := *t
	cp.Partials = append([]domain.PartialRule(nil), t.Partials...)
	return cp, true
}

// Completed returns the retained finished targets, oldest first.
func (o *Optimizer) Completed() []domain.ProfitTarget {
	out := make([]domain.ProfitTarget, len(o.completed))
	copy(out, o.completed)
	return out
}

// create builds a fresh target for a newly observed position.
func (o *Optimizer) create(p domain.Position) *domain.ProfitTarget {
	mode := o.modeFor(p)
	cfg := domain.ModeConfigs(mode)
	now := o.now()

	o.log.Info("profit target created",
		"ticket", p.Ticket,
		"mode", string(mode),
		"target_pips", cfg.TargetPips,
		"volume", fmt.Sprintf("%.2f", p.Volume))

	return &domain.ProfitTarget{
		Ticket:          p.Ticket,
		Symbol:          p.Symbol,
		Side:            p.Side,
		EntryPrice:      p.OpenPrice,
		Price:           p.Price,
		Mode:            mode,
		TargetPips:      cfg.TargetPips,
		TrailingPips:    cfg.TrailingPips,
		Partials:        cfg.Partials,
		OriginalVolume:  p.Volume,
		RemainingVolume: p.Volume,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// modeFor picks the profit mode: explicit comment tag first, then the
// session hour band, scalping as the default.
func (o *Optimizer) modeFor(p domain.Position) domain.ProfitMode {
	switch {
	case p.HasTag("recovery"):
		return domain.ModeRecovery
	case p.HasTag("news"):
		return domain.ModeNews
	case p.HasTag("trend"):
		return domain.ModeTrend
	case p.HasTag("swing"):
		return domain.ModeSwing
	}
	if m, ok := p.Meta[domain.MetaMode]; ok {
		switch domain.ProfitMode(m) {
		case domain.ModeRecovery, domain.ModeNews, domain.ModeTrend, domain.ModeSwing, domain.ModeScalping:
			return domain.ProfitMode(m)
		}
	}
	return sessionMode(o.now().Hour())
}

// sessionMode maps the local hour to a default mode. Asian hours favour
// quick scalps, London favours swing holds, the NY overlap rides trends.
func sessionMode(hour int) domain.ProfitMode {
	switch {
	case hour >= 22 || hour <= 8:
		return domain.ModeScalping
	case hour >= 20:
		return domain.ModeTrend
	case hour >= 15:
		return domain.ModeSwing
	default:
		return domain.ModeScalping
	}
}

// step runs one cycle of the target state machine: partials, then
// trailing, then the absolute target.
func (o *Optimizer) step(ctx context.Context, t *domain.ProfitTarget) {
	if t.Done() {
		o.finish(t, "volume exhausted")
		return
	}

	pips := t.CurrentPips()
	if pips > t.PeakPips {
		t.PeakPips = pips
	}
	// The trailing flag latches for the rest of the target's life.
	if !t.IsTrailing && pips >= t.TrailingPips {
		t.IsTrailing = true
		o.log.Info("trailing armed", "ticket", t.Ticket, "pips", fmt.Sprintf("%.1f", pips))
	}

	o.firePartials(ctx, t, pips)
	if t.Done() {
		o.finish(t, "partials consumed volume")
		return
	}

	if t.IsTrailing && t.PeakPips-pips >= t.TrailingPips {
		o.closeAll(ctx, t, "trailing stop")
		return
	}

	if pips >= t.TargetPips {
		o.closeAll(ctx, t, "target reached")
	}
}

// firePartials consumes crossed rules in ascending order. Each fires at
// most once; a failed close leaves the rule in place for the next cycle.
func (o *Optimizer) firePartials(ctx context.Context, t *domain.ProfitTarget, pips float64) {
	for len(t.Partials) > 0 && pips >= t.Partials[0].Pips {
		rule := t.Partials[0]

		volume := roundLot(t.RemainingVolume * rule.Fraction)
		if volume < minCloseLot {
			volume = math.Min(minCloseLot, t.RemainingVolume)
		}
		if volume > t.RemainingVolume {
			volume = t.RemainingVolume
		}

		res, err := o.gateway.Close(ctx, t.Ticket, volume)
		if err != nil {
			o.log.Error("partial close failed", "ticket", t.Ticket, "error", err)
			return
		}
		if res.Status != ports.OrderFilled {
			o.log.Warn("partial close refused",
				"ticket", t.Ticket,
				"status", string(res.Status),
				"reason", res.Reason)
			return
		}

		t.RemainingVolume = roundLot(t.RemainingVolume - volume)
		t.ClosedVolume = roundLot(t.ClosedVolume + volume)
		metrics.PartialCloses.Inc()
		o.log.Info("partial exit",
			"ticket", t.Ticket,
			"rule_pips", rule.Pips,
			"closed", fmt.Sprintf("%.2f", volume),
			"remaining", fmt.Sprintf("%.2f", t.RemainingVolume))

		// Drop the fired rule plus anything at or below its threshold.
		next := t.Partials[1:]
		for len(next) > 0 && next[0].Pips <= rule.Pips {
			next = next[1:]
		}
		t.Partials = next

		if t.RemainingVolume < minCloseLot {
			t.RemainingVolume = 0
			return
		}
	}
}

// closeAll closes the full remaining volume and finishes the target.
func (o *Optimizer) closeAll(ctx context.Context, t *domain.ProfitTarget, reason string) {
	res, err := o.gateway.Close(ctx, t.Ticket, t.RemainingVolume)
	if err != nil {
		o.log.Error("full close failed", "ticket", t.Ticket, "reason", reason, "error", err)
		return
	}
	if res.Status != ports.OrderFilled {
		o.log.Warn("full close refused", "ticket", t.Ticket, "status", string(res.Status), "reason", res.Reason)
		return
	}

	t.ClosedVolume = roundLot(t.ClosedVolume + t.RemainingVolume)
	t.RemainingVolume = 0
	o.finish(t, reason)
}

// finish retires a target. Idempotent per ticket: the map entry goes away
// so no later cycle can close anything twice.
func (o *Optimizer) finish(t *domain.ProfitTarget, reason string) {
	if _, ok := o.targets[t.Ticket]; !ok {
		return
	}
	delete(o.targets, t.Ticket)
	o.retired[t.Ticket] = true

	t.UpdatedAt = o.now()
	o.completed = append(o.completed, *t)
	if len(o.completed) > completedCap {
		o.completed = o.completed[len(o.completed)-completedCap:]
	}

	o.log.Info("profit target completed",
		"ticket", t.Ticket,
		"reason", reason,
		"closed", fmt.Sprintf("%.2f", t.ClosedVolume),
		"peak_pips", fmt.Sprintf("%.1f", t.PeakPips))
}

func roundLot(v float64) float64 {
	return math.Round(v*100) / 100
}
