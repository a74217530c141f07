// Package tracker mirrors the broker's open-position set and owns the
// canonical position state everything else reads.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/goldbot/internal/domain"
	"github.com/alejandrodnm/goldbot/internal/metrics"
	"github.com/alejandrodnm/goldbot/internal/ports"
)

const (
	defaultPollInterval  = time.Second
	defaultLossThreshold = 100.0
	defaultHistorySize   = 1000
)

// Config tunes the tracker loop.
type Config struct {
	Symbol        string
	PollInterval  time.Duration
	LossThreshold float64 // flag a position once its loss exceeds this (USD)
	HistorySize   int
}

// LossEvent is emitted exactly once per position when its loss first
// crosses the configured threshold.
type LossEvent struct {
	Position domain.Position
	Loss     float64 // positive magnitude
	At       time.Time
}

// Tracker polls the platform feed and reconciles the broker snapshot
// against the store.
type Tracker struct {
	feed    ports.PlatformFeed
	store   *Store
	storage ports.Storage // nil disables persistence
	log     *slog.Logger
	cfg     Config

	onLoss     []func(LossEvent)
	onSnapshot []func([]domain.Position)
	now        func() time.Time
}

// New creates a tracker. storage may be nil.
func New(feed ports.PlatformFeed, storage ports.Storage, log *slog.Logger, cfg Config) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.LossThreshold <= 0 {
		cfg.LossThreshold = defaultLossThreshold
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}

	return &Tracker{
		feed:    feed,
		store:   NewStore(cfg.HistorySize),
		storage: storage,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Store exposes the read side of the tracked state.
func (t *Tracker) Store() *Store {
	return t.store
}

// OnLoss registers a listener for loss events. Must be called before Run.
func (t *Tracker) OnLoss(fn func(LossEvent)) {
	t.onLoss = append(t.onLoss, fn)
}

// OnSnapshot registers a listener that receives a copy of the open set
// after every poll. Must be called before Run.
func (t *Tracker) OnSnapshot(fn func([]domain.Position)) {
	t.onSnapshot = append(t.onSnapshot, fn)
}

// Run polls until the context is cancelled. A failed poll keeps the last
// known state and is retried on the next tick.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	t.log.Info("tracker started",
		"symbol", t.cfg.Symbol,
		"interval", t.cfg.PollInterval.String(),
		"loss_threshold", fmt.Sprintf("%.2f", t.cfg.LossThreshold))

	for {
		select {
		case <-ctx.Done():
			t.log.Info("tracker stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := t.Poll(ctx); err != nil {
				metrics.PollErrors.Inc()
				t.log.Error("poll failed", "error", err)
			}
		}
	}
}

// Poll runs one reconcile cycle against the current broker snapshot.
func (t *Tracker) Poll(ctx context.Context) error {
	snapshot, err := t.feed.OpenPositions(ctx, t.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("tracker.Poll: fetch positions: %w", err)
	}

	now := t.now()
	events := t.reconcile(snapshot, now)
	for _, ev := range events {
		for _, fn := range t.onLoss {
			fn(ev)
		}
	}
	if len(t.onSnapshot) > 0 {
		open := t.store.Open()
		for _, fn := range t.onSnapshot {
			fn(open)
		}
	}
	return nil
}

// reconcile applies a broker snapshot to the store and returns the loss
// events produced by this cycle.
func (t *Tracker) reconcile(snapshot []domain.BrokerPosition, now time.Time) []LossEvent {
	seen := make(map[int64]bool, len(snapshot))

	var events []LossEvent
	var totalProfit float64

	for _, bp := range snapshot {
		seen[bp.Ticket] = true
		net := bp.NetProfit()
		totalProfit += net

		if _, ok := t.store.Get(bp.Ticket); ok {
			t.store.mutate(bp.Ticket, func(p *domain.Position) {
				p.Price = bp.Price
				p.Profit = net
				p.Swap = bp.Swap
				p.Commission = bp.Commission
				p.Volume = bp.Volume
				if net > p.PeakProfit {
					p.PeakProfit = net
				}
				if net < p.PeakLoss {
					p.PeakLoss = net
				}
			})
		} else {
			p := t.adopt(bp, net)
			t.store.put(p)
			t.log.Info("position adopted",
				"ticket", bp.Ticket,
				"side", string(bp.Side),
				"volume", fmt.Sprintf("%.2f", bp.Volume),
				"strategy", p.Strategy,
				"depth", p.RecoveryDepth)
		}

		// Flag the loss at most once per position lifetime.
		if net < -t.cfg.LossThreshold {
			flagged := false
			t.store.mutate(bp.Ticket, func(p *domain.Position) {
				if p.HasTag(domain.TagRecoveryFlagged) {
					return
				}
				p.Tags[domain.TagRecoveryFlagged] = true
				p.Status = domain.StatusRecoveryPending
				flagged = true
			})
			if flagged {
				p, _ := t.store.Get(bp.Ticket)
				t.log.Warn("loss threshold crossed",
					"ticket", bp.Ticket,
					"loss", fmt.Sprintf("%.2f", -net))
				events = append(events, LossEvent{Position: p, Loss: -net, At: now})
			}
		}
	}

	// Tickets that vanished from the snapshot were closed at the broker.
	for _, p := range t.store.Open() {
		if seen[p.Ticket] {
			continue
		}
		t.store.mutate(p.Ticket, func(pos *domain.Position) {
			pos.Status = domain.StatusClosed
			pos.CloseTime = now
		})
		closed, ok := t.store.retire(p.Ticket)
		if !ok {
			continue
		}
		t.finalize(closed)
	}

	metrics.OpenPositions.Set(float64(t.store.Len()))
	metrics.FloatingProfit.Set(totalProfit)
	return events
}

// adopt builds a tracked position from a broker snapshot entry, recovering
// tags and metadata from the order comment.
func (t *Tracker) adopt(bp domain.BrokerPosition, net float64) *domain.Position {
	cm := domain.ParseComment(bp.Comment)

	p := &domain.Position{
		Ticket:        bp.Ticket,
		Symbol:        bp.Symbol,
		Side:          bp.Side,
		Volume:        bp.Volume,
		OpenPrice:     bp.OpenPrice,
		Price:         bp.Price,
		Profit:        net,
		Swap:          bp.Swap,
		Commission:    bp.Commission,
		OpenTime:      bp.OpenTime,
		Tags:          cm.Tags,
		Meta:          cm.Meta,
		Strategy:      cm.Strategy(),
		RecoveryDepth: cm.RecoveryDepth(),
		Status:        domain.StatusOpen,
	}
	if net > 0 {
		p.PeakProfit = net
	}
	if net < 0 {
		p.PeakLoss = net
	}
	return p
}

// finalize logs and persists a position that left the broker snapshot.
func (t *Tracker) finalize(p domain.Position) {
	t.log.Info("position closed",
		"ticket", p.Ticket,
		"profit", fmt.Sprintf("%.2f", p.Profit),
		"held", p.HoldingTime(p.CloseTime).Round(time.Second).String())

	if t.storage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.storage.SaveClosedPosition(ctx, p); err != nil {
		t.log.Error("persist closed position failed", "ticket", p.Ticket, "error", err)
	}
}
