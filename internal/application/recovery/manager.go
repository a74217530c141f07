package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/goldbot/internal/application/tracker"
	"github.com/alejandrodnm/goldbot/internal/domain"
	"github.com/alejandrodnm/goldbot/internal/metrics"
	"github.com/alejandrodnm/goldbot/internal/ports"
)

// ErrActiveLimit is returned when the concurrent-recovery budget is spent.
var ErrActiveLimit = errors.New("recovery: active plan limit reached")

// ManagerConfig tunes the recovery loop.
type ManagerConfig struct {
	Symbol        string
	Interval      time.Duration
	MaxConcurrent int           // default 3
	PlanTimeout   time.Duration // default 1h; fails plans whose order never materializes
	Paper         bool          // enables modeled outcomes, never set live
}

// Manager owns the plan lifecycle: it watches flagged positions, builds and
// submits plans, and settles active ones.
type Manager struct {
	planner  *Planner
	gateway  ports.OrderGateway
	store    *tracker.Store
	history  *History
	notifier ports.Notifier // nil disables notifications
	log      *slog.Logger
	cfg      ManagerConfig

	mu      sync.Mutex
	active  map[string]*domain.RecoveryPlan
	covered map[int64]string // losing ticket -> plan ID

	rand func() float64
	now  func() time.Time
}

// NewManager wires the recovery loop. notifier may be nil.
func NewManager(planner *Planner, gateway ports.OrderGateway, store *tracker.Store, history *History, notifier ports.Notifier, log *slog.Logger, cfg ManagerConfig) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.PlanTimeout <= 0 {
		cfg.PlanTimeout = time.Hour
	}
	return &Manager{
		planner:  planner,
		gateway:  gateway,
		store:    store,
		history:  history,
		notifier: notifier,
		log:      log,
		cfg:      cfg,
		active:   make(map[string]*domain.RecoveryPlan),
		covered:  make(map[int64]string),
		rand:     rand.Float64,
		now:      time.Now,
	}
}

// Run evaluates until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.log.Info("recovery manager started",
		"max_concurrent", m.cfg.MaxConcurrent,
		"paper", m.cfg.Paper)

	for {
		select {
		case <-ctx.Done():
			m.log.Info("recovery manager stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Evaluate(ctx)
		}
	}
}

// Evaluate runs one settle-then-plan cycle.
func (m *Manager) Evaluate(ctx context.Context) {
	m.settle(ctx)
	m.planPending(ctx)
}

// ActiveCount returns the number of plans currently in flight.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Execute submits a plan through the gateway. FILLED moves the plan to
// ACTIVE; anything else fails it immediately and is never retried.
func (m *Manager) Execute(ctx context.Context, plan domain.RecoveryPlan) error {
	m.mu.Lock()
	if len(m.active) >= m.cfg.MaxConcurrent {
		m.mu.Unlock()
		return ErrActiveLimit
	}
	m.mu.Unlock()

	req := ports.OrderRequest{
		Symbol:  plan.Symbol,
		Side:    plan.Side,
		Volume:  plan.Volume,
		Price:   plan.Price,
		Comment: m.comment(plan),
	}

	res, err := m.gateway.Submit(ctx, req)
	if err != nil {
		plan.Status = domain.PlanFailed
		plan.CompletedAt = m.now()
		m.record(ctx, &plan, false, 0)
		return fmt.Errorf("recovery.Execute: submit: %w", err)
	}

	switch res.Status {
	case ports.OrderFilled:
		plan.Status = domain.PlanActive
		plan.OrderTicket = res.Ticket
		plan.ExecutedPrice = res.ExecutedPrice

		m.mu.Lock()
		p := plan
		m.active[plan.ID] = &p
		for _, ticket := range plan.Tickets {
			m.covered[ticket] = plan.ID
		}
		metrics.RecoveriesActive.Set(float64(len(m.active)))
		m.mu.Unlock()

		metrics.OrdersTotal.WithLabelValues("filled").Inc()
		m.log.Info("recovery order filled",
			"plan", plan.ID,
			"ticket", res.Ticket,
			"price", fmt.Sprintf("%.2f", res.ExecutedPrice))
		m.notify(ctx, plan)
		return nil

	case ports.OrderRejected:
		metrics.OrdersTotal.WithLabelValues("rejected").Inc()
	default:
		metrics.OrdersTotal.WithLabelValues("error").Inc()
	}

	plan.Status = domain.PlanFailed
	plan.CompletedAt = m.now()
	m.record(ctx, &plan, false, 0)
	m.log.Warn("recovery order not filled",
		"plan", plan.ID,
		"status", string(res.Status),
		"reason", res.Reason)
	m.notify(ctx, plan)
	return nil
}

// planPending builds and executes a plan for flagged positions not already
// covered by an active plan. Positions whose recovery chain has spent the
// attempt budget are left alone; recovering a recovery forever only
// compounds the loss.
func (m *Manager) planPending(ctx context.Context) {
	pending := m.store.OpenByStatus(domain.StatusRecoveryPending)

	m.mu.Lock()
	uncovered := pending[:0]
	var exhausted int
	for _, p := range pending {
		if _, ok := m.covered[p.Ticket]; ok {
			continue
		}
		if p.RecoveryDepth >= m.planner.cfg.MaxAttempts {
			exhausted++
			continue
		}
		uncovered = append(uncovered, p)
	}
	atLimit := len(m.active) >= m.cfg.MaxConcurrent
	m.mu.Unlock()

	if exhausted > 0 {
		m.log.Debug("recovery attempt budget spent, positions left alone", "count", exhausted)
	}

	if len(uncovered) == 0 {
		return
	}
	if atLimit {
		m.log.Debug("recovery deferred, active limit reached", "pending", len(uncovered))
		return
	}

	strategy := m.planner.SelectStrategy(uncovered)
	if strategy == domain.StrategyNone {
		return
	}

	plan, err := m.planner.BuildPlan(ctx, strategy, uncovered)
	if err != nil {
		m.log.Error("plan build failed", "strategy", string(strategy), "error", err)
		return
	}

	if err := m.Execute(ctx, plan); err != nil && !errors.Is(err, ErrActiveLimit) {
		m.log.Error("plan execution failed", "plan", plan.ID, "error", err)
	}
}

// settle resolves active plans whose outcome is now observable.
func (m *Manager) settle(ctx context.Context) {
	m.mu.Lock()
	plans := make([]*domain.RecoveryPlan, 0, len(m.active))
	for _, p := range m.active {
		plans = append(plans, p)
	}
	m.mu.Unlock()

	for _, plan := range plans {
		if m.cfg.Paper {
			// Modeled outcome: a probability-weighted draw. Paper mode only.
			success := m.rand()*100 < plan.Probability
			profit := plan.TotalLoss
			if !success {
				profit = -plan.TotalLoss * 0.5
			}
			m.complete(ctx, plan, success, profit)
			continue
		}

		// The recovery position closed at the broker: realized profit
		// decides the outcome.
		if closed, ok := m.findClosed(plan.OrderTicket); ok {
			m.complete(ctx, plan, closed.Profit > 0, closed.Profit)
			continue
		}
		if _, open := m.store.Get(plan.OrderTicket); open {
			continue
		}

		// Recovery position never showed up. If every covered position is
		// gone too, the situation resolved itself outside the bot.
		if m.allTicketsGone(plan.Tickets) {
			m.log.Warn("force-completing plan, covered positions vanished", "plan", plan.ID)
			m.complete(ctx, plan, true, 0)
			continue
		}

		// Order and position ids can diverge at the broker. A plan whose
		// recovery ticket never appears would otherwise pin a concurrency
		// slot forever.
		if age := m.now().Sub(plan.CreatedAt); age > m.cfg.PlanTimeout {
			m.log.Warn("recovery order never materialized, failing plan",
				"plan", plan.ID,
				"age", age.Round(time.Second).String())
			m.complete(ctx, plan, false, 0)
		}
	}
}

// complete finalizes a plan, records the episode and frees its tickets.
func (m *Manager) complete(ctx context.Context, plan *domain.RecoveryPlan, success bool, profit float64) {
	if success {
		plan.Status = domain.PlanSuccess
	} else {
		plan.Status = domain.PlanFailed
	}
	plan.CompletedAt = m.now()

	m.mu.Lock()
	delete(m.active, plan.ID)
	for _, ticket := range plan.Tickets {
		if m.covered[ticket] == plan.ID {
			delete(m.covered, ticket)
		}
	}
	metrics.RecoveriesActive.Set(float64(len(m.active)))
	m.mu.Unlock()

	m.record(ctx, plan, success, profit)
	m.log.Info("recovery completed",
		"plan", plan.ID,
		"strategy", string(plan.Strategy),
		"success", success,
		"profit", fmt.Sprintf("%.2f", profit))
	m.notify(ctx, *plan)
}

func (m *Manager) record(ctx context.Context, plan *domain.RecoveryPlan, success bool, profit float64) {
	outcome := "failed"
	if success {
		outcome = "success"
	}
	metrics.RecoveriesTotal.WithLabelValues(strings.ToLower(string(plan.Strategy)), outcome).Inc()

	m.history.Record(ctx, domain.RecoveryEpisode{
		PlanID:      plan.ID,
		Strategy:    plan.Strategy,
		Volume:      plan.Volume,
		TotalLoss:   plan.TotalLoss,
		Probability: plan.Probability,
		Success:     success,
		Profit:      profit,
		CompletedAt: plan.CompletedAt,
	})
}

// comment encodes the recovery metadata carried on the broker order.
func (m *Manager) comment(plan domain.RecoveryPlan) string {
	depth := 0
	for _, ticket := range plan.Tickets {
		if p, ok := m.store.Get(ticket); ok && p.RecoveryDepth > depth {
			depth = p.RecoveryDepth
		}
	}
	return domain.FormatComment([]string{"recovery"}, map[string]string{
		domain.MetaStrategy: strings.ToLower(string(plan.Strategy)),
		domain.MetaDepth:    strconv.Itoa(depth + 1),
	})
}

func (m *Manager) findClosed(ticket int64) (domain.Position, bool) {
	if ticket == 0 {
		return domain.Position{}, false
	}
	for _, p := range m.store.History() {
		if p.Ticket == ticket {
			return p, true
		}
	}
	return domain.Position{}, false
}

func (m *Manager) allTicketsGone(tickets []int64) bool {
	for _, ticket := range tickets {
		if _, ok := m.store.Get(ticket); ok {
			return false
		}
	}
	return true
}

func (m *Manager) notify(ctx context.Context, plan domain.RecoveryPlan) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.RecoveryEvent(ctx, plan); err != nil {
		m.log.Error("notify failed", "plan", plan.ID, "error", err)
	}
}
