package recovery

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/goldbot/internal/application/tracker"
	"github.com/alejandrodnm/goldbot/internal/domain"
	"github.com/alejandrodnm/goldbot/internal/ports"
)

type fakeGateway struct {
	submits []ports.OrderRequest
	result  ports.OrderResult
	err     error
}

func (f *fakeGateway) Submit(_ context.Context, req ports.OrderRequest) (ports.OrderResult, error) {
	f.submits = append(f.submits, req)
	return f.result, f.err
}

func (f *fakeGateway) Close(_ context.Context, _ int64, _ float64) (ports.OrderResult, error) {
	return ports.OrderResult{Status: ports.OrderFilled}, nil
}

type fakeFeed struct{ positions []domain.BrokerPosition }

func (f *fakeFeed) OpenPositions(_ context.Context, _ string) ([]domain.BrokerPosition, error) {
	return f.positions, nil
}

func (f *fakeFeed) Tick(_ context.Context, _ string) (domain.Tick, error) {
	return domain.Tick{}, nil
}

func flaggedBroker(ticket int64, profit float64) domain.BrokerPosition {
	return domain.BrokerPosition{
		Ticket:    ticket,
		Symbol:    "XAUUSD",
		Side:      domain.SideBuy,
		Volume:    0.1,
		OpenPrice: 2000,
		Price:     1998,
		Profit:    profit,
	}
}

type managerFixture struct {
	manager *Manager
	gateway *fakeGateway
	feed    *fakeFeed
	tracker *tracker.Tracker
}

func newFixture(t *testing.T, cfg ManagerConfig) *managerFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	feed := &fakeFeed{}
	tr := tracker.New(feed, nil, log, tracker.Config{Symbol: "XAUUSD", LossThreshold: 100})

	gw := &fakeGateway{result: ports.OrderResult{Status: ports.OrderFilled, Ticket: 9000, ExecutedPrice: 1998}}
	h := NewHistory(nil, log)
	pl := NewPlanner(nil, h, log, PlannerConfig{})

	cfg.Symbol = "XAUUSD"
	m := NewManager(pl, gw, tr.Store(), h, nil, log, cfg)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pl.now = func() time.Time { return base }
	m.now = func() time.Time { return base }

	return &managerFixture{manager: m, gateway: gw, feed: feed, tracker: tr}
}

func (f *managerFixture) poll(t *testing.T) {
	t.Helper()
	require.NoError(t, f.tracker.Poll(context.Background()))
}

func TestEvaluate_BuildsAndExecutesPlanForFlaggedPositions(t *testing.T) {
	f := newFixture(t, ManagerConfig{})
	f.feed.positions = []domain.BrokerPosition{flaggedBroker(1, -150)}
	f.poll(t)

	f.manager.Evaluate(context.Background())

	require.Len(t, f.gateway.submits, 1)
	req := f.gateway.submits[0]
	assert.Equal(t, "XAUUSD", req.Symbol)
	assert.Equal(t, domain.SideSell, req.Side) // hedging opposes the buy
	assert.Contains(t, req.Comment, "recovery")
	assert.Contains(t, req.Comment, "strategy:hedging")
	assert.Contains(t, req.Comment, "depth:1")
	assert.Equal(t, 1, f.manager.ActiveCount())
}

func TestEvaluate_CoveredPositionsNotReplanned(t *testing.T) {
	f := newFixture(t, ManagerConfig{})
	f.feed.positions = []domain.BrokerPosition{flaggedBroker(1, -150)}
	f.poll(t)

	f.manager.Evaluate(context.Background())
	f.manager.Evaluate(context.Background())
	f.manager.Evaluate(context.Background())

	assert.Len(t, f.gateway.submits, 1)
}

func TestExecute_RefusedAtActiveLimit(t *testing.T) {
	f := newFixture(t, ManagerConfig{MaxConcurrent: 1})
	f.feed.positions = []domain.BrokerPosition{flaggedBroker(1, -150)}
	f.poll(t)
	f.manager.Evaluate(context.Background())
	require.Equal(t, 1, f.manager.ActiveCount())

	plan := domain.RecoveryPlan{ID: "extra", Symbol: "XAUUSD", Strategy: domain.StrategyAveraging, Side: domain.SideBuy, Volume: 0.1}
	err := f.manager.Execute(context.Background(), plan)
	assert.ErrorIs(t, err, ErrActiveLimit)
	assert.Len(t, f.gateway.submits, 1)
}

func TestExecute_RejectedPlanFailsAndIsNotRetried(t *testing.T) {
	f := newFixture(t, ManagerConfig{})
	f.gateway.result = ports.OrderResult{Status: ports.OrderRejected, Reason: "no money"}
	f.feed.positions = []domain.BrokerPosition{flaggedBroker(1, -150)}
	f.poll(t)

	f.manager.Evaluate(context.Background())
	assert.Equal(t, 0, f.manager.ActiveCount())
	assert.Equal(t, 1, f.manager.history.Count(domain.StrategyHedging))

	// the failed episode is recorded but the flagged position stays covered
	// by nothing, so the next cycle plans again
	f.manager.Evaluate(context.Background())
	assert.Len(t, f.gateway.submits, 2)
}

func TestSettle_PaperModeDrawsOutcome(t *testing.T) {
	f := newFixture(t, ManagerConfig{Paper: true})
	f.manager.rand = func() float64 { return 0.0 } // always below probability
	f.feed.positions = []domain.BrokerPosition{flaggedBroker(1, -150)}
	f.poll(t)

	f.manager.Evaluate(context.Background()) // plan + fill
	require.Equal(t, 1, f.manager.ActiveCount())

	f.manager.Evaluate(context.Background()) // settle draws success
	assert.Equal(t, 0, f.manager.ActiveCount())
	assert.Equal(t, 1, f.manager.history.Count(domain.StrategyHedging))
}

func TestSettle_LiveOutcomeFromClosedRecoveryPosition(t *testing.T) {
	f := newFixture(t, ManagerConfig{})
	f.feed.positions = []domain.BrokerPosition{flaggedBroker(1, -150)}
	f.poll(t)
	f.manager.Evaluate(context.Background())
	require.Equal(t, 1, f.manager.ActiveCount())

	// recovery position appears at the broker, then closes in profit
	rec := flaggedBroker(9000, 160)
	rec.Side = domain.SideSell
	f.feed.positions = []domain.BrokerPosition{flaggedBroker(1, -150), rec}
	f.poll(t)
	f.manager.Evaluate(context.Background())
	require.Equal(t, 1, f.manager.ActiveCount()) // still open, nothing settles

	f.feed.positions = []domain.BrokerPosition{flaggedBroker(1, -150)}
	f.poll(t)
	f.manager.Evaluate(context.Background())

	assert.Equal(t, 0, f.manager.ActiveCount())
	assert.Equal(t, 1, f.manager.history.Count(domain.StrategyHedging))
}

func TestSettle_ForceCompletesWhenCoveredPositionsVanish(t *testing.T) {
	f := newFixture(t, ManagerConfig{})
	f.feed.positions = []domain.BrokerPosition{flaggedBroker(1, -150)}
	f.poll(t)
	f.manager.Evaluate(context.Background())
	require.Equal(t, 1, f.manager.ActiveCount())

	// everything disappears without the recovery order ever showing up
	f.feed.positions = nil
	f.poll(t)
	f.manager.Evaluate(context.Background())

	assert.Equal(t, 0, f.manager.ActiveCount())
}

func TestPlanPending_AttemptBudgetStopsTheChain(t *testing.T) {
	f := newFixture(t, ManagerConfig{})

	// a third-generation recovery position that is itself losing
	deep := flaggedBroker(1, -150)
	deep.Comment = domain.FormatComment([]string{"recovery"}, map[string]string{
		domain.MetaStrategy: "hedging",
		domain.MetaDepth:    "3",
	})
	f.feed.positions = []domain.BrokerPosition{deep}
	f.poll(t)

	for i := 0; i < 5; i++ {
		f.manager.Evaluate(context.Background())
	}
	assert.Empty(t, f.gateway.submits)
	assert.Equal(t, 0, f.manager.ActiveCount())
}

func TestPlanPending_DepthBelowBudgetStillRecovers(t *testing.T) {
	f := newFixture(t, ManagerConfig{})

	shallow := flaggedBroker(1, -150)
	shallow.Comment = domain.FormatComment([]string{"recovery"}, map[string]string{
		domain.MetaDepth: "2",
	})
	f.feed.positions = []domain.BrokerPosition{shallow}
	f.poll(t)

	f.manager.Evaluate(context.Background())

	require.Len(t, f.gateway.submits, 1)
	assert.Contains(t, f.gateway.submits[0].Comment, "depth:3")
}

func TestSettle_TimesOutWhenRecoveryTicketNeverAppears(t *testing.T) {
	f := newFixture(t, ManagerConfig{})
	f.feed.positions = []domain.BrokerPosition{flaggedBroker(1, -150)}
	f.poll(t)
	f.manager.Evaluate(context.Background())
	require.Equal(t, 1, f.manager.ActiveCount())

	// the covered position stays open but ticket 9000 never shows up
	f.manager.now = func() time.Time {
		return time.Date(2026, 3, 1, 13, 0, 1, 0, time.UTC)
	}
	f.manager.settle(context.Background())

	assert.Equal(t, 0, f.manager.ActiveCount())
	assert.Equal(t, 1, f.manager.history.Count(domain.StrategyHedging))

	// the freed position is eligible for a fresh plan next cycle
	f.manager.Evaluate(context.Background())
	assert.Len(t, f.gateway.submits, 2)
}

func TestEvaluate_NoFlaggedPositionsNoOrders(t *testing.T) {
	f := newFixture(t, ManagerConfig{})
	f.feed.positions = []domain.BrokerPosition{flaggedBroker(1, -50)} // under threshold
	f.poll(t)

	f.manager.Evaluate(context.Background())
	assert.Empty(t, f.gateway.submits)
}
