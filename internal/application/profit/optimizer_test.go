package profit

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

type closeCall struct {
	ticket int64
	volume float64
}

type fakeGateway struct {
	closes []closeCall
	result ports.OrderResult
	err    error
}

func (f *fakeGateway) Submit(_ context.Context, _ ports.OrderRequest) (ports.OrderResult, error) {
	return ports.OrderResult{Status: ports.OrderFilled}, nil
}

func (f *fakeGateway) Close(_ context.Context, ticket int64, volume float64) (ports.OrderResult, error) {
	f.closes = append(f.closes, closeCall{ticket, volume})
	return f.result, f.err
}

type fakeFeed struct{ positions []domain.BrokerPosition }

func (f *fakeFeed) OpenPositions(_ context.Context, _ string) ([]domain.BrokerPosition, error) {
	return f.positions, nil
}

func (f *fakeFeed) Tick(_ context.Context, _ string) (domain.Tick, error) {
	return domain.Tick{}, nil
}

type fixture struct {
	optimizer *Optimizer
	gateway   *fakeGateway
	feed      *fakeFeed
	tracker   *tracker.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	feed := &fakeFeed{}
	tr := tracker.New(feed, nil, log, tracker.Config{Symbol: "XAUUSD"})
	gw := &fakeGateway{result: ports.OrderResult{Status: ports.OrderFilled}}

	o := New(tr.Store(), gw, log, Config{Symbol: "XAUUSD"})
	// midday keeps the session band out of the scalping/swing edge hours
	o.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }

	return &fixture{optimizer: o, gateway: gw, feed: feed, tracker: tr}
}

// atPips positions the price so a BUY from 2000 shows the given profit.
func atPips(ticket int64, volume, pips float64) domain.BrokerPosition {
	return domain.BrokerPosition{
		Ticket:    ticket,
		Symbol:    "XAUUSD",
		Side:      domain.SideBuy,
		Volume:    volume,
		OpenPrice: 2000,
		Price:     2000 + pips*0.1,
	}
}

func (f *fixture) cycle(t *testing.T, positions ...domain.BrokerPosition) {
	t.Helper()
	f.feed.positions = positions
	require.NoError(t, f.tracker.Poll(context.Background()))
	f.optimizer.Evaluate(context.Background())
}

func TestEvaluate_CreatesTargetOnFirstSight(t *testing.T) {
	f := newFixture(t)
	f.cycle(t, atPips(1, 0.5, 0))

	target, ok := f.optimizer.Target(1)
	require.True(t, ok)
	assert.Equal(t, domain.ModeScalping, target.Mode)
	assert.Equal(t, 10.0, target.TargetPips)
	assert.Equal(t, 0.5, target.RemainingVolume)
	assert.Len(t, target.Partials, 3)
}

func TestModeFromCommentTag(t *testing.T) {
	f := newFixture(t)
	p := atPips(1, 0.1, 0)
	p.Comment = "recovery|strategy:martingale|depth:1"
	f.cycle(t, p)

	target, ok := f.optimizer.Target(1)
	require.True(t, ok)
	assert.Equal(t, domain.ModeRecovery, target.Mode)
	assert.Equal(t, 8.0, target.TargetPips)
	assert.Equal(t, 4.0, target.TrailingPips)
}

func TestSessionMode(t *testing.T) {
	assert.Equal(t, domain.ModeScalping, sessionMode(23))
	assert.Equal(t, domain.ModeScalping, sessionMode(3))
	assert.Equal(t, domain.ModeScalping, sessionMode(8))
	assert.Equal(t, domain.ModeSwing, sessionMode(16))
	assert.Equal(t, domain.ModeTrend, sessionMode(20))
	assert.Equal(t, domain.ModeScalping, sessionMode(10))
}

func TestPartialExits_JumpFiresAllCrossedRules(t *testing.T) {
	f := newFixture(t)
	f.cycle(t, atPips(1, 1.0, 0))
	require.Empty(t, f.gateway.closes)

	// price jumps straight past every scalping rule
	f.cycle(t, atPips(1, 1.0, 12))

	require.Len(t, f.gateway.closes, 3)
	assert.InDelta(t, 0.30, f.gateway.closes[0].volume, 1e-9)
	assert.InDelta(t, 0.35, f.gateway.closes[1].volume, 1e-9)
	assert.InDelta(t, 0.35, f.gateway.closes[2].volume, 1e-9)

	_, ok := f.optimizer.Target(1)
	assert.False(t, ok)

	done := f.optimizer.Completed()
	require.Len(t, done, 1)
	assert.Equal(t, 0.0, done[0].RemainingVolume)
	assert.InDelta(t, 1.0, done[0].ClosedVolume, 1e-9)
}

func TestPartialExits_EachRuleFiresOnce(t *testing.T) {
	f := newFixture(t)
	f.cycle(t, atPips(1, 1.0, 0))

	f.cycle(t, atPips(1, 1.0, 4)) // crosses the 3-pip rule
	require.Len(t, f.gateway.closes, 1)

	// still above 3 pips but the rule is consumed
	f.cycle(t, atPips(1, 0.7, 4))
	f.cycle(t, atPips(1, 0.7, 4.5))
	assert.Len(t, f.gateway.closes, 1)

	f.cycle(t, atPips(1, 0.7, 6.5)) // next rule
	assert.Len(t, f.gateway.closes, 2)
}

func TestTrailing_LatchesAndFires(t *testing.T) {
	f := newFixture(t)
	p := atPips(1, 1.0, 0)
	p.Comment = "swing" // trailing 15, partials at 10/20/30
	f.cycle(t, p)

	// 16 pips: trailing arms, 10-pip partial fires
	p16 := atPips(1, 1.0, 16)
	p16.Comment = "swing"
	f.cycle(t, p16)
	target, ok := f.optimizer.Target(1)
	require.True(t, ok)
	assert.True(t, target.IsTrailing)
	require.Len(t, f.gateway.closes, 1)

	// retrace to 1 pip: peak 16 - 1 >= 15, rest closes
	p2 := atPips(1, 0.8, 1)
	p2.Comment = "swing"
	f.cycle(t, p2)

	require.Len(t, f.gateway.closes, 2)
	assert.InDelta(t, 0.8, f.gateway.closes[1].volume, 1e-9)
	_, ok = f.optimizer.Target(1)
	assert.False(t, ok)
}

func TestTrailing_NotArmedBelowThreshold(t *testing.T) {
	f := newFixture(t)
	f.cycle(t, atPips(1, 1.0, 0))

	f.cycle(t, atPips(1, 1.0, 4)) // below the 5-pip trailing arm
	target, ok := f.optimizer.Target(1)
	require.True(t, ok)
	assert.False(t, target.IsTrailing)

	// retrace to -10: no trailing close because it never armed
	f.cycle(t, atPips(1, 0.7, -10))
	assert.Len(t, f.gateway.closes, 1) // only the 3-pip partial
}

func TestFullTarget_ClosesEverything(t *testing.T) {
	f := newFixture(t)
	p := atPips(1, 0.2, 0)
	p.Comment = "trend" // target 50, partials 15/30/45 never sum to 1.0
	f.cycle(t, p)

	p50 := atPips(1, 0.2, 50)
	p50.Comment = "trend"
	f.cycle(t, p50)

	// three partials fire, then the absolute target closes the remainder
	require.Len(t, f.gateway.closes, 4)
	_, ok := f.optimizer.Target(1)
	assert.False(t, ok)
}

func TestForceComplete_WhenPositionDisappears(t *testing.T) {
	f := newFixture(t)
	f.cycle(t, atPips(1, 0.5, 2))
	_, ok := f.optimizer.Target(1)
	require.True(t, ok)

	f.cycle(t) // position gone

	_, ok = f.optimizer.Target(1)
	assert.False(t, ok)
	assert.Empty(t, f.gateway.closes)

	done := f.optimizer.Completed()
	require.Len(t, done, 1)
	assert.Equal(t, int64(1), done[0].Ticket)
}

func TestNoDoubleClose_StaleSnapshotAfterFullClose(t *testing.T) {
	f := newFixture(t)
	f.cycle(t, atPips(1, 0.5, 0))

	f.cycle(t, atPips(1, 0.5, 12)) // full close via partial chain
	closesAfter := len(f.gateway.closes)

	// broker snapshot still shows the ticket for a couple of cycles
	f.cycle(t, atPips(1, 0.5, 12))
	f.cycle(t, atPips(1, 0.5, 12))
	assert.Len(t, f.gateway.closes, closesAfter)

	// once it finally disappears and returns it would be a new position
	f.cycle(t)
	assert.Empty(t, f.optimizer.retired)
}

func TestRejectedCloseLeavesRuleInPlace(t *testing.T) {
	f := newFixture(t)
	f.cycle(t, atPips(1, 1.0, 0))

	f.gateway.result = ports.OrderResult{Status: ports.OrderRejected, Reason: "market closed"}
	f.cycle(t, atPips(1, 1.0, 4))
	require.Len(t, f.gateway.closes, 1)

	target, ok := f.optimizer.Target(1)
	require.True(t, ok)
	assert.Len(t, target.Partials, 3) // nothing consumed
	assert.Equal(t, 1.0, target.RemainingVolume)

	// broker recovers, the same rule fires on the next cycle
	f.gateway.result = ports.OrderResult{Status: ports.OrderFilled}
	f.cycle(t, atPips(1, 1.0, 4))
	assert.Len(t, f.gateway.closes, 2)
}

func TestExternalPartialCloseShrinksRemaining(t *testing.T) {
	f := newFixture(t)
	f.cycle(t, atPips(1, 1.0, 0))

	// someone closed half the position outside the bot
	f.cycle(t, atPips(1, 0.5, 1))

	target, ok := f.optimizer.Target(1)
	require.True(t, ok)
	assert.Equal(t, 0.5, target.RemainingVolume)
	assert.Equal(t, 1.0, target.OriginalVolume)
}
