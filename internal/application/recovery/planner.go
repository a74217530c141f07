// Package recovery decides how to rescue losing positions and drives the
// resulting orders to completion.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/goldbot/internal/domain"
	"github.com/alejandrodnm/goldbot/internal/ports"
)

const (
	martingaleMultiplier = 2.0
	smartHedgeFraction   = 0.7
	lotSizeThreshold     = 0.5
	minGridSpacingPips   = 5.0

	probFloor = 10.0
	probCeil  = 95.0
)

// PlannerConfig tunes plan construction.
type PlannerConfig struct {
	MaxAttempts int // attempt budget written into each plan
}

// Planner turns a losing-position set into a sized, priced recovery plan.
type Planner struct {
	market  ports.MarketContext // nil disables the volatility adjustment
	history *History
	log     *slog.Logger
	cfg     PlannerConfig
	now     func() time.Time
}

// NewPlanner creates a planner. market may be nil.
func NewPlanner(market ports.MarketContext, history *History, log *slog.Logger, cfg PlannerConfig) *Planner {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Planner{
		market:  market,
		history: history,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SelectStrategy elige la estrategia con un decision ladder determinista
// sobre (pérdida total, número de posiciones). Gana la primera banda que
// matchea; si ninguna condición de count se cumple, averaging.
func (pl *Planner) SelectStrategy(losing []domain.Position) domain.StrategyKind {
	if len(losing) == 0 {
		return domain.StrategyNone
	}

	loss := totalLoss(losing)
	count := len(losing)

	switch {
	case loss < 10:
		return domain.StrategyAveraging
	case loss < 50 && count > 2:
		return domain.StrategyGrid
	case loss >= 50 && loss < 100 && count <= 3:
		return domain.StrategyMartingale
	case loss >= 100 && loss < 200:
		return domain.StrategyHedging
	case loss >= 200:
		return domain.StrategySmart
	default:
		return domain.StrategyAveraging
	}
}

// BuildPlan computes sizing, entry and success probability for a strategy.
// The current market price is taken from the worst position's last quote.
func (pl *Planner) BuildPlan(ctx context.Context, strategy domain.StrategyKind, losing []domain.Position) (domain.RecoveryPlan, error) {
	if len(losing) == 0 {
		return domain.RecoveryPlan{}, fmt.Errorf("recovery.BuildPlan: no losing positions")
	}
	if strategy == domain.StrategyNone {
		return domain.RecoveryPlan{}, fmt.Errorf("recovery.BuildPlan: no strategy selected")
	}

	worst := worstPosition(losing)
	loss := totalLoss(losing)

	plan := domain.RecoveryPlan{
		ID:          uuid.NewString(),
		Symbol:      worst.Symbol,
		Strategy:    strategy,
		Tickets:     tickets(losing),
		TotalLoss:   loss,
		MaxAttempts: pl.cfg.MaxAttempts,
		Status:      domain.PlanWaiting,
		CreatedAt:   pl.now(),
	}

	pip := domain.PipSize(worst.Symbol)

	switch strategy {
	case domain.StrategyAveraging:
		// Re-entry halfway between the original entry and the current
		// price, same side, same lot.
		plan.Side = worst.Side
		plan.Volume = worst.Volume
		plan.Price = (worst.OpenPrice + worst.Price) / 2

	case domain.StrategyMartingale:
		plan.Side = worst.Side.Opposite()
		plan.Volume = round2(worst.Volume * martingaleMultiplier)
		breakEvenPips := loss / (plan.Volume * domain.PipValuePerLot)
		plan.Price = offsetPrice(worst.Price, plan.Side, breakEvenPips*pip)

	case domain.StrategyGrid:
		plan.Side = minorityVolumeSide(losing)
		plan.Volume = round2(avgVolume(losing) / 2)
		spacingPips := priceRangePips(losing, pip)
		if spacingPips < minGridSpacingPips {
			spacingPips = minGridSpacingPips
		}
		plan.Price = offsetPrice(worst.Price, plan.Side, spacingPips*pip)

	case domain.StrategyHedging, domain.StrategySmart:
		long, short := volumeBySide(losing)
		imbalance := math.Abs(long - short)
		if long >= short {
			plan.Side = domain.SideSell
		} else {
			plan.Side = domain.SideBuy
		}
		if strategy == domain.StrategySmart {
			imbalance *= smartHedgeFraction
		}
		plan.Volume = round2(imbalance)
		plan.Price = 0 // at market
	}

	if plan.Volume <= 0 {
		return domain.RecoveryPlan{}, fmt.Errorf("recovery.BuildPlan: computed zero volume for %s", strategy)
	}

	plan.Probability = pl.probability(ctx, plan)

	pl.log.Info("recovery plan built",
		"plan", plan.ID,
		"strategy", string(plan.Strategy),
		"side", string(plan.Side),
		"volume", fmt.Sprintf("%.2f", plan.Volume),
		"price", fmt.Sprintf("%.2f", plan.Price),
		"total_loss", fmt.Sprintf("%.2f", plan.TotalLoss),
		"probability", fmt.Sprintf("%.0f", plan.Probability))

	return plan, nil
}

// probability estimates the plan's success chance on a 10..95 scale.
func (pl *Planner) probability(ctx context.Context, plan domain.RecoveryPlan) float64 {
	prob := 70.0

	switch plan.Strategy {
	case domain.StrategyAveraging:
		prob += 10
	case domain.StrategyGrid:
		prob += 5
	case domain.StrategyMartingale:
		prob -= 5
	case domain.StrategyHedging:
		prob += 15
	case domain.StrategySmart:
		prob += 20
	}

	if plan.Volume > lotSizeThreshold {
		prob -= 10 * (plan.Volume - lotSizeThreshold) / 0.1
	}
	if plan.MaxAttempts > 3 {
		prob -= 5 * float64(plan.MaxAttempts-3)
	}

	if pl.market != nil {
		vol, err := pl.market.Volatility(ctx, plan.Symbol)
		switch {
		case err != nil:
			pl.log.Debug("volatility unavailable", "error", err)
		case vol >= 0.7:
			prob -= 15
		case vol <= 0.3:
			prob += 15
		}
	}

	if pl.history != nil {
		prob += (pl.history.WeightFor(plan.Strategy) - 0.5) * 20
	}

	return math.Min(probCeil, math.Max(probFloor, prob))
}

func totalLoss(losing []domain.Position) float64 {
	var sum float64
	for _, p := range losing {
		if p.Profit < 0 {
			sum -= p.Profit
		}
	}
	return sum
}

func worstPosition(losing []domain.Position) domain.Position {
	worst := losing[0]
	for _, p := range losing[1:] {
		if p.Profit < worst.Profit {
			worst = p
		}
	}
	return worst
}

func tickets(positions []domain.Position) []int64 {
	out := make([]int64, len(positions))
	for i, p := range positions {
		out[i] = p.Ticket
	}
	return out
}

func avgVolume(positions []domain.Position) float64 {
	var sum float64
	for _, p := range positions {
		sum += p.Volume
	}
	return sum / float64(len(positions))
}

func volumeBySide(positions []domain.Position) (long, short float64) {
	for _, p := range positions {
		if p.Side == domain.SideBuy {
			long += p.Volume
		} else {
			short += p.Volume
		}
	}
	return long, short
}

// minorityVolumeSide returns the side opposing whichever side holds the
// majority of the losing volume.
func minorityVolumeSide(positions []domain.Position) domain.Side {
	long, short := volumeBySide(positions)
	if long >= short {
		return domain.SideSell
	}
	return domain.SideBuy
}

// priceRangePips is the span of the losing positions' entries in pips.
func priceRangePips(positions []domain.Position, pip float64) float64 {
	lo, hi := positions[0].OpenPrice, positions[0].OpenPrice
	for _, p := range positions[1:] {
		if p.OpenPrice < lo {
			lo = p.OpenPrice
		}
		if p.OpenPrice > hi {
			hi = p.OpenPrice
		}
	}
	return (hi - lo) / pip
}

// offsetPrice moves price into the new order's favor by delta.
func offsetPrice(price float64, side domain.Side, delta float64) float64 {
	if side == domain.SideBuy {
		return price - delta
	}
	return price + delta
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
