package domain

import "time"

// StrategyKind identifies a recovery strategy.
type StrategyKind string

const (
	StrategyNone       StrategyKind = ""
	StrategyAveraging  StrategyKind = "AVERAGING"
	StrategyGrid       StrategyKind = "GRID"
	StrategyMartingale StrategyKind = "MARTINGALE"
	StrategyHedging    StrategyKind = "HEDGING"
	StrategySmart      StrategyKind = "SMART" // partial hedge
)

// PlanStatus is the lifecycle of a recovery plan.
type PlanStatus string

const (
	PlanWaiting PlanStatus = "WAITING"
	PlanActive  PlanStatus = "ACTIVE"
	PlanSuccess PlanStatus = "SUCCESS"
	PlanFailed  PlanStatus = "FAILED"
)

// RecoveryPlan is the decision artifact produced by the planner. All fields
// are fixed at build time; only Status and the outcome bookkeeping move.
type RecoveryPlan struct {
	ID        string
	Symbol    string
	Strategy  StrategyKind
	Tickets   []int64 // losing positions the plan addresses
	Side      Side
	Volume    float64
	Price     float64 // computed entry, 0 = at market
	TotalLoss float64 // abs aggregate loss at build time

	MaxAttempts int
	Probability float64 // estimated success probability, clamped [10,95]

	Status    PlanStatus
	CreatedAt time.Time

	// Filled in when the gateway confirms the recovery order.
	OrderTicket   int64
	ExecutedPrice float64
	CompletedAt   time.Time
}

// Terminal reports whether the plan has reached SUCCESS or FAILED.
func (p *RecoveryPlan) Terminal() bool {
	return p.Status == PlanSuccess || p.Status == PlanFailed
}

// RecoveryEpisode is one finished recovery, kept in the rolling history that
// feeds future probability estimates.
type RecoveryEpisode struct {
	PlanID      string
	Strategy    StrategyKind
	Volume      float64
	TotalLoss   float64
	Probability float64
	Success     bool
	Profit      float64 // realized result of the recovery order, if known
	CompletedAt time.Time
}
