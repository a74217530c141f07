package domain

import "time"

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionStatus represents the lifecycle of a tracked position.
type PositionStatus string

const (
	StatusOpen            PositionStatus = "OPEN"
	StatusRecoveryPending PositionStatus = "RECOVERY_PENDING"
	StatusClosed          PositionStatus = "CLOSED"
)

// TagRecoveryFlagged marks a position whose loss event has already been
// emitted. The flag is what makes the RECOVERY_PENDING transition idempotent.
const TagRecoveryFlagged = "recovery_flagged"

// BrokerPosition is one entry of the platform's open-position snapshot,
// exactly as the feed reports it.
type BrokerPosition struct {
	Ticket     int64
	Symbol     string
	Side       Side
	Volume     float64
	OpenPrice  float64
	Price      float64 // current market price
	Profit     float64 // running P&L excluding swap/commission
	Swap       float64
	Commission float64
	OpenTime   time.Time
	Comment    string
}

// NetProfit is the running P&L including swap and commission.
func (bp BrokerPosition) NetProfit() float64 {
	return bp.Profit + bp.Swap + bp.Commission
}

// Tick is a single bid/ask quote.
type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// Mid returns the quote midpoint.
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// Position is a live or closed trade owned by the tracker. Exactly one
// Position exists per broker ticket; everything outside the tracker works
// on copies.
type Position struct {
	Ticket     int64
	Symbol     string
	Side       Side
	Volume     float64
	OpenPrice  float64
	Price      float64
	Profit     float64 // net of swap and commission
	Swap       float64
	Commission float64
	OpenTime   time.Time
	CloseTime  time.Time // zero while open

	PeakProfit float64 // highest net profit observed
	PeakLoss   float64 // lowest net profit observed (<= 0)

	Tags          map[string]bool
	Meta          map[string]string
	Strategy      string // entry-strategy label from the order comment
	RecoveryDepth int    // 0 = original entry

	Status PositionStatus
}

// HasTag reports whether the position carries the given tag.
func (p *Position) HasTag(tag string) bool {
	return p.Tags[tag]
}

// IsLosing reports whether the position's net profit is below -threshold.
func (p *Position) IsLosing(threshold float64) bool {
	return p.Profit < -threshold
}

// Pips is the current profit expressed in pips, sign-adjusted for side.
func (p *Position) Pips() float64 {
	return ProfitPips(p.Symbol, p.Side, p.OpenPrice, p.Price)
}

// AdversePips is how far price has moved against the entry, in pips.
// Zero when the position is in profit.
func (p *Position) AdversePips() float64 {
	if pips := p.Pips(); pips < 0 {
		return -pips
	}
	return 0
}

// HoldingTime is how long the position has been (or was) open.
func (p *Position) HoldingTime(now time.Time) time.Duration {
	if !p.CloseTime.IsZero() {
		return p.CloseTime.Sub(p.OpenTime)
	}
	return now.Sub(p.OpenTime)
}

// Clone returns a deep copy safe to hand outside the tracker.
func (p *Position) Clone() Position {
	cp := *p
	cp.Tags = make(map[string]bool, len(p.Tags))
	for k, v := range p.Tags {
		cp.Tags[k] = v
	}
	cp.Meta = make(map[string]string, len(p.Meta))
	for k, v := range p.Meta {
		cp.Meta[k] = v
	}
	return cp
}

// PortfolioSummary aggregates the current open position set.
type PortfolioSummary struct {
	Symbol          string
	PositionCount   int
	ProfitableCount int
	LosingCount     int
	BuyVolume       float64
	SellVolume      float64
	NetVolume       float64 // buy minus sell
	TotalProfit     float64
	LargestProfit   float64
	LargestLoss     float64
	MeanHoldingTime time.Duration
	UpdatedAt       time.Time
}
