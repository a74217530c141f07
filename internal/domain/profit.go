package domain

import "time"

// ProfitMode selects how aggressively a position's gains are harvested.
type ProfitMode string

const (
	ModeScalping ProfitMode = "SCALPING"
	ModeSwing    ProfitMode = "SWING"
	ModeTrend    ProfitMode = "TREND"
	ModeRecovery ProfitMode = "RECOVERY"
	ModeNews     ProfitMode = "NEWS"
)

// PartialRule closes Fraction of the remaining volume once profit reaches
// Pips. Each rule fires at most once.
type PartialRule struct {
	Pips     float64
	Fraction float64
}

// ModeConfig is the target set associated with a profit mode.
type ModeConfig struct {
	TargetPips   float64
	TrailingPips float64
	Partials     []PartialRule
}

// ModeConfigs returns the per-mode targets. Callers get a fresh copy of the
// partial rules so consuming them never mutates the table.
func ModeConfigs(mode ProfitMode) ModeConfig {
	cfg, ok := profitModeTable[mode]
	if !ok {
		cfg = profitModeTable[ModeScalping]
	}
	partials := make([]PartialRule, len(cfg.Partials))
	copy(partials, cfg.Partials)
	cfg.Partials = partials
	return cfg
}

var profitModeTable = map[ProfitMode]ModeConfig{
	ModeScalping: {
		TargetPips:   10,
		TrailingPips: 5,
		Partials:     []PartialRule{{3, 0.3}, {6, 0.5}, {10, 1.0}},
	},
	ModeSwing: {
		TargetPips:   30,
		TrailingPips: 15,
		Partials:     []PartialRule{{10, 0.2}, {20, 0.4}, {30, 1.0}},
	},
	ModeTrend: {
		TargetPips:   50,
		TrailingPips: 25,
		Partials:     []PartialRule{{15, 0.2}, {30, 0.3}, {45, 0.5}},
	},
	ModeRecovery: {
		TargetPips:   8,
		TrailingPips: 4,
		Partials:     []PartialRule{{5, 0.5}, {8, 1.0}},
	},
	ModeNews: {
		TargetPips:   15,
		TrailingPips: 8,
		Partials:     []PartialRule{{8, 0.4}, {15, 1.0}},
	},
}

// ProfitTarget is the per-position profit state machine. One exists per open
// position at all times; the optimizer owns it exclusively.
type ProfitTarget struct {
	Ticket     int64
	Symbol     string
	Side       Side
	EntryPrice float64
	Price      float64

	Mode         ProfitMode
	TargetPips   float64
	TrailingPips float64
	Partials     []PartialRule // pending rules, ascending, consumed as they fire

	OriginalVolume  float64
	RemainingVolume float64
	ClosedVolume    float64

	PeakPips   float64
	IsTrailing bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CurrentPips is the target's profit in pips at the last observed price.
func (t *ProfitTarget) CurrentPips() float64 {
	return ProfitPips(t.Symbol, t.Side, t.EntryPrice, t.Price)
}

// Done reports whether no volume remains to manage.
func (t *ProfitTarget) Done() bool {
	return t.RemainingVolume <= 0
}
