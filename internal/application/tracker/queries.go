package tracker

import (
	"sort"
	"time"

	"github.com/alejandrodnm/goldbot/internal/domain"
)

// Losing returns open positions losing more than threshold, worst first.
func (t *Tracker) Losing(threshold float64) []domain.Position {
	var out []domain.Position
	for _, p := range t.store.Open() {
		if p.IsLosing(threshold) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Profit < out[j].Profit })
	return out
}

// Profitable returns open positions with net profit above threshold, best
// first. A zero threshold means any positive profit.
func (t *Tracker) Profitable(threshold float64) []domain.Position {
	var out []domain.Position
	for _, p := range t.store.Open() {
		if p.Profit > threshold && p.Profit > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Profit > out[j].Profit })
	return out
}

// ByStrategy returns open positions whose entry strategy matches label.
func (t *Tracker) ByStrategy(label string) []domain.Position {
	var out []domain.Position
	for _, p := range t.store.Open() {
		if p.Strategy == label {
			out = append(out, p)
		}
	}
	return out
}

// ByTag returns open positions carrying the given comment tag.
func (t *Tracker) ByTag(tag string) []domain.Position {
	var out []domain.Position
	for _, p := range t.store.Open() {
		if p.HasTag(tag) {
			out = append(out, p)
		}
	}
	return out
}

// Summary aggregates the current open set into a portfolio snapshot.
func (t *Tracker) Summary() domain.PortfolioSummary {
	open := t.store.Open()
	now := t.now()

	s := domain.PortfolioSummary{
		Symbol:        t.cfg.Symbol,
		PositionCount: len(open),
		UpdatedAt:     now,
	}

	var totalHold time.Duration
	for _, p := range open {
		s.TotalProfit += p.Profit
		totalHold += p.HoldingTime(now)

		switch {
		case p.Profit > 0:
			s.ProfitableCount++
			if p.Profit > s.LargestProfit {
				s.LargestProfit = p.Profit
			}
		case p.Profit < 0:
			s.LosingCount++
			if p.Profit < s.LargestLoss {
				s.LargestLoss = p.Profit
			}
		}

		if p.Side == domain.SideBuy {
			s.BuyVolume += p.Volume
		} else {
			s.SellVolume += p.Volume
		}
	}

	s.NetVolume = s.BuyVolume - s.SellVolume
	if len(open) > 0 {
		s.MeanHoldingTime = totalHold / time.Duration(len(open))
	}
	return s
}
