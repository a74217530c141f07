package domain

import "time"

// DailySummary is one day's realized performance rollup.
type DailySummary struct {
	Date            time.Time // truncated to day, UTC
	ClosedCount     int
	WinCount        int
	LossCount       int
	GrossProfit     float64
	GrossLoss       float64
	NetProfit       float64
	RecoveryCount   int // recoveries completed that day
	RecoveryWins    int
	VolumeTraded    float64
	LargestDrawdown float64 // worst PeakLoss among the day's closed positions
}

// WinRate is the fraction of closed positions that ended profitable.
func (d DailySummary) WinRate() float64 {
	if d.ClosedCount == 0 {
		return 0
	}
	return float64(d.WinCount) / float64(d.ClosedCount)
}
