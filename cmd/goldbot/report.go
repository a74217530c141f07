package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/goldbot/config"
	"github.com/alejandrodnm/goldbot/internal/adapters/storage"
	"github.com/alejandrodnm/goldbot/internal/domain"
)

const reportWindow = 30 * 24 * time.Hour

// runReport recalcula los rollups diarios desde las posiciones cerradas y
// los imprime junto con los últimos episodios de recovery.
func runReport(ctx context.Context, cfg *config.Config) error {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	since := time.Now().UTC().Add(-reportWindow)
	closed, err := store.ClosedPositionsSince(ctx, since)
	if err != nil {
		return err
	}
	episodes, err := store.RecentEpisodes(ctx, 20)
	if err != nil {
		return err
	}

	dailies := rollup(closed, episodes)
	for _, d := range dailies {
		if err := store.SaveDaily(ctx, d); err != nil {
			return err
		}
	}

	printDailies(dailies)
	printEpisodes(episodes)
	return nil
}

// rollup agrupa las posiciones cerradas y los episodios por día UTC.
func rollup(closed []domain.Position, episodes []domain.RecoveryEpisode) []domain.DailySummary {
	byDay := make(map[string]*domain.DailySummary)
	var order []string

	day := func(ts time.Time) *domain.DailySummary {
		key := ts.UTC().Format("2006-01-02")
		d, ok := byDay[key]
		if !ok {
			date, _ := time.Parse("2006-01-02", key)
			d = &domain.DailySummary{Date: date}
			byDay[key] = d
			order = append(order, key)
		}
		return d
	}

	for _, p := range closed {
		d := day(p.CloseTime)
		d.ClosedCount++
		d.VolumeTraded += p.Volume
		d.NetProfit += p.Profit
		if p.Profit >= 0 {
			d.WinCount++
			d.GrossProfit += p.Profit
		} else {
			d.LossCount++
			d.GrossLoss += -p.Profit
		}
		if p.PeakLoss < d.LargestDrawdown {
			d.LargestDrawdown = p.PeakLoss
		}
	}

	for _, ep := range episodes {
		d := day(ep.CompletedAt)
		d.RecoveryCount++
		if ep.Success {
			d.RecoveryWins++
		}
	}

	out := make([]domain.DailySummary, 0, len(order))
	for _, key := range order {
		out = append(out, *byDay[key])
	}
	return out
}

func printDailies(dailies []domain.DailySummary) {
	if len(dailies) == 0 {
		fmt.Println("no closed positions in the report window")
		return
	}

	fmt.Printf("\nDaily performance (last %d days)\n", int(reportWindow.Hours()/24))
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Day", "Closed", "W/L", "Win%", "Net P&L", "Volume", "Recoveries", "Max DD")

	for _, d := range dailies {
		table.Append(
			d.Date.Format("2006-01-02"),
			fmt.Sprintf("%d", d.ClosedCount),
			fmt.Sprintf("%d/%d", d.WinCount, d.LossCount),
			fmt.Sprintf("%.0f%%", d.WinRate()*100),
			fmt.Sprintf("$%.2f", d.NetProfit),
			fmt.Sprintf("%.2f", d.VolumeTraded),
			fmt.Sprintf("%d/%d", d.RecoveryWins, d.RecoveryCount),
			fmt.Sprintf("$%.2f", d.LargestDrawdown),
		)
	}
	table.Render()
}

func printEpisodes(episodes []domain.RecoveryEpisode) {
	if len(episodes) == 0 {
		return
	}

	fmt.Println("\nRecent recoveries")
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("When", "Strategy", "Lots", "Loss", "Est%", "Outcome", "Profit")

	for _, ep := range episodes {
		outcome := "FAILED"
		if ep.Success {
			outcome = "SUCCESS"
		}
		table.Append(
			ep.CompletedAt.Format("01-02 15:04"),
			string(ep.Strategy),
			fmt.Sprintf("%.2f", ep.Volume),
			fmt.Sprintf("$%.2f", ep.TotalLoss),
			fmt.Sprintf("%.0f", ep.Probability),
			outcome,
			fmt.Sprintf("$%.2f", ep.Profit),
		)
	}
	table.Render()
}
