// Package notify presenta el estado del bot por consola.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/goldbot/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool // tabla completa vs una línea por ciclo
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// PortfolioReport imprime el resumen del portfolio en el modo configurado.
func (c *Console) PortfolioReport(_ context.Context, s domain.PortfolioSummary, positions []domain.Position) error {
	if c.table {
		c.printFull(s, positions)
	} else {
		c.printCompact(s)
	}
	return nil
}

// RecoveryEvent anuncia un cambio de estado en un plan.
func (c *Console) RecoveryEvent(_ context.Context, plan domain.RecoveryPlan) error {
	now := time.Now().Format("15:04:05")
	switch plan.Status {
	case domain.PlanActive:
		fmt.Fprintf(c.out, "[%s] RECOVERY %s %s %.2f lots %s (loss $%.2f, p=%.0f%%)\n",
			now, strings.ToLower(string(plan.Strategy)), plan.Side, plan.Volume,
			plan.Symbol, plan.TotalLoss, plan.Probability)
	case domain.PlanSuccess:
		fmt.Fprintf(c.out, "[%s] RECOVERY %s SUCCESS (covered $%.2f)\n",
			now, strings.ToLower(string(plan.Strategy)), plan.TotalLoss)
	case domain.PlanFailed:
		fmt.Fprintf(c.out, "[%s] RECOVERY %s FAILED\n",
			now, strings.ToLower(string(plan.Strategy)))
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(s domain.PortfolioSummary) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "[%s] %s pos:%d (+%d/-%d) net:%.2f lots pnl:$%.2f\n",
		now, s.Symbol, s.PositionCount, s.ProfitableCount, s.LosingCount,
		s.NetVolume, s.TotalProfit)
}

// printFull imprime la tabla de posiciones con el resumen.
func (c *Console) printFull(s domain.PortfolioSummary, positions []domain.Position) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] %s — %d positions, pnl $%.2f\n",
		now, s.Symbol, s.PositionCount, s.TotalProfit)

	if len(positions) == 0 {
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Ticket", "Side", "Lots", "Entry", "Price", "Pips", "P&L", "Status", "Strategy")

	for _, p := range positions {
		strategy := p.Strategy
		if p.RecoveryDepth > 0 {
			strategy = fmt.Sprintf("%s (d%d)", strategy, p.RecoveryDepth)
		}
		table.Append(
			fmt.Sprintf("%d", p.Ticket),
			string(p.Side),
			fmt.Sprintf("%.2f", p.Volume),
			fmt.Sprintf("%.2f", p.OpenPrice),
			fmt.Sprintf("%.2f", p.Price),
			fmt.Sprintf("%.1f", p.Pips()),
			fmt.Sprintf("$%.2f", p.Profit),
			string(p.Status),
			strategy,
		)
	}

	table.Render()

	fmt.Fprintf(c.out, "  buy %.2f / sell %.2f lots | worst $%.2f best $%.2f | avg hold %s\n",
		s.BuyVolume, s.SellVolume, s.LargestLoss, s.LargestProfit,
		s.MeanHoldingTime.Round(time.Second))
}
