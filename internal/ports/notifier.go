package ports

import (
	"context"

	"github.com/alejandrodnm/goldbot/internal/domain"
)

// Notifier presenta el estado del portfolio y los eventos de recovery.
type Notifier interface {
	// PortfolioReport imprime el resumen de posiciones abiertas.
	PortfolioReport(ctx context.Context, summary domain.PortfolioSummary, positions []domain.Position) error

	// RecoveryEvent anuncia un cambio de estado en un plan de recovery.
	RecoveryEvent(ctx context.Context, plan domain.RecoveryPlan) error
}
