package ports

import (
	"context"

	"github.com/alejandrodnm/goldbot/internal/domain"
)

// PlatformFeed obtiene el estado del broker: posiciones abiertas y precios.
type PlatformFeed interface {
	// OpenPositions devuelve el snapshot completo de posiciones abiertas
	// para el símbolo. El orden no está garantizado.
	OpenPositions(ctx context.Context, symbol string) ([]domain.BrokerPosition, error)

	// Tick devuelve el último precio bid/ask conocido para el símbolo.
	Tick(ctx context.Context, symbol string) (domain.Tick, error)
}
