package ports

import "context"

// MarketContext aporta señales de mercado que no salen del feed de posiciones.
type MarketContext interface {
	// Volatility devuelve un score normalizado [0,1] para el símbolo.
	// 0.5 es el régimen neutro; >0.7 se considera alta volatilidad.
	Volatility(ctx context.Context, symbol string) (float64, error)
}
