package mt5

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/goldbot/internal/ports"
)

// fillingOrder es el orden de prueba cuando el broker no soporta el modo.
var fillingOrder = []string{"IOC", "FOK", "RETURN"}

// Gateway implementa ports.OrderGateway sobre el bridge. Cada llamada es
// atómica: un rechazo de negocio nunca se reintenta.
type Gateway struct {
	client *Client
	cache  ports.GatewayCache // nil deshabilita la persistencia
	log    *slog.Logger

	mu      sync.Mutex
	filling map[string]string // symbol -> último filling aceptado
}

// NewGateway crea el gateway. cache puede ser nil.
func NewGateway(client *Client, cache ports.GatewayCache, log *slog.Logger) *Gateway {
	return &Gateway{
		client:  client,
		cache:   cache,
		log:     log,
		filling: make(map[string]string),
	}
}

// Submit envía una orden probando los filling modes en orden hasta que el
// broker acepte uno. El modo aceptado se recuerda por símbolo.
func (g *Gateway) Submit(ctx context.Context, req ports.OrderRequest) (ports.OrderResult, error) {
	raw := orderRequest{
		Symbol:  req.Symbol,
		Type:    string(req.Side),
		Volume:  req.Volume,
		Price:   req.Price,
		Comment: req.Comment,
	}

	for _, filling := range g.fillingCandidates(ctx, req.Symbol) {
		raw.Filling = filling

		resp, err := g.client.sendOrder(ctx, raw)
		if err != nil {
			// Transporte caído: el estado de la orden es desconocido.
			return ports.OrderResult{Status: ports.OrderError, Reason: err.Error()},
				fmt.Errorf("mt5.Submit: %w", err)
		}

		if resp.Retcode == retcodeInvalidFilling {
			g.log.Debug("filling mode refused, trying next",
				"symbol", req.Symbol,
				"filling", filling)
			continue
		}

		result := g.translate(resp)
		if result.Status == ports.OrderFilled {
			g.rememberFilling(ctx, req.Symbol, filling)
		}
		return result, nil
	}

	return ports.OrderResult{
		Status: ports.OrderRejected,
		Reason: "no filling mode accepted",
	}, nil
}

// Close cierra volume lotes de una posición a mercado.
func (g *Gateway) Close(ctx context.Context, ticket int64, volume float64) (ports.OrderResult, error) {
	resp, err := g.client.closeOrder(ctx, orderRequest{Ticket: ticket, Volume: volume})
	if err != nil {
		return ports.OrderResult{Status: ports.OrderError, Reason: err.Error()},
			fmt.Errorf("mt5.Close: %w", err)
	}
	return g.translate(resp), nil
}

// translate convierte la respuesta del trade server a un OrderResult tipado.
func (g *Gateway) translate(resp orderResponse) ports.OrderResult {
	switch resp.Retcode {
	case retcodeDone:
		return ports.OrderResult{
			Status:        ports.OrderFilled,
			Ticket:        resp.Order,
			ExecutedPrice: resp.Price,
		}
	case retcodeNoMoney, retcodeMarketClosed, retcodeInvalidVolume:
		return ports.OrderResult{
			Status: ports.OrderRejected,
			Reason: retcodeReason(resp.Retcode),
		}
	case retcodeRequote:
		return ports.OrderResult{
			Status: ports.OrderError,
			Reason: retcodeReason(resp.Retcode),
		}
	default:
		return ports.OrderResult{
			Status: ports.OrderError,
			Reason: fmt.Sprintf("%s (%d): %s", retcodeReason(resp.Retcode), resp.Retcode, resp.Comment),
		}
	}
}

// fillingCandidates pone el último modo aceptado al frente de la lista.
func (g *Gateway) fillingCandidates(ctx context.Context, symbol string) []string {
	g.mu.Lock()
	known := g.filling[symbol]
	g.mu.Unlock()

	if known == "" && g.cache != nil {
		if mode, err := g.cache.LoadFillingMode(ctx, symbol); err == nil && mode != "" {
			known = mode
		}
	}
	if known == "" {
		return fillingOrder
	}

	out := []string{known}
	for _, f := range fillingOrder {
		if f != known {
			out = append(out, f)
		}
	}
	return out
}

func (g *Gateway) rememberFilling(ctx context.Context, symbol, filling string) {
	g.mu.Lock()
	changed := g.filling[symbol] != filling
	g.filling[symbol] = filling
	g.mu.Unlock()

	if !changed || g.cache == nil {
		return
	}
	if err := g.cache.SaveFillingMode(ctx, symbol, filling); err != nil {
		g.log.Error("persist filling mode failed", "symbol", symbol, "error", err)
	}
}
