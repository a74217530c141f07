package mt5

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/goldbot/internal/domain"
)

const (
	reconnectWait  = 2 * time.Second
	readDeadline   = 30 * time.Second
	pingInterval   = 10 * time.Second
	writeWaitLimit = 5 * time.Second
)

// TickStream mantiene el último tick por símbolo desde el websocket del
// bridge, reconectando solo mientras el contexto siga vivo.
type TickStream struct {
	url     string
	symbols []string
	log     *slog.Logger

	mu   sync.RWMutex
	last map[string]domain.Tick
}

// NewTickStream crea un stream suscrito a los símbolos dados.
func NewTickStream(url string, symbols []string, log *slog.Logger) *TickStream {
	return &TickStream{
		url:     url,
		symbols: symbols,
		log:     log,
		last:    make(map[string]domain.Tick),
	}
}

// Last devuelve el último tick conocido para el símbolo.
func (s *TickStream) Last(symbol string) (domain.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tick, ok := s.last[symbol]
	return tick, ok
}

// Run mantiene la conexión hasta que el contexto se cancele. Los errores de
// conexión solo se loguean; el Client cae a HTTP mientras tanto.
func (s *TickStream) Run(ctx context.Context) error {
	for {
		if err := s.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("tick stream disconnected", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectWait):
		}
	}
}

func (s *TickStream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	for _, symbol := range s.symbols {
		sub := map[string]string{"op": "subscribe", "symbol": symbol}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe %s: %w", symbol, err)
		}
	}
	s.log.Info("tick stream connected", "url", s.url, "symbols", fmt.Sprintf("%v", s.symbols))

	go s.keepAlive(ctx, conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var raw streamTick
		if err := json.Unmarshal(msg, &raw); err != nil {
			s.log.Debug("dropping malformed tick", "error", err)
			continue
		}
		if raw.Symbol == "" {
			continue
		}

		s.mu.Lock()
		s.last[raw.Symbol] = domain.Tick{
			Symbol: raw.Symbol,
			Bid:    raw.Bid,
			Ask:    raw.Ask,
			Time:   time.UnixMilli(raw.TimeMs).UTC(),
		}
		s.mu.Unlock()
	}
}

// keepAlive manda pings periódicos; la conexión muere sola si el bridge
// deja de responder.
func (s *TickStream) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWaitLimit)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				conn.Close()
				return
			}
		}
	}
}
