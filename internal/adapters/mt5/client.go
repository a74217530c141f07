// Package mt5 talks to an MT5 terminal through its HTTP/websocket bridge.
package mt5

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/goldbot/internal/domain"
)

const (
	// El bridge corre pegado al terminal; los límites protegen al terminal,
	// no a la red.
	quoteRatePerSec = 20
	tradeRatePerSec = 5

	maxRetries    = 3
	baseRetryWait = 250 * time.Millisecond

	tickFreshness = 2 * time.Second
)

// Client es el HTTP client del bridge con rate limiting y retries.
// Implementa ports.PlatformFeed.
type Client struct {
	http         *http.Client
	base         string
	quoteLimiter *rate.Limiter
	tradeLimiter *rate.Limiter

	stream *TickStream // nil = solo HTTP polling
}

// NewClient crea un Client contra el base URL del bridge.
func NewClient(base string) *Client {
	return &Client{
		http:         &http.Client{Timeout: 5 * time.Second},
		base:         base,
		quoteLimiter: rate.NewLimiter(quoteRatePerSec, 5),
		tradeLimiter: rate.NewLimiter(tradeRatePerSec, 2),
	}
}

// UseStream conecta el hot path de ticks al websocket del bridge.
// Tick devuelve el último tick del stream mientras esté fresco y cae a
// HTTP cuando no lo está.
func (c *Client) UseStream(s *TickStream) {
	c.stream = s
}

// OpenPositions devuelve el snapshot de posiciones abiertas del terminal.
func (c *Client) OpenPositions(ctx context.Context, symbol string) ([]domain.BrokerPosition, error) {
	var resp positionsResponse
	u := c.base + "/positions?symbol=" + url.QueryEscape(symbol)
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("mt5.OpenPositions: %w", err)
	}
	return mapPositions(resp.Positions), nil
}

// Tick devuelve el último precio para el símbolo.
func (c *Client) Tick(ctx context.Context, symbol string) (domain.Tick, error) {
	if c.stream != nil {
		if tick, ok := c.stream.Last(symbol); ok && time.Since(tick.Time) < tickFreshness {
			return tick, nil
		}
	}

	var resp rawTick
	u := c.base + "/tick?symbol=" + url.QueryEscape(symbol)
	if err := c.get(ctx, u, &resp); err != nil {
		return domain.Tick{}, fmt.Errorf("mt5.Tick: %w", err)
	}
	return mapTick(resp), nil
}

// sendOrder envía POST /orders. Sin retries: reintentar una orden que pudo
// haberse ejecutado duplica posiciones.
func (c *Client) sendOrder(ctx context.Context, req orderRequest) (orderResponse, error) {
	return c.trade(ctx, c.base+"/orders", req)
}

// closeOrder envía POST /close. Igual que sendOrder, un solo intento.
func (c *Client) closeOrder(ctx context.Context, req orderRequest) (orderResponse, error) {
	return c.trade(ctx, c.base+"/close", req)
}

func (c *Client) trade(ctx context.Context, u string, body orderRequest) (orderResponse, error) {
	if err := c.tradeLimiter.Wait(ctx); err != nil {
		return orderResponse{}, fmt.Errorf("rate limiter: %w", err)
	}

	b, err := json.Marshal(body)
	if err != nil {
		return orderResponse{}, fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return orderResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return orderResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return orderResponse{}, fmt.Errorf("bridge error %d: %s", resp.StatusCode, string(msg))
	}

	var out orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return orderResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// get hace un GET con rate limiting y retries con backoff.
func (c *Client) get(ctx context.Context, u string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.quoteLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("bridge error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			msg, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(msg))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
