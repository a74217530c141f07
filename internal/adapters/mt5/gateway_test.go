package mt5

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/goldbot/internal/domain"
	"github.com/alejandrodnm/goldbot/internal/ports"
)

// bridgeStub simula el endpoint de órdenes del bridge, contestando según
// el filling mode recibido.
type bridgeStub struct {
	t        *testing.T
	accepted string // filling mode que el broker acepta
	retcode  int    // respuesta cuando el filling es aceptado
	requests []orderRequest
}

func (b *bridgeStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req orderRequest
		require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
		b.requests = append(b.requests, req)

		resp := orderResponse{Retcode: retcodeInvalidFilling}
		if req.Filling == b.accepted {
			resp = orderResponse{Retcode: b.retcode, Order: 777, Price: 2001.5}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/close", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req orderRequest
		require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
		b.requests = append(b.requests, req)
		_ = json.NewEncoder(w).Encode(orderResponse{Retcode: b.retcode, Order: req.Ticket, Price: 2001.5})
	})
	return mux
}

type memCache struct {
	mu    sync.Mutex
	modes map[string]string
}

func (c *memCache) LoadFillingMode(_ context.Context, symbol string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modes[symbol], nil
}

func (c *memCache) SaveFillingMode(_ context.Context, symbol, mode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.modes == nil {
		c.modes = make(map[string]string)
	}
	c.modes[symbol] = mode
	return nil
}

func newGatewayFixture(t *testing.T, stub *bridgeStub, cache ports.GatewayCache) *Gateway {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return NewGateway(NewClient(srv.URL), cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func submitReq() ports.OrderRequest {
	return ports.OrderRequest{Symbol: "XAUUSD", Side: domain.SideBuy, Volume: 0.1}
}

func TestSubmit_WalksFillingModes(t *testing.T) {
	stub := &bridgeStub{t: t, accepted: "RETURN", retcode: retcodeDone}
	gw := newGatewayFixture(t, stub, nil)

	res, err := gw.Submit(context.Background(), submitReq())
	require.NoError(t, err)

	assert.Equal(t, ports.OrderFilled, res.Status)
	assert.Equal(t, int64(777), res.Ticket)
	assert.Equal(t, 2001.5, res.ExecutedPrice)

	require.Len(t, stub.requests, 3)
	assert.Equal(t, "IOC", stub.requests[0].Filling)
	assert.Equal(t, "FOK", stub.requests[1].Filling)
	assert.Equal(t, "RETURN", stub.requests[2].Filling)
}

func TestSubmit_RemembersAcceptedFilling(t *testing.T) {
	stub := &bridgeStub{t: t, accepted: "FOK", retcode: retcodeDone}
	cache := &memCache{}
	gw := newGatewayFixture(t, stub, cache)

	_, err := gw.Submit(context.Background(), submitReq())
	require.NoError(t, err)
	require.Len(t, stub.requests, 2) // IOC refused, FOK accepted

	// la segunda orden arranca directo en FOK
	_, err = gw.Submit(context.Background(), submitReq())
	require.NoError(t, err)
	require.Len(t, stub.requests, 3)
	assert.Equal(t, "FOK", stub.requests[2].Filling)

	assert.Equal(t, "FOK", cache.modes["XAUUSD"])
}

func TestSubmit_CachedModeSurvivesRestart(t *testing.T) {
	cache := &memCache{modes: map[string]string{"XAUUSD": "RETURN"}}
	stub := &bridgeStub{t: t, accepted: "RETURN", retcode: retcodeDone}
	gw := newGatewayFixture(t, stub, cache)

	_, err := gw.Submit(context.Background(), submitReq())
	require.NoError(t, err)

	require.Len(t, stub.requests, 1)
	assert.Equal(t, "RETURN", stub.requests[0].Filling)
}

func TestSubmit_BusinessRejectionIsTyped(t *testing.T) {
	tests := []struct {
		retcode int
		status  ports.OrderStatus
		reason  string
	}{
		{retcodeNoMoney, ports.OrderRejected, "insufficient funds"},
		{retcodeMarketClosed, ports.OrderRejected, "market closed"},
		{retcodeInvalidVolume, ports.OrderRejected, "invalid volume"},
		{retcodeRequote, ports.OrderError, "requote"},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			stub := &bridgeStub{t: t, accepted: "IOC", retcode: tt.retcode}
			gw := newGatewayFixture(t, stub, nil)

			res, err := gw.Submit(context.Background(), submitReq())
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestSubmit_NoFillingAccepted(t *testing.T) {
	stub := &bridgeStub{t: t, accepted: "NONE", retcode: retcodeDone}
	gw := newGatewayFixture(t, stub, nil)

	res, err := gw.Submit(context.Background(), submitReq())
	require.NoError(t, err)
	assert.Equal(t, ports.OrderRejected, res.Status)
	assert.Len(t, stub.requests, 3)
}

func TestSubmit_TransportFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // conexión rechazada
	gw := NewGateway(NewClient(srv.URL), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	res, err := gw.Submit(context.Background(), submitReq())
	assert.Error(t, err)
	assert.Equal(t, ports.OrderError, res.Status)
}

func TestClose_Filled(t *testing.T) {
	stub := &bridgeStub{t: t, retcode: retcodeDone}
	gw := newGatewayFixture(t, stub, nil)

	res, err := gw.Close(context.Background(), 42, 0.05)
	require.NoError(t, err)

	assert.Equal(t, ports.OrderFilled, res.Status)
	require.Len(t, stub.requests, 1)
	assert.Equal(t, int64(42), stub.requests[0].Ticket)
	assert.Equal(t, 0.05, stub.requests[0].Volume)
}
