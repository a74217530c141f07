// Package sim is the paper-trading stand-in for the MT5 bridge: a
// random-walk price and an in-memory position ledger behind the same ports
// the live adapters implement.
package sim

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/alejandrodnm/goldbot/internal/domain"
	"github.com/alejandrodnm/goldbot/internal/ports"
)

// Config tunes the simulated market.
type Config struct {
	Symbol     string
	BasePrice  float64 // starting mid price
	SpreadPips float64
	WalkPips   float64 // max random move per tick, in pips
	Slippage   float64 // price units added against the order on fills
	RejectRate float64 // [0,1] fraction of submits refused
	Seed       int64
}

// Exchange implements ports.PlatformFeed and ports.OrderGateway over an
// in-memory ledger. Safe for concurrent use.
type Exchange struct {
	cfg Config
	log *slog.Logger

	mu         sync.Mutex
	mid        float64
	nextTicket int64
	positions  map[int64]*simPosition
	rng        *rand.Rand
	now        func() time.Time
}

type simPosition struct {
	ticket    int64
	side      domain.Side
	volume    float64
	openPrice float64
	openTime  time.Time
	comment   string
}

// New creates a simulated exchange.
func New(cfg Config, log *slog.Logger) *Exchange {
	if cfg.Symbol == "" {
		cfg.Symbol = "XAUUSD"
	}
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = 2000
	}
	if cfg.SpreadPips <= 0 {
		cfg.SpreadPips = 3
	}
	if cfg.WalkPips <= 0 {
		cfg.WalkPips = 2
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Exchange{
		cfg:        cfg,
		log:        log,
		mid:        cfg.BasePrice,
		nextTicket: 1000,
		positions:  make(map[int64]*simPosition),
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		now:        time.Now,
	}
}

// Tick advances the random walk one step and returns the new quote.
func (e *Exchange) Tick(_ context.Context, symbol string) (domain.Tick, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pip := domain.PipSize(e.cfg.Symbol)
	e.mid += (e.rng.Float64()*2 - 1) * e.cfg.WalkPips * pip
	half := e.cfg.SpreadPips * pip / 2

	return domain.Tick{
		Symbol: symbol,
		Bid:    e.mid - half,
		Ask:    e.mid + half,
		Time:   e.now(),
	}, nil
}

// OpenPositions returns the ledger priced at the current mid.
func (e *Exchange) OpenPositions(_ context.Context, _ string) ([]domain.BrokerPosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.BrokerPosition, 0, len(e.positions))
	for _, p := range e.positions {
		pips := domain.ProfitPips(e.cfg.Symbol, p.side, p.openPrice, e.mid)
		out = append(out, domain.BrokerPosition{
			Ticket:    p.ticket,
			Symbol:    e.cfg.Symbol,
			Side:      p.side,
			Volume:    p.volume,
			OpenPrice: p.openPrice,
			Price:     e.mid,
			Profit:    pips * domain.PipValue(p.volume),
			OpenTime:  p.openTime,
			Comment:   p.comment,
		})
	}
	return out, nil
}

// Submit fills instantly at the current price plus slippage, or refuses
// per the configured reject rate.
func (e *Exchange) Submit(_ context.Context, req ports.OrderRequest) (ports.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.RejectRate > 0 && e.rng.Float64() < e.cfg.RejectRate {
		return ports.OrderResult{Status: ports.OrderRejected, Reason: "simulated rejection"}, nil
	}
	if req.Volume <= 0 {
		return ports.OrderResult{Status: ports.OrderRejected, Reason: "invalid volume"}, nil
	}

	fill := e.mid
	if req.Price > 0 {
		fill = req.Price
	}
	if req.Side == domain.SideBuy {
		fill += e.cfg.Slippage
	} else {
		fill -= e.cfg.Slippage
	}

	e.nextTicket++
	p := &simPosition{
		ticket:    e.nextTicket,
		side:      req.Side,
		volume:    req.Volume,
		openPrice: fill,
		openTime:  e.now(),
		comment:   req.Comment,
	}
	e.positions[p.ticket] = p

	e.log.Debug("sim fill",
		"ticket", p.ticket,
		"side", string(req.Side),
		"volume", req.Volume,
		"price", fill)

	return ports.OrderResult{
		Status:        ports.OrderFilled,
		Ticket:        p.ticket,
		ExecutedPrice: fill,
	}, nil
}

// Close removes volume from a position, deleting it when nothing remains.
func (e *Exchange) Close(_ context.Context, ticket int64, volume float64) (ports.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[ticket]
	if !ok {
		return ports.OrderResult{Status: ports.OrderRejected, Reason: "position not found"}, nil
	}
	if volume <= 0 || volume > p.volume+1e-9 {
		return ports.OrderResult{Status: ports.OrderRejected, Reason: "invalid volume"}, nil
	}

	p.volume -= volume
	if p.volume < 0.005 {
		delete(e.positions, ticket)
	}

	return ports.OrderResult{
		Status:        ports.OrderFilled,
		Ticket:        ticket,
		ExecutedPrice: e.mid,
	}, nil
}

// SetMid pins the mid price, bypassing the walk. Test hook.
func (e *Exchange) SetMid(price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mid = price
}
