// Package marketctx derives market signals the position feed cannot give,
// currently a normalized volatility score.
package marketctx

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/goldbot/internal/domain"
	"github.com/alejandrodnm/goldbot/internal/ports"
)

const (
	defaultWindow   = 120
	defaultInterval = time.Second
	// Pips of per-sample movement treated as maximum volatility. Gold
	// rarely sustains more than ~20 pips of tick-to-tick churn.
	defaultRefPips = 20.0
	minSamples     = 10
)

// Scorer implements ports.MarketContext from a rolling window of quotes.
// Run keeps the window fed; Volatility only reads it.
type Scorer struct {
	feed    ports.PlatformFeed
	log     *slog.Logger
	window  int
	refPips float64

	mu   sync.Mutex
	mids map[string][]float64
}

// NewScorer builds a scorer over the given feed.
func NewScorer(feed ports.PlatformFeed, log *slog.Logger) *Scorer {
	return &Scorer{
		feed:    feed,
		log:     log,
		window:  defaultWindow,
		refPips: defaultRefPips,
		mids:    make(map[string][]float64),
	}
}

// Run samples one quote per interval until the context is cancelled. Failed
// samples are skipped; the score just goes stale until quotes return.
func (s *Scorer) Run(ctx context.Context, symbol string, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sample(ctx, symbol)
		}
	}
}

func (s *Scorer) sample(ctx context.Context, symbol string) {
	tick, err := s.feed.Tick(ctx, symbol)
	if err != nil {
		s.log.Debug("tick sample failed", "symbol", symbol, "error", err)
		return
	}
	s.Observe(tick)
}

// Volatility scores the recent window on a [0,1] scale. 0.5 is returned
// until enough samples accumulate.
func (s *Scorer) Volatility(_ context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mids := s.mids[symbol]
	if len(mids) < minSamples {
		return 0.5, nil
	}
	return s.score(symbol, mids), nil
}

// Observe feeds one quote into the window without scoring.
func (s *Scorer) Observe(tick domain.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mids := append(s.mids[tick.Symbol], tick.Mid())
	if len(mids) > s.window {
		mids = mids[len(mids)-s.window:]
	}
	s.mids[tick.Symbol] = mids
}

// score normalizes the window's mean absolute move against refPips.
func (s *Scorer) score(symbol string, mids []float64) float64 {
	pip := domain.PipSize(symbol)

	var sum float64
	for i := 1; i < len(mids); i++ {
		sum += math.Abs(mids[i]-mids[i-1]) / pip
	}
	meanMovePips := sum / float64(len(mids)-1)

	return math.Min(1, meanMovePips/s.refPips)
}
