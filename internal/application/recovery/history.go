package recovery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/goldbot/internal/domain"
	"github.com/alejandrodnm/goldbot/internal/ports"
)

const (
	historyCapPerStrategy = 100
	weightWindow          = 20
	weightMinSamples      = 5
)

// History is the rolling record of finished recoveries. Success rates over
// the recent window nudge the probability estimate of future plans.
type History struct {
	mu       sync.RWMutex
	episodes map[domain.StrategyKind][]domain.RecoveryEpisode
	storage  ports.Storage // nil disables persistence
	log      *slog.Logger
}

// NewHistory creates an empty history. storage may be nil.
func NewHistory(storage ports.Storage, log *slog.Logger) *History {
	return &History{
		episodes: make(map[domain.StrategyKind][]domain.RecoveryEpisode),
		storage:  storage,
		log:      log,
	}
}

// Load rehydrates the in-memory window from persisted episodes.
func (h *History) Load(ctx context.Context) error {
	if h.storage == nil {
		return nil
	}
	eps, err := h.storage.RecentEpisodes(ctx, historyCapPerStrategy)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	// RecentEpisodes is newest-first; the window wants oldest-first.
	for i := len(eps) - 1; i >= 0; i-- {
		ep := eps[i]
		h.episodes[ep.Strategy] = append(h.episodes[ep.Strategy], ep)
	}
	return nil
}

// Record appends a finished episode and persists it.
func (h *History) Record(ctx context.Context, ep domain.RecoveryEpisode) {
	h.mu.Lock()
	eps := append(h.episodes[ep.Strategy], ep)
	if len(eps) > historyCapPerStrategy {
		eps = eps[len(eps)-historyCapPerStrategy:]
	}
	h.episodes[ep.Strategy] = eps
	h.mu.Unlock()

	if h.storage == nil {
		return
	}
	if err := h.storage.SaveEpisode(ctx, ep); err != nil {
		h.log.Error("persist episode failed", "plan", ep.PlanID, "error", err)
	}
}

// WeightFor is the recent success rate of a strategy in [0,1]. With fewer
// than weightMinSamples episodes it stays at the neutral 0.5.
func (h *History) WeightFor(strategy domain.StrategyKind) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	eps := h.episodes[strategy]
	if len(eps) > weightWindow {
		eps = eps[len(eps)-weightWindow:]
	}
	if len(eps) < weightMinSamples {
		return 0.5
	}

	wins := 0
	for _, ep := range eps {
		if ep.Success {
			wins++
		}
	}
	return float64(wins) / float64(len(eps))
}

// Count returns how many episodes are retained for a strategy.
func (h *History) Count(strategy domain.StrategyKind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.episodes[strategy])
}
