package tracker

import (
	"sync"

	"github.com/alejandrodnm/goldbot/internal/domain"
)

// Store holds the canonical position set. The tracker goroutine is the only
// writer; every read hands out deep copies so callers can never mutate the
// canonical state.
type Store struct {
	mu         sync.RWMutex
	open       map[int64]*domain.Position
	history    []domain.Position // closed positions, oldest first
	historyCap int
}

// NewStore creates an empty store keeping at most historyCap closed positions.
func NewStore(historyCap int) *Store {
	if historyCap <= 0 {
		historyCap = 1000
	}
	return &Store{
		open:       make(map[int64]*domain.Position),
		historyCap: historyCap,
	}
}

// Get returns a copy of the position with the given ticket.
func (s *Store) Get(ticket int64) (domain.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.open[ticket]
	if !ok {
		return domain.Position{}, false
	}
	return p.Clone(), true
}

// Open returns copies of all open positions, unordered.
func (s *Store) Open() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Position, 0, len(s.open))
	for _, p := range s.open {
		out = append(out, p.Clone())
	}
	return out
}

// OpenByStatus returns copies of open positions with the given status.
func (s *Store) OpenByStatus(status domain.PositionStatus) []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Position
	for _, p := range s.open {
		if p.Status == status {
			out = append(out, p.Clone())
		}
	}
	return out
}

// History returns copies of the retained closed positions, oldest first.
func (s *Store) History() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Position, len(s.history))
	for i := range s.history {
		out[i] = s.history[i].Clone()
	}
	return out
}

// Len returns the number of open positions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.open)
}

// put inserts or replaces an open position. Tracker use only.
func (s *Store) put(p *domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[p.Ticket] = p
}

// mutate runs fn against the live position under the write lock. Tracker
// use only.
func (s *Store) mutate(ticket int64, fn func(*domain.Position)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.open[ticket]
	if !ok {
		return false
	}
	fn(p)
	return true
}

// retire moves a position from the open set into history, evicting the
// oldest entry once the cap is reached. Tracker use only.
func (s *Store) retire(ticket int64) (domain.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.open[ticket]
	if !ok {
		return domain.Position{}, false
	}
	delete(s.open, ticket)

	s.history = append(s.history, *p)
	if len(s.history) > s.historyCap {
		s.history = s.history[len(s.history)-s.historyCap:]
	}
	return p.Clone(), true
}
