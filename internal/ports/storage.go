package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/goldbot/internal/domain"
)

// Storage persists everything the bot wants to survive a restart: recovery
// episodes, closed positions and daily rollups.
type Storage interface {
	ApplySchema(ctx context.Context) error

	// Recovery episodes
	SaveEpisode(ctx context.Context, ep domain.RecoveryEpisode) error
	// RecentEpisodes devuelve los últimos n episodios, el más reciente primero.
	RecentEpisodes(ctx context.Context, n int) ([]domain.RecoveryEpisode, error)
	// PruneEpisodes deja como máximo keep episodios en la tabla.
	PruneEpisodes(ctx context.Context, keep int) error

	// Closed positions
	SaveClosedPosition(ctx context.Context, p domain.Position) error
	ClosedPositionsSince(ctx context.Context, since time.Time) ([]domain.Position, error)

	// Daily rollups
	SaveDaily(ctx context.Context, d domain.DailySummary) error
	Dailies(ctx context.Context) ([]domain.DailySummary, error)

	Close() error
}

// GatewayCache persists small bits of broker-side state, like the last
// filling mode the broker actually accepted.
type GatewayCache interface {
	LoadFillingMode(ctx context.Context, symbol string) (string, error)
	SaveFillingMode(ctx context.Context, symbol, mode string) error
}
