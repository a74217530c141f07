// Package storage persiste el estado del bot en SQLite (pure Go, sin CGo).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/goldbot/internal/domain"
)

const schema = `
-- Episodios de recovery terminados; alimentan los pesos de probabilidad
CREATE TABLE IF NOT EXISTS episodes (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    plan_id      TEXT    NOT NULL,
    strategy     TEXT    NOT NULL,
    volume       REAL    NOT NULL DEFAULT 0,
    total_loss   REAL    NOT NULL DEFAULT 0,
    probability  REAL    NOT NULL DEFAULT 0,
    success      INTEGER NOT NULL DEFAULT 0,
    profit       REAL    NOT NULL DEFAULT 0,
    completed_at DATETIME NOT NULL
);

-- Una fila por posición cerrada
CREATE TABLE IF NOT EXISTS closed_positions (
    ticket         INTEGER PRIMARY KEY,
    symbol         TEXT    NOT NULL,
    side           TEXT    NOT NULL,
    volume         REAL    NOT NULL DEFAULT 0,
    open_price     REAL    NOT NULL DEFAULT 0,
    close_price    REAL    NOT NULL DEFAULT 0,
    profit         REAL    NOT NULL DEFAULT 0,
    swap           REAL    NOT NULL DEFAULT 0,
    commission     REAL    NOT NULL DEFAULT 0,
    strategy       TEXT,
    recovery_depth INTEGER NOT NULL DEFAULT 0,
    peak_profit    REAL    NOT NULL DEFAULT 0,
    peak_loss      REAL    NOT NULL DEFAULT 0,
    open_time      DATETIME NOT NULL,
    close_time     DATETIME NOT NULL
);

-- Rollup diario de performance
CREATE TABLE IF NOT EXISTS dailies (
    day              TEXT PRIMARY KEY,
    closed_count     INTEGER NOT NULL DEFAULT 0,
    win_count        INTEGER NOT NULL DEFAULT 0,
    loss_count       INTEGER NOT NULL DEFAULT 0,
    gross_profit     REAL    NOT NULL DEFAULT 0,
    gross_loss       REAL    NOT NULL DEFAULT 0,
    net_profit       REAL    NOT NULL DEFAULT 0,
    recovery_count   INTEGER NOT NULL DEFAULT 0,
    recovery_wins    INTEGER NOT NULL DEFAULT 0,
    volume_traded    REAL    NOT NULL DEFAULT 0,
    largest_drawdown REAL    NOT NULL DEFAULT 0
);

-- Último filling mode aceptado por el broker
CREATE TABLE IF NOT EXISTS gateway_cache (
    symbol       TEXT PRIMARY KEY,
    filling_mode TEXT NOT NULL,
    updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_episodes_at  ON episodes(completed_at DESC);
CREATE INDEX IF NOT EXISTS idx_closed_time  ON closed_positions(close_time DESC);
`

// closed_positions crece sin límite útil; se poda al arrancar.
const retentionClosed = 90 * 24 * time.Hour

// SQLiteStorage implementa ports.Storage y ports.GatewayCache.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada, aplica
// el schema y poda datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.ApplySchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	s.pruneOld(context.Background())
	return s, nil
}

// ApplySchema crea las tablas si no existen.
func (s *SQLiteStorage) ApplySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("storage.ApplySchema: %w", err)
	}
	return nil
}

// Close cierra la conexión.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionClosed)
	s.db.ExecContext(ctx, `DELETE FROM closed_positions WHERE close_time < ?`, cutoff)
}

// SaveEpisode persiste un episodio de recovery terminado.
func (s *SQLiteStorage) SaveEpisode(ctx context.Context, ep domain.RecoveryEpisode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (plan_id, strategy, volume, total_loss, probability, success, profit, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.PlanID, string(ep.Strategy), ep.Volume, ep.TotalLoss, ep.Probability,
		boolToInt(ep.Success), ep.Profit, ep.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveEpisode: %w", err)
	}
	return nil
}

// RecentEpisodes devuelve los últimos n episodios, el más reciente primero.
func (s *SQLiteStorage) RecentEpisodes(ctx context.Context, n int) ([]domain.RecoveryEpisode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT plan_id, strategy, volume, total_loss, probability, success, profit, completed_at
		FROM episodes ORDER BY completed_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentEpisodes: %w", err)
	}
	defer rows.Close()

	var out []domain.RecoveryEpisode
	for rows.Next() {
		var ep domain.RecoveryEpisode
		var strategy string
		var success int
		if err := rows.Scan(&ep.PlanID, &strategy, &ep.Volume, &ep.TotalLoss,
			&ep.Probability, &success, &ep.Profit, &ep.CompletedAt); err != nil {
			return nil, fmt.Errorf("storage.RecentEpisodes: scan: %w", err)
		}
		ep.Strategy = domain.StrategyKind(strategy)
		ep.Success = success != 0
		out = append(out, ep)
	}
	return out, rows.Err()
}

// PruneEpisodes deja como máximo keep episodios en la tabla.
func (s *SQLiteStorage) PruneEpisodes(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM episodes WHERE id NOT IN (
			SELECT id FROM episodes ORDER BY completed_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("storage.PruneEpisodes: %w", err)
	}
	return nil
}

// SaveClosedPosition hace upsert de una posición cerrada.
func (s *SQLiteStorage) SaveClosedPosition(ctx context.Context, p domain.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO closed_positions
			(ticket, symbol, side, volume, open_price, close_price, profit, swap,
			 commission, strategy, recovery_depth, peak_profit, peak_loss, open_time, close_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticket) DO UPDATE SET
			close_price = excluded.close_price,
			profit      = excluded.profit,
			close_time  = excluded.close_time`,
		p.Ticket, p.Symbol, string(p.Side), p.Volume, p.OpenPrice, p.Price,
		p.Profit, p.Swap, p.Commission, p.Strategy, p.RecoveryDepth,
		p.PeakProfit, p.PeakLoss, p.OpenTime.UTC(), p.CloseTime.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveClosedPosition: %w", err)
	}
	return nil
}

// ClosedPositionsSince devuelve las posiciones cerradas desde since.
func (s *SQLiteStorage) ClosedPositionsSince(ctx context.Context, since time.Time) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticket, symbol, side, volume, open_price, close_price, profit, swap,
		       commission, strategy, recovery_depth, peak_profit, peak_loss, open_time, close_time
		FROM closed_positions WHERE close_time >= ? ORDER BY close_time`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.ClosedPositionsSince: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		var side string
		var strategy sql.NullString
		if err := rows.Scan(&p.Ticket, &p.Symbol, &side, &p.Volume, &p.OpenPrice,
			&p.Price, &p.Profit, &p.Swap, &p.Commission, &strategy, &p.RecoveryDepth,
			&p.PeakProfit, &p.PeakLoss, &p.OpenTime, &p.CloseTime); err != nil {
			return nil, fmt.Errorf("storage.ClosedPositionsSince: scan: %w", err)
		}
		p.Side = domain.Side(side)
		p.Strategy = strategy.String
		p.Status = domain.StatusClosed
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveDaily hace upsert del rollup del día.
func (s *SQLiteStorage) SaveDaily(ctx context.Context, d domain.DailySummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dailies
			(day, closed_count, win_count, loss_count, gross_profit, gross_loss,
			 net_profit, recovery_count, recovery_wins, volume_traded, largest_drawdown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			closed_count     = excluded.closed_count,
			win_count        = excluded.win_count,
			loss_count       = excluded.loss_count,
			gross_profit     = excluded.gross_profit,
			gross_loss       = excluded.gross_loss,
			net_profit       = excluded.net_profit,
			recovery_count   = excluded.recovery_count,
			recovery_wins    = excluded.recovery_wins,
			volume_traded    = excluded.volume_traded,
			largest_drawdown = excluded.largest_drawdown`,
		d.Date.UTC().Format("2006-01-02"), d.ClosedCount, d.WinCount, d.LossCount,
		d.GrossProfit, d.GrossLoss, d.NetProfit, d.RecoveryCount, d.RecoveryWins,
		d.VolumeTraded, d.LargestDrawdown,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveDaily: %w", err)
	}
	return nil
}

// Dailies devuelve todos los rollups, el día más antiguo primero.
func (s *SQLiteStorage) Dailies(ctx context.Context) ([]domain.DailySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, closed_count, win_count, loss_count, gross_profit, gross_loss,
		       net_profit, recovery_count, recovery_wins, volume_traded, largest_drawdown
		FROM dailies ORDER BY day`)
	if err != nil {
		return nil, fmt.Errorf("storage.Dailies: %w", err)
	}
	defer rows.Close()

	var out []domain.DailySummary
	for rows.Next() {
		var d domain.DailySummary
		var day string
		if err := rows.Scan(&day, &d.ClosedCount, &d.WinCount, &d.LossCount,
			&d.GrossProfit, &d.GrossLoss, &d.NetProfit, &d.RecoveryCount,
			&d.RecoveryWins, &d.VolumeTraded, &d.LargestDrawdown); err != nil {
			return nil, fmt.Errorf("storage.Dailies: scan: %w", err)
		}
		d.Date, _ = time.Parse("2006-01-02", day)
		out = append(out, d)
	}
	return out, rows.Err()
}

// LoadFillingMode devuelve el último filling mode aceptado para el símbolo.
func (s *SQLiteStorage) LoadFillingMode(ctx context.Context, symbol string) (string, error) {
	var mode string
	err := s.db.QueryRowContext(ctx,
		`SELECT filling_mode FROM gateway_cache WHERE symbol = ?`, symbol).Scan(&mode)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage.LoadFillingMode: %w", err)
	}
	return mode, nil
}

// SaveFillingMode hace upsert del filling mode aceptado.
func (s *SQLiteStorage) SaveFillingMode(ctx context.Context, symbol, mode string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gateway_cache (symbol, filling_mode, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			filling_mode = excluded.filling_mode,
			updated_at   = excluded.updated_at`,
		symbol, mode, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveFillingMode: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
