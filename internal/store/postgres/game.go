package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/MitchForest/settlers-sub000/internal/clock"
	"github.com/MitchForest/settlers-sub000/internal/store"
)

// GameRepo implements store.GameRepository with sqlx.
type GameRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewGameRepo returns a new GameRepo.
func NewGameRepo(db *sqlx.DB, clk clock.Clock) *GameRepo {
	return &GameRepo{db: db, clock: clk}
}

func (r *GameRepo) Create(ctx context.Context, g *store.Game) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	now := r.clock.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO games (id, code, host_id, status, substatus, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.Code, g.HostID, g.Status, g.Substatus, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("game code %s already in use: %w", g.Code, err)
		}
		return fmt.Errorf("creating game: %w", err)
	}
	return nil
}

func (r *GameRepo) GetByID(ctx context.Context, id string) (*store.Game, error) {
	var g store.Game
	err := r.db.GetContext(ctx, &g, `SELECT * FROM games WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("game %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting game by id: %w", err)
	}
	return &g, nil
}

func (r *GameRepo) GetByCode(ctx context.Context, code string) (*store.Game, error) {
	var g store.Game
	err := r.db.GetContext(ctx, &g, `SELECT * FROM games WHERE code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("game code %s: %w", code, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting game by code: %w", err)
	}
	return &g, nil
}

func (r *GameRepo) UpdateStatus(ctx context.Context, id, status, substatus string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE games SET status = $1, substatus = $2, updated_at = $3 WHERE id = $4`,
		status, substatus, r.clock.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating game status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("game %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (r *GameRepo) ListActive(ctx context.Context) ([]store.Game, error) {
	var games []store.Game
	err := r.db.SelectContext(ctx, &games,
		`SELECT * FROM games WHERE status NOT IN ('ended') ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing active games: %w", err)
	}
	return games, nil
}
