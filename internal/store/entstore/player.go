package entstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MitchForest/settlers-sub000/internal/clock"
	"github.com/MitchForest/settlers-sub000/internal/store"
)

// PlayerRepo implements store.PlayerRepository using database/sql.
type PlayerRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewPlayerRepo returns a new PlayerRepo.
func NewPlayerRepo(db *sql.DB, clk clock.Clock) *PlayerRepo {
	return &PlayerRepo{db: db, clock: clk}
}

func (r *PlayerRepo) Add(ctx context.Context, p *store.Player) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = r.clock.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO players (id, game_id, name, color, seat, is_ai, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.GameID, p.Name, p.Color, p.Seat, p.IsAI, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("seat %d in game %s already taken: %w", p.Seat, p.GameID, err)
		}
		return fmt.Errorf("adding player: %w", err)
	}
	return nil
}

func (r *PlayerRepo) GetByID(ctx context.Context, id string) (*store.Player, error) {
	p := &store.Player{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, game_id, name, color, seat, is_ai, created_at
		 FROM players WHERE id = $1`, id,
	).Scan(&p.ID, &p.GameID, &p.Name, &p.Color, &p.Seat, &p.IsAI, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting player by id: %w", err)
	}
	return p, nil
}

func (r *PlayerRepo) ListByGame(ctx context.Context, gameID string) ([]store.Player, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, game_id, name, color, seat, is_ai, created_at
		 FROM players WHERE game_id = $1 ORDER BY seat ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	defer rows.Close()

	var players []store.Player
	for rows.Next() {
		var p store.Player
		if err := rows.Scan(&p.ID, &p.GameID, &p.Name, &p.Color, &p.Seat, &p.IsAI, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning player row: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (r *PlayerRepo) SetAI(ctx context.Context, id string, isAI bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE players SET is_ai = $1 WHERE id = $2`, isAI, id)
	if err != nil {
		return fmt.Errorf("updating player: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("player %s: %w", id, store.ErrNotFound)
	}
	return nil
}
