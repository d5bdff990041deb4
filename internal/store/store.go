package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Game represents a game record.
type Game struct {
	ID        string    `db:"id"`
	Code      string    `db:"code"`
	HostID    string    `db:"host_id"`
	Status    string    `db:"status"`
	Substatus string    `db:"substatus"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Player represents a seat in a game. Seat order is the stable round-robin
// turn order.
type Player struct {
	ID        string    `db:"id"`
	GameID    string    `db:"game_id"`
	Name      string    `db:"name"`
	Color     string    `db:"color"`
	Seat      int       `db:"seat"`
	IsAI      bool      `db:"is_ai"`
	CreatedAt time.Time `db:"created_at"`
}

// GameRepository defines game persistence operations.
type GameRepository interface {
	Create(ctx context.Context, g *Game) error
	GetByID(ctx context.Context, id string) (*Game, error)
	GetByCode(ctx context.Context, code string) (*Game, error)
	UpdateStatus(ctx context.Context, id, status, substatus string) error
	ListActive(ctx context.Context) ([]Game, error)
}

// PlayerRepository defines player persistence operations.
type PlayerRepository interface {
	Add(ctx context.Context, p *Player) error
	GetByID(ctx context.Context, id string) (*Player, error)
	// ListByGame returns a game's players in seat order.
	ListByGame(ctx context.Context, gameID string) ([]Player, error)
	SetAI(ctx context.Context, id string, isAI bool) error
}
