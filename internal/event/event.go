package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	GameCreated Type = "game.created"
	GameStarted Type = "game.started"
	GamePaused  Type = "game.paused"
	GameResumed Type = "game.resumed"
	GameEnded   Type = "game.ended"

	PlayerJoined  Type = "player.joined"
	AIPlayerAdded Type = "ai_player.added"

	TurnStarted Type = "turn.started"
	TurnEnded   Type = "turn.ended"

	DiceRolled         Type = "dice.rolled"
	BuildingPlaced     Type = "building.placed"
	CardPlayed         Type = "card.played"
	ResourcesDiscarded Type = "resources.discarded"
	RobberMoved        Type = "robber.moved"
)

// Category determines which physical stream an event is stored in.
type Category int

const (
	// CategoryGame events describe the game as a whole and carry no
	// player reference.
	CategoryGame Category = iota
	// CategoryPlayer events were performed by or affect a specific player
	// and must carry a player reference.
	CategoryPlayer
)

// Category maps an event type to its stream. The switch is exhaustive over
// the declared types; an unrecognized type reports ok=false and must be
// rejected by the caller rather than routed to a default stream.
func (t Type) Category() (Category, bool) {
	switch t {
	case GameCreated, GameStarted, GamePaused, GameResumed, GameEnded:
		return CategoryGame, true
	case PlayerJoined, AIPlayerAdded, TurnStarted, TurnEnded,
		DiceRolled, BuildingPlaced, CardPlayed, ResourcesDiscarded, RobberMoved:
		return CategoryPlayer, true
	default:
		return 0, false
	}
}

// Event represents a single domain event. Sequence numbers are assigned by
// the store at append time; Sequence is zero on an unappended event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	PlayerID    string          `json:"player_id,omitempty" db:"player_id"`
	Data        json.RawMessage `json:"data" db:"data"`
	Sequence    uint64          `json:"sequence" db:"sequence"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// GameCreatedData is the payload for GameCreated events.
type GameCreatedData struct {
	Code   string `json:"code"`
	HostID string `json:"host_id"`
}

// PlayerJoinedData is the payload for PlayerJoined events.
type PlayerJoinedData struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Seat  int    `json:"seat"`
}

// AIPlayerAddedData is the payload for AIPlayerAdded events.
type AIPlayerAddedData struct {
	Name        string `json:"name"`
	Difficulty  string `json:"difficulty"`
	Personality string `json:"personality"`
	Seat        int    `json:"seat"`
}

// GameStartedData is the payload for GameStarted events.
type GameStartedData struct {
	PlayerOrder []string `json:"player_order"`
}

// TurnStartedData is the payload for TurnStarted events.
type TurnStartedData struct {
	Phase    string    `json:"phase"`
	Deadline time.Time `json:"deadline"`
}

// Reasons recorded on TurnEnded events.
const (
	EndReasonAction  = "action"
	EndReasonTimeout = "timeout"
	EndReasonForced  = "forced"
)

// TurnEndedData is the payload for TurnEnded events.
type TurnEndedData struct {
	// Reason is one of the EndReason constants.
	Reason string `json:"reason"`
}

// DiceRolledData is the payload for DiceRolled events.
type DiceRolledData struct {
	Die1 int `json:"die1"`
	Die2 int `json:"die2"`
}

// BuildingPlacedData is the payload for BuildingPlaced events.
type BuildingPlacedData struct {
	Kind     string `json:"kind"`
	Location string `json:"location"`
}

// CardPlayedData is the payload for CardPlayed events.
type CardPlayedData struct {
	Card string `json:"card"`
}

// ResourcesDiscardedData is the payload for ResourcesDiscarded events.
type ResourcesDiscardedData struct {
	Resources map[string]int `json:"resources"`
}

// RobberMovedData is the payload for RobberMoved events.
type RobberMovedData struct {
	Hex      string `json:"hex"`
	VictimID string `json:"victim_id,omitempty"`
}

// GamePausedData is the payload for GamePaused events.
type GamePausedData struct {
	Reason string `json:"reason"`
}

// GameEndedData is the payload for GameEnded events.
type GameEndedData struct {
	Reason   string `json:"reason"`
	WinnerID string `json:"winner_id,omitempty"`
}
