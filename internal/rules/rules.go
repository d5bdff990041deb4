// Package rules declares the interfaces the coordinator consumes from the
// game rules engine and the autonomous-player decision provider. Both are
// external collaborators; this package owns only their contracts and the
// value types that cross them.
package rules

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/MitchForest/settlers-sub000/internal/event"
)

// ErrIllegalAction is returned by an engine when an action is not legal in
// the current state. It is surfaced to the caller and never retried.
var ErrIllegalAction = errors.New("action not legal in current state")

// ActionKind identifies a player action.
type ActionKind string

const (
	ActionRollDice         ActionKind = "roll_dice"
	ActionPlaceBuilding    ActionKind = "place_building"
	ActionPlayCard         ActionKind = "play_card"
	ActionDiscardResources ActionKind = "discard_resources"
	ActionMoveRobber       ActionKind = "move_robber"
	ActionEndTurn          ActionKind = "end_turn"
)

// Action is one player action. Payload is engine-specific; a nil payload
// asks the engine to pick any legal variant of the action, which is how
// timeout fallbacks stay unrejectable.
type Action struct {
	Kind     ActionKind
	PlayerID string
	Payload  json.RawMessage
}

// State is the engine's view of a game, reduced to what turn coordination
// needs. The full board state stays inside the engine.
type State struct {
	GameID        string
	Phase         string
	PlayerOrder   []string
	CurrentPlayer string
	Terminal      bool
	WinnerID      string
}

// Result is the outcome of a successfully applied action.
type Result struct {
	NewState State
	// Events are the domain events the action produced, ready to append.
	Events []event.Event
}

// Engine applies actions and projects game state. Implementations must be
// safe for use from one goroutine per game.
type Engine interface {
	ApplyAction(ctx context.Context, state State, action Action) (Result, error)
	ValidActions(state State) []ActionKind
	GetState(ctx context.Context, gameID string) (State, error)
}

// DecisionKind classifies a decision provider's answer.
type DecisionKind int

const (
	// DecideAction carries an action to apply.
	DecideAction DecisionKind = iota
	// DecideEndTurn ends the turn without a further action.
	DecideEndTurn
	// DecideNone means the provider has nothing to do.
	DecideNone
)

// Decision is one answer from a decision provider.
type Decision struct {
	Kind   DecisionKind
	Action Action
}

// DecisionProvider chooses actions for autonomous players.
type DecisionProvider interface {
	Decide(ctx context.Context, gameID, playerID string, state State) (Decision, error)
}
