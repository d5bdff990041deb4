package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/MitchForest/settlers-sub000/internal/event"
	"github.com/MitchForest/settlers-sub000/internal/lifecycle"
)

// Baseline is a permissive Engine used when no full rules engine is wired.
// It projects state by folding the event log and accepts any action that is
// legal in the current phase, producing the matching domain event. Board
// economics (resource production, building costs, victory) stay opaque; a
// Baseline game ends only through an explicit game.ended event.
type Baseline struct {
	events event.Store
	roll   func() int
}

// NewBaseline creates a Baseline engine. roll returns one die face and may
// be nil for the default source.
func NewBaseline(events event.Store, roll func() int) *Baseline {
	if roll == nil {
		roll = func() int { return rand.Intn(6) + 1 }
	}
	return &Baseline{events: events, roll: roll}
}

// GetState folds the game's event history into a State.
func (b *Baseline) GetState(ctx context.Context, gameID string) (State, error) {
	history, err := b.events.Read(ctx, gameID, event.Filter{})
	if err != nil {
		return State{}, fmt.Errorf("reading event history: %w", err)
	}
	if len(history) == 0 {
		return State{}, fmt.Errorf("%w: %s", event.ErrAggregateNotFound, gameID)
	}

	s := State{GameID: gameID}
	for _, evt := range history {
		switch evt.Type {
		case event.GameStarted:
			var d event.GameStartedData
			if err := json.Unmarshal(evt.Data, &d); err != nil {
				return State{}, fmt.Errorf("unmarshalling game started payload: %w", err)
			}
			s.PlayerOrder = d.PlayerOrder
			s.Phase = lifecycle.PhaseInitialPlacement1
			if len(d.PlayerOrder) > 0 {
				s.CurrentPlayer = d.PlayerOrder[0]
			}

		case event.TurnStarted:
			var d event.TurnStartedData
			if err := json.Unmarshal(evt.Data, &d); err != nil {
				return State{}, fmt.Errorf("unmarshalling turn started payload: %w", err)
			}
			s.Phase = d.Phase
			s.CurrentPlayer = evt.PlayerID

		case event.DiceRolled:
			// A roll opens the free-form part of the turn.
			s.Phase = lifecycle.PhaseActions

		case event.GameEnded:
			var d event.GameEndedData
			if err := json.Unmarshal(evt.Data, &d); err != nil {
				return State{}, fmt.Errorf("unmarshalling game ended payload: %w", err)
			}
			s.Terminal = true
			s.WinnerID = d.WinnerID
		}
	}
	return s, nil
}

// ValidActions lists the actions legal per phase.
func (b *Baseline) ValidActions(s State) []ActionKind {
	switch s.Phase {
	case lifecycle.PhaseRoll:
		return []ActionKind{ActionRollDice}
	case lifecycle.PhaseDiscard:
		return []ActionKind{ActionDiscardResources}
	case lifecycle.PhaseRobber:
		return []ActionKind{ActionMoveRobber}
	case lifecycle.PhaseActions:
		return []ActionKind{ActionPlaceBuilding, ActionPlayCard, ActionEndTurn}
	default:
		return []ActionKind{ActionEndTurn}
	}
}

// ApplyAction accepts any phase-legal action and produces its domain event.
func (b *Baseline) ApplyAction(ctx context.Context, s State, action Action) (Result, error) {
	if s.Terminal {
		return Result{}, fmt.Errorf("%w: game has ended", ErrIllegalAction)
	}
	if !b.legal(s, action.Kind) {
		return Result{}, fmt.Errorf("%w: %s in phase %s", ErrIllegalAction, action.Kind, s.Phase)
	}

	evt, next, err := b.produce(s, action)
	if err != nil {
		return Result{}, err
	}
	if evt == nil {
		return Result{NewState: next}, nil
	}
	return Result{NewState: next, Events: []event.Event{*evt}}, nil
}

func (b *Baseline) legal(s State, kind ActionKind) bool {
	for _, k := range b.ValidActions(s) {
		if k == kind {
			return true
		}
	}
	return false
}

func (b *Baseline) produce(s State, action Action) (*event.Event, State, error) {
	var (
		evtType event.Type
		payload any
	)

	switch action.Kind {
	case ActionRollDice:
		evtType = event.DiceRolled
		payload = event.DiceRolledData{Die1: b.roll(), Die2: b.roll()}
		s.Phase = lifecycle.PhaseActions

	case ActionDiscardResources:
		evtType = event.ResourcesDiscarded
		var d event.ResourcesDiscardedData
		if len(action.Payload) > 0 {
			if err := json.Unmarshal(action.Payload, &d); err != nil {
				return nil, s, fmt.Errorf("%w: %v", ErrIllegalAction, err)
			}
		}
		payload = d

	case ActionMoveRobber:
		evtType = event.RobberMoved
		var d event.RobberMovedData
		if len(action.Payload) > 0 {
			if err := json.Unmarshal(action.Payload, &d); err != nil {
				return nil, s, fmt.Errorf("%w: %v", ErrIllegalAction, err)
			}
		}
		payload = d

	case ActionPlaceBuilding:
		evtType = event.BuildingPlaced
		var d event.BuildingPlacedData
		if len(action.Payload) > 0 {
			if err := json.Unmarshal(action.Payload, &d); err != nil {
				return nil, s, fmt.Errorf("%w: %v", ErrIllegalAction, err)
			}
		}
		payload = d

	case ActionPlayCard:
		evtType = event.CardPlayed
		var d event.CardPlayedData
		if len(action.Payload) > 0 {
			if err := json.Unmarshal(action.Payload, &d); err != nil {
				return nil, s, fmt.Errorf("%w: %v", ErrIllegalAction, err)
			}
		}
		payload = d

	case ActionEndTurn:
		// Ending a turn is the turn manager's event to record, not ours.
		return nil, s, nil

	default:
		return nil, s, fmt.Errorf("%w: %s", ErrIllegalAction, action.Kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, s, fmt.Errorf("encoding %s payload: %w", evtType, err)
	}
	return &event.Event{
		AggregateID: s.GameID,
		Type:        evtType,
		PlayerID:    action.PlayerID,
		Data:        data,
	}, s, nil
}

// PassProvider is a DecisionProvider that always ends the turn. It is the
// default when no real decision provider is wired, keeping autonomous
// players harmless rather than clever.
type PassProvider struct{}

// Decide always returns an end-turn decision.
func (PassProvider) Decide(context.Context, string, string, State) (Decision, error) {
	return Decision{Kind: DecideEndTurn}, nil
}
