package event_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/MitchForest/settlers-sub000/internal/event"
)

func TestType_Category(t *testing.T) {
	tests := []struct {
		typ  event.Type
		want event.Category
	}{
		{event.GameCreated, event.CategoryGame},
		{event.GameStarted, event.CategoryGame},
		{event.GamePaused, event.CategoryGame},
		{event.GameResumed, event.CategoryGame},
		{event.GameEnded, event.CategoryGame},
		{event.PlayerJoined, event.CategoryPlayer},
		{event.AIPlayerAdded, event.CategoryPlayer},
		{event.TurnStarted, event.CategoryPlayer},
		{event.TurnEnded, event.CategoryPlayer},
		{event.DiceRolled, event.CategoryPlayer},
		{event.BuildingPlaced, event.CategoryPlayer},
		{event.CardPlayed, event.CategoryPlayer},
		{event.ResourcesDiscarded, event.CategoryPlayer},
		{event.RobberMoved, event.CategoryPlayer},
	}

	for _, tt := range tests {
		got, ok := tt.typ.Category()
		if !ok {
			t.Errorf("%q.Category() ok = false, want true", tt.typ)
			continue
		}
		if got != tt.want {
			t.Errorf("%q.Category() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestType_CategoryUnknown(t *testing.T) {
	if _, ok := event.Type("chat.message").Category(); ok {
		t.Error("unknown type was assigned a category")
	}
}

func TestValidate(t *testing.T) {
	valid := event.Event{
		AggregateID: "game-1",
		Type:        event.DiceRolled,
		PlayerID:    "p1",
		Data:        json.RawMessage(`{"die1":3,"die2":4}`),
	}
	cat, err := event.Validate(valid)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cat != event.CategoryPlayer {
		t.Errorf("category = %v, want CategoryPlayer", cat)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		evt     event.Event
		wantErr error
	}{
		{
			name:    "missing aggregate id",
			evt:     event.Event{Type: event.GameCreated},
			wantErr: event.ErrInvalidPayload,
		},
		{
			name:    "unknown type",
			evt:     event.Event{AggregateID: "g", Type: "bogus.kind"},
			wantErr: event.ErrUnknownType,
		},
		{
			name:    "player event without player ref",
			evt:     event.Event{AggregateID: "g", Type: event.DiceRolled},
			wantErr: event.ErrMissingPlayerRef,
		},
		{
			name: "malformed payload",
			evt: event.Event{
				AggregateID: "g",
				Type:        event.GamePaused,
				Data:        json.RawMessage(`{not json`),
			},
			wantErr: event.ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := event.Validate(tt.evt); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_GameEventWithoutPlayerRef(t *testing.T) {
	evt := event.Event{AggregateID: "g", Type: event.GamePaused}
	cat, err := event.Validate(evt)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cat != event.CategoryGame {
		t.Errorf("category = %v, want CategoryGame", cat)
	}
}
