package rules_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/MitchForest/settlers-sub000/internal/event"
	"github.com/MitchForest/settlers-sub000/internal/lifecycle"
	"github.com/MitchForest/settlers-sub000/internal/rules"
)

type memStore struct {
	mu     sync.Mutex
	seqs   map[string]uint64
	events []event.Event
}

func newMemStore() *memStore {
	return &memStore{seqs: make(map[string]uint64)}
}

func (m *memStore) CreateAggregate(_ context.Context, id string, seed *event.Event) (event.Event, error) {
	m.seqs[id] = 0
	if seed == nil {
		return event.Event{}, nil
	}
	return m.append(*seed), nil
}

func (m *memStore) Append(_ context.Context, evt event.Event) (event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.append(evt), nil
}

func (m *memStore) AppendBatch(_ context.Context, events []event.Event) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Event, len(events))
	for i, evt := range events {
		out[i] = m.append(evt)
	}
	return out, nil
}

func (m *memStore) append(evt event.Event) event.Event {
	m.seqs[evt.AggregateID]++
	evt.Sequence = m.seqs[evt.AggregateID]
	m.events = append(m.events, evt)
	return evt
}

func (m *memStore) Read(_ context.Context, id string, _ event.Filter) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.Event
	for _, evt := range m.events {
		if evt.AggregateID == id {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (m *memStore) CurrentSequence(_ context.Context, id string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seqs[id], nil
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func seedHistory(t *testing.T, s *memStore) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.CreateAggregate(ctx, "g1", nil); err != nil {
		t.Fatal(err)
	}
	evts := []event.Event{
		{AggregateID: "g1", Type: event.GameStarted,
			Data: mustJSON(t, event.GameStartedData{PlayerOrder: []string{"p1", "p2"}})},
		{AggregateID: "g1", Type: event.TurnStarted, PlayerID: "p1",
			Data: mustJSON(t, event.TurnStartedData{Phase: lifecycle.PhaseRoll})},
	}
	for _, e := range evts {
		if _, err := s.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBaseline_GetStateFoldsHistory(t *testing.T) {
	store := newMemStore()
	seedHistory(t, store)
	engine := rules.NewBaseline(store, nil)

	state, err := engine.GetState(context.Background(), "g1")
	if err != nil {
		t.Fatal(err)
	}

	if state.Phase != lifecycle.PhaseRoll || state.CurrentPlayer != "p1" {
		t.Errorf("state = %+v, want p1 in roll", state)
	}
	if len(state.PlayerOrder) != 2 {
		t.Errorf("player order = %v", state.PlayerOrder)
	}
	if state.Terminal {
		t.Error("game reported terminal")
	}
}

func TestBaseline_GetStateUnknownGame(t *testing.T) {
	engine := rules.NewBaseline(newMemStore(), nil)

	_, err := engine.GetState(context.Background(), "nope")
	if !errors.Is(err, event.ErrAggregateNotFound) {
		t.Errorf("err = %v, want ErrAggregateNotFound", err)
	}
}

func TestBaseline_RollOpensActionsPhase(t *testing.T) {
	store := newMemStore()
	seedHistory(t, store)
	engine := rules.NewBaseline(store, func() int { return 4 })

	state, err := engine.GetState(context.Background(), "g1")
	if err != nil {
		t.Fatal(err)
	}
	result, err := engine.ApplyAction(context.Background(), state, rules.Action{
		Kind: rules.ActionRollDice, PlayerID: "p1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.NewState.Phase != lifecycle.PhaseActions {
		t.Errorf("phase = %s, want actions", result.NewState.Phase)
	}
	if len(result.Events) != 1 || result.Events[0].Type != event.DiceRolled {
		t.Fatalf("events = %+v, want one dice.rolled", result.Events)
	}
	var d event.DiceRolledData
	if err := json.Unmarshal(result.Events[0].Data, &d); err != nil {
		t.Fatal(err)
	}
	if d.Die1 != 4 || d.Die2 != 4 {
		t.Errorf("dice = %+v, want pinned 4s", d)
	}
}

func TestBaseline_RejectsPhaseIllegalAction(t *testing.T) {
	store := newMemStore()
	seedHistory(t, store)
	engine := rules.NewBaseline(store, nil)

	state, _ := engine.GetState(context.Background(), "g1")
	_, err := engine.ApplyAction(context.Background(), state, rules.Action{
		Kind: rules.ActionPlaceBuilding, PlayerID: "p1",
	})
	if !errors.Is(err, rules.ErrIllegalAction) {
		t.Errorf("err = %v, want ErrIllegalAction", err)
	}
}

func TestBaseline_EndTurnProducesNoEvent(t *testing.T) {
	engine := rules.NewBaseline(newMemStore(), nil)

	result, err := engine.ApplyAction(context.Background(), rules.State{
		GameID: "g1", Phase: lifecycle.PhaseActions,
	}, rules.Action{Kind: rules.ActionEndTurn, PlayerID: "p1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Events) != 0 {
		t.Errorf("events = %+v, want none", result.Events)
	}
}

func TestBaseline_TerminalGameRejectsActions(t *testing.T) {
	engine := rules.NewBaseline(newMemStore(), nil)

	_, err := engine.ApplyAction(context.Background(), rules.State{
		GameID: "g1", Phase: lifecycle.PhaseActions, Terminal: true,
	}, rules.Action{Kind: rules.ActionEndTurn, PlayerID: "p1"})
	if !errors.Is(err, rules.ErrIllegalAction) {
		t.Errorf("err = %v, want ErrIllegalAction", err)
	}
}

func TestBaseline_ValidActionsPerPhase(t *testing.T) {
	engine := rules.NewBaseline(newMemStore(), nil)

	tests := []struct {
		phase string
		want  []rules.ActionKind
	}{
		{lifecycle.PhaseRoll, []rules.ActionKind{rules.ActionRollDice}},
		{lifecycle.PhaseDiscard, []rules.ActionKind{rules.ActionDiscardResources}},
		{lifecycle.PhaseRobber, []rules.ActionKind{rules.ActionMoveRobber}},
		{lifecycle.PhaseActions, []rules.ActionKind{rules.ActionPlaceBuilding, rules.ActionPlayCard, rules.ActionEndTurn}},
		{lifecycle.PhaseInitialPlacement1, []rules.ActionKind{rules.ActionEndTurn}},
	}
	for _, tt := range tests {
		got := engine.ValidActions(rules.State{Phase: tt.phase})
		if len(got) != len(tt.want) {
			t.Errorf("phase %s: actions = %v, want %v", tt.phase, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("phase %s: actions = %v, want %v", tt.phase, got, tt.want)
				break
			}
		}
	}
}

func TestPassProvider_AlwaysEndsTurn(t *testing.T) {
	d, err := rules.PassProvider{}.Decide(context.Background(), "g1", "p1", rules.State{})
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != rules.DecideEndTurn {
		t.Errorf("decision = %+v, want end turn", d)
	}
}
