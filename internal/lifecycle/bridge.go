package lifecycle

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/MitchForest/settlers-sub000/internal/event"
)

// Bridge translates appended domain events into lifecycle transitions. A
// bridge is scoped to one machine; callers feed it the events of that
// machine's game.
type Bridge struct {
	machine *Machine
}

// NewBridge returns a bridge driving the given machine.
func NewBridge(m *Machine) *Bridge {
	return &Bridge{machine: m}
}

// Apply translates and sends a batch of domain events. Events are re-sorted
// by sequence number first, so a bridge fed out of append order never makes
// the machine perceive a later state before an earlier one.
func (b *Bridge) Apply(events []event.Event) error {
	sorted := make([]event.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	for _, evt := range sorted {
		if err := b.ApplyOne(evt); err != nil {
			return err
		}
	}
	return nil
}

// ApplyOne translates a single domain event. Domain events with no lifecycle
// meaning are skipped.
func (b *Bridge) ApplyOne(evt event.Event) error {
	switch evt.Type {
	case event.PlayerJoined, event.AIPlayerAdded:
		// The first join opens the lobby; the transition function ignores
		// joins in any later state.
		b.machine.Send(Event{Kind: HostJoined})

	case event.GameStarted:
		b.machine.Send(Event{Kind: StartGame})
		b.machine.Send(Event{Kind: GameStarted})

	case event.TurnStarted:
		var d event.TurnStartedData
		if err := json.Unmarshal(evt.Data, &d); err != nil {
			return fmt.Errorf("unmarshalling turn started event: %w", err)
		}
		b.machine.Send(Event{Kind: PhaseCompleted, NextPhase: d.Phase})

	case event.GamePaused:
		var d event.GamePausedData
		if err := json.Unmarshal(evt.Data, &d); err != nil {
			return fmt.Errorf("unmarshalling game paused event: %w", err)
		}
		b.machine.Send(Event{Kind: GamePaused, Reason: d.Reason})

	case event.GameResumed:
		b.machine.Send(Event{Kind: GameResumed})

	case event.GameEnded:
		var d event.GameEndedData
		if err := json.Unmarshal(evt.Data, &d); err != nil {
			return fmt.Errorf("unmarshalling game ended event: %w", err)
		}
		b.machine.Send(Event{Kind: GameEnded, Reason: d.Reason})
	}
	return nil
}
