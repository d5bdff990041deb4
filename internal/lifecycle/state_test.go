package lifecycle_test

import (
	"testing"

	"github.com/MitchForest/settlers-sub000/internal/lifecycle"
)

func TestTransition_HappyPath(t *testing.T) {
	s := lifecycle.Initial()
	if s.Status != lifecycle.StatusCreated || s.Substatus != lifecycle.SubAwaitingHost {
		t.Fatalf("Initial() = %+v", s)
	}

	steps := []struct {
		event      lifecycle.Event
		wantStatus lifecycle.Status
		wantSub    string
	}{
		{lifecycle.Event{Kind: lifecycle.HostJoined}, lifecycle.StatusLobby, lifecycle.SubOpen},
		{lifecycle.Event{Kind: lifecycle.StartGame}, lifecycle.StatusLobby, lifecycle.SubStarting},
		{lifecycle.Event{Kind: lifecycle.GameStarted}, lifecycle.StatusActive, lifecycle.PhaseInitialPlacement1},
		{lifecycle.Event{Kind: lifecycle.PhaseCompleted, NextPhase: lifecycle.PhaseRoll}, lifecycle.StatusActive, lifecycle.PhaseRoll},
		{lifecycle.Event{Kind: lifecycle.PhaseCompleted, NextPhase: lifecycle.PhaseActions}, lifecycle.StatusActive, lifecycle.PhaseActions},
		{lifecycle.Event{Kind: lifecycle.GameEnded, Reason: lifecycle.EndCompleted}, lifecycle.StatusEnded, lifecycle.EndCompleted},
	}

	for i, step := range steps {
		s = lifecycle.Transition(s, step.event)
		if s.Status != step.wantStatus || s.Substatus != step.wantSub {
			t.Fatalf("step %d (%s): state = %s/%s, want %s/%s",
				i, step.event.Kind, s.Status, s.Substatus, step.wantStatus, step.wantSub)
		}
	}
}

func TestTransition_Countdown(t *testing.T) {
	s := lifecycle.State{Status: lifecycle.StatusLobby, Substatus: lifecycle.SubOpen}

	s = lifecycle.Transition(s, lifecycle.Event{Kind: lifecycle.CountdownStarted})
	if s.Substatus != lifecycle.SubCountdown {
		t.Fatalf("after countdown: %+v", s)
	}

	s = lifecycle.Transition(s, lifecycle.Event{Kind: lifecycle.StartGame})
	if s.Substatus != lifecycle.SubStarting {
		t.Fatalf("countdown should allow starting: %+v", s)
	}
}

func TestTransition_PauseRestoresExactPriorPhase(t *testing.T) {
	s := lifecycle.State{Status: lifecycle.StatusActive, Substatus: lifecycle.PhaseDiscard}

	s = lifecycle.Transition(s, lifecycle.Event{Kind: lifecycle.GamePaused, Reason: lifecycle.PauseHostDisconnected})
	if s.Status != lifecycle.StatusPaused || s.Substatus != lifecycle.PauseHostDisconnected {
		t.Fatalf("after pause: %+v", s)
	}
	if s.PriorPhase != lifecycle.PhaseDiscard {
		t.Fatalf("PriorPhase = %q, want discard", s.PriorPhase)
	}

	s = lifecycle.Transition(s, lifecycle.Event{Kind: lifecycle.GameResumed})
	if s.Status != lifecycle.StatusActive || s.Substatus != lifecycle.PhaseDiscard {
		t.Fatalf("resume restored %s/%s, want active/discard", s.Status, s.Substatus)
	}
}

func TestTransition_UnknownPauseReasonDefaultsToManual(t *testing.T) {
	s := lifecycle.State{Status: lifecycle.StatusActive, Substatus: lifecycle.PhaseRoll}
	s = lifecycle.Transition(s, lifecycle.Event{Kind: lifecycle.GamePaused, Reason: "coffee"})
	if s.Substatus != lifecycle.PauseManual {
		t.Errorf("pause substatus = %q, want manual", s.Substatus)
	}
}

func TestTransition_EndedIsAbsorbing(t *testing.T) {
	s := lifecycle.State{Status: lifecycle.StatusEnded, Substatus: lifecycle.EndCompleted}

	events := []lifecycle.Event{
		{Kind: lifecycle.HostJoined},
		{Kind: lifecycle.StartGame},
		{Kind: lifecycle.PhaseCompleted, NextPhase: lifecycle.PhaseRoll},
		{Kind: lifecycle.GamePaused},
		{Kind: lifecycle.GameResumed},
		{Kind: lifecycle.GameEnded, Reason: lifecycle.EndAbandoned},
	}
	for _, e := range events {
		if got := lifecycle.Transition(s, e); got != s {
			t.Errorf("%s moved terminal state to %+v", e.Kind, got)
		}
	}
}

func TestTransition_UnhandledEventsLeaveStateUnchanged(t *testing.T) {
	tests := []struct {
		name  string
		state lifecycle.State
		event lifecycle.Event
	}{
		{
			name:  "start before host joins",
			state: lifecycle.Initial(),
			event: lifecycle.Event{Kind: lifecycle.StartGame},
		},
		{
			name:  "phase completion in lobby",
			state: lifecycle.State{Status: lifecycle.StatusLobby, Substatus: lifecycle.SubOpen},
			event: lifecycle.Event{Kind: lifecycle.PhaseCompleted, NextPhase: lifecycle.PhaseRoll},
		},
		{
			name:  "resume while active",
			state: lifecycle.State{Status: lifecycle.StatusActive, Substatus: lifecycle.PhaseRoll},
			event: lifecycle.Event{Kind: lifecycle.GameResumed},
		},
		{
			name:  "pause while paused",
			state: lifecycle.State{Status: lifecycle.StatusPaused, Substatus: lifecycle.PauseManual, PriorPhase: lifecycle.PhaseRoll},
			event: lifecycle.Event{Kind: lifecycle.GamePaused},
		},
		{
			name:  "bogus next phase",
			state: lifecycle.State{Status: lifecycle.StatusActive, Substatus: lifecycle.PhaseRoll},
			event: lifecycle.Event{Kind: lifecycle.PhaseCompleted, NextPhase: "intermission"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lifecycle.Transition(tt.state, tt.event); got != tt.state {
				t.Errorf("Transition() = %+v, want unchanged %+v", got, tt.state)
			}
		})
	}
}

func TestTransition_EndFromLobbyIsAbandonable(t *testing.T) {
	s := lifecycle.State{Status: lifecycle.StatusLobby, Substatus: lifecycle.SubOpen}
	s = lifecycle.Transition(s, lifecycle.Event{Kind: lifecycle.GameEnded, Reason: lifecycle.EndAbandoned})
	if s.Status != lifecycle.StatusEnded || s.Substatus != lifecycle.EndAbandoned {
		t.Errorf("state = %s/%s, want ended/abandoned", s.Status, s.Substatus)
	}
}

func TestTransition_UnknownEndReasonDefaultsToError(t *testing.T) {
	s := lifecycle.State{Status: lifecycle.StatusActive, Substatus: lifecycle.PhaseRoll}
	s = lifecycle.Transition(s, lifecycle.Event{Kind: lifecycle.GameEnded, Reason: "rage_quit"})
	if s.Substatus != lifecycle.EndError {
		t.Errorf("end substatus = %q, want error", s.Substatus)
	}
}
