// Package lifecycle models the hierarchical status of a game and the legal
// transitions between statuses. The transition function is pure and total:
// every (state, event) pair yields a defined next state, possibly unchanged.
package lifecycle

// Status is the coarse stage a game is in.
type Status string

const (
	StatusCreated Status = "created"
	StatusLobby   Status = "lobby"
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusEnded   Status = "ended"
)

// Substatus values, grouped by the status they refine.
const (
	// created
	SubAwaitingHost = "awaiting_host"

	// lobby
	SubOpen      = "open"
	SubStarting  = "starting"
	SubCountdown = "countdown"

	// active: game phases
	PhaseInitialPlacement1 = "initial_placement_1"
	PhaseInitialPlacement2 = "initial_placement_2"
	PhaseRoll              = "roll"
	PhaseActions           = "actions"
	PhaseDiscard           = "discard"
	PhaseRobber            = "robber"
	PhaseVictory           = "victory"

	// paused
	PauseHostDisconnected = "host_disconnected"
	PauseMaintenance      = "server_maintenance"
	PauseManual           = "manual"

	// ended
	EndCompleted = "completed"
	EndAbandoned = "abandoned"
	EndError     = "error"
)

// State is the full lifecycle position of a game. PriorPhase carries the
// active phase across a pause so GameResumed restores exactly where the game
// was, not a fixed default.
type State struct {
	Status     Status
	Substatus  string
	PriorPhase string
}

// Initial is the state of a freshly created game.
func Initial() State {
	return State{Status: StatusCreated, Substatus: SubAwaitingHost}
}

// EventKind identifies a lifecycle event.
type EventKind string

const (
	HostJoined       EventKind = "HOST_JOINED"
	CountdownStarted EventKind = "COUNTDOWN_STARTED"
	StartGame        EventKind = "START_GAME"
	GameStarted      EventKind = "GAME_STARTED"
	PhaseCompleted   EventKind = "PHASE_COMPLETED"
	GamePaused       EventKind = "GAME_PAUSED"
	GameResumed      EventKind = "GAME_RESUMED"
	GameEnded        EventKind = "GAME_ENDED"
)

// Event drives a lifecycle transition. NextPhase is meaningful only on
// PhaseCompleted; Reason only on GamePaused and GameEnded.
type Event struct {
	Kind      EventKind
	NextPhase string
	Reason    string
}

// Transition computes the next state for an event. It is side-effect-free
// and never rejects: events that have no meaning in the current state return
// it unchanged.
func Transition(s State, e Event) State {
	if s.Status == StatusEnded {
		return s
	}

	// Ending is legal from any non-terminal state: lobbies are abandoned,
	// active games complete or error out.
	if e.Kind == GameEnded {
		return State{Status: StatusEnded, Substatus: endReason(e.Reason)}
	}

	switch s.Status {
	case StatusCreated:
		if e.Kind == HostJoined {
			return State{Status: StatusLobby, Substatus: SubOpen}
		}

	case StatusLobby:
		switch {
		case e.Kind == CountdownStarted && s.Substatus == SubOpen:
			return State{Status: StatusLobby, Substatus: SubCountdown}
		case e.Kind == StartGame && (s.Substatus == SubOpen || s.Substatus == SubCountdown):
			return State{Status: StatusLobby, Substatus: SubStarting}
		case e.Kind == GameStarted && s.Substatus == SubStarting:
			return State{Status: StatusActive, Substatus: PhaseInitialPlacement1}
		}

	case StatusActive:
		switch e.Kind {
		case PhaseCompleted:
			if isPhase(e.NextPhase) {
				return State{Status: StatusActive, Substatus: e.NextPhase}
			}
		case GamePaused:
			return State{
				Status:     StatusPaused,
				Substatus:  pauseReason(e.Reason),
				PriorPhase: s.Substatus,
			}
		}

	case StatusPaused:
		if e.Kind == GameResumed {
			return State{Status: StatusActive, Substatus: s.PriorPhase}
		}
	}

	return s
}

func isPhase(p string) bool {
	switch p {
	case PhaseInitialPlacement1, PhaseInitialPlacement2, PhaseRoll,
		PhaseActions, PhaseDiscard, PhaseRobber, PhaseVictory:
		return true
	}
	return false
}

func pauseReason(r string) string {
	switch r {
	case PauseHostDisconnected, PauseMaintenance, PauseManual:
		return r
	}
	return PauseManual
}

func endReason(r string) string {
	switch r {
	case EndCompleted, EndAbandoned, EndError:
		return r
	}
	return EndError
}
