// Package turn coordinates whose turn it is, for how long, and what happens
// when the deadline passes. One Manager serves every live game; per-game
// mutation is serialized by the callers that own each game.
package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MitchForest/settlers-sub000/internal/clock"
	"github.com/MitchForest/settlers-sub000/internal/event"
	"github.com/MitchForest/settlers-sub000/internal/lifecycle"
	"github.com/MitchForest/settlers-sub000/internal/rules"
	"github.com/MitchForest/settlers-sub000/internal/store"
)

var (
	// ErrNotYourTurn rejects a turn-protocol call from a player who does not
	// hold the current turn. The call has no side effects.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrNoActiveTurn is returned when a game has no turn in progress.
	ErrNoActiveTurn = errors.New("no active turn")
)

// Scheduler is the autonomous-player peer. The manager delegates turns of
// autonomous players to it instead of arming a deadline timer.
type Scheduler interface {
	ScheduleTurn(ctx context.Context, gameID, playerID string) error
	Pause(gameID, playerID string)
	Resume(ctx context.Context, gameID, playerID string) error
}

// Config holds the per-phase timeout table. Phases absent from the table
// use Default.
type Config struct {
	PhaseTimeouts map[string]time.Duration
	Default       time.Duration
}

// Notification describes a turn that just started.
type Notification struct {
	GameID       string
	PlayerID     string
	Phase        string
	Deadline     time.Time
	LegalActions []rules.ActionKind
}

// State is a snapshot of one game's turn.
type State struct {
	GameID    string
	PlayerID  string
	Phase     string
	Deadline  time.Time
	Paused    bool
	Remaining time.Duration
}

type turnEntry struct {
	playerID  string
	phase     string
	startedAt time.Time
	timeout   time.Duration
	deadline  time.Time
	timer     clock.Timer
	paused    bool
	remaining time.Duration
	isAI      bool
}

// Manager owns the active turn of every live game.
type Manager struct {
	mu    sync.Mutex
	turns map[string]*turnEntry

	engine    rules.Engine
	scheduler Scheduler
	events    event.Store
	players   store.PlayerRepository
	cfg       Config
	notify    func(Notification)
	applier   func(event.Event)
	logger    *slog.Logger
	tracer    trace.Tracer
	clock     clock.Clock
}

// NewManager creates a turn Manager. notify may be nil.
func NewManager(engine rules.Engine, scheduler Scheduler, events event.Store, players store.PlayerRepository, cfg Config, notify func(Notification), logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	return &Manager{
		turns:     make(map[string]*turnEntry),
		engine:    engine,
		scheduler: scheduler,
		events:    events,
		players:   players,
		cfg:       cfg,
		notify:    notify,
		logger:    logger,
		tracer:    tp.Tracer("github.com/MitchForest/settlers-sub000/internal/turn"),
		clock:     clk,
	}
}

// SetScheduler injects the autonomous-player peer. The manager and the
// orchestrator reference each other, so the side constructed first is bound
// here before any turn starts.
func (m *Manager) SetScheduler(s Scheduler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduler = s
}

// SetApplier registers the callback receiving every event the manager
// appends. The coordinator binds it to the game's lifecycle bridge so the
// live machine tracks timer-driven appends, not just command-driven ones.
func (m *Manager) SetApplier(fn func(event.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applier = fn
}

func (m *Manager) feed(evt event.Event) {
	m.mu.Lock()
	applier := m.applier
	m.mu.Unlock()
	if applier != nil {
		applier(evt)
	}
}

func (m *Manager) timeoutFor(phase string) time.Duration {
	if d, ok := m.cfg.PhaseTimeouts[phase]; ok {
		return d
	}
	return m.cfg.Default
}

// StartTurn begins a turn for playerID in gameID's current phase. A zero
// override uses the configured phase timeout. Any previously armed deadline
// timer for the game is cancelled before the new turn is recorded.
func (m *Manager) StartTurn(ctx context.Context, gameID, playerID string, override time.Duration) error {
	ctx, span := m.tracer.Start(ctx, "Manager.StartTurn",
		trace.WithAttributes(
			attribute.String("game_id", gameID),
			attribute.String("player_id", playerID),
		),
	)
	defer span.End()

	state, err := m.engine.GetState(ctx, gameID)
	if err != nil {
		return fmt.Errorf("loading game state: %w", err)
	}

	timeout := override
	if timeout <= 0 {
		timeout = m.timeoutFor(state.Phase)
	}

	m.mu.Lock()
	scheduler := m.scheduler
	m.mu.Unlock()

	isAI := false
	if player, perr := m.players.GetByID(ctx, playerID); perr == nil {
		isAI = player.IsAI && scheduler != nil
	} else {
		m.logger.WarnContext(ctx, "player lookup failed, treating as human",
			slog.String("player_id", playerID),
			slog.Any("error", perr),
		)
	}

	now := m.clock.Now()
	entry := &turnEntry{
		playerID:  playerID,
		phase:     state.Phase,
		startedAt: now,
		timeout:   timeout,
		deadline:  now.Add(timeout),
		isAI:      isAI,
	}

	m.mu.Lock()
	if prev, ok := m.turns[gameID]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	m.turns[gameID] = entry
	m.mu.Unlock()

	data, err := json.Marshal(event.TurnStartedData{Phase: state.Phase, Deadline: entry.deadline})
	if err != nil {
		return fmt.Errorf("encoding turn started payload: %w", err)
	}
	appended, err := m.events.Append(ctx, event.Event{
		AggregateID: gameID,
		Type:        event.TurnStarted,
		PlayerID:    playerID,
		Data:        data,
	})
	if err != nil {
		m.mu.Lock()
		delete(m.turns, gameID)
		m.mu.Unlock()
		return fmt.Errorf("persisting turn started event: %w", err)
	}
	m.feed(appended)

	if isAI {
		if err := scheduler.ScheduleTurn(ctx, gameID, playerID); err != nil {
			m.logger.ErrorContext(ctx, "scheduling autonomous turn failed, ending defensively",
				slog.String("game_id", gameID),
				slog.String("player_id", playerID),
				slog.Any("error", err),
			)
			return m.endTurn(ctx, gameID, playerID, nil, event.EndReasonForced)
		}
	} else {
		m.mu.Lock()
		entry.timer = m.clock.AfterFunc(timeout, func() {
			m.handleTimeout(gameID, entry)
		})
		m.mu.Unlock()
	}

	if m.notify != nil {
		m.notify(Notification{
			GameID:       gameID,
			PlayerID:     playerID,
			Phase:        state.Phase,
			Deadline:     entry.deadline,
			LegalActions: m.engine.ValidActions(state),
		})
	}

	m.logger.InfoContext(ctx, "turn started",
		slog.String("game_id", gameID),
		slog.String("player_id", playerID),
		slog.String("phase", state.Phase),
		slog.Duration("timeout", timeout),
		slog.Bool("autonomous", isAI),
	)
	return nil
}

// EndTurn ends playerID's turn, applying finalAction first if supplied. A
// failed final action is logged and never blocks advancement. When the game
// is not terminal afterwards, the next player in seat order gets a turn.
func (m *Manager) EndTurn(ctx context.Context, gameID, playerID string, finalAction *rules.Action) error {
	return m.endTurn(ctx, gameID, playerID, finalAction, event.EndReasonAction)
}

// ForceEndTurn ends playerID's turn without a final action, recording that
// the end was forced rather than chosen. The autonomous orchestrator uses it
// to contain decision failures.
func (m *Manager) ForceEndTurn(ctx context.Context, gameID, playerID string) error {
	return m.endTurn(ctx, gameID, playerID, nil, event.EndReasonForced)
}

func (m *Manager) endTurn(ctx context.Context, gameID, playerID string, finalAction *rules.Action, reason string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.EndTurn",
		trace.WithAttributes(
			attribute.String("game_id", gameID),
			attribute.String("player_id", playerID),
			attribute.String("reason", reason),
		),
	)
	defer span.End()

	m.mu.Lock()
	entry, ok := m.turns[gameID]
	if !ok {
		m.mu.Unlock()
		return ErrNoActiveTurn
	}
	if entry.playerID != playerID {
		m.mu.Unlock()
		return ErrNotYourTurn
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(m.turns, gameID)
	m.mu.Unlock()

	if finalAction != nil {
		m.applyFinalAction(ctx, gameID, *finalAction)
	}

	data, err := json.Marshal(event.TurnEndedData{Reason: reason})
	if err != nil {
		return fmt.Errorf("encoding turn ended payload: %w", err)
	}
	if appended, err := m.events.Append(ctx, event.Event{
		AggregateID: gameID,
		Type:        event.TurnEnded,
		PlayerID:    playerID,
		Data:        data,
	}); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist turn ended event",
			slog.String("game_id", gameID),
			slog.Any("error", err),
		)
	} else {
		m.feed(appended)
	}

	state, err := m.engine.GetState(ctx, gameID)
	if err != nil {
		return fmt.Errorf("reloading game state: %w", err)
	}

	if state.Terminal {
		return m.endGame(ctx, gameID, state)
	}

	next, err := nextPlayer(state.PlayerOrder, playerID)
	if err != nil {
		return err
	}
	return m.StartTurn(ctx, gameID, next, 0)
}

// applyFinalAction applies the action the player bundled with their turn
// end. Leaving a turn stuck is worse than dropping one action, so failures
// are logged and advancement proceeds.
func (m *Manager) applyFinalAction(ctx context.Context, gameID string, action rules.Action) {
	state, err := m.engine.GetState(ctx, gameID)
	if err != nil {
		m.logger.WarnContext(ctx, "loading state for final action failed",
			slog.String("game_id", gameID),
			slog.Any("error", err),
		)
		return
	}
	result, err := m.engine.ApplyAction(ctx, state, action)
	if err != nil {
		m.logger.WarnContext(ctx, "final action rejected, advancing turn anyway",
			slog.String("game_id", gameID),
			slog.String("action", string(action.Kind)),
			slog.Any("error", err),
		)
		return
	}
	if len(result.Events) == 0 {
		return
	}
	appended, err := m.events.AppendBatch(ctx, result.Events)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to persist final action events",
			slog.String("game_id", gameID),
			slog.Any("error", err),
		)
		return
	}
	for _, evt := range appended {
		m.feed(evt)
	}
}

func (m *Manager) endGame(ctx context.Context, gameID string, state rules.State) error {
	data, err := json.Marshal(event.GameEndedData{
		Reason:   lifecycle.EndCompleted,
		WinnerID: state.WinnerID,
	})
	if err != nil {
		return fmt.Errorf("encoding game ended payload: %w", err)
	}
	appended, err := m.events.Append(ctx, event.Event{
		AggregateID: gameID,
		Type:        event.GameEnded,
		Data:        data,
	})
	if err != nil {
		return fmt.Errorf("persisting game ended event: %w", err)
	}
	m.feed(appended)

	m.logger.InfoContext(ctx, "game ended",
		slog.String("game_id", gameID),
		slog.String("winner_id", state.WinnerID),
	)
	return nil
}

// handleTimeout fires when a human player's deadline passes without an end
// of turn. The fallback is phase-specific and always a legal action, so the
// rules layer can never reject it.
func (m *Manager) handleTimeout(gameID string, fired *turnEntry) {
	ctx := context.Background()
	ctx, span := m.tracer.Start(ctx, "Manager.handleTimeout",
		trace.WithAttributes(attribute.String("game_id", gameID)),
	)
	defer span.End()

	m.mu.Lock()
	current, ok := m.turns[gameID]
	if !ok || current != fired || current.paused {
		// The turn ended or was paused between the deadline and this
		// callback running. Stale timers never act.
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.logger.WarnContext(ctx, "turn deadline passed",
		slog.String("game_id", gameID),
		slog.String("player_id", fired.playerID),
		slog.String("phase", fired.phase),
	)

	fallback := timeoutFallback(fired.phase, fired.playerID)
	if err := m.endTurn(ctx, gameID, fired.playerID, fallback, event.EndReasonTimeout); err != nil {
		m.logger.ErrorContext(ctx, "ending timed-out turn failed",
			slog.String("game_id", gameID),
			slog.Any("error", err),
		)
	}
}

// timeoutFallback picks the action taken on the player's behalf when their
// deadline passes. A nil payload asks the engine for any legal variant.
func timeoutFallback(phase, playerID string) *rules.Action {
	switch phase {
	case lifecycle.PhaseRoll:
		return &rules.Action{Kind: rules.ActionRollDice, PlayerID: playerID}
	case lifecycle.PhaseDiscard:
		return &rules.Action{Kind: rules.ActionDiscardResources, PlayerID: playerID}
	default:
		return nil
	}
}

// PauseGame suspends the current turn, preserving the unexpired part of its
// deadline. It reports false without error when no turn is active or the
// game is already paused.
func (m *Manager) PauseGame(ctx context.Context, gameID string) (bool, error) {
	m.mu.Lock()
	entry, ok := m.turns[gameID]
	if !ok || entry.paused {
		m.mu.Unlock()
		return false, nil
	}

	remaining := entry.deadline.Sub(m.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	entry.paused = true
	entry.remaining = remaining
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
	playerID, isAI := entry.playerID, entry.isAI
	scheduler := m.scheduler
	m.mu.Unlock()

	if isAI && scheduler != nil {
		scheduler.Pause(gameID, playerID)
	}

	m.logger.InfoContext(ctx, "turn paused",
		slog.String("game_id", gameID),
		slog.String("player_id", playerID),
		slog.Duration("remaining", remaining),
	)
	return true, nil
}

// ResumeGame restores a paused turn with exactly the time budget it had
// left, not the full phase timeout. It reports false without error when the
// game is not paused.
func (m *Manager) ResumeGame(ctx context.Context, gameID string) (bool, error) {
	m.mu.Lock()
	entry, ok := m.turns[gameID]
	if !ok || !entry.paused {
		m.mu.Unlock()
		return false, nil
	}

	now := m.clock.Now()
	entry.paused = false
	entry.startedAt = now
	entry.timeout = entry.remaining
	entry.deadline = now.Add(entry.remaining)
	remaining := entry.remaining
	entry.remaining = 0
	playerID, isAI := entry.playerID, entry.isAI
	scheduler := m.scheduler
	if !isAI {
		entry.timer = m.clock.AfterFunc(remaining, func() {
			m.handleTimeout(gameID, entry)
		})
	}
	m.mu.Unlock()

	if isAI && scheduler != nil {
		if err := scheduler.Resume(ctx, gameID, playerID); err != nil {
			m.logger.ErrorContext(ctx, "resuming autonomous turn failed",
				slog.String("game_id", gameID),
				slog.String("player_id", playerID),
				slog.Any("error", err),
			)
		}
	}

	m.logger.InfoContext(ctx, "turn resumed",
		slog.String("game_id", gameID),
		slog.String("player_id", playerID),
		slog.Duration("remaining", remaining),
	)
	return true, nil
}

// GetTurnState returns a snapshot of the game's current turn.
func (m *Manager) GetTurnState(gameID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.turns[gameID]
	if !ok {
		return State{}, false
	}
	return State{
		GameID:    gameID,
		PlayerID:  entry.playerID,
		Phase:     entry.phase,
		Deadline:  entry.deadline,
		Paused:    entry.paused,
		Remaining: entry.remaining,
	}, true
}

// GetRemainingTime returns how much of the current turn's budget is left.
func (m *Manager) GetRemainingTime(gameID string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.turns[gameID]
	if !ok {
		return 0, false
	}
	if entry.paused {
		return entry.remaining, true
	}
	remaining := entry.deadline.Sub(m.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Forget drops a game's turn entry and cancels its timer. The registry
// calls it before evicting a game so no callback touches evicted state.
func (m *Manager) Forget(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.turns[gameID]; ok {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(m.turns, gameID)
	}
}

func nextPlayer(order []string, current string) (string, error) {
	if len(order) == 0 {
		return "", errors.New("empty player order")
	}
	for i, id := range order {
		if id == current {
			return order[(i+1)%len(order)], nil
		}
	}
	return "", fmt.Errorf("player %s not in player order", current)
}
