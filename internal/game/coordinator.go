package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MitchForest/settlers-sub000/internal/ai"
	"github.com/MitchForest/settlers-sub000/internal/clock"
	"github.com/MitchForest/settlers-sub000/internal/event"
	"github.com/MitchForest/settlers-sub000/internal/lifecycle"
	"github.com/MitchForest/settlers-sub000/internal/rules"
	"github.com/MitchForest/settlers-sub000/internal/store"
)

var (
	// ErrJoinClosed rejects a join when the game is not an open lobby.
	ErrJoinClosed = errors.New("game is not open for joining")
	// ErrStartRejected rejects a start when the lobby cannot start.
	ErrStartRejected = errors.New("game cannot start from its current state")
	// ErrNotHost rejects host-only commands from other players.
	ErrNotHost = errors.New("only the host can do that")
	// ErrNotInGame rejects play commands when the game is not in progress.
	ErrNotInGame = errors.New("game is not in progress")
)

// TurnCoordinator is what the coordinator needs from the turn manager.
type TurnCoordinator interface {
	StartTurn(ctx context.Context, gameID, playerID string, override time.Duration) error
	EndTurn(ctx context.Context, gameID, playerID string, finalAction *rules.Action) error
	PauseGame(ctx context.Context, gameID string) (bool, error)
	ResumeGame(ctx context.Context, gameID string) (bool, error)
	Forget(gameID string)
}

// PlayerInitializer is what the coordinator needs from the autonomous
// orchestrator.
type PlayerInitializer interface {
	InitializePlayer(gameID, playerID string, cfg ai.PlayerConfig)
	Forget(gameID string)
}

// Coordinator is the command entrypoint: it validates against the lifecycle
// machine, runs the rules engine, persists the resulting events, and feeds
// them back through the bridge.
type Coordinator struct {
	registry *Registry
	events   event.Store
	games    store.GameRepository
	players  store.PlayerRepository
	engine   rules.Engine
	turns    TurnCoordinator
	bots     PlayerInitializer
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(registry *Registry, events event.Store, games store.GameRepository, players store.PlayerRepository, engine rules.Engine, turns TurnCoordinator, bots PlayerInitializer, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Coordinator {
	return &Coordinator{
		registry: registry,
		events:   events,
		games:    games,
		players:  players,
		engine:   engine,
		turns:    turns,
		bots:     bots,
		logger:   logger,
		tracer:   tp.Tracer("github.com/MitchForest/settlers-sub000/internal/game"),
		clock:    clk,
	}
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newJoinCode() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// register loads a fresh machine into the registry and keeps the stored
// status in sync with every transition.
func (c *Coordinator) register(gameID string) *Entry {
	machine := lifecycle.NewMachine(gameID)
	entry := c.registry.Put(gameID, machine)
	entry.Machine.Subscribe(func(s lifecycle.State) {
		if err := c.games.UpdateStatus(context.Background(), gameID, string(s.Status), s.Substatus); err != nil {
			c.logger.Warn("failed to sync game status",
				slog.String("game_id", gameID),
				slog.Any("error", err),
			)
		}
	})
	return entry
}

// CreateGame creates a new game aggregate with the host as its first
// player and returns the stored game record.
func (c *Coordinator) CreateGame(ctx context.Context, hostID, hostName string) (*store.Game, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.CreateGame",
		trace.WithAttributes(attribute.String("host_id", hostID)),
	)
	defer span.End()

	gameID := uuid.NewString()
	code := newJoinCode()

	seedData, err := json.Marshal(event.GameCreatedData{Code: code, HostID: hostID})
	if err != nil {
		return nil, fmt.Errorf("encoding game created payload: %w", err)
	}
	if _, err := c.events.CreateAggregate(ctx, gameID, &event.Event{
		AggregateID: gameID,
		Type:        event.GameCreated,
		Data:        seedData,
	}); err != nil {
		return nil, fmt.Errorf("creating game aggregate: %w", err)
	}

	now := c.clock.Now()
	g := &store.Game{
		ID:        gameID,
		Code:      code,
		HostID:    hostID,
		Status:    string(lifecycle.StatusCreated),
		Substatus: lifecycle.SubAwaitingHost,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.games.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("storing game: %w", err)
	}

	entry := c.register(gameID)

	if _, err := c.addPlayer(ctx, entry, hostID, hostName, false); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "game created",
		slog.String("game_id", gameID),
		slog.String("code", code),
		slog.String("host_id", hostID),
	)
	return g, nil
}

// JoinGame seats a human player in an open lobby.
func (c *Coordinator) JoinGame(ctx context.Context, gameID, playerID, name string) (*store.Player, error) {
	entry, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return c.addPlayer(ctx, entry, playerID, name, false)
}

// AddAIPlayer seats an autonomous player in an open lobby and registers it
// with the orchestrator.
func (c *Coordinator) AddAIPlayer(ctx context.Context, gameID, name, difficulty string) (*store.Player, error) {
	entry, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	p, err := c.addPlayer(ctx, entry, uuid.NewString(), name, true)
	if err != nil {
		return nil, err
	}
	c.bots.InitializePlayer(gameID, p.ID, ai.PlayerConfig{Difficulty: difficulty})
	return p, nil
}

func (c *Coordinator) addPlayer(ctx context.Context, entry *Entry, playerID, name string, isAI bool) (*store.Player, error) {
	var p *store.Player
	var err error
	entry.Do(func() {
		// The first join is what opens the lobby, so a still-created game
		// admits exactly one player: the host.
		if entry.Machine.State().Status != lifecycle.StatusCreated && !entry.Machine.CanJoin() {
			err = ErrJoinClosed
			return
		}

		var seated []store.Player
		seated, err = c.players.ListByGame(ctx, entry.GameID)
		if err != nil {
			err = fmt.Errorf("listing players: %w", err)
			return
		}

		p = &store.Player{
			ID:        playerID,
			GameID:    entry.GameID,
			Name:      name,
			Seat:      len(seated),
			IsAI:      isAI,
			CreatedAt: c.clock.Now(),
		}
		if err = c.players.Add(ctx, p); err != nil {
			err = fmt.Errorf("seating player: %w", err)
			return
		}

		evtType := event.PlayerJoined
		var data []byte
		if isAI {
			evtType = event.AIPlayerAdded
			data, err = json.Marshal(event.AIPlayerAddedData{Name: name, Seat: p.Seat})
		} else {
			data, err = json.Marshal(event.PlayerJoinedData{Name: name, Seat: p.Seat})
		}
		if err != nil {
			err = fmt.Errorf("encoding join payload: %w", err)
			return
		}

		var appended event.Event
		appended, err = c.events.Append(ctx, event.Event{
			AggregateID: entry.GameID,
			Type:        evtType,
			PlayerID:    playerID,
			Data:        data,
		})
		if err != nil {
			err = fmt.Errorf("persisting join event: %w", err)
			return
		}
		err = entry.Bridge.ApplyOne(appended)
	})
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "player joined",
		slog.String("game_id", entry.GameID),
		slog.String("player_id", playerID),
		slog.Bool("autonomous", isAI),
	)
	return p, nil
}

// StartGame begins play. Only the host may start, and only from an open or
// counting-down lobby with at least two seated players.
func (c *Coordinator) StartGame(ctx context.Context, gameID, callerID string) error {
	ctx, span := c.tracer.Start(ctx, "Coordinator.StartGame",
		trace.WithAttributes(attribute.String("game_id", gameID)),
	)
	defer span.End()

	entry, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return err
	}

	g, err := c.games.GetByID(ctx, gameID)
	if err != nil {
		return fmt.Errorf("loading game: %w", err)
	}
	if g.HostID != callerID {
		return ErrNotHost
	}

	var first string
	entry.Do(func() {
		if !entry.Machine.CanStart() {
			err = ErrStartRejected
			return
		}

		var seated []store.Player
		seated, err = c.players.ListByGame(ctx, gameID)
		if err != nil {
			err = fmt.Errorf("listing players: %w", err)
			return
		}
		if len(seated) < 2 {
			err = fmt.Errorf("%w: need at least 2 players", ErrStartRejected)
			return
		}

		order := make([]string, len(seated))
		for i, p := range seated {
			order[i] = p.ID
		}
		first = order[0]

		var data []byte
		data, err = json.Marshal(event.GameStartedData{PlayerOrder: order})
		if err != nil {
			err = fmt.Errorf("encoding game started payload: %w", err)
			return
		}
		var appended event.Event
		appended, err = c.events.Append(ctx, event.Event{
			AggregateID: gameID,
			Type:        event.GameStarted,
			Data:        data,
		})
		if err != nil {
			err = fmt.Errorf("persisting game started event: %w", err)
			return
		}
		err = entry.Bridge.ApplyOne(appended)
	})
	if err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "game started", slog.String("game_id", gameID))
	return c.turns.StartTurn(ctx, gameID, first, 0)
}

// SubmitAction validates and applies one player action, persisting the
// events it produced and feeding them through the bridge.
func (c *Coordinator) SubmitAction(ctx context.Context, gameID string, action rules.Action) error {
	ctx, span := c.tracer.Start(ctx, "Coordinator.SubmitAction",
		trace.WithAttributes(
			attribute.String("game_id", gameID),
			attribute.String("action", string(action.Kind)),
		),
	)
	defer span.End()

	entry, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return err
	}

	entry.Do(func() {
		if _, ok := entry.Machine.CurrentPhase(); !ok {
			err = ErrNotInGame
			return
		}

		var state rules.State
		state, err = c.engine.GetState(ctx, gameID)
		if err != nil {
			err = fmt.Errorf("loading game state: %w", err)
			return
		}

		var result rules.Result
		result, err = c.engine.ApplyAction(ctx, state, action)
		if err != nil {
			return
		}
		if len(result.Events) == 0 {
			return
		}

		var appended []event.Event
		appended, err = c.events.AppendBatch(ctx, result.Events)
		if err != nil {
			err = fmt.Errorf("persisting action events: %w", err)
			return
		}
		err = entry.Bridge.Apply(appended)
	})
	return err
}

// EndTurn forwards a player's end-of-turn to the turn manager.
func (c *Coordinator) EndTurn(ctx context.Context, gameID, playerID string, finalAction *rules.Action) error {
	if _, err := c.LoadGame(ctx, gameID); err != nil {
		return err
	}
	return c.turns.EndTurn(ctx, gameID, playerID, finalAction)
}

// PauseGame pauses play, recording why. It reports false when the game was
// not pausable (already paused, or not in progress).
func (c *Coordinator) PauseGame(ctx context.Context, gameID, reason string) (bool, error) {
	entry, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return false, err
	}

	transitioned := false
	entry.Do(func() {
		if entry.Machine.State().Status != lifecycle.StatusActive {
			return
		}

		var data []byte
		data, err = json.Marshal(event.GamePausedData{Reason: reason})
		if err != nil {
			err = fmt.Errorf("encoding pause payload: %w", err)
			return
		}
		var appended event.Event
		appended, err = c.events.Append(ctx, event.Event{
			AggregateID: gameID,
			Type:        event.GamePaused,
			Data:        data,
		})
		if err != nil {
			err = fmt.Errorf("persisting pause event: %w", err)
			return
		}
		if err = entry.Bridge.ApplyOne(appended); err != nil {
			return
		}
		transitioned = true
	})
	if err != nil || !transitioned {
		return false, err
	}

	if _, err := c.turns.PauseGame(ctx, gameID); err != nil {
		return true, err
	}
	return true, nil
}

// ResumeGame resumes paused play with the turn's remaining time budget.
func (c *Coordinator) ResumeGame(ctx context.Context, gameID string) (bool, error) {
	entry, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return false, err
	}

	transitioned := false
	entry.Do(func() {
		if entry.Machine.State().Status != lifecycle.StatusPaused {
			return
		}

		var appended event.Event
		appended, err = c.events.Append(ctx, event.Event{
			AggregateID: gameID,
			Type:        event.GameResumed,
			Data:        json.RawMessage(`{}`),
		})
		if err != nil {
			err = fmt.Errorf("persisting resume event: %w", err)
			return
		}
		if err = entry.Bridge.ApplyOne(appended); err != nil {
			return
		}
		transitioned = true
	})
	if err != nil || !transitioned {
		return false, err
	}

	if _, err := c.turns.ResumeGame(ctx, gameID); err != nil {
		return true, err
	}
	return true, nil
}

// ApplyEvent feeds an event appended outside the coordinator's own command
// paths into the game's lifecycle bridge. The turn manager is bound to it
// via SetApplier so timer-driven appends move the live machine the same way
// command-driven ones do.
func (c *Coordinator) ApplyEvent(evt event.Event) {
	entry, ok := c.registry.Get(evt.AggregateID)
	if !ok {
		return
	}
	var err error
	entry.Do(func() {
		err = entry.Bridge.ApplyOne(evt)
	})
	if err != nil {
		c.logger.Error("applying appended event to lifecycle machine failed",
			slog.String("game_id", evt.AggregateID),
			slog.String("type", string(evt.Type)),
			slog.Any("error", err),
		)
	}
}

// LoadGame returns the live entry for a game, replaying its event history
// into a fresh machine if it is not loaded.
func (c *Coordinator) LoadGame(ctx context.Context, gameID string) (*Entry, error) {
	if entry, ok := c.registry.Get(gameID); ok {
		return entry, nil
	}

	ctx, span := c.tracer.Start(ctx, "Coordinator.LoadGame",
		trace.WithAttributes(attribute.String("game_id", gameID)),
	)
	defer span.End()

	history, err := c.events.Read(ctx, gameID, event.Filter{})
	if err != nil {
		return nil, fmt.Errorf("reading event history: %w", err)
	}
	if len(history) == 0 {
		return nil, store.ErrNotFound
	}

	entry := c.register(gameID)
	var applyErr error
	entry.Do(func() {
		applyErr = entry.Bridge.Apply(history)
	})
	if applyErr != nil {
		return nil, fmt.Errorf("replaying event history: %w", applyErr)
	}

	c.logger.InfoContext(ctx, "game recovered from event history",
		slog.String("game_id", gameID),
		slog.Int("events", len(history)),
		slog.String("status", string(entry.Machine.State().Status)),
	)
	return entry, nil
}

// RecoverActiveGames replays every non-finished game from the event store
// and, for games in progress, re-arms the current player's turn. This is
// used on leader startup to restore state after a failover.
func (c *Coordinator) RecoverActiveGames(ctx context.Context) (int, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.RecoverActiveGames")
	defer span.End()

	games, err := c.games.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active games: %w", err)
	}

	recovered := 0
	for _, g := range games {
		entry, loadErr := c.LoadGame(ctx, g.ID)
		if loadErr != nil {
			c.logger.WarnContext(ctx, "failed to replay game during recovery",
				slog.String("game_id", g.ID),
				slog.Any("error", loadErr),
			)
			continue
		}
		recovered++

		// Paused games keep their timers off until resumed; a game mid-turn
		// lost its timer with the old leader, so the current player gets a
		// fresh full turn.
		if entry.Machine.State().Status != lifecycle.StatusActive {
			continue
		}
		state, stateErr := c.engine.GetState(ctx, g.ID)
		if stateErr != nil || state.CurrentPlayer == "" {
			c.logger.WarnContext(ctx, "could not restart turn for recovered game",
				slog.String("game_id", g.ID),
				slog.Any("error", stateErr),
			)
			continue
		}
		if turnErr := c.turns.StartTurn(ctx, g.ID, state.CurrentPlayer, 0); turnErr != nil {
			c.logger.WarnContext(ctx, "could not restart turn for recovered game",
				slog.String("game_id", g.ID),
				slog.Any("error", turnErr),
			)
		}
	}
	return recovered, nil
}
