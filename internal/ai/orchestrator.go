// Package ai drives autonomous players: it schedules their turns after a
// jittered thinking delay, runs a bounded action loop against the decision
// provider, and contains every failure so one broken player never stalls a
// game.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MitchForest/settlers-sub000/internal/clock"
	"github.com/MitchForest/settlers-sub000/internal/config"
	"github.com/MitchForest/settlers-sub000/internal/event"
	"github.com/MitchForest/settlers-sub000/internal/lifecycle"
	"github.com/MitchForest/settlers-sub000/internal/rules"
)

// TurnEnder is the turn-manager peer. Every exit from an autonomous turn
// goes through it, so an autonomous turn can never be left open.
type TurnEnder interface {
	EndTurn(ctx context.Context, gameID, playerID string, finalAction *rules.Action) error
	ForceEndTurn(ctx context.Context, gameID, playerID string) error
}

// PlayerConfig holds one autonomous player's tuning.
type PlayerConfig struct {
	Difficulty        string
	Personality       string
	ThinkingTime      time.Duration
	MaxActionsPerTurn int
}

// Stats counts what one autonomous player has done.
type Stats struct {
	TurnsPlayed  int
	ActionsTaken int
	Failures     int
}

type playerKey struct {
	gameID   string
	playerID string
}

type playerState struct {
	cfg    PlayerConfig
	timer  clock.Timer
	paused bool
	stats  Stats
}

// Orchestrator owns every autonomous player across live games.
type Orchestrator struct {
	mu      sync.Mutex
	players map[playerKey]*playerState

	cfg      config.AIConfig
	provider rules.DecisionProvider
	engine   rules.Engine
	events   event.Store
	ender    TurnEnder
	jitter   func() float64
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// NewOrchestrator creates an Orchestrator. jitter returns a value in [0,1)
// and may be nil for the default source.
func NewOrchestrator(cfg config.AIConfig, provider rules.DecisionProvider, engine rules.Engine, events event.Store, ender TurnEnder, jitter func() float64, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Orchestrator {
	if jitter == nil {
		jitter = rand.Float64
	}
	return &Orchestrator{
		players:  make(map[playerKey]*playerState),
		cfg:      cfg,
		provider: provider,
		engine:   engine,
		events:   events,
		ender:    ender,
		jitter:   jitter,
		logger:   logger,
		tracer:   tp.Tracer("github.com/MitchForest/settlers-sub000/internal/ai"),
		clock:    clk,
	}
}

func (o *Orchestrator) defaultConfig() PlayerConfig {
	diff := o.cfg.Difficulties[o.cfg.DefaultDifficulty]
	return PlayerConfig{
		Difficulty:        o.cfg.DefaultDifficulty,
		Personality:       o.cfg.DefaultPersonality,
		ThinkingTime:      diff.ThinkingTime,
		MaxActionsPerTurn: diff.MaxActionsPerTurn,
	}
}

// InitializePlayer registers an autonomous player with explicit tuning.
// Zero fields fall back to the configured defaults for the difficulty.
func (o *Orchestrator) InitializePlayer(gameID, playerID string, cfg PlayerConfig) {
	def := o.defaultConfig()
	if cfg.Difficulty == "" {
		cfg.Difficulty = def.Difficulty
	}
	if cfg.Personality == "" {
		cfg.Personality = def.Personality
	}
	diff, ok := o.cfg.Difficulties[cfg.Difficulty]
	if !ok {
		diff = o.cfg.Difficulties[def.Difficulty]
	}
	if cfg.ThinkingTime <= 0 {
		cfg.ThinkingTime = diff.ThinkingTime
	}
	if cfg.MaxActionsPerTurn <= 0 {
		cfg.MaxActionsPerTurn = diff.MaxActionsPerTurn
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	key := playerKey{gameID, playerID}
	if ps, ok := o.players[key]; ok {
		ps.cfg = cfg
		return
	}
	o.players[key] = &playerState{cfg: cfg}
}

// ensurePlayer returns the player's state, lazily initializing an
// unconfigured player with defaults. Callers hold o.mu.
func (o *Orchestrator) ensurePlayer(key playerKey) *playerState {
	if ps, ok := o.players[key]; ok {
		return ps
	}
	ps := &playerState{cfg: o.defaultConfig()}
	o.players[key] = ps
	return ps
}

// ScheduleTurn arms the player's thinking timer. The delay is the player's
// thinking time scaled by a random jitter so concurrent autonomous players
// do not act in lockstep. Re-arming cancels any previous timer; a player
// never has more than one pending.
func (o *Orchestrator) ScheduleTurn(ctx context.Context, gameID, playerID string) error {
	o.mu.Lock()
	key := playerKey{gameID, playerID}
	ps := o.ensurePlayer(key)
	if ps.timer != nil {
		ps.timer.Stop()
	}

	scale := o.cfg.JitterLow + o.jitter()*(o.cfg.JitterHigh-o.cfg.JitterLow)
	delay := time.Duration(float64(ps.cfg.ThinkingTime) * scale)
	ps.timer = o.clock.AfterFunc(delay, func() {
		o.ExecuteTurn(context.Background(), gameID, playerID)
	})
	o.mu.Unlock()

	if o.cfg.LogDecisions {
		o.logger.DebugContext(ctx, "autonomous turn scheduled",
			slog.String("game_id", gameID),
			slog.String("player_id", playerID),
			slog.Duration("delay", delay),
		)
	}
	return nil
}

// ExecuteTurn plays the player's turn. If the turn already ended elsewhere
// the call is a silent no-op; any decision or apply failure is converted
// into a forced turn-end rather than propagated.
func (o *Orchestrator) ExecuteTurn(ctx context.Context, gameID, playerID string) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.ExecuteTurn",
		trace.WithAttributes(
			attribute.String("game_id", gameID),
			attribute.String("player_id", playerID),
		),
	)
	defer span.End()

	key := playerKey{gameID, playerID}
	o.mu.Lock()
	ps := o.ensurePlayer(key)
	ps.timer = nil
	o.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			o.containFailure(ctx, key, fmt.Errorf("panic in autonomous turn: %v", r))
		}
	}()

	state, err := o.engine.GetState(ctx, gameID)
	if err != nil {
		o.containFailure(ctx, key, fmt.Errorf("loading game state: %w", err))
		return
	}
	if state.CurrentPlayer != playerID {
		// The turn ended between scheduling and firing. Acting now would be
		// acting out of turn.
		return
	}

	if state.Phase == lifecycle.PhaseActions {
		o.runActionLoop(ctx, key, state)
		return
	}
	o.runSingleAction(ctx, key, state)
}

// runActionLoop requests one decision at a time and applies it, stopping on
// an end-turn decision, a failed action, or the per-turn cap. Every exit
// explicitly ends the turn.
func (o *Orchestrator) runActionLoop(ctx context.Context, key playerKey, state rules.State) {
	o.mu.Lock()
	max := o.players[key].cfg.MaxActionsPerTurn
	o.mu.Unlock()

	for i := 0; i < max; i++ {
		decision, err := o.provider.Decide(ctx, key.gameID, key.playerID, state)
		if err != nil {
			o.containFailure(ctx, key, fmt.Errorf("decision failed: %w", err))
			return
		}
		if decision.Kind != rules.DecideAction {
			break
		}

		result, err := o.engine.ApplyAction(ctx, state, decision.Action)
		if err != nil {
			o.recordFailure(key)
			o.logger.WarnContext(ctx, "autonomous action rejected, ending turn",
				slog.String("game_id", key.gameID),
				slog.String("player_id", key.playerID),
				slog.String("action", string(decision.Action.Kind)),
				slog.Any("error", err),
			)
			break
		}
		if len(result.Events) > 0 {
			if _, err := o.events.AppendBatch(ctx, result.Events); err != nil {
				o.containFailure(ctx, key, fmt.Errorf("persisting action events: %w", err))
				return
			}
		}

		o.recordAction(ctx, key, decision.Action)
		state = result.NewState
	}

	o.finishTurn(ctx, key, nil)
}

// runSingleAction covers phases with exactly one legal move. The decision,
// if any, rides along as the turn's final action.
func (o *Orchestrator) runSingleAction(ctx context.Context, key playerKey, state rules.State) {
	decision, err := o.provider.Decide(ctx, key.gameID, key.playerID, state)
	if err != nil {
		o.containFailure(ctx, key, fmt.Errorf("decision failed: %w", err))
		return
	}

	var final *rules.Action
	if decision.Kind == rules.DecideAction {
		o.recordAction(ctx, key, decision.Action)
		final = &decision.Action
	}
	o.finishTurn(ctx, key, final)
}

func (o *Orchestrator) finishTurn(ctx context.Context, key playerKey, final *rules.Action) {
	o.mu.Lock()
	o.players[key].stats.TurnsPlayed++
	o.mu.Unlock()

	if err := o.ender.EndTurn(ctx, key.gameID, key.playerID, final); err != nil {
		o.logger.WarnContext(ctx, "ending autonomous turn failed",
			slog.String("game_id", key.gameID),
			slog.String("player_id", key.playerID),
			slog.Any("error", err),
		)
	}
}

// containFailure is the orchestrator boundary: the failure is logged,
// counted, and converted into a forced turn-end. Nothing propagates.
func (o *Orchestrator) containFailure(ctx context.Context, key playerKey, err error) {
	o.recordFailure(key)
	o.mu.Lock()
	o.players[key].stats.TurnsPlayed++
	o.mu.Unlock()

	o.logger.ErrorContext(ctx, "autonomous player failed, forcing turn end",
		slog.String("game_id", key.gameID),
		slog.String("player_id", key.playerID),
		slog.Any("error", err),
	)
	if endErr := o.ender.ForceEndTurn(ctx, key.gameID, key.playerID); endErr != nil {
		o.logger.ErrorContext(ctx, "forced turn end failed",
			slog.String("game_id", key.gameID),
			slog.Any("error", endErr),
		)
	}
}

func (o *Orchestrator) recordFailure(key playerKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.players[key].stats.Failures++
}

func (o *Orchestrator) recordAction(ctx context.Context, key playerKey, action rules.Action) {
	o.mu.Lock()
	o.players[key].stats.ActionsTaken++
	o.mu.Unlock()

	if o.cfg.LogDecisions {
		o.logger.DebugContext(ctx, "autonomous action applied",
			slog.String("game_id", key.gameID),
			slog.String("player_id", key.playerID),
			slog.String("action", string(action.Kind)),
		)
	}
}

// Pause cancels the player's pending thinking timer, if any.
func (o *Orchestrator) Pause(gameID, playerID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ps := o.ensurePlayer(playerKey{gameID, playerID})
	ps.paused = true
	if ps.timer != nil {
		ps.timer.Stop()
		ps.timer = nil
	}
}

// Resume re-schedules the player's turn, but only if it is still their turn:
// state may have moved on during the pause.
func (o *Orchestrator) Resume(ctx context.Context, gameID, playerID string) error {
	o.mu.Lock()
	ps := o.ensurePlayer(playerKey{gameID, playerID})
	ps.paused = false
	o.mu.Unlock()

	state, err := o.engine.GetState(ctx, gameID)
	if err != nil {
		return fmt.Errorf("loading game state: %w", err)
	}
	if state.CurrentPlayer != playerID {
		return nil
	}
	return o.ScheduleTurn(ctx, gameID, playerID)
}

// Stats returns the player's counters.
func (o *Orchestrator) Stats(gameID, playerID string) (Stats, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ps, ok := o.players[playerKey{gameID, playerID}]
	if !ok {
		return Stats{}, false
	}
	return ps.stats, true
}

// Forget drops every autonomous player of a game and cancels their timers.
// The registry calls it before evicting a game.
func (o *Orchestrator) Forget(gameID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key, ps := range o.players {
		if key.gameID != gameID {
			continue
		}
		if ps.timer != nil {
			ps.timer.Stop()
		}
		delete(o.players, key)
	}
}
