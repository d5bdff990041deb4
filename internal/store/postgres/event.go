package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/MitchForest/settlers-sub000/internal/clock"
	"github.com/MitchForest/settlers-sub000/internal/event"
)

// EventStore implements event.Store backed by Postgres. Events for one
// aggregate are segregated into two physical streams (game_events and
// player_events) that share a single sequence counter row, so the merged
// read order is the true append order.
type EventStore struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewEventStore returns a new EventStore.
func NewEventStore(db *sqlx.DB, clk clock.Clock) *EventStore {
	return &EventStore{db: db, clock: clk}
}

func (s *EventStore) CreateAggregate(ctx context.Context, aggregateID string, seed *event.Event) (event.Event, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO event_counters (aggregate_id, next_sequence) VALUES ($1, 1)`,
		aggregateID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return event.Event{}, fmt.Errorf("aggregate %s: %w", aggregateID, event.ErrAggregateExists)
		}
		return event.Event{}, fmt.Errorf("creating sequence counter: %w", err)
	}

	var seeded event.Event
	if seed != nil {
		evt := *seed
		evt.AggregateID = aggregateID
		seeded, err = s.appendTx(ctx, tx, evt)
		if err != nil {
			return event.Event{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return event.Event{}, fmt.Errorf("committing transaction: %w", err)
	}
	return seeded, nil
}

func (s *EventStore) Append(ctx context.Context, evt event.Event) (event.Event, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	appended, err := s.appendTx(ctx, tx, evt)
	if err != nil {
		return event.Event{}, err
	}

	if err := tx.Commit(); err != nil {
		return event.Event{}, fmt.Errorf("committing transaction: %w", err)
	}
	return appended, nil
}

func (s *EventStore) AppendBatch(ctx context.Context, events []event.Event) ([]event.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	for _, evt := range events[1:] {
		if evt.AggregateID != events[0].AggregateID {
			return nil, fmt.Errorf("%w: batch mixes aggregates %s and %s",
				event.ErrInvalidPayload, events[0].AggregateID, evt.AggregateID)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	appended := make([]event.Event, 0, len(events))
	for _, evt := range events {
		sequenced, err := s.appendTx(ctx, tx, evt)
		if err != nil {
			return nil, err
		}
		appended = append(appended, sequenced)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return appended, nil
}

// appendTx assigns the next sequence number and inserts the event inside the
// caller's transaction. The counter update is a single atomic
// read-modify-write so concurrent appenders are serialized by the database,
// never by application logic.
func (s *EventStore) appendTx(ctx context.Context, tx *sqlx.Tx, evt event.Event) (event.Event, error) {
	cat, err := event.Validate(evt)
	if err != nil {
		return event.Event{}, err
	}

	var seq uint64
	err = tx.QueryRowxContext(ctx,
		`UPDATE event_counters
		    SET next_sequence = next_sequence + 1
		  WHERE aggregate_id = $1
		  RETURNING next_sequence - 1`,
		evt.AggregateID,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, fmt.Errorf("aggregate %s: %w", evt.AggregateID, event.ErrAggregateNotFound)
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("allocating sequence: %w", err)
	}

	evt.Sequence = seq
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock.Now().UTC()
	}
	if len(evt.Data) == 0 {
		evt.Data = []byte(`{}`)
	}

	switch cat {
	case event.CategoryPlayer:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO player_events (id, aggregate_id, type, player_id, data, sequence, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			evt.ID, evt.AggregateID, evt.Type, evt.PlayerID, evt.Data, evt.Sequence, evt.CreatedAt,
		)
	case event.CategoryGame:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO game_events (id, aggregate_id, type, data, sequence, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			evt.ID, evt.AggregateID, evt.Type, evt.Data, evt.Sequence, evt.CreatedAt,
		)
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("inserting event (aggregate=%s, sequence=%d): %w",
			evt.AggregateID, evt.Sequence, err)
	}
	return evt, nil
}

func (s *EventStore) Read(ctx context.Context, aggregateID string, f event.Filter) ([]event.Event, error) {
	gameTypes, playerTypes, all := splitTypes(f.Types)

	var merged []event.Event
	if all || len(gameTypes) > 0 {
		evts, err := s.readStream(ctx, "game_events", false, aggregateID, f, gameTypes)
		if err != nil {
			return nil, err
		}
		merged = append(merged, evts...)
	}
	if all || len(playerTypes) > 0 {
		evts, err := s.readStream(ctx, "player_events", true, aggregateID, f, playerTypes)
		if err != nil {
			return nil, err
		}
		merged = append(merged, evts...)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Sequence < merged[j].Sequence })
	if f.Limit > 0 && len(merged) > f.Limit {
		merged = merged[:f.Limit]
	}
	return merged, nil
}

func (s *EventStore) readStream(ctx context.Context, table string, hasPlayer bool, aggregateID string, f event.Filter, types []string) ([]event.Event, error) {
	playerCol := `'' AS player_id`
	if hasPlayer {
		playerCol = `player_id`
	}
	query := fmt.Sprintf(
		`SELECT id, aggregate_id, type, %s, data, sequence, created_at
		   FROM %s WHERE aggregate_id = $1`, playerCol, table)
	args := []any{aggregateID}

	if f.FromSequence > 0 {
		args = append(args, f.FromSequence)
		query += fmt.Sprintf(" AND sequence >= $%d", len(args))
	}
	if f.ToSequence > 0 {
		args = append(args, f.ToSequence)
		query += fmt.Sprintf(" AND sequence <= $%d", len(args))
	}
	if len(f.Types) > 0 {
		args = append(args, pq.StringArray(types))
		query += fmt.Sprintf(" AND type = ANY($%d)", len(args))
	}
	query += " ORDER BY sequence ASC"

	var events []event.Event
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	return events, nil
}

func (s *EventStore) CurrentSequence(ctx context.Context, aggregateID string) (uint64, error) {
	var current uint64
	err := s.db.GetContext(ctx, &current,
		`SELECT next_sequence - 1 FROM event_counters WHERE aggregate_id = $1`,
		aggregateID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("aggregate %s: %w", aggregateID, event.ErrAggregateNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("reading sequence counter: %w", err)
	}
	return current, nil
}

// splitTypes partitions a type filter by target stream. An empty filter
// selects every stream (all=true).
func splitTypes(types []event.Type) (game, player []string, all bool) {
	if len(types) == 0 {
		return nil, nil, true
	}
	for _, t := range types {
		cat, ok := t.Category()
		if !ok {
			continue
		}
		switch cat {
		case event.CategoryGame:
			game = append(game, string(t))
		case event.CategoryPlayer:
			player = append(player, string(t))
		}
	}
	return game, player, false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
