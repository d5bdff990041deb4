package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Errors returned by store implementations. Validation failures are never
// retryable; any other append failure may be retried as a whole transaction.
var (
	ErrAggregateExists   = errors.New("aggregate already exists")
	ErrAggregateNotFound = errors.New("aggregate not found")
	ErrUnknownType       = errors.New("unknown event type")
	ErrMissingPlayerRef  = errors.New("player event missing player reference")
	ErrInvalidPayload    = errors.New("invalid event payload")
)

// Filter narrows a Read to a sequence window and/or a set of event types.
// Zero values leave the corresponding dimension unconstrained.
type Filter struct {
	FromSequence uint64
	ToSequence   uint64
	Types        []Type
	Limit        int
}

// Store persists and retrieves events with per-aggregate, gap-free,
// strictly-increasing sequence numbers.
type Store interface {
	// CreateAggregate initializes the sequence counter for a new aggregate
	// and records the optional seed event, all in one transaction. It returns
	// ErrAggregateExists if the id is already in use.
	CreateAggregate(ctx context.Context, aggregateID string, seed *Event) (Event, error)

	// Append assigns the next sequence number and persists the event in the
	// stream matching its category, atomically. The returned event carries
	// its assigned sequence number and timestamp.
	Append(ctx context.Context, evt Event) (Event, error)

	// AppendBatch appends same-aggregate events in list order within one
	// transaction. All events are persisted or none are.
	AppendBatch(ctx context.Context, events []Event) ([]Event, error)

	// Read returns events for an aggregate across all streams, merged in
	// ascending sequence order and narrowed by the filter.
	Read(ctx context.Context, aggregateID string, f Filter) ([]Event, error)

	// CurrentSequence returns the sequence number of the most recently
	// appended event, or 0 if none have been appended.
	CurrentSequence(ctx context.Context, aggregateID string) (uint64, error)
}

// Validate checks the shape invariants every store enforces before
// consuming a sequence number: a known type, a player reference on
// player-category events, and a well-formed JSON payload.
func Validate(evt Event) (Category, error) {
	if evt.AggregateID == "" {
		return 0, fmt.Errorf("%w: empty aggregate id", ErrInvalidPayload)
	}
	cat, ok := evt.Type.Category()
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, evt.Type)
	}
	if cat == CategoryPlayer && evt.PlayerID == "" {
		return 0, fmt.Errorf("%w: %s", ErrMissingPlayerRef, evt.Type)
	}
	if len(evt.Data) > 0 && !json.Valid(evt.Data) {
		return 0, fmt.Errorf("%w: malformed JSON data", ErrInvalidPayload)
	}
	return cat, nil
}
