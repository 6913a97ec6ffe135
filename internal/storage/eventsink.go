package storage

import (
	"context"

	"github.com/rs/zerolog"

	"collateral-oracle/internal/oracle"
)

// EventSink persists oracle config change events through an EventStore.
// Delivery failures are logged, never surfaced: the enclosing setter has
// already validated and applied its whole batch.
type EventSink struct {
	store  EventStore
	logger zerolog.Logger
}

// NewEventSink builds a store-backed event sink.
func NewEventSink(store EventStore, logger zerolog.Logger) *EventSink {
	return &EventSink{store: store, logger: logger.With().Str("component", "event_sink").Logger()}
}

// RecordEvent persists the event.
func (s *EventSink) RecordEvent(ctx context.Context, ev oracle.Event) {
	_, err := s.store.InsertOracleEvent(ctx, OracleEvent{
		Kind:       string(ev.Kind),
		Asset:      ev.Asset.Hex(),
		Value:      ev.Value,
		Actor:      ev.Actor,
		OccurredAt: ev.OccurredAt,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("kind", string(ev.Kind)).
			Str("asset", ev.Asset.Hex()).
			Msg("failed to persist oracle event")
	}
}

var _ oracle.EventSink = (*EventSink)(nil)
