package oracle

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// EventKind labels a configuration change event.
type EventKind string

const (
	EventRouteSet     EventKind = "route_set"
	EventThresholdSet EventKind = "threshold_set"
	EventWhitelistSet EventKind = "whitelist_set"
	EventDeviationSet EventKind = "deviation_set"
)

// Event records one configuration change. The event stream is the only
// persisted audit trail of admin mutations.
type Event struct {
	Kind       EventKind
	Asset      common.Address
	Value      string
	Actor      string
	OccurredAt time.Time
}

// EventSink receives configuration change events. Implementations handle
// their own delivery failures; emission never fails the enclosing setter.
type EventSink interface {
	RecordEvent(ctx context.Context, ev Event)
}

// LogEventSink writes events to the structured log.
type LogEventSink struct {
	logger zerolog.Logger
}

// NewLogEventSink builds a log-backed event sink.
func NewLogEventSink(logger zerolog.Logger) *LogEventSink {
	return &LogEventSink{logger: logger.With().Str("component", "oracle_events").Logger()}
}

// RecordEvent logs the event.
func (s *LogEventSink) RecordEvent(_ context.Context, ev Event) {
	s.logger.Info().
		Str("kind", string(ev.Kind)).
		Str("asset", ev.Asset.Hex()).
		Str("value", ev.Value).
		Str("actor", ev.Actor).
		Msg("oracle config changed")
}

var _ EventSink = (*LogEventSink)(nil)
