package service

import (
	"context"
	"encoding/json"
	"fmt"

	"nordagri/internal/events"
	"nordagri/internal/metrics"

	"github.com/rs/zerolog"
)

// EventHandlers reacts to queue events: operator alerts go to Telegram when
// configured, flush summaries feed the metrics.
type EventHandlers struct {
	telegram *TelegramNotifier
	logger   *zerolog.Logger
}

// NewEventHandlers builds the handlers. telegram may be nil.
func NewEventHandlers(telegram *TelegramNotifier, logger *zerolog.Logger) *EventHandlers {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventHandlers{telegram: telegram, logger: logger}
}

// Subscribe registers every handler on bus and returns a func removing them.
func (h *EventHandlers) Subscribe(bus *events.EventBus) func() {
	unsubs := []func(){
		bus.Subscribe(events.EventOperationsSynced, h.onSynced),
		bus.Subscribe(events.EventOperationDeadLettered, h.onDeadLettered),
		bus.Subscribe(events.EventFlushCompleted, h.onFlushCompleted),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func (h *EventHandlers) onSynced(e *events.Event) error {
	var p events.SyncedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	if h.telegram != nil {
		h.telegram.OperationsSynced(context.Background(), p.Count)
	}
	return nil
}

func (h *EventHandlers) onDeadLettered(e *events.Event) error {
	var p events.DeadLetterPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	h.logger.Warn().
		Str("queue", p.Queue).
		Str("operation_id", p.OperationID).
		Str("kind", p.Kind).
		Int("retry_count", p.RetryCount).
		Str("reason", p.Reason).
		Msg("operation needs operator attention")

	if h.telegram == nil {
		return nil
	}
	if _, err := h.telegram.SendMessage(DeadLetterMessage(p)); err != nil {
		h.logger.Warn().Err(err).Str("operation_id", p.OperationID).Msg("failed to send dead-letter alert")
	}
	return nil
}

func (h *EventHandlers) onFlushCompleted(e *events.Event) error {
	var p events.FlushPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	metrics.SetLastFlush(p.Queue, p.At)
	metrics.SetQueueDepth(p.Queue, p.Remaining)
	return nil
}

// DeadLetterMessage is the operator alert for an operation that stopped replaying.
func DeadLetterMessage(p events.DeadLetterPayload) string {
	return fmt.Sprintf("%s operation %s moved to dead letters after %d attempt(s): %s",
		p.Kind, p.OperationID, p.RetryCount, p.Reason)
}
