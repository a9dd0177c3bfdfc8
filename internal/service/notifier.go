package service

import (
	"context"
	"time"

	"nordagri/internal/domain"
	"nordagri/internal/events"

	"github.com/rs/zerolog"
)

// EventNotifier publishes operations_synced on the event bus.
type EventNotifier struct {
	queue  string
	events domain.EventPublisher
	logger *zerolog.Logger
	now    func() time.Time
}

func NewEventNotifier(queue string, publisher domain.EventPublisher, logger *zerolog.Logger) *EventNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventNotifier{queue: queue, events: publisher, logger: logger, now: time.Now}
}

func (n *EventNotifier) OperationsSynced(_ context.Context, count int) {
	if n.events == nil {
		return
	}
	payload := events.SyncedPayload{Queue: n.queue, Count: count, At: n.now().UTC()}
	if err := n.events.PublishJSON(events.EventOperationsSynced, payload); err != nil {
		n.logger.Warn().Err(err).Msg("operations_synced handler failed")
	}
}

// LogNotifier writes the sync summary to the log.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) OperationsSynced(_ context.Context, count int) {
	n.logger.Info().Int("count", count).Msg(SyncedMessage(count))
}

// MultiNotifier fans a notification out to every non-nil notifier in order.
type MultiNotifier []domain.Notifier

func (m MultiNotifier) OperationsSynced(ctx context.Context, count int) {
	for _, n := range m {
		if n != nil {
			n.OperationsSynced(ctx, count)
		}
	}
}
