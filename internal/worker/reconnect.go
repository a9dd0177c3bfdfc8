package worker

import (
	"context"
	"time"

	"nordagri/internal/offline"

	"github.com/rs/zerolog"
)

// Flusher replays a queue.
type Flusher interface {
	Flush(ctx context.Context) (offline.FlushResult, error)
}

// ReconnectSource hands out reconnect signals.
type ReconnectSource interface {
	Subscribe() (<-chan struct{}, func())
}

// ReconnectWatcher flushes the queue once per reconnect signal. When a flush
// leaves failed operations behind and a RetryPolicy is set, it schedules a
// further flush with exponential backoff.
type ReconnectWatcher struct {
	queue  Flusher
	source ReconnectSource
	retry  *RetryPolicy
	logger *zerolog.Logger
}

func NewReconnectWatcher(queue Flusher, source ReconnectSource, retry *RetryPolicy, logger *zerolog.Logger) *ReconnectWatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ReconnectWatcher{
		queue:  queue,
		source: source,
		retry:  retry,
		logger: logger,
	}
}

// Run subscribes to the source and blocks until ctx is done. The subscription
// is removed before Run returns, so later signals trigger nothing.
func (w *ReconnectWatcher) Run(ctx context.Context) {
	signals, unsubscribe := w.source.Subscribe()
	defer unsubscribe()

	w.logger.Info().Msg("reconnect watcher started")
	defer w.logger.Info().Msg("reconnect watcher stopped")

	var (
		timer   *time.Timer
		retryC  <-chan time.Time
		attempt int
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, retryC = nil, nil
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			stopTimer()
			attempt = 0
		case <-retryC:
			timer, retryC = nil, nil
		}

		result, err := w.FlushNow(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil && result.Complete() {
			attempt = 0
			continue
		}
		if w.retry == nil {
			continue
		}

		attempt++
		if w.retry.Exhausted(attempt) {
			w.logger.Warn().Int("attempt", attempt).Msg("backoff re-flush exhausted, waiting for next reconnect")
			continue
		}
		delay := w.retry.NextDelay(attempt)
		w.logger.Debug().Int("attempt", attempt).Dur("delay", delay).Int("retained", result.Retained).Msg("scheduling re-flush")
		timer = time.NewTimer(delay)
		retryC = timer.C
	}
}

// FlushNow replays the queue immediately.
func (w *ReconnectWatcher) FlushNow(ctx context.Context) (offline.FlushResult, error) {
	result, err := w.queue.Flush(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("flush failed")
		return result, err
	}
	return result, nil
}
