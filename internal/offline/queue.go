package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"nordagri/internal/domain"
	"nordagri/internal/events"
	"nordagri/internal/metrics"
	"nordagri/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("nordagri/offline")

// Options configures a Queue. Zero values fall back to defaults.
type Options struct {
	// Key is the storage key holding the queue. Dead letters live under Key+models.DeadLetterSuffix.
	Key string
	// MaxRetries moves an operation to the dead-letter list once its retry count
	// reaches the limit. Zero keeps retrying forever.
	MaxRetries int
	Notifier   domain.Notifier
	Events     domain.EventPublisher
	Logger     *zerolog.Logger
	Now        func() time.Time
}

// FlushResult summarises one Flush call.
type FlushResult struct {
	Attempted    int `json:"attempted"`
	Synced       int `json:"synced"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
	Retained     int `json:"retained"`
	Remaining    int `json:"remaining"`
}

// Complete reports whether nothing from the flushed snapshot stayed queued.
func (r FlushResult) Complete() bool {
	return r.Retained == 0
}

// Queue buffers writes the remote system has not confirmed and replays them on Flush.
//
// Enqueue and the two storage phases of Flush share one mutex, and Flush takes
// the stored list with an atomic read-and-clear, so operations enqueued while
// a flush is replaying land in the emptied key and are merged back after the
// retained items instead of being overwritten. Stores implementing
// domain.AtomicUpdater also keep list rewrites atomic against other processes.
//
// When writing a flush result back fails, the unconfirmed operations and new
// dead letters are held in memory, reported by Peek, Len and DeadLetters, and
// written back before the next take.
type Queue struct {
	key        string
	store      domain.KeyValueStore
	dispatcher *Dispatcher
	notifier   domain.Notifier
	events     domain.EventPublisher
	maxRetries int
	logger     *zerolog.Logger
	now        func() time.Time

	mu      sync.Mutex
	flushMu sync.Mutex

	// pending and pendingDead hold a flush result whose write-back failed.
	// They sit ahead of the stored lists and are guarded by mu.
	pending     []models.QueuedOperation
	pendingDead []models.DeadLetter
}

func NewQueue(store domain.KeyValueStore, dispatcher *Dispatcher, opts Options) (*Queue, error) {
	if store == nil {
		return nil, fmt.Errorf("queue store is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("queue dispatcher is required")
	}
	if err := dispatcher.Validate(); err != nil {
		return nil, fmt.Errorf("incomplete dispatcher: %w", err)
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative")
	}
	if opts.Key == "" {
		opts.Key = models.DefaultQueueKey
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := opts.Logger.With().Str("queue", opts.Key).Logger()
	return &Queue{
		key:        opts.Key,
		store:      store,
		dispatcher: dispatcher,
		notifier:   opts.Notifier,
		events:     opts.Events,
		maxRetries: opts.MaxRetries,
		logger:     &logger,
		now:        opts.Now,
	}, nil
}

func (q *Queue) Key() string {
	return q.key
}

func (q *Queue) deadLetterKey() string {
	return q.key + models.DeadLetterSuffix
}

// Enqueue appends an operation to the end of the persisted queue.
func (q *Queue) Enqueue(ctx context.Context, kind models.OperationKind, payload any) (models.QueuedOperation, error) {
	if !q.dispatcher.Handles(kind) {
		return models.QueuedOperation{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return models.QueuedOperation{}, err
	}

	op := models.QueuedOperation{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: q.now().UTC(),
	}

	q.mu.Lock()
	ops, err := updateList(ctx, q, q.key, func(ops []models.QueuedOperation) []models.QueuedOperation {
		return append(ops, op)
	})
	depth := len(ops) + len(q.pending)
	q.mu.Unlock()
	if err != nil {
		return models.QueuedOperation{}, fmt.Errorf("enqueue %s: %w", kind, err)
	}

	metrics.IncEnqueued(kind.String())
	metrics.SetQueueDepth(q.key, depth)
	q.logger.Debug().Str("operation_id", op.ID).Str("kind", kind.String()).Int("depth", depth).Msg("operation queued")

	return op, nil
}

// Peek returns the queue in replay order without modifying it.
func (q *Queue) Peek(ctx context.Context) ([]models.QueuedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored, err := loadList[models.QueuedOperation](ctx, q, q.key)
	if err != nil {
		return nil, err
	}
	if len(q.pending) == 0 {
		return stored, nil
	}
	ops := make([]models.QueuedOperation, 0, len(q.pending)+len(stored))
	ops = append(ops, q.pending...)
	return append(ops, stored...), nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	ops, err := q.Peek(ctx)
	return len(ops), err
}

// DeadLetters returns operations that are no longer replayed automatically.
func (q *Queue) DeadLetters(ctx context.Context) ([]models.DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	letters, err := loadList[models.DeadLetter](ctx, q, q.deadLetterKey())
	if err != nil {
		return nil, err
	}
	return append(letters, q.pendingDead...), nil
}

// Flush replays every queued operation in order, one remote call at a time.
// A failing operation never stops the batch; it stays queued with its retry
// count incremented. Storage errors are returned.
func (q *Queue) Flush(ctx context.Context) (result FlushResult, err error) {
	ctx, span := tracer.Start(ctx, "offline.Flush", trace.WithAttributes(attribute.String("queue", q.key)))
	defer func() {
		span.SetAttributes(
			attribute.Int("synced", result.Synced),
			attribute.Int("failed", result.Failed),
			attribute.Int("retained", result.Retained),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	start := q.now()
	batch, err := q.take(ctx)
	if err != nil {
		return FlushResult{}, fmt.Errorf("take queue: %w", err)
	}
	if len(batch) == 0 {
		return FlushResult{}, nil
	}

	retained := make([]models.QueuedOperation, 0, len(batch))
	var dead []models.DeadLetter

	for i, op := range batch {
		if ctx.Err() != nil {
			retained = append(retained, batch[i:]...)
			break
		}

		result.Attempted++
		err := q.dispatcher.Dispatch(ctx, op)
		if err == nil {
			result.Synced++
			metrics.IncReplay(op.Kind.String(), metrics.ResultSuccess)
			continue
		}

		if ctx.Err() != nil {
			// Interrupted mid-call: keep the rest exactly as stored.
			retained = append(retained, batch[i:]...)
			break
		}

		logger := q.logger.With().Str("operation_id", op.ID).Str("kind", op.Kind.String()).Logger()

		if permanent(err) {
			logger.Error().Err(err).Msg("operation cannot be replayed, moving to dead-letter")
			dead = append(dead, q.newDeadLetter(op, err.Error()))
			continue
		}

		result.Failed++
		metrics.IncReplay(op.Kind.String(), metrics.ResultFailure)
		op.RetryCount++
		op.LastError = err.Error()

		if q.maxRetries > 0 && op.RetryCount >= q.maxRetries {
			logger.Warn().Err(err).Int("retry_count", op.RetryCount).Msg("retry limit reached, moving to dead-letter")
			dead = append(dead, q.newDeadLetter(op, fmt.Sprintf("retry limit %d reached: %s", q.maxRetries, err)))
			continue
		}

		logger.Debug().Err(err).Int("retry_count", op.RetryCount).Msg("replay failed, keeping operation queued")
		retained = append(retained, op)
	}

	result.Retained = len(retained)
	result.DeadLettered = len(dead)

	if result.Synced > 0 {
		q.notifySynced(ctx, result.Synced)
	}

	// The snapshot is out of storage now; write it back even if ctx is done.
	remaining, err := q.mergeBack(context.WithoutCancel(ctx), retained, dead)
	if err != nil {
		q.logger.Error().Err(err).Int("retained", len(retained)).Int("dead_lettered", len(dead)).Msg("failed to persist flush result")
		return result, fmt.Errorf("persist flush result: %w", err)
	}
	result.Remaining = remaining

	for _, d := range dead {
		metrics.IncDeadLetter(d.Operation.Kind.String())
		q.publish(events.EventOperationDeadLettered, events.DeadLetterPayload{
			Queue:       q.key,
			OperationID: d.Operation.ID,
			Kind:        d.Operation.Kind.String(),
			RetryCount:  d.Operation.RetryCount,
			Reason:      d.Reason,
		})
	}

	metrics.ObserveFlush(q.now().Sub(start))
	q.publish(events.EventFlushCompleted, events.FlushPayload{
		Queue:        q.key,
		Attempted:    result.Attempted,
		Synced:       result.Synced,
		Failed:       result.Failed,
		DeadLettered: result.DeadLettered,
		Remaining:    result.Remaining,
		At:           q.now().UTC(),
	})
	q.logger.Info().
		Int("attempted", result.Attempted).
		Int("synced", result.Synced).
		Int("failed", result.Failed).
		Int("dead_lettered", result.DeadLettered).
		Int("remaining", result.Remaining).
		Msg("flush finished")

	return result, nil
}

// Requeue moves dead letters back to the end of the queue with their retry
// counters reset. With no ids every dead letter is requeued.
func (q *Queue) Requeue(ctx context.Context, ids ...string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.restorePending(ctx); err != nil {
		return 0, err
	}
	letters, err := loadList[models.DeadLetter](ctx, q, q.deadLetterKey())
	if err != nil {
		return 0, err
	}
	selected, _ := splitDeadLetters(letters, ids)
	if len(selected) == 0 {
		return 0, nil
	}

	// Queue first: a failure between the two writes duplicates an operation
	// into the dead-letter list rather than losing it.
	ops, err := updateList(ctx, q, q.key, func(ops []models.QueuedOperation) []models.QueuedOperation {
		for _, d := range selected {
			op := d.Operation
			op.RetryCount = 0
			op.LastError = ""
			ops = append(ops, op)
		}
		return ops
	})
	if err != nil {
		return 0, err
	}
	if err := q.removeDeadLetters(ctx, selected); err != nil {
		return 0, err
	}

	metrics.SetQueueDepth(q.key, len(ops))
	q.logger.Info().Int("count", len(selected)).Msg("dead letters requeued")
	return len(selected), nil
}

// Purge deletes dead letters. With no ids the whole list is cleared.
func (q *Queue) Purge(ctx context.Context, ids ...string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.restorePending(ctx); err != nil {
		return 0, err
	}
	letters, err := loadList[models.DeadLetter](ctx, q, q.deadLetterKey())
	if err != nil {
		return 0, err
	}
	selected, _ := splitDeadLetters(letters, ids)
	if len(selected) == 0 {
		return 0, nil
	}
	if err := q.removeDeadLetters(ctx, selected); err != nil {
		return 0, err
	}

	q.logger.Info().Int("count", len(selected)).Msg("dead letters purged")
	return len(selected), nil
}

// removeDeadLetters drops exactly the given letters, keeping any written by
// another process since they were read.
func (q *Queue) removeDeadLetters(ctx context.Context, remove []models.DeadLetter) error {
	ids := make([]string, 0, len(remove))
	for _, d := range remove {
		ids = append(ids, d.ID)
	}
	_, err := updateList(ctx, q, q.deadLetterKey(), func(letters []models.DeadLetter) []models.DeadLetter {
		_, rest := splitDeadLetters(letters, ids)
		return rest
	})
	return err
}

// take removes the stored queue and returns it. An empty or missing queue is
// left untouched. A flush result that could not be written back earlier is
// restored first so it is replayed ahead of the stored operations.
func (q *Queue) take(ctx context.Context) ([]models.QueuedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.restorePending(ctx); err != nil {
		return nil, err
	}

	current, err := loadList[models.QueuedOperation](ctx, q, q.key)
	if err != nil || len(current) == 0 {
		return nil, err
	}

	raw, ok, err := q.store.GetDel(ctx, q.key)
	if err != nil || !ok {
		return nil, err
	}
	return q.decodeOps(ctx, q.key, raw), nil
}

// mergeBack stores retained operations ahead of anything enqueued during the
// flush and appends new dead letters. It returns the resulting queue length.
// Whatever cannot be written is kept in memory for restorePending.
func (q *Queue) mergeBack(ctx context.Context, retained []models.QueuedOperation, dead []models.DeadLetter) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	merged, err := updateList(ctx, q, q.key, func(arrivals []models.QueuedOperation) []models.QueuedOperation {
		out := make([]models.QueuedOperation, 0, len(retained)+len(arrivals))
		out = append(out, retained...)
		return append(out, arrivals...)
	})
	if err != nil {
		q.pending = append(q.pending, retained...)
		q.pendingDead = append(q.pendingDead, dead...)
		return len(q.pending), err
	}
	metrics.SetQueueDepth(q.key, len(merged))

	if len(dead) > 0 {
		if _, err := updateList(ctx, q, q.deadLetterKey(), func(letters []models.DeadLetter) []models.DeadLetter {
			return append(letters, dead...)
		}); err != nil {
			q.pendingDead = append(q.pendingDead, dead...)
			return len(merged), err
		}
	}
	return len(merged), nil
}

// restorePending writes a previously failed flush result back to storage.
// Callers hold mu.
func (q *Queue) restorePending(ctx context.Context) error {
	if len(q.pending) > 0 {
		pending := q.pending
		if _, err := updateList(ctx, q, q.key, func(stored []models.QueuedOperation) []models.QueuedOperation {
			out := make([]models.QueuedOperation, 0, len(pending)+len(stored))
			out = append(out, pending...)
			return append(out, stored...)
		}); err != nil {
			return fmt.Errorf("restore %d unsaved operation(s): %w", len(pending), err)
		}
		q.logger.Info().Int("count", len(pending)).Msg("unsaved operations written back")
		q.pending = nil
	}
	if len(q.pendingDead) > 0 {
		dead := q.pendingDead
		if _, err := updateList(ctx, q, q.deadLetterKey(), func(letters []models.DeadLetter) []models.DeadLetter {
			return append(letters, dead...)
		}); err != nil {
			return fmt.Errorf("restore %d unsaved dead letter(s): %w", len(dead), err)
		}
		q.pendingDead = nil
	}
	return nil
}

func (q *Queue) newDeadLetter(op models.QueuedOperation, reason string) models.DeadLetter {
	return models.DeadLetter{
		ID:        uuid.NewString(),
		Operation: op,
		Reason:    reason,
		FailedAt:  q.now().UTC(),
	}
}

func (q *Queue) notifySynced(ctx context.Context, count int) {
	if q.notifier == nil {
		return
	}
	q.notifier.OperationsSynced(ctx, count)
}

func (q *Queue) publish(eventType string, payload any) {
	if q.events == nil {
		return
	}
	if err := q.events.PublishJSON(eventType, payload); err != nil {
		q.logger.Warn().Err(err).Str("event", eventType).Msg("event handler failed")
	}
}

// loadList reads a JSON list stored under key. A missing key is an empty list;
// undecodable content is copied aside and also treated as empty.
func loadList[T any](ctx context.Context, q *Queue, key string) ([]T, error) {
	raw, ok, err := q.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		q.quarantine(ctx, key, raw, err)
		return nil, nil
	}
	return list, nil
}

// updateList rewrites the JSON list under key with fn, atomically when the
// store supports it. Corrupt content is quarantined and replaced.
func updateList[T any](ctx context.Context, q *Queue, key string, fn func([]T) []T) ([]T, error) {
	var (
		result  []T
		corrupt []byte
		cause   error
	)
	apply := func(raw []byte, ok bool) ([]byte, error) {
		corrupt, cause = nil, nil
		var list []T
		if ok {
			if err := json.Unmarshal(raw, &list); err != nil {
				corrupt, cause = raw, err
				list = nil
			}
		}
		result = fn(list)
		if result == nil {
			result = []T{}
		}
		return json.Marshal(result)
	}

	var err error
	if u, ok := q.store.(domain.AtomicUpdater); ok {
		err = u.Update(ctx, key, apply)
	} else {
		err = getAndSet(ctx, q.store, key, apply)
	}
	if corrupt != nil {
		q.quarantine(ctx, key, corrupt, cause)
	}
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", key, err)
	}
	return result, nil
}

func getAndSet(ctx context.Context, store domain.KeyValueStore, key string, fn domain.UpdateFunc) error {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	next, err := fn(raw, ok)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, next)
}

func (q *Queue) decodeOps(ctx context.Context, key string, raw []byte) []models.QueuedOperation {
	var ops []models.QueuedOperation
	if err := json.Unmarshal(raw, &ops); err != nil {
		q.quarantine(ctx, key, raw, err)
		return nil
	}
	return ops
}

func (q *Queue) quarantine(ctx context.Context, key string, raw []byte, cause error) {
	q.logger.Warn().Err(cause).Str("key", key).Int("bytes", len(raw)).Msg("stored list is corrupt, treating as empty")
	if err := q.store.Set(ctx, key+models.CorruptSuffix, raw); err != nil {
		q.logger.Error().Err(err).Str("key", key).Msg("failed to keep corrupt copy")
	}
}

func splitDeadLetters(letters []models.DeadLetter, ids []string) (selected, rest []models.DeadLetter) {
	if len(ids) == 0 {
		return letters, []models.DeadLetter{}
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	rest = make([]models.DeadLetter, 0, len(letters))
	for _, d := range letters {
		if want[d.ID] || want[d.Operation.ID] {
			selected = append(selected, d)
			continue
		}
		rest = append(rest, d)
	}
	return selected, rest
}
