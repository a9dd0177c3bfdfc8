package domain

import (
	"context"
	"encoding/json"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// KeyValueStore is the local persistent storage the offline queue lives in.
// Set overwrites the whole value; GetDel reads and removes a key atomically.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	GetDel(ctx context.Context, key string) ([]byte, bool, error)
}

// UpdateFunc computes the new value of a key from its current one.
// It may run more than once when a store retries a conflicting write.
type UpdateFunc func(current []byte, ok bool) ([]byte, error)

// AtomicUpdater is implemented by stores that can read and rewrite a key
// without another writer, in this or another process, interleaving.
type AtomicUpdater interface {
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// RemoteWriter performs the inserts queued operations replay into.
type RemoteWriter interface {
	InsertTimeSession(ctx context.Context, payload json.RawMessage) error
	InsertFuelLog(ctx context.Context, payload json.RawMessage) error
}

// Pinger reports whether the remote system is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Notifier receives the aggregate result of a flush that synced something.
type Notifier interface {
	OperationsSynced(ctx context.Context, count int)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
