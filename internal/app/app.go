package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nordagri/internal/backend"
	"nordagri/internal/config"
	"nordagri/internal/database"
	"nordagri/internal/domain"
	"nordagri/internal/events"
	"nordagri/internal/logging"
	"nordagri/internal/offline"
	"nordagri/internal/repository"
	"nordagri/internal/service"

	"github.com/rs/zerolog"
)

// App holds the wired queue and its dependencies for a daemon or CLI run.
type App struct {
	Config  *config.Config
	Logger  *zerolog.Logger
	Store   domain.KeyValueStore
	Queue   *offline.Queue
	Backend *backend.Client
	Events  *events.EventBus

	// DB is set when the sqlite driver is used.
	DB *database.DB
	// StoreHealth pings the store, nil for the memory driver.
	StoreHealth domain.Pinger

	closers []func() error
}

// New opens storage and builds the queue described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	a := &App{Config: cfg, Logger: logger, Events: events.NewEventBus()}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	client, err := backend.NewClient(cfg.Backend, nil)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Backend = client

	queue, err := offline.NewQueue(a.Store, offline.NewDispatcher(client), offline.Options{
		Key:        cfg.Storage.QueueKey,
		MaxRetries: cfg.Sync.MaxRetries,
		Notifier:   a.notifier(),
		Events:     a.Events,
		Logger:     logging.Component(logger, "offline-queue"),
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Queue = queue
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		db, err := database.NewDB(cfg.Storage.Path, logging.Component(a.Logger, "database"))
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.DB = db
		a.Store = db
		a.StoreHealth = db
		a.closers = append(a.closers, db.Close)
	case config.StorageRedis:
		client := repository.NewRedisClient(cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := repository.Ping(pingCtx, client); err != nil {
			_ = repository.Close(client)
			return fmt.Errorf("open redis store: %w", err)
		}
		store := repository.NewRedisStore(client, cfg.Redis.KeyPrefix)
		a.Store = store
		a.StoreHealth = store
		a.closers = append(a.closers, func() error { return repository.Close(client) })
		a.Logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	case config.StorageMemory:
		a.Logger.Warn().Msg("memory storage selected, queued operations are lost on restart")
		a.Store = repository.NewMemoryStore()
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	return nil
}

// notifier subscribes the event handlers and returns the notifier chain the
// queue reports synced counts to. Telegram delivery happens on the bus.
func (a *App) notifier() domain.Notifier {
	var telegram *service.TelegramNotifier
	tg := a.Config.Notifications.Telegram
	if tg.Enabled {
		bot, err := service.NewTelegramBot(tg.BotToken, tg.Debug)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram notifications")
		} else {
			telegram = service.NewTelegramNotifier(bot, tg.ChatID, logging.Component(a.Logger, "telegram"))
		}
	}

	unsubscribe := service.NewEventHandlers(telegram, logging.Component(a.Logger, "events")).Subscribe(a.Events)
	a.closers = append(a.closers, func() error {
		unsubscribe()
		return nil
	})

	return service.MultiNotifier{
		service.NewLogNotifier(logging.Component(a.Logger, "notifier")),
		service.NewEventNotifier(a.Config.Storage.QueueKey, a.Events, a.Logger),
	}
}

// Close releases storage connections in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
