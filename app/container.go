package app

import (
	"context"
	"dagsync/client"
	"dagsync/internal/hub"
	"dagsync/internal/logger"
	"dagsync/internal/message_broaker"
	"dagsync/internal/remote"
	"dagsync/internal/store"
	"dagsync/internal/store/postgres"
	"dagsync/pgk/parser"
	"dagsync/types/config"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.DagSyncConfig
	Logger *logger.Logger

	// Storage connections (created once, shared by all stores)
	DB    *sql.DB
	Redis *redis.Client

	Remote    remote.RemoteJobClient
	Hub       *hub.NotificationHub
	Favorites store.FavoriteStore

	// Cross-process relay; nil when no broker is configured
	MessageBroker message_broaker.MessageBroker
	Relay         *hub.Relay

	listSchedule   cron.Schedule
	detailSchedule cron.Schedule
	clock          clockwork.Clock
	cancel         context.CancelFunc

	mu        sync.Mutex
	nextKey   uint64
	disposers map[uint64]func()
	closed    bool
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// The relay, when configured, runs until Close is called or ctx is done.
func NewContainer(ctx context.Context, cfg *config.DagSyncConfig, opts ...ContainerOption) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	log := opt.log
	if log == nil {
		var err error
		if log, err = logger.New(cfg.LogMode); err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}
	log = log.With("instance", cfg.Instance)

	listSchedule, err := parser.ParseSchedule(cfg.ListPollSchedule)
	if err != nil {
		return nil, fmt.Errorf("list poll schedule: %w", err)
	}
	detailSchedule, err := parser.ParseSchedule(cfg.DetailPollSchedule)
	if err != nil {
		return nil, fmt.Errorf("detail poll schedule: %w", err)
	}

	remoteClient := opt.remote
	if remoteClient == nil {
		if cfg.Remote.BaseURL == "" {
			return nil, errors.New("remote base URL is not configured")
		}
		remoteClient = remote.NewRestClient(cfg.Remote.BaseURL, cfg.Remote.Username, cfg.Remote.Password, cfg.Remote.Timeout)
	}

	clock := opt.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	c := &Container{
		Config:         cfg,
		Logger:         log,
		Remote:         remoteClient,
		Hub:            hub.NewNotificationHub(cfg.Instance, log),
		listSchedule:   listSchedule,
		detailSchedule: detailSchedule,
		clock:          clock,
	}

	if err := c.initFavorites(ctx, opt); err != nil {
		return nil, err
	}
	if err := c.initRelay(ctx, opt); err != nil {
		_ = c.Favorites.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) initFavorites(ctx context.Context, opt *containerConfig) error {
	switch c.Config.StorageDriver {
	case config.Postgres:
		db := opt.db
		if db == nil {
			var err error
			if db, err = openPostgresDB(ctx, c.Config.PostgresConfig.ConnectionUrl); err != nil {
				return fmt.Errorf("init storage: %w", err)
			}
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return fmt.Errorf("init storage: %w", err)
		}
		c.DB = db
		c.Favorites = postgres.NewPostgresFavoriteStore(db, c.Config.Instance)
	case config.Memory:
		c.Favorites = store.NewMemoryFavoriteStore()
	default:
		return fmt.Errorf("unsupported storage driver: %v", c.Config.StorageDriver)
	}
	return nil
}

func (c *Container) initRelay(ctx context.Context, opt *containerConfig) error {
	broker := opt.broker
	topic := config.DefaultEventChannel

	switch {
	case broker != nil:
	case c.Config.MQDriver == config.RabbitMQ:
		rmq, err := message_broaker.NewRabbitMQ(c.Config.RabbitMQConfig.URL, c.Config.RabbitMQConfig.Exchange)
		if err != nil {
			return fmt.Errorf("init rabbitmq: %w", err)
		}
		broker = rmq
		if c.Config.RabbitMQConfig.Queue != "" {
			topic = c.Config.RabbitMQConfig.Queue
		}
	case c.Config.MQDriver == config.Redis:
		rdb := opt.redis
		if rdb == nil {
			var err error
			rc := c.Config.RedisConfig
			if rdb, err = openRedis(ctx, rc.Address, rc.Password, rc.DB); err != nil {
				return fmt.Errorf("init redis: %w", err)
			}
		}
		c.Redis = rdb
		broker = message_broaker.NewRedisPubSubFromClient(rdb)
		topic = c.Config.RedisConfig.Channel
	default:
		return nil
	}

	relayCtx, cancel := context.WithCancel(ctx)
	relay := hub.NewRelay(c.Hub, broker, topic, c.Logger)
	if err := relay.Start(relayCtx); err != nil {
		cancel()
		_ = broker.Close()
		return fmt.Errorf("start relay: %w", err)
	}
	c.MessageBroker = broker
	c.Relay = relay
	c.cancel = cancel
	c.Logger.Info("relaying events", "broker", c.Config.MQDriver.String(), "topic", topic)
	return nil
}

func (c *Container) observerOptions(schedule cron.Schedule) []client.Option {
	return []client.Option{
		client.WithSchedule(schedule),
		client.WithClock(c.clock),
		client.WithMaxConcurrentFetches(c.Config.MaxConcurrentFetches),
		client.WithRefreshBatchLimit(c.Config.RefreshBatchLimit),
		client.WithTransientFailureLimit(c.Config.TransientFailureLimit),
		client.WithFavoriteStore(c.Favorites),
		client.WithLogger(c.Logger),
	}
}

// NewListObserver creates a list observer bound to the container's hub and client.
// It is disposed by Close unless the caller disposes it first.
func (c *Container) NewListObserver() (*client.ListObserver, error) {
	key := c.reserveKey()
	opts := append(c.observerOptions(c.listSchedule), client.WithOnDispose(func() { c.untrack(key) }))
	l, err := client.NewListObserver(c.Remote, c.Hub, opts...)
	if err != nil {
		return nil, err
	}
	if !c.track(key, l.Dispose) {
		l.Dispose()
		return nil, errors.New("container is closed")
	}
	return l, nil
}

// NewDetailObserver creates a detail observer with nothing in focus.
func (c *Container) NewDetailObserver() (*client.DetailObserver, error) {
	key := c.reserveKey()
	opts := append(c.observerOptions(c.detailSchedule), client.WithOnDispose(func() { c.untrack(key) }))
	d, err := client.NewDetailObserver(c.Remote, c.Hub, opts...)
	if err != nil {
		return nil, err
	}
	if !c.track(key, d.Dispose) {
		d.Dispose()
		return nil, errors.New("container is closed")
	}
	return d, nil
}

func (c *Container) reserveKey() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextKey++
	return c.nextKey
}

func (c *Container) track(key uint64, dispose func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if c.disposers == nil {
		c.disposers = make(map[uint64]func())
	}
	c.disposers[key] = dispose
	return true
}

// untrack forgets an observer its owner already disposed.
func (c *Container) untrack(key uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.disposers, key)
}

// Tracked is the number of observers Close would still dispose.
func (c *Container) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.disposers)
}

// Close disposes every observer, stops the relay and releases connections.
func (c *Container) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	disposers := c.disposers
	c.disposers = nil
	c.mu.Unlock()

	for _, dispose := range disposers {
		dispose()
	}
	if c.cancel != nil {
		c.cancel()
	}

	var errs []error
	if c.MessageBroker != nil {
		errs = append(errs, c.MessageBroker.Close())
	}
	if c.Favorites != nil {
		errs = append(errs, c.Favorites.Close())
	}
	c.Logger.Sync()
	return errors.Join(errs...)
}
