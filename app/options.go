package app

import (
	"dagsync/internal/logger"
	"dagsync/internal/message_broaker"
	"dagsync/internal/remote"
	"database/sql"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	// Optional: inject connections instead of creating them from config
	db     *sql.DB
	redis  *redis.Client
	remote remote.RemoteJobClient
	broker message_broaker.MessageBroker
	log    *logger.Logger
	clock  clockwork.Clock
}

// WithDB injects a custom database connection. Useful for testing.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects a custom Redis client used by the Redis broker.
func WithRedis(redis *redis.Client) ContainerOption {
	return func(c *containerConfig) {
		c.redis = redis
	}
}

// WithRemoteClient replaces the REST client built from config.
func WithRemoteClient(client remote.RemoteJobClient) ContainerOption {
	return func(c *containerConfig) {
		c.remote = client
	}
}

// WithMessageBroker replaces the broker built from config and enables the relay.
func WithMessageBroker(broker message_broaker.MessageBroker) ContainerOption {
	return func(c *containerConfig) {
		c.broker = broker
	}
}

func WithLogger(log *logger.Logger) ContainerOption {
	return func(c *containerConfig) {
		c.log = log
	}
}

// WithClock sets the clock every observer's scheduler runs on.
func WithClock(clock clockwork.Clock) ContainerOption {
	return func(c *containerConfig) {
		c.clock = clock
	}
}
