package config

type StorageDriver int

const (
	Memory StorageDriver = iota + 1
	Postgres
)

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Memory:
		return "memory"
	case Postgres:
		return "postgres"
	}
	return "unknown"
}

func ParseStorageDriver(s string) StorageDriver {
	switch s {
	case "", "memory":
		return Memory
	case "postgres":
		return Postgres
	}
	return 0
}

// MessageQueueDriver selects the broker that relays hub events between processes.
type MessageQueueDriver int

const (
	NoBroker MessageQueueDriver = iota
	RabbitMQ
	Redis
)

func (d MessageQueueDriver) String() string {
	switch d {
	case NoBroker:
		return "none"
	case RabbitMQ:
		return "rabbitmq"
	case Redis:
		return "redis"
	default:
		return "unknown"
	}
}

func ParseMessageQueueDriver(s string) MessageQueueDriver {
	switch s {
	case "", "none":
		return NoBroker
	case "rabbitmq":
		return RabbitMQ
	case "redis":
		return Redis
	}
	return -1
}
