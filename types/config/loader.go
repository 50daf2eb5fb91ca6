package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk YAML shape of DagSyncConfig.
type FileConfig struct {
	Instance      string `yaml:"instance"`
	LogMode       string `yaml:"log_mode"`
	DashboardPort uint   `yaml:"dashboard_port"`

	Remote struct {
		BaseURL  string `yaml:"base_url"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"remote"`

	Polling struct {
		List                  string `yaml:"list"`
		Detail                string `yaml:"detail"`
		MaxConcurrentFetches  int    `yaml:"max_concurrent_fetches"`
		RefreshBatchLimit     int    `yaml:"refresh_batch_limit"`
		TransientFailureLimit int    `yaml:"transient_failure_limit"`
	} `yaml:"polling"`

	Storage struct {
		Driver      string `yaml:"driver"`
		PostgresURL string `yaml:"postgres_url"`
	} `yaml:"storage"`

	Broker struct {
		Driver   string `yaml:"driver"`
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
	} `yaml:"broker"`
}

// LoadFile reads a YAML config file and builds a validated DagSyncConfig from it.
func LoadFile(path string) (*DagSyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*DagSyncConfig, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	opts, err := fc.Options()
	if err != nil {
		return nil, err
	}
	return NewDagSyncConfig(fc.Instance, opts...)
}

// Options translates the file representation into functional options.
func (fc *FileConfig) Options() ([]Option, error) {
	var opts []Option

	if fc.LogMode != "" {
		opts = append(opts, WithLogMode(fc.LogMode))
	}
	if fc.DashboardPort != 0 {
		opts = append(opts, WithDashboardPort(fc.DashboardPort))
	}

	remote := RemoteConfig{
		BaseURL:  fc.Remote.BaseURL,
		Username: fc.Remote.Username,
		Password: fc.Remote.Password,
	}
	if fc.Remote.Timeout != "" {
		d, err := time.ParseDuration(fc.Remote.Timeout)
		if err != nil {
			return nil, fmt.Errorf("remote timeout: %w", err)
		}
		remote.Timeout = d
	}
	opts = append(opts, WithRemoteConfig(remote))

	opts = append(opts, WithPollSchedules(fc.Polling.List, fc.Polling.Detail))
	if fc.Polling.MaxConcurrentFetches != 0 {
		opts = append(opts, WithMaxConcurrentFetches(fc.Polling.MaxConcurrentFetches))
	}
	if fc.Polling.RefreshBatchLimit != 0 {
		opts = append(opts, WithRefreshBatchLimit(fc.Polling.RefreshBatchLimit))
	}
	if fc.Polling.TransientFailureLimit != 0 {
		opts = append(opts, WithTransientFailureLimit(fc.Polling.TransientFailureLimit))
	}

	switch ParseStorageDriver(fc.Storage.Driver) {
	case Memory:
	case Postgres:
		opts = append(opts, WithPostgresConfig(PostgresConfig{ConnectionUrl: fc.Storage.PostgresURL}))
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", fc.Storage.Driver)
	}

	switch ParseMessageQueueDriver(fc.Broker.Driver) {
	case NoBroker:
	case RabbitMQ:
		opts = append(opts, WithRabbitMQConfig(RabbitMQConfig{URL: fc.Broker.URL, Exchange: fc.Broker.Exchange}))
	case Redis:
		opts = append(opts, WithRedisConfig(RedisConfig{
			Address:  fc.Broker.Address,
			Password: fc.Broker.Password,
			DB:       fc.Broker.DB,
			Channel:  fc.Broker.Channel,
		}))
	default:
		return nil, fmt.Errorf("unsupported broker driver: %q", fc.Broker.Driver)
	}

	return opts, nil
}
