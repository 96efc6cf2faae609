// Package config loads worker settings from an optional YAML file and
// NOTIFY_* environment variables, resolving secrets from the AWS parameter
// store when parameter paths are configured.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rrroy5640/NotificationService/encoder"
	"github.com/rrroy5640/NotificationService/logger"
)

const EnvPrefix = "NOTIFY"

var (
	ErrConfigRead       = errors.New("failed to read config")
	ErrConfigUnmarshal  = errors.New("failed to unmarshal config")
	ErrConfigValidation = errors.New("config validation failed")
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

type Config struct {
	Queue          QueueConfig          `mapstructure:"queue"`
	Store          StoreConfig          `mapstructure:"store"`
	Consumer       ConsumerConfig       `mapstructure:"consumer"`
	Log            logger.Config        `mapstructure:"log"`
	AWS            AWSConfig            `mapstructure:"aws"`
	ParameterStore ParameterStoreConfig `mapstructure:"parameter_store"`
}

type QueueConfig struct {
	URL               string        `mapstructure:"url"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	// ReleaseOnFailure makes failed messages visible again after
	// FailVisibilityTimeout instead of the queue's own timeout.
	ReleaseOnFailure      bool          `mapstructure:"release_on_failure"`
	FailVisibilityTimeout time.Duration `mapstructure:"fail_visibility_timeout"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`

	// mongo and postgres
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	Table      string `mapstructure:"table"`
	MaxConns   int32  `mapstructure:"max_conns"`

	// s3
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
	Compression string `mapstructure:"compression"`
}

type ConsumerConfig struct {
	WaitTime       time.Duration `mapstructure:"wait_time"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
	InsertAttempts int           `mapstructure:"insert_attempts"`
	AckAttempts    int           `mapstructure:"ack_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
	StatsInterval  time.Duration `mapstructure:"stats_interval"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
	// Endpoint overrides the SQS, S3 and SSM endpoints (LocalStack and the like).
	Endpoint string `mapstructure:"endpoint"`
}

// ParameterStoreConfig names SSM parameters that, when set, replace the
// corresponding plain settings at startup.
type ParameterStoreConfig struct {
	QueueURLPath      string `mapstructure:"queue_url_path"`
	StoreURIPath      string `mapstructure:"store_uri_path"`
	StoreDatabasePath string `mapstructure:"store_database_path"`
}

func (p ParameterStoreConfig) enabled() bool {
	return p.QueueURLPath != "" || p.StoreURIPath != "" || p.StoreDatabasePath != ""
}

var defaults = map[string]any{
	"queue.url":                     "",
	"queue.visibility_timeout":      "0s",
	"queue.release_on_failure":      false,
	"queue.fail_visibility_timeout": "0s",

	"store.driver":      DriverMongo,
	"store.uri":         "",
	"store.database":    "",
	"store.collection":  "messages",
	"store.table":       "messages",
	"store.max_conns":   0,
	"store.bucket":      "",
	"store.prefix":      "",
	"store.compression": "snappy",

	"consumer.wait_time":        "20s",
	"consumer.poll_interval":    "1s",
	"consumer.process_timeout":  "30s",
	"consumer.insert_attempts":  1,
	"consumer.ack_attempts":     3,
	"consumer.retry_base_delay": "100ms",
	"consumer.retry_max_delay":  "2s",
	"consumer.stats_interval":   "0s",

	"log.level":  "info",
	"log.format": "json",
	"log.output": "stdout",

	"aws.region":   "",
	"aws.endpoint": "",

	"parameter_store.queue_url_path":      "",
	"parameter_store.store_uri_path":      "",
	"parameter_store.store_database_path": "",
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	}
	return v
}

// Load reads path (optional) and the environment. The result is not
// validated yet because parameter store values may still be missing; call
// Validate after ResolveParameters.
func Load(path string) (Config, error) {
	v := newViper(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrConfigRead, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigUnmarshal, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.Queue.URL == "" {
		errs = append(errs, errors.New("queue.url is required"))
	}
	if c.Queue.VisibilityTimeout < 0 || c.Queue.FailVisibilityTimeout < 0 {
		errs = append(errs, errors.New("queue visibility timeouts must not be negative"))
	}

	switch c.Store.Driver {
	case DriverMongo:
		if c.Store.URI == "" || c.Store.Database == "" {
			errs = append(errs, errors.New("store.uri and store.database are required for mongo"))
		}
	case DriverPostgres:
		if c.Store.URI == "" {
			errs = append(errs, errors.New("store.uri is required for postgres"))
		}
	case DriverS3:
		if c.Store.Bucket == "" {
			errs = append(errs, errors.New("store.bucket is required for s3"))
		}
		if _, err := encoder.ParseCompression(c.Store.Compression); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if c.Consumer.WaitTime < 0 || c.Consumer.WaitTime > 20*time.Second {
		errs = append(errs, fmt.Errorf("consumer.wait_time must be between 0s and 20s, got %s", c.Consumer.WaitTime))
	}
	if c.Consumer.PollInterval < 0 {
		errs = append(errs, errors.New("consumer.poll_interval must not be negative"))
	}
	if c.Consumer.ProcessTimeout <= 0 {
		errs = append(errs, errors.New("consumer.process_timeout must be positive"))
	}
	if c.Consumer.InsertAttempts < 1 {
		errs = append(errs, errors.New("consumer.insert_attempts must be at least 1"))
	}
	if c.Consumer.AckAttempts < 1 {
		errs = append(errs, errors.New("consumer.ack_attempts must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigValidation, errors.Join(errs...))
	}
	return nil
}
