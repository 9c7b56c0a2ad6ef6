package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure so callers can tell a
// configuration problem apart from a runtime failure.
var ErrInvalid = errors.New("invalid configuration")

// Action selects what a run does
type Action string

const (
	ActionEnumerate Action = "enumerate"
	ActionLoad      Action = "load"
	ActionMigrate   Action = "migrate"
)

// Queue backends
const (
	QueueRedis  = "redis"
	QueueSQLite = "sqlite"
)

// Storage drivers
const (
	DriverMinIO = "minio"
	DriverS3    = "s3"
)

// Environment variables holding credentials. The destination names match the
// ones operators already export for the S3 side.
const (
	EnvSourceAccessKey = "SOURCE_ACCESS_KEY"
	EnvSourceSecretKey = "SOURCE_SECRET_KEY"
	EnvTargetAccessKey = "S3_ACCESS_KEY"
	EnvTargetSecretKey = "S3_SECRET_KEY"
)

// Config represents the application configuration
type Config struct {
	Source    StoreConfig `yaml:"source"`
	Target    StoreConfig `yaml:"target"`
	Queue     QueueConfig `yaml:"queue"`
	Migration Migration   `yaml:"migration"`
	LogLevel  string      `yaml:"log_level"`
	LogFile   string      `yaml:"log_file"`
}

// StoreConfig describes one side of the migration
type StoreConfig struct {
	Driver    string `yaml:"driver"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// QueueConfig describes the durable work queue
type QueueConfig struct {
	Backend    string `yaml:"backend"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	Password   string `yaml:"password"`
	Key        string `yaml:"key"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Migration holds the run settings
type Migration struct {
	Snapshot       string        `yaml:"snapshot"`
	Workers        int           `yaml:"workers"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	StatusInterval time.Duration `yaml:"status_interval"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	ShowProgress   bool          `yaml:"show_progress"`
}

// Default returns the configuration used before any file, flag or
// environment variable is applied.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Source: StoreConfig{
			Driver: DriverMinIO,
			Secure: true,
		},
		Target: StoreConfig{
			Driver: DriverS3,
			Region: "eu-west-1",
			Secure: true,
		},
		Queue: QueueConfig{
			Backend:    QueueRedis,
			RedisAddr:  "127.0.0.1:6379",
			RedisDB:    1,
			Key:        "ids",
			SQLitePath: "./queue.db",
		},
		Migration: Migration{
			Snapshot:       "migrate-ids.txt",
			Workers:        runtime.NumCPU(),
			StatusInterval: 15 * time.Second,
			ShowProgress:   true,
		},
	}
}

// Load loads configuration from file, command line flags and environment
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if flags != nil {
		loadFromFlags(cfg, flags)
	}

	loadFromEnv(cfg, os.LookupEnv)

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) {
	if flags.Changed("src-driver") {
		cfg.Source.Driver, _ = flags.GetString("src-driver")
	}
	if flags.Changed("src-endpoint") {
		cfg.Source.Endpoint, _ = flags.GetString("src-endpoint")
	}
	if flags.Changed("src-region") {
		cfg.Source.Region, _ = flags.GetString("src-region")
	}
	if flags.Changed("src-secure") {
		cfg.Source.Secure, _ = flags.GetBool("src-secure")
	}
	if flags.Changed("src-bucket") {
		cfg.Source.Bucket, _ = flags.GetString("src-bucket")
	}
	if flags.Changed("prefix") {
		cfg.Source.Prefix, _ = flags.GetString("prefix")
	}

	if flags.Changed("dst-driver") {
		cfg.Target.Driver, _ = flags.GetString("dst-driver")
	}
	if flags.Changed("dst-endpoint") {
		cfg.Target.Endpoint, _ = flags.GetString("dst-endpoint")
	}
	if flags.Changed("dst-region") {
		cfg.Target.Region, _ = flags.GetString("dst-region")
	}
	if flags.Changed("dst-secure") {
		cfg.Target.Secure, _ = flags.GetBool("dst-secure")
	}
	if flags.Changed("dst-bucket") {
		cfg.Target.Bucket, _ = flags.GetString("dst-bucket")
	}

	if flags.Changed("queue-backend") {
		cfg.Queue.Backend, _ = flags.GetString("queue-backend")
	}
	if flags.Changed("redis-addr") {
		cfg.Queue.RedisAddr, _ = flags.GetString("redis-addr")
	}
	if flags.Changed("redis-db") {
		cfg.Queue.RedisDB, _ = flags.GetInt("redis-db")
	}
	if flags.Changed("queue-key") {
		cfg.Queue.Key, _ = flags.GetString("queue-key")
	}
	if flags.Changed("queue-db") {
		cfg.Queue.SQLitePath, _ = flags.GetString("queue-db")
	}

	if flags.Changed("snapshot") {
		cfg.Migration.Snapshot, _ = flags.GetString("snapshot")
	}
	if flags.Changed("workers") {
		cfg.Migration.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("retry-delay") {
		cfg.Migration.RetryDelay, _ = flags.GetDuration("retry-delay")
	}
	if flags.Changed("status-interval") {
		cfg.Migration.StatusInterval, _ = flags.GetDuration("status-interval")
	}
	if flags.Changed("metrics-addr") {
		cfg.Migration.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("show-progress") {
		cfg.Migration.ShowProgress, _ = flags.GetBool("show-progress")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-file") {
		cfg.LogFile, _ = flags.GetString("log-file")
	}
}

// loadFromEnv fills credentials from the environment. Values already set by
// the config file win, so a file can pin credentials for a test rig.
func loadFromEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	set(&cfg.Source.AccessKey, EnvSourceAccessKey)
	set(&cfg.Source.SecretKey, EnvSourceSecretKey)
	set(&cfg.Target.AccessKey, EnvTargetAccessKey)
	set(&cfg.Target.SecretKey, EnvTargetSecretKey)
}

// ValidateFor checks the settings the given action needs. Each missing
// requirement has its own message.
func (c *Config) ValidateFor(action Action) error {
	var checks []func() error

	switch action {
	case ActionEnumerate:
		checks = append(checks, c.validateSource, c.validateSnapshot)
	case ActionLoad:
		checks = append(checks, c.validateQueue, c.validateSnapshot)
	case ActionMigrate:
		checks = append(checks, c.validateTarget, c.validateSource, c.validateQueue, c.validateWorkers)
	default:
		return fmt.Errorf("%w: unknown action %q (want enumerate, load or migrate)", ErrInvalid, action)
	}

	for _, check := range checks {
		if err := check(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	return nil
}

func (c *Config) validateSource() error {
	if err := validateDriver("source", c.Source.Driver); err != nil {
		return err
	}
	if c.Source.Driver == DriverMinIO && c.Source.Endpoint == "" {
		return fmt.Errorf("source endpoint is required for the minio driver")
	}
	if c.Source.AccessKey == "" || c.Source.SecretKey == "" {
		return fmt.Errorf("source credentials are required: set %s and %s", EnvSourceAccessKey, EnvSourceSecretKey)
	}
	if c.Source.Bucket == "" {
		return fmt.Errorf("source bucket is required")
	}
	return nil
}

func (c *Config) validateTarget() error {
	if err := validateDriver("target", c.Target.Driver); err != nil {
		return err
	}
	if c.Target.Driver == DriverMinIO && c.Target.Endpoint == "" {
		return fmt.Errorf("target endpoint is required for the minio driver")
	}
	if c.Target.AccessKey == "" || c.Target.SecretKey == "" {
		return fmt.Errorf("target credentials are required: set %s and %s", EnvTargetAccessKey, EnvTargetSecretKey)
	}
	if c.Target.Bucket == "" {
		return fmt.Errorf("target bucket is required")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.Key == "" {
		return fmt.Errorf("queue key is required")
	}
	switch c.Queue.Backend {
	case QueueRedis:
		if c.Queue.RedisAddr == "" {
			return fmt.Errorf("redis address is required")
		}
	case QueueSQLite:
		if c.Queue.SQLitePath == "" {
			return fmt.Errorf("queue database path is required")
		}
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}
	return nil
}

func (c *Config) validateSnapshot() error {
	if c.Migration.Snapshot == "" {
		return fmt.Errorf("snapshot path is required")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Migration.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	return nil
}

func validateDriver(side, driver string) error {
	switch driver {
	case DriverMinIO, DriverS3:
		return nil
	default:
		return fmt.Errorf("unknown %s driver %q", side, driver)
	}
}
