package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	HistoryPostgres = "postgres"
	HistoryMemory   = "memory"
)

type Config struct {
	Env           string `yaml:"env" env-default:"local"`
	DBURL         string `yaml:"db_url"`
	HTTPServer    `yaml:"http_server"`
	Graph         Graph         `yaml:"graph"`
	Queue         Queue         `yaml:"queue"`
	Scheduler     Scheduler     `yaml:"scheduler"`
	Orchestration Orchestration `yaml:"orchestration"`
}

type HTTPServer struct {
	Addr        string        `yaml:"addr" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Graph struct {
	BaseURL         string        `yaml:"base_url"`
	TokenURL        string        `yaml:"token_url"`
	TenantID        string        `yaml:"tenant_id"`
	ClientID        string        `yaml:"client_id"`
	ClientSecret    string        `yaml:"client_secret"`
	ProfileCacheTTL time.Duration `yaml:"profile_cache_ttl"`
}

type Queue struct {
	Brokers         string        `yaml:"brokers"`
	BatchTopic      string        `yaml:"batch_topic"`
	MatchTopic      string        `yaml:"match_topic"`
	GroupID         string        `yaml:"group_id"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	PollTimeout     time.Duration `yaml:"poll_timeout"`
}

type Scheduler struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Orchestration holds the retry policy applied to every activity and sub-orchestration call.
// LeaseTTL bounds how long a crashed process keeps an instance reserved.
type Orchestration struct {
	History            string        `yaml:"history"`
	MaxAttempts        int           `yaml:"max_attempts"`
	FirstRetryInterval time.Duration `yaml:"first_retry_interval"`
	MaxRetryInterval   time.Duration `yaml:"max_retry_interval"`
	BackoffCoefficient float64       `yaml:"backoff_coefficient"`
	LeaseTTL           time.Duration `yaml:"lease_ttl"`
	MaxConcurrency     int           `yaml:"max_concurrency"`
}

func MustLoadConfig(configPath string) *Config {
	config, err := LoadConfig(configPath)
	if err != nil {
		panic(err)
	}

	return config
}

// LoadConfig reads the YAML file at configPath, falling back to CONFIG_PATH when empty.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		return nil, errors.New("config path is not set")
	}

	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(configData)
}

func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "local"
	}
	if c.Addr == "" {
		c.Addr = "localhost:8080"
	}
	if c.Timeout == 0 {
		c.Timeout = 4 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.Graph.BaseURL == "" {
		c.Graph.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	if c.Graph.ProfileCacheTTL == 0 {
		c.Graph.ProfileCacheTTL = time.Hour
	}
	if c.Queue.BatchTopic == "" {
		c.Queue.BatchTopic = "pairup-batches"
	}
	if c.Queue.MatchTopic == "" {
		c.Queue.MatchTopic = "pairup-matches"
	}
	if c.Queue.GroupID == "" {
		c.Queue.GroupID = "pairup-match-worker"
	}
	if c.Queue.DeliveryTimeout == 0 {
		c.Queue.DeliveryTimeout = 10 * time.Second
	}
	if c.Queue.PollTimeout == 0 {
		c.Queue.PollTimeout = time.Second
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = 24 * time.Hour
	}
	if c.Orchestration.History == "" {
		c.Orchestration.History = HistoryPostgres
	}
	if c.Orchestration.MaxAttempts == 0 {
		c.Orchestration.MaxAttempts = 3
	}
	if c.Orchestration.FirstRetryInterval == 0 {
		c.Orchestration.FirstRetryInterval = 5 * time.Second
	}
	if c.Orchestration.MaxRetryInterval == 0 {
		c.Orchestration.MaxRetryInterval = time.Minute
	}
	if c.Orchestration.BackoffCoefficient == 0 {
		c.Orchestration.BackoffCoefficient = 2
	}
	if c.Orchestration.LeaseTTL == 0 {
		c.Orchestration.LeaseTTL = 30 * time.Second
	}
	if c.Orchestration.MaxConcurrency == 0 {
		c.Orchestration.MaxConcurrency = 4
	}
}

func (c *Config) validate() error {
	switch c.Env {
	case "local", "dev", "prod":
	default:
		return fmt.Errorf("unknown env %q", c.Env)
	}
	if c.DBURL == "" {
		return errors.New("db_url is required")
	}
	switch c.Orchestration.History {
	case HistoryPostgres, HistoryMemory:
	default:
		return fmt.Errorf("unknown history backend %q", c.Orchestration.History)
	}
	if c.Orchestration.MaxAttempts < 1 {
		return errors.New("orchestration max_attempts must be positive")
	}
	if c.Orchestration.BackoffCoefficient < 1 {
		return errors.New("orchestration backoff_coefficient must be at least 1")
	}
	if c.Orchestration.LeaseTTL < time.Second {
		return errors.New("orchestration lease_ttl must be at least 1s")
	}
	if c.Orchestration.MaxConcurrency < 1 {
		return errors.New("orchestration max_concurrency must be positive")
	}
	return nil
}
