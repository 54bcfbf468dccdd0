// Package config loads settings for the queue client binary. Values come from
// defaults, then an optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/rmsqueue/go/internal/queue/channel"
	"gopkg.in/yaml.v3"
)

// Transport selects the QueueChannel implementation
type Transport string

const (
	TransportNATS      Transport = "nats"
	TransportJetStream Transport = "jetstream"
	TransportMemory    Transport = "memory"
)

type Config struct {
	User      UserConfig    `yaml:"user"`
	Transport Transport     `yaml:"transport"`
	NATS      NATSConfig    `yaml:"nats"`
	Gateway   GatewayConfig `yaml:"gateway"`
	AutoJoin  bool          `yaml:"auto_join"`
	LogLevel  string        `yaml:"log_level"`
}

// UserConfig identifies the participant. An empty ID gets a random UUID.
type UserConfig struct {
	ID string `yaml:"id"`
	// StudyTime is the time requested once active. It is sent to the queue
	// manager in seconds.
	StudyTime time.Duration `yaml:"study_time"`
}

type NATSConfig struct {
	URL             string        `yaml:"url"`
	RequestSubject  string        `yaml:"request_subject"`
	SnapshotSubject string        `yaml:"snapshot_subject"`
	StreamName      string        `yaml:"stream_name"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxReconnects   int           `yaml:"max_reconnects"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
}

type GatewayConfig struct {
	Port              string        `yaml:"port"`
	CountdownInterval time.Duration `yaml:"countdown_interval"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
}

// Default returns a Config populated with defaults
func Default() *Config {
	nc := channel.DefaultNATSConfig()
	return &Config{
		User: UserConfig{
			StudyTime: 15 * time.Minute,
		},
		Transport: TransportNATS,
		NATS: NATSConfig{
			URL:             nc.URL,
			RequestSubject:  nc.RequestSubject,
			SnapshotSubject: nc.SnapshotSubject,
			StreamName:      nc.StreamName,
			RequestTimeout:  nc.RequestTimeout,
			MaxReconnects:   nc.MaxReconnects,
			ReconnectWait:   nc.ReconnectWait,
		},
		Gateway: GatewayConfig{
			Port:              "8082",
			CountdownInterval: time.Second,
			AllowedOrigins:    []string{"*"},
		},
		LogLevel: "info",
	}
}

// Load builds the configuration. path may be empty to skip the YAML file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.User.ID == "" {
		cfg.User.ID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.User.ID = getEnv("RMSQUEUE_USER_ID", c.User.ID)
	c.Transport = Transport(getEnv("RMSQUEUE_TRANSPORT", string(c.Transport)))
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.RequestSubject = getEnv("RMSQUEUE_REQUEST_SUBJECT", c.NATS.RequestSubject)
	c.NATS.SnapshotSubject = getEnv("RMSQUEUE_SNAPSHOT_SUBJECT", c.NATS.SnapshotSubject)
	c.NATS.StreamName = getEnv("RMSQUEUE_STREAM", c.NATS.StreamName)
	c.Gateway.Port = getEnv("GATEWAY_PORT", c.Gateway.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Gateway.AllowedOrigins = getEnvAsSlice("GATEWAY_ALLOWED_ORIGINS", c.Gateway.AllowedOrigins)

	var err error
	if c.User.StudyTime, err = getEnvAsDuration("RMSQUEUE_STUDY_TIME", c.User.StudyTime); err != nil {
		return err
	}
	if c.NATS.RequestTimeout, err = getEnvAsDuration("RMSQUEUE_REQUEST_TIMEOUT", c.NATS.RequestTimeout); err != nil {
		return err
	}
	if c.NATS.ReconnectWait, err = getEnvAsDuration("NATS_RECONNECT_WAIT", c.NATS.ReconnectWait); err != nil {
		return err
	}
	if c.NATS.MaxReconnects, err = getEnvAsInt("NATS_MAX_RECONNECTS", c.NATS.MaxReconnects); err != nil {
		return err
	}
	if c.Gateway.CountdownInterval, err = getEnvAsDuration("GATEWAY_COUNTDOWN_INTERVAL", c.Gateway.CountdownInterval); err != nil {
		return err
	}
	if c.AutoJoin, err = getEnvAsBool("RMSQUEUE_AUTO_JOIN", c.AutoJoin); err != nil {
		return err
	}
	return nil
}

// Validate checks the configuration for values the client cannot run with
func (c *Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportNATS, TransportJetStream, TransportMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if c.User.StudyTime < time.Second {
		errs = append(errs, fmt.Errorf("study_time must be at least 1s, got %s", c.User.StudyTime))
	}
	if c.User.StudyTime%time.Second != 0 {
		errs = append(errs, fmt.Errorf("study_time must be whole seconds, got %s", c.User.StudyTime))
	}
	if c.Transport != TransportMemory {
		if c.NATS.URL == "" {
			errs = append(errs, errors.New("nats.url is required"))
		}
		if c.NATS.RequestSubject == "" || c.NATS.SnapshotSubject == "" {
			errs = append(errs, errors.New("nats request and snapshot subjects are required"))
		}
	}
	if c.Transport == TransportJetStream && c.NATS.StreamName == "" {
		errs = append(errs, errors.New("nats.stream_name is required for the jetstream transport"))
	}
	if c.NATS.RequestTimeout <= 0 {
		errs = append(errs, errors.New("nats.request_timeout must be positive"))
	}
	if c.Gateway.CountdownInterval <= 0 {
		errs = append(errs, errors.New("gateway.countdown_interval must be positive"))
	}
	return errors.Join(errs...)
}

// ChannelConfig converts the NATS section into the transport's config type
func (c *Config) ChannelConfig() channel.NATSConfig {
	return channel.NATSConfig{
		URL:             c.NATS.URL,
		RequestSubject:  c.NATS.RequestSubject,
		SnapshotSubject: c.NATS.SnapshotSubject,
		StreamName:      c.NATS.StreamName,
		RequestTimeout:  c.NATS.RequestTimeout,
		MaxReconnects:   c.NATS.MaxReconnects,
		ReconnectWait:   c.NATS.ReconnectWait,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}

// getEnvAsSlice splits a comma-separated value, dropping empty items
func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
