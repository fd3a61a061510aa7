package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/joshp123/agrobot/internal/gateway"
	"github.com/joshp123/agrobot/internal/mirror"
)

const (
	EnvPrefix                = "AGROBOT"
	DefaultBackend           = string(gateway.BackendMock)
	DefaultBaseURL           = "http://localhost:3001/api"
	DefaultPollInterval      = 5 * time.Second
	DefaultFetchTimeout      = 10 * time.Second
	DefaultMockLatency       = 300 * time.Millisecond
	DefaultMockJitter        = 200 * time.Millisecond
	DefaultCommandsPerMinute = 30
	DefaultHTTPAddr          = "0.0.0.0:8080"
	DefaultGRPCAddr          = "0.0.0.0:9000"
	DefaultTopicPrefix       = "agrobot"
	DefaultLogLevel          = "info"

	minPollInterval = time.Second
)

type Config struct {
	Backend           string        `mapstructure:"backend"`
	BaseURL           string        `mapstructure:"base_url"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	CommandsPerMinute int           `mapstructure:"commands_per_minute"`
	HTTPAddr          string        `mapstructure:"http_addr"`
	GRPCAddr          string        `mapstructure:"grpc_addr"`
	DashboardsDir     string        `mapstructure:"dashboards_dir"`
	Mock              MockConfig    `mapstructure:"mock"`
	MQTT              MQTTConfig    `mapstructure:"mqtt"`
	Log               LogConfig     `mapstructure:"log"`
}

type MockConfig struct {
	DataPath string        `mapstructure:"data_path"`
	Latency  time.Duration `mapstructure:"latency"`
	Jitter   time.Duration `mapstructure:"jitter"`
}

// MQTTConfig enables state publishing when Broker is set.
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"backend":        "backend",
	"base-url":       "base_url",
	"poll-interval":  "poll_interval",
	"http-addr":      "http_addr",
	"grpc-addr":      "grpc_addr",
	"dashboards-dir": "dashboards_dir",
	"mock-data":      "mock.data_path",
	"mqtt-broker":    "mqtt.broker",
	"log-level":      "log.level",
	"log-file":       "log.file",
}

// RegisterFlags declares the overridable settings on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("backend", DefaultBackend, "robot backend: mock or live")
	fs.String("base-url", DefaultBaseURL, "robot API base URL (live backend)")
	fs.Duration("poll-interval", DefaultPollInterval, "status sync interval")
	fs.String("http-addr", DefaultHTTPAddr, "HTTP listen address")
	fs.String("grpc-addr", DefaultGRPCAddr, "gRPC listen address")
	fs.String("dashboards-dir", "", "write Grafana dashboards here for provisioning")
	fs.String("mock-data", "", "status document served by the mock backend")
	fs.String("mqtt-broker", "", "MQTT broker URL; empty disables publishing")
	fs.String("log-level", DefaultLogLevel, "log level: debug, info, warn, error")
	fs.String("log-file", "", "also write logs to this file")
}

// Load merges defaults, the optional config file at path, AGROBOT_* env
// vars and any flags explicitly set on fs, then validates the result.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			flag := fs.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("backend", DefaultBackend)
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("fetch_timeout", DefaultFetchTimeout)
	v.SetDefault("commands_per_minute", DefaultCommandsPerMinute)
	v.SetDefault("http_addr", DefaultHTTPAddr)
	v.SetDefault("grpc_addr", DefaultGRPCAddr)
	v.SetDefault("dashboards_dir", "")
	v.SetDefault("mock.data_path", "")
	v.SetDefault("mock.latency", DefaultMockLatency)
	v.SetDefault("mock.jitter", DefaultMockJitter)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic_prefix", DefaultTopicPrefix)
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", "")
}

// Validate checks what viper cannot express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	switch gateway.Backend(cfg.Backend) {
	case gateway.BackendMock:
	case gateway.BackendLive:
		if cfg.BaseURL == "" {
			return errors.New("base_url is required for the live backend")
		}
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", gateway.BackendMock, gateway.BackendLive, cfg.Backend)
	}
	if cfg.PollInterval < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s", minPollInterval)
	}
	if cfg.FetchTimeout <= 0 {
		return errors.New("fetch_timeout must be positive")
	}
	if cfg.CommandsPerMinute < 0 {
		return errors.New("commands_per_minute must not be negative")
	}
	if cfg.Mock.Latency < 0 || cfg.Mock.Jitter < 0 {
		return errors.New("mock.latency and mock.jitter must not be negative")
	}
	if cfg.HTTPAddr == "" {
		return errors.New("http_addr is required")
	}
	if cfg.GRPCAddr == "" {
		return errors.New("grpc_addr is required")
	}
	if cfg.MQTT.Broker != "" && cfg.MQTT.TopicPrefix == "" {
		return errors.New("mqtt.topic_prefix is required when mqtt.broker is set")
	}
	return nil
}

// Gateway builds the gateway configuration for the selected backend.
func (c *Config) Gateway(log logr.Logger) gateway.Config {
	return gateway.Config{
		Backend: gateway.Backend(c.Backend),
		Live: gateway.ClientConfig{
			BaseURL:           c.BaseURL,
			Timeout:           c.FetchTimeout,
			CommandsPerMinute: c.CommandsPerMinute,
			Logger:            log.WithName("client"),
		},
		Mock: gateway.MockConfig{
			DataPath: c.Mock.DataPath,
			Latency:  c.Mock.Latency,
			Jitter:   c.Mock.Jitter,
			Logger:   log.WithName("mock"),
		},
	}
}

func (c *Config) Mirror(log logr.Logger) mirror.Options {
	return mirror.Options{
		PollInterval: c.PollInterval,
		FetchTimeout: c.FetchTimeout,
		Logger:       log.WithName("mirror"),
	}
}
