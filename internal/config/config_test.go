package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"

	"github.com/joshp123/agrobot/internal/gateway"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != "mock" || cfg.BaseURL != DefaultBaseURL {
		t.Fatalf("unexpected backend defaults: %+v", cfg)
	}
	if cfg.PollInterval != 5*time.Second || cfg.FetchTimeout != 10*time.Second {
		t.Fatalf("unexpected timing defaults: %s %s", cfg.PollInterval, cfg.FetchTimeout)
	}
	if cfg.Mock.Latency != 300*time.Millisecond || cfg.Mock.Jitter != 200*time.Millisecond {
		t.Fatalf("unexpected mock defaults: %+v", cfg.Mock)
	}
	if cfg.MQTT.Broker != "" || cfg.MQTT.TopicPrefix != "agrobot" {
		t.Fatalf("unexpected mqtt defaults: %+v", cfg.MQTT)
	}
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agrobot.yaml")
	data := []byte(strings.Join([]string{
		"backend: live",
		"base_url: http://robot.local/api",
		"poll_interval: 2s",
		"mqtt:",
		"  broker: tcp://broker:1883",
		"log:",
		"  level: debug",
	}, "\n"))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("AGROBOT_HTTP_ADDR", "127.0.0.1:18080")
	t.Setenv("AGROBOT_MQTT_TOPIC_PREFIX", "farm")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--poll-interval=3s"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != "live" || cfg.BaseURL != "http://robot.local/api" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Fatalf("flag should override file, got %s", cfg.PollInterval)
	}
	if cfg.HTTPAddr != "127.0.0.1:18080" || cfg.MQTT.TopicPrefix != "farm" {
		t.Fatalf("env values not applied: %+v", cfg)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" || cfg.Log.Level != "debug" {
		t.Fatalf("nested values not applied: %+v", cfg)
	}
	if cfg.GRPCAddr != DefaultGRPCAddr {
		t.Fatalf("unset flag should not override default, got %s", cfg.GRPCAddr)
	}

	gw := cfg.Gateway(logr.Discard())
	if gw.Backend != gateway.BackendLive || gw.Live.BaseURL != cfg.BaseURL {
		t.Fatalf("unexpected gateway config: %+v", gw)
	}
	if opts := cfg.Mirror(logr.Discard()); opts.PollInterval != 3*time.Second {
		t.Fatalf("unexpected mirror options: %+v", opts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Backend:      "mock",
			PollInterval: DefaultPollInterval,
			FetchTimeout: DefaultFetchTimeout,
			HTTPAddr:     DefaultHTTPAddr,
			GRPCAddr:     DefaultGRPCAddr,
		}
	}
	if err := Validate(valid()); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := map[string]func(*Config){
		"unknown backend":   func(c *Config) { c.Backend = "serial" },
		"live without url":  func(c *Config) { c.Backend = "live"; c.BaseURL = "" },
		"fast polling":      func(c *Config) { c.PollInterval = 100 * time.Millisecond },
		"zero timeout":      func(c *Config) { c.FetchTimeout = 0 },
		"negative budget":   func(c *Config) { c.CommandsPerMinute = -1 },
		"negative latency":  func(c *Config) { c.Mock.Latency = -time.Second },
		"mqtt no prefix":    func(c *Config) { c.MQTT.Broker = "tcp://b:1883" },
		"missing http addr": func(c *Config) { c.HTTPAddr = "" },
	}
	for name, mutate := range cases {
		cfg := valid()
		mutate(cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := Validate(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
