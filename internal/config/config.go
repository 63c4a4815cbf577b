// Package config handles hubd configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BusKind selects the bus implementation.
type BusKind string

const (
	BusInMem BusKind = "inmem"
	BusMQTT  BusKind = "mqtt"
)

// StorageKind selects the storage implementation.
type StorageKind string

const (
	StorageInMem    StorageKind = "inmem"
	StoragePostgres StorageKind = "postgres"
)

// MQTTConfig defines the remote bus connection settings.
type MQTTConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// StorageConfig defines the storage backend settings.
type StorageConfig struct {
	Kind StorageKind `yaml:"kind"`
	// URL is the Postgres connection URL; unused for inmem.
	URL string `yaml:"url"`
}

// Config holds all hubd configuration.
type Config struct {
	// Bind is the HTTP listen address.
	Bind    string        `yaml:"bind"`
	Bus     BusKind       `yaml:"bus"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Storage StorageConfig `yaml:"storage"`
	// AuthTokens, when non-empty, requires every HTTP request except
	// /healthz and /metrics to present one of these bearer/API-key tokens.
	AuthTokens []string `yaml:"auth_tokens"`
	// HeartbeatIntervalSec is the hub heartbeat cadence in seconds.
	HeartbeatIntervalSec int    `yaml:"heartbeat_interval_sec"`
	LogLevel             string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Bind:                 "127.0.0.1:8080",
		Bus:                  BusInMem,
		MQTT:                 MQTTConfig{Host: "127.0.0.1", Port: 1883, ClientID: "hubd"},
		Storage:              StorageConfig{Kind: StorageInMem},
		HeartbeatIntervalSec: 30,
	}
}

// HeartbeatInterval returns the heartbeat cadence as a duration.
func (c Config) HeartbeatInterval() time.Duration {
	if c.HeartbeatIntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.HeartbeatIntervalSec) * time.Second
}

// DefaultSearchPaths returns the config file search order. An explicit
// path (from the -config flag) is checked first by FindConfig.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "krypin", "config.yaml"))
	}
	paths = append(paths, "/etc/krypin/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise the search paths are tried in order; an empty
// string with a nil error means no file was found and defaults apply.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Load reads a config file (path may be empty for pure defaults) and
// applies KRYPIN_* environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("KRYPIN_BIND"); v != "" {
		c.Bind = v
	}
	if v := os.Getenv("KRYPIN_BUS"); v != "" {
		c.Bus = BusKind(strings.ToLower(v))
	}
	if v := os.Getenv("KRYPIN_MQTT_HOST"); v != "" {
		c.MQTT.Host = v
	}
	if v := os.Getenv("KRYPIN_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KRYPIN_MQTT_PORT: %w", err)
		}
		c.MQTT.Port = port
	}
	if v := os.Getenv("KRYPIN_MQTT_CLIENT_ID"); v != "" {
		c.MQTT.ClientID = v
	}
	if v := os.Getenv("KRYPIN_STORAGE"); v != "" {
		c.Storage.Kind = StorageKind(strings.ToLower(v))
	}
	if v := os.Getenv("KRYPIN_POSTGRES_URL"); v != "" {
		c.Storage.URL = v
	}
	if v := os.Getenv("KRYPIN_AUTH_TOKENS"); v != "" {
		c.AuthTokens = nil
		for _, token := range strings.Split(v, ",") {
			if token = strings.TrimSpace(token); token != "" {
				c.AuthTokens = append(c.AuthTokens, token)
			}
		}
	}
	if v := os.Getenv("KRYPIN_HEARTBEAT_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KRYPIN_HEARTBEAT_INTERVAL_SEC: %w", err)
		}
		c.HeartbeatIntervalSec = sec
	}
	if v := os.Getenv("KRYPIN_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Bus {
	case BusInMem, BusMQTT:
	default:
		return fmt.Errorf("unknown bus kind %q (valid: inmem, mqtt)", c.Bus)
	}
	switch c.Storage.Kind {
	case StorageInMem:
	case StoragePostgres:
		if c.Storage.URL == "" {
			return fmt.Errorf("storage kind postgres requires a connection url")
		}
	default:
		return fmt.Errorf("unknown storage kind %q (valid: inmem, postgres)", c.Storage.Kind)
	}
	return nil
}
