package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Rooms struct {
		MaxIdle       time.Duration `yaml:"max_idle"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"rooms"`

	TeamDefaults struct {
		Backend       string        `yaml:"backend"`
		Path          string        `yaml:"path"`
		FlushInterval time.Duration `yaml:"flush_interval"`
	} `yaml:"team_defaults"`

	NATS struct {
		URL    string `yaml:"url"`
		Stream string `yaml:"stream"`
	} `yaml:"nats"`
}

func defaultConfig() *Config {
	var c Config
	c.Server.Port = "3000"
	c.Server.AllowedOrigins = []string{"*"}
	c.Logging.Level = "info"
	c.Logging.Format = "json"
	c.Rooms.MaxIdle = 24 * time.Hour
	c.Rooms.SweepInterval = time.Hour
	c.TeamDefaults.Backend = "file"
	c.TeamDefaults.Path = "teamDefaults.json"
	c.TeamDefaults.FlushInterval = 5 * time.Minute
	return &c
}

// loadConfig builds the configuration from defaults, the optional YAML file at
// path, and environment variables, in increasing precedence.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.Logging.Level = getEnv("LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = getEnv("LOG_FORMAT", config.Logging.Format)
	config.TeamDefaults.Backend = getEnv("TEAM_DEFAULTS_BACKEND", config.TeamDefaults.Backend)
	config.TeamDefaults.Path = getEnv("TEAM_DEFAULTS_PATH", config.TeamDefaults.Path)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.Server.AllowedOrigins = splitList(origins)
	}

	var err error
	if config.Rooms.MaxIdle, err = getEnvAsDuration("ROOM_MAX_IDLE", config.Rooms.MaxIdle); err != nil {
		return nil, err
	}
	if config.Rooms.SweepInterval, err = getEnvAsDuration("ROOM_SWEEP_INTERVAL", config.Rooms.SweepInterval); err != nil {
		return nil, err
	}
	if config.TeamDefaults.FlushInterval, err = getEnvAsDuration("TEAM_DEFAULTS_FLUSH_INTERVAL", config.TeamDefaults.FlushInterval); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.TeamDefaults.Backend {
	case "file", "postgres":
	default:
		return fmt.Errorf("unknown team defaults backend %q", c.TeamDefaults.Backend)
	}
	if c.Rooms.SweepInterval <= 0 || c.TeamDefaults.FlushInterval <= 0 {
		return fmt.Errorf("sweep and flush intervals must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
