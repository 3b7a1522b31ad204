package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the AgentFleet server.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Fleet     FleetConfig
	Executor  ExecutorConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type RedisConfig struct {
	URL string
}

// FleetConfig tunes agent discovery and the background verification loops.
type FleetConfig struct {
	AuthMode            string // auth type applied fleet-wide at discovery
	PassthroughBaseURL  string
	ContainerPrefix     string
	HealthCheckMode     string // "docker" or "socket"
	HealthCheckInterval time.Duration
	AuthCheckInterval   time.Duration
	SocketProbeTimeout  time.Duration
}

// ExecutorConfig bounds in-container command execution.
type ExecutorConfig struct {
	Timeout        time.Duration
	MaxOutputBytes int64
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

var validAuthModes = map[string]bool{
	"api_key":      true,
	"subscription": true,
}

var validHealthModes = map[string]bool{
	"docker": true,
	"socket": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("AGENTFLEET_PORT", 8080),
			Env:  envString("AGENTFLEET_ENV", "development"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Fleet: FleetConfig{
			AuthMode:            envString("AGENT_AUTH_MODE", "api_key"),
			PassthroughBaseURL:  envString("PASSTHROUGH_BASE_URL", "http://litellm-proxy:4000"),
			ContainerPrefix:     envString("CONTAINER_PREFIX", "agentfleet-"),
			HealthCheckMode:     envString("HEALTH_CHECK_MODE", "docker"),
			HealthCheckInterval: envDuration("HEALTH_CHECK_INTERVAL", 30*time.Second),
			AuthCheckInterval:   envDuration("AUTH_CHECK_INTERVAL", 15*time.Minute),
			SocketProbeTimeout:  envDuration("SOCKET_PROBE_TIMEOUT", 5*time.Second),
		},
		Executor: ExecutorConfig{
			Timeout:        envDuration("EXEC_TIMEOUT", 5*time.Minute),
			MaxOutputBytes: envInt64("EXEC_MAX_OUTPUT_BYTES", 10*1024*1024),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validAuthModes[c.Fleet.AuthMode] {
		return fmt.Errorf("AGENT_AUTH_MODE must be one of api_key, subscription; got %q", c.Fleet.AuthMode)
	}

	if !validHealthModes[c.Fleet.HealthCheckMode] {
		return fmt.Errorf("HEALTH_CHECK_MODE must be one of docker, socket; got %q", c.Fleet.HealthCheckMode)
	}

	if !strings.HasPrefix(c.Fleet.PassthroughBaseURL, "http://") && !strings.HasPrefix(c.Fleet.PassthroughBaseURL, "https://") {
		return fmt.Errorf("PASSTHROUGH_BASE_URL must start with http:// or https://, got %q", c.Fleet.PassthroughBaseURL)
	}

	if c.Fleet.HealthCheckInterval <= 0 {
		return fmt.Errorf("HEALTH_CHECK_INTERVAL must be positive")
	}
	if c.Fleet.AuthCheckInterval <= 0 {
		return fmt.Errorf("AUTH_CHECK_INTERVAL must be positive")
	}

	if c.Executor.Timeout <= 0 {
		return fmt.Errorf("EXEC_TIMEOUT must be positive")
	}
	if c.Executor.MaxOutputBytes <= 0 {
		return fmt.Errorf("EXEC_MAX_OUTPUT_BYTES must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
