package config

import (
	"os"
	"strconv"
)

// Config is the hub configuration surface. Intervals are whole seconds.
type Config struct {
	ListenAddr        string `json:"listen_addr"`
	HeartbeatInterval int    `json:"heartbeat_interval_seconds"`
	HeartbeatTimeout  int    `json:"heartbeat_timeout_seconds"`
	CleanupInterval   int    `json:"cleanup_interval_seconds"`
	MaxConnections    int    `json:"max_connections"`
	SendConcurrency   int    `json:"send_concurrency"`
	AuthSecret        string `json:"-"`
	AuthAlgorithm     string `json:"auth_algorithm"`
	ReadBufferSize    int    `json:"read_buffer_size"`
	WriteBufferSize   int    `json:"write_buffer_size"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ListenAddr:        ":8080",
		HeartbeatInterval: 30,
		HeartbeatTimeout:  90,
		CleanupInterval:   300,
		MaxConnections:    1000,
		SendConcurrency:   32,
		AuthAlgorithm:     "HS256",
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
	}
}

// FromEnv loads configuration from EVENTHUB_* environment variables,
// falling back to defaults for any missing values.
func FromEnv() *Config {
	cfg := Default()

	if v := os.Getenv("EVENTHUB_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	readInt("EVENTHUB_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval)
	readInt("EVENTHUB_HEARTBEAT_TIMEOUT", &cfg.HeartbeatTimeout)
	readInt("EVENTHUB_CLEANUP_INTERVAL", &cfg.CleanupInterval)
	readInt("EVENTHUB_MAX_CONNECTIONS", &cfg.MaxConnections)
	readInt("EVENTHUB_SEND_CONCURRENCY", &cfg.SendConcurrency)
	if v := os.Getenv("EVENTHUB_AUTH_SECRET"); v != "" {
		cfg.AuthSecret = v
	}
	if v := os.Getenv("EVENTHUB_AUTH_ALGORITHM"); v != "" {
		cfg.AuthAlgorithm = v
	}
	return cfg
}

func readInt(key string, dst *int) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		*dst = n
	}
}
