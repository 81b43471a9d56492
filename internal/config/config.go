// Package config loads environment-driven configuration with sane
// defaults, and supports reloading a subset of fields from an on-disk
// overrides file without a process restart.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every runtime-tunable setting.
type Config struct {
	DataDir                string
	PollInterval           time.Duration
	MaxHistory             int
	LockTimeout            time.Duration
	WorkingDir             string
	AllowAnyWorkspace      bool
	HTTPAddr               string
	HTTPToken              string
	MaxConcurrentSessions  int
	AgentBinary            string
}

// Load reads configuration from the environment, falling back to defaults.
func Load() Config {
	return Config{
		DataDir:               envString("DATA_DIR", "./data"),
		PollInterval:          envDuration("POLL_INTERVAL", 10*time.Second),
		MaxHistory:            envInt("MAX_HISTORY", 1000),
		LockTimeout:           envDuration("LOCK_TIMEOUT", 5*time.Second),
		WorkingDir:            envString("WORKING_DIR", "."),
		AllowAnyWorkspace:     envBool("SCHEDULER_ALLOW_ANY_WORKSPACE", false),
		HTTPAddr:              envString("HTTP_ADDR", ":8080"),
		HTTPToken:             envString("HTTP_TOKEN", ""),
		MaxConcurrentSessions: envInt("MAX_CONCURRENT_SESSIONS", 5),
		AgentBinary:           envString("AGENT_BINARY", "claude"),
	}
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
