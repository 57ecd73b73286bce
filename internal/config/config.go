// Package config loads server settings with precedence: JSON file over
// environment variables over built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings.
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Poll      *PollConfig      `json:"poll"`
	Chat      *ChatConfig      `json:"chat"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

type PollConfig struct {
	// DefaultTimeLimit, in seconds, applies when a poll request carries no
	// positive time limit.
	DefaultTimeLimit int `json:"default_time_limit"`
}

type ChatConfig struct {
	// HistoryLimit caps the retained chat log; 0 keeps everything, matching
	// the original behavior.
	HistoryLimit int `json:"history_limit"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         3001,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			BufferSize:   100,
		},
		Poll: &PollConfig{
			DefaultTimeLimit: 60,
		},
		Chat: &ChatConfig{
			HistoryLimit: 0,
		},
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket intervals must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.Poll == nil || c.Poll.DefaultTimeLimit <= 0 {
		return fmt.Errorf("poll default time limit must be positive")
	}
	if c.Chat == nil || c.Chat.HistoryLimit < 0 {
		return fmt.Errorf("chat history limit cannot be negative")
	}
	return nil
}

// LoadFromEnv overlays POLLROOM_* environment variables on the defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("POLLROOM_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("POLLROOM_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if v := os.Getenv("POLLROOM_HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.HTTP.ReadTimeout = d
		}
	}
	if v := os.Getenv("POLLROOM_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.HTTP.WriteTimeout = d
		}
	}
	if v := os.Getenv("POLLROOM_WEBSOCKET_PING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WebSocket.PingInterval = d
		}
	}
	if v := os.Getenv("POLLROOM_WEBSOCKET_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WebSocket.ReadTimeout = d
		}
	}
	if v := os.Getenv("POLLROOM_WEBSOCKET_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.WebSocket.BufferSize = n
		}
	}
	if v := os.Getenv("POLLROOM_POLL_DEFAULT_TIME_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Poll.DefaultTimeLimit = n
		}
	}
	if v := os.Getenv("POLLROOM_CHAT_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Chat.HistoryLimit = n
		}
	}

	return config
}

// configFile mirrors Config with string durations for JSON parsing.
type configFile struct {
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval string `json:"ping_interval"`
		ReadTimeout  string `json:"read_timeout"`
		BufferSize   int    `json:"buffer_size"`
	} `json:"websocket"`
	Poll *PollConfig `json:"poll"`
	Chat *ChatConfig `json:"chat"`
}

// LoadFromFile overlays a JSON config file on the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config := DefaultConfig()

	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		if d, err := time.ParseDuration(file.HTTP.ReadTimeout); err == nil {
			config.HTTP.ReadTimeout = d
		}
		if d, err := time.ParseDuration(file.HTTP.WriteTimeout); err == nil {
			config.HTTP.WriteTimeout = d
		}
	}
	if file.WebSocket != nil {
		if d, err := time.ParseDuration(file.WebSocket.PingInterval); err == nil {
			config.WebSocket.PingInterval = d
		}
		if d, err := time.ParseDuration(file.WebSocket.ReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = d
		}
		if file.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = file.WebSocket.BufferSize
		}
	}
	if file.Poll != nil && file.Poll.DefaultTimeLimit > 0 {
		config.Poll.DefaultTimeLimit = file.Poll.DefaultTimeLimit
	}
	if file.Chat != nil && file.Chat.HistoryLimit >= 0 {
		config.Chat.HistoryLimit = file.Chat.HistoryLimit
	}

	return config, nil
}

// LoadWithPrecedence loads from the given file when path is non-empty,
// otherwise from the environment.
func LoadWithPrecedence(path string) *Config {
	if path != "" {
		if config, err := LoadFromFile(path); err == nil {
			return config
		}
	}
	return LoadFromEnv()
}
