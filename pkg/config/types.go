package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent reel configuration stored as config.toml
// in the .reel/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version" json:"version"`
	Profile string        `toml:"profile,omitempty" json:"profile,omitempty"`
	Client  ClientConfig  `toml:"client" json:"client"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Server  ServerConfig  `toml:"server" json:"server"`
	Events  EventsConfig  `toml:"events" json:"events"`
}

// ClientConfig holds the settings for requests to the chat-completions
// endpoint.
type ClientConfig struct {
	APIURL string `toml:"api_url,omitempty" json:"api_url,omitempty"`
	Model  string `toml:"model,omitempty" json:"model,omitempty"`

	// Models lists extra model names offered by /model and the server.
	Models []string `toml:"models,omitempty" json:"models,omitempty"`

	Temperature float64 `toml:"temperature" json:"temperature"`

	// MaxTokens of 0 leaves the limit to the provider.
	MaxTokens int  `toml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Reasoning bool `toml:"reasoning,omitempty" json:"reasoning,omitempty"`

	ProxyURL string `toml:"proxy_url,omitempty" json:"proxy_url,omitempty"`

	// Timeout bounds the wait for response headers, as a Go duration.
	Timeout string `toml:"timeout,omitempty" json:"timeout,omitempty"`

	Headers map[string]string `toml:"headers,omitempty" json:"headers,omitempty"`
}

// TimeoutDuration parses Timeout, falling back to the default.
func (c ClientConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return defaultTimeout
	}
	return d
}

// StorageConfig selects where conversations are persisted.
type StorageConfig struct {
	Driver      string `toml:"driver,omitempty" json:"driver,omitempty"`
	Path        string `toml:"path,omitempty" json:"path,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty" json:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty" json:"postgres_dsn,omitempty"`

	// MaxMessages is how many trailing messages of each conversation are
	// persisted.
	MaxMessages int `toml:"max_messages,omitempty" json:"max_messages,omitempty"`
}

// ServerConfig holds "reel serve" settings.
type ServerConfig struct {
	Listen string `toml:"listen,omitempty" json:"listen,omitempty"`
}

// EventsConfig selects where turn-completed events are published.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty" json:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty" json:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty" json:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// HeaderKeyPrefix prefixes the dynamic per-header keys, e.g.
// "client.headers.HTTP-Referer".
const HeaderKeyPrefix = "client.headers."

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"profile": {
		get: func(c *Config) string { return c.Profile },
		set: func(c *Config, v string) error { c.Profile = v; return nil },
	},
	"client.api_url": {
		get: func(c *Config) string { return c.Client.APIURL },
		set: func(c *Config, v string) error { c.Client.APIURL = v; return nil },
	},
	"client.model": {
		get: func(c *Config) string { return c.Client.Model },
		set: func(c *Config, v string) error { c.Client.Model = v; return nil },
	},
	"client.models": {
		get: func(c *Config) string { return strings.Join(c.Client.Models, ",") },
		set: func(c *Config, v string) error { c.Client.Models = splitList(v); return nil },
	},
	"client.temperature": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Client.Temperature, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for client.temperature: %w", err)
			}
			if f < 0 || f > 2 {
				return fmt.Errorf("client.temperature must be between 0 and 2, got %v", f)
			}
			c.Client.Temperature = f
			return nil
		},
	},
	"client.max_tokens": {
		get: func(c *Config) string {
			if c.Client.MaxTokens == 0 {
				return ""
			}
			return strconv.Itoa(c.Client.MaxTokens)
		},
		set: func(c *Config, v string) error {
			if v == "" {
				c.Client.MaxTokens = 0
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for client.max_tokens: %q", v)
			}
			c.Client.MaxTokens = n
			return nil
		},
	},
	"client.reasoning": {
		get: func(c *Config) string { return strconv.FormatBool(c.Client.Reasoning) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for client.reasoning: %w", err)
			}
			c.Client.Reasoning = b
			return nil
		},
	},
	"client.proxy_url": {
		get: func(c *Config) string { return c.Client.ProxyURL },
		set: func(c *Config, v string) error { c.Client.ProxyURL = v; return nil },
	},
	"client.timeout": {
		get: func(c *Config) string { return c.Client.Timeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for client.timeout: %w", err)
			}
			c.Client.Timeout = v
			return nil
		},
	},
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			if !isValidDriver(v) {
				return fmt.Errorf("unknown storage driver %q (available: %s)", v, strings.Join(StorageDrivers, ", "))
			}
			c.Storage.Driver = v
			return nil
		},
	},
	"storage.path": {
		get: func(c *Config) string { return c.Storage.Path },
		set: func(c *Config, v string) error { c.Storage.Path = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"storage.max_messages": {
		get: func(c *Config) string { return strconv.Itoa(c.Storage.MaxMessages) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid value for storage.max_messages: %q", v)
			}
			c.Storage.MaxMessages = n
			return nil
		},
	},
	"server.listen": {
		get: func(c *Config) string { return c.Server.Listen },
		set: func(c *Config, v string) error { c.Server.Listen = v; return nil },
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error {
			if v != EventsNone && v != EventsKafka {
				return fmt.Errorf("unknown events provider %q (available: %s, %s)", v, EventsNone, EventsKafka)
			}
			c.Events.Provider = v
			return nil
		},
	},
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error { c.Events.Brokers = splitList(v); return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}

// splitList parses a comma separated list, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
