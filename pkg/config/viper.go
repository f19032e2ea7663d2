package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/papercomputeco/reel/pkg/dotdir"
)

// EnvPrefix prefixes every environment override, e.g. REEL_CLIENT_MODEL.
const EnvPrefix = "REEL"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the REEL_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (REEL_CLIENT_MODEL, REEL_STORAGE_DRIVER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)
	v.SetDefault("profile", d.Profile)

	// Client
	v.SetDefault("client.api_url", d.Client.APIURL)
	v.SetDefault("client.model", d.Client.Model)
	v.SetDefault("client.models", d.Client.Models)
	v.SetDefault("client.temperature", d.Client.Temperature)
	v.SetDefault("client.max_tokens", d.Client.MaxTokens)
	v.SetDefault("client.reasoning", d.Client.Reasoning)
	v.SetDefault("client.proxy_url", d.Client.ProxyURL)
	v.SetDefault("client.timeout", d.Client.Timeout)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)
	v.SetDefault("storage.max_messages", d.Storage.MaxMessages)

	// Server
	v.SetDefault("server.listen", d.Server.Listen)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}

// FromViper resolves a Config from every layer viper knows about.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Version: v.GetInt("version"),
		Profile: v.GetString("profile"),
		Client: ClientConfig{
			APIURL:      v.GetString("client.api_url"),
			Model:       v.GetString("client.model"),
			Models:      listValue(v, "client.models"),
			Temperature: v.GetFloat64("client.temperature"),
			MaxTokens:   v.GetInt("client.max_tokens"),
			Reasoning:   v.GetBool("client.reasoning"),
			ProxyURL:    v.GetString("client.proxy_url"),
			Timeout:     v.GetString("client.timeout"),
		},
		Storage: StorageConfig{
			Driver:      v.GetString("storage.driver"),
			Path:        v.GetString("storage.path"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
			MaxMessages: v.GetInt("storage.max_messages"),
		},
		Server: ServerConfig{
			Listen: v.GetString("server.listen"),
		},
		Events: EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  listValue(v, "events.brokers"),
			Topic:    v.GetString("events.topic"),
		},
	}

	// viper lowercases map keys.
	if headers := v.GetStringMapString("client.headers"); len(headers) > 0 {
		cfg.Client.Headers = make(map[string]string, len(headers))
		for name, value := range headers {
			cfg.Client.Headers[http.CanonicalHeaderKey(name)] = value
		}
	}

	if cfg.Storage.MaxMessages <= 0 {
		cfg.Storage.MaxMessages = defaultMaxMessages
	}

	return cfg
}

// listValue reads a list that may come from TOML as an array or from the
// environment as a comma separated string.
func listValue(v *viper.Viper, key string) []string {
	items := v.GetStringSlice(key)
	if len(items) == 1 && strings.Contains(items[0], ",") {
		return splitList(items[0])
	}
	return items
}

// Watch re-resolves the config whenever the config file changes and passes
// the result to onChange. Parse failures are handed to onError and the
// previous config stays in effect.
func Watch(v *viper.Viper, onChange func(*Config), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := v.ReadInConfig(); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reloading %s: %w", e.Name, err))
			}
			return
		}
		onChange(FromViper(v))
	})
	v.WatchConfig()
}
