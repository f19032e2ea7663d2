// Package config loads, edits and layers reel's config.toml. Configer reads
// and writes the file by dotted keys; InitViper layers flags, REEL_*
// environment variables, the file and defaults for commands.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/reel/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns every supported static key in TOML section order.
// Per-header keys (HeaderKeyPrefix + name) are accepted in addition.
func ValidConfigKeys() []string {
	ordered := []string{
		"profile",
		"client.api_url",
		"client.model",
		"client.models",
		"client.temperature",
		"client.max_tokens",
		"client.reasoning",
		"client.proxy_url",
		"client.timeout",
		"storage.driver",
		"storage.path",
		"storage.sqlite_path",
		"storage.postgres_dsn",
		"storage.max_messages",
		"server.listen",
		"events.provider",
		"events.brokers",
		"events.topic",
	}

	result := make([]string, 0, len(configKeys))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	for _, k := range slices.Sorted(maps.Keys(configKeys)) {
		if !slices.Contains(result, k) {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	if _, ok := headerName(key); ok {
		return true
	}
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads config.toml from the target .reel/ directory. A missing
// file yields NewDefaultConfig(); fields absent from the file keep their
// defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return ParseConfigTOML(data)
}

// applyDefaults fills fields that md reports as undefined. Zero values that
// were written explicitly, like temperature = 0, are kept.
func applyDefaults(cfg *Config, md toml.MetaData) {
	defaults := NewDefaultConfig()

	if !md.IsDefined("version") {
		cfg.Version = defaults.Version
	}

	if cfg.Client.APIURL == "" {
		cfg.Client.APIURL = defaults.Client.APIURL
	}
	if cfg.Client.Model == "" {
		cfg.Client.Model = defaults.Client.Model
	}
	if !md.IsDefined("client", "temperature") {
		cfg.Client.Temperature = defaults.Client.Temperature
	}
	if cfg.Client.Timeout == "" {
		cfg.Client.Timeout = defaults.Client.Timeout
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaults.Storage.Driver
	}
	if cfg.Storage.MaxMessages <= 0 {
		cfg.Storage.MaxMessages = defaults.Storage.MaxMessages
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaults.Server.Listen
	}

	if cfg.Events.Provider == "" {
		cfg.Events.Provider = defaults.Events.Provider
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = defaults.Events.Topic
	}
}

// SaveConfig persists the configuration to config.toml in the target .reel/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Setting a header key to "" removes the header.
func (c *Configer) SetConfigValue(key string, value string) error {
	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if name, ok := headerName(key); ok {
		setHeader(cfg, name, value)
		return c.SaveConfig(cfg)
	}

	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	if name, ok := headerName(key); ok {
		return cfg.Client.Headers[name], nil
	}

	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	return info.get(cfg), nil
}

// HeaderKeys returns the dotted keys of the configured custom headers.
func (cfg *Config) HeaderKeys() []string {
	keys := make([]string, 0, len(cfg.Client.Headers))
	for _, name := range slices.Sorted(maps.Keys(cfg.Client.Headers)) {
		keys = append(keys, HeaderKeyPrefix+name)
	}
	return keys
}

func headerName(key string) (string, bool) {
	name, ok := strings.CutPrefix(key, HeaderKeyPrefix)
	if !ok || name == "" {
		return "", false
	}
	return http.CanonicalHeaderKey(name), true
}

func setHeader(cfg *Config, name, value string) {
	if value == "" {
		delete(cfg.Client.Headers, name)
		return
	}
	if cfg.Client.Headers == nil {
		cfg.Client.Headers = make(map[string]string)
	}
	cfg.Client.Headers[name] = value
}

// PresetConfig returns a Config with sane defaults for the named provider preset.
// Supported presets: "openai", "openrouter", "ollama".
// Returns an error if the preset name is not recognized.
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch strings.ToLower(name) {
	case "openai":
		cfg.Profile = "openai"

	case "openrouter":
		cfg.Profile = "openrouter"
		cfg.Client.APIURL = "https://openrouter.ai/api/v1/chat/completions"
		cfg.Client.Model = "openai/gpt-5-mini"
		cfg.Client.Models = []string{
			"openai/gpt-5",
			"openai/gpt-5-mini",
			"anthropic/claude-sonnet-4",
			"google/gemini-2.5-flash-lite",
		}
		cfg.Client.Reasoning = true
		cfg.Client.Headers = map[string]string{
			"X-Title": "reel",
		}

	case "ollama":
		cfg.Profile = "ollama"
		cfg.Client.APIURL = "http://localhost:11434/v1/chat/completions"
		cfg.Client.Model = "gemma3:latest"
		cfg.Client.Timeout = "5m0s"

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}

	return cfg, nil
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"openai", "openrouter", "ollama"}
}

// ParseConfigTOML parses raw TOML bytes into a Config with defaults applied.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	applyDefaults(cfg, md)

	return cfg, nil
}
