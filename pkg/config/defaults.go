package config

import (
	"slices"
	"time"
)

const (
	defaultAPIURL      = "https://api.openai.com/v1/chat/completions"
	defaultModel       = "gpt-4o-mini"
	defaultTemperature = 0.7
	defaultTimeout     = 60 * time.Second

	defaultStorageDriver = StorageJSONFile
	defaultMaxMessages   = 100

	defaultServerListen = "127.0.0.1:8790"

	defaultEventsProvider = EventsNone
	defaultEventsTopic    = "reel.turns"
)

// Storage drivers.
const (
	StorageJSONFile = "jsonfile"
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// StorageDrivers lists the accepted storage.driver values.
var StorageDrivers = []string{StorageJSONFile, StorageMemory, StorageSQLite, StoragePostgres}

// Events providers.
const (
	EventsNone  = "none"
	EventsKafka = "kafka"
)

func isValidDriver(d string) bool {
	return slices.Contains(StorageDrivers, d)
}

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			APIURL:      defaultAPIURL,
			Model:       defaultModel,
			Temperature: defaultTemperature,
			Timeout:     defaultTimeout.String(),
		},
		Storage: StorageConfig{
			Driver:      defaultStorageDriver,
			MaxMessages: defaultMaxMessages,
		},
		Server: ServerConfig{
			Listen: defaultServerListen,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
