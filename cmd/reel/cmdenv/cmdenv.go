// Package cmdenv resolves what every reel command needs before it runs: the
// layered configuration, the .reel directory, the API key and a logger.
package cmdenv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/reel/cmd/reel/sqlitepath"
	"github.com/papercomputeco/reel/pkg/chat"
	"github.com/papercomputeco/reel/pkg/config"
	"github.com/papercomputeco/reel/pkg/credentials"
	"github.com/papercomputeco/reel/pkg/dotdir"
	"github.com/papercomputeco/reel/pkg/logger"
)

// ClientFlags are the registry keys of flags that shape a streaming session.
var ClientFlags = []string{
	config.FlagProfile,
	config.FlagAPIURL,
	config.FlagModel,
	config.FlagTemperature,
	config.FlagMaxTokens,
	config.FlagReasoning,
	config.FlagProxyURL,
	config.FlagTimeout,
}

// StorageFlags are the registry keys of flags that select conversation
// storage.
var StorageFlags = []string{
	config.FlagStorageDriver,
	config.FlagStoragePath,
	config.FlagSQLite,
	config.FlagPostgresDSN,
}

// AddClientFlags registers the ClientFlags on cmd.
func AddClientFlags(cmd *cobra.Command) {
	for _, key := range ClientFlags {
		switch key {
		case config.FlagTemperature:
			config.AddFloatFlag(cmd, config.Flags, key, new(float64))
		case config.FlagMaxTokens:
			config.AddIntFlag(cmd, config.Flags, key, new(int))
		case config.FlagReasoning:
			config.AddBoolFlag(cmd, config.Flags, key, new(bool))
		default:
			config.AddStringFlag(cmd, config.Flags, key, new(string))
		}
	}
}

// AddStorageFlags registers the StorageFlags on cmd.
func AddStorageFlags(cmd *cobra.Command) {
	for _, key := range StorageFlags {
		config.AddStringFlag(cmd, config.Flags, key, new(string))
	}
}

// Env is the resolved environment of one command invocation.
type Env struct {
	Viper     *viper.Viper
	Config    *config.Config
	ConfigDir string
	DotDir    string
	Debug     bool
	Logger    *slog.Logger
}

// Load layers flags named by flagKeys over REEL_* variables, config.toml and
// defaults.
func Load(cmd *cobra.Command, flagKeys []string) (*Env, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	debug, _ := cmd.Flags().GetBool("debug")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)

	dotDir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving .reel directory: %w", err)
	}

	cfg := config.FromViper(v)
	if cfg.Storage.Driver == config.StorageSQLite {
		path, err := sqlitepath.ResolveSQLitePath(cfg.Storage.SQLitePath, dotDir)
		if err != nil {
			return nil, err
		}
		cfg.Storage.SQLitePath = path
	}

	return &Env{
		Viper:     v,
		Config:    cfg,
		ConfigDir: configDir,
		DotDir:    dotDir,
		Debug:     debug,
		Logger:    NewLogger(cmd.ErrOrStderr(), debug),
	}, nil
}

// NewLogger returns the pretty CLI logger writing to w.
func NewLogger(w io.Writer, debug bool) *slog.Logger {
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithWriter(w),
	)
}

// APIKey resolves the key for the configured profile. A missing key is not
// an error: local endpoints such as Ollama need none.
func (e *Env) APIKey() (string, error) {
	mgr, err := credentials.NewManager(e.ConfigDir)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}

	key, err := mgr.ResolveKey(e.Config.Profile)
	if err != nil {
		return "", fmt.Errorf("resolving API key: %w", err)
	}
	if key == "" {
		e.Logger.Debug("no API key configured",
			"profile", e.Config.Profile,
			"env", credentials.EnvVarForProfile(e.Config.Profile),
		)
	}
	return key, nil
}

// OpenService opens the chat service for surface ("cli" or "server").
// transcript may be nil.
func (e *Env) OpenService(ctx context.Context, surface string, transcript io.Writer) (*chat.Service, error) {
	key, err := e.APIKey()
	if err != nil {
		return nil, err
	}

	svc, err := chat.Open(ctx, chat.Options{
		Config:     e.Config,
		DotDir:     e.DotDir,
		APIKey:     key,
		Surface:    surface,
		Logger:     e.Logger,
		Transcript: transcript,
	})
	if err != nil {
		return nil, fmt.Errorf("opening conversations: %w", err)
	}

	e.Logger.Debug("conversations opened",
		"driver", e.Config.Storage.Driver,
		"events", e.Config.Events.Provider,
	)
	return svc, nil
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// OpenConversations opens the chat service for commands that only manage
// stored conversations and never stream.
func (e *Env) OpenConversations(ctx context.Context) (*chat.Service, error) {
	svc, err := chat.Open(ctx, chat.Options{
		Config:  e.Config,
		DotDir:  e.DotDir,
		Surface: "cli",
		Logger:  e.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening conversations: %w", err)
	}
	return svc, nil
}
