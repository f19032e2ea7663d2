// Package servecmder provides the serve command, which exposes stored
// conversations and streaming sessions over HTTP.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/reel/cmd/reel/cmdenv"
	"github.com/papercomputeco/reel/pkg/config"
	"github.com/papercomputeco/reel/pkg/logger"
	"github.com/papercomputeco/reel/server"
)

const serveLongDesc string = `Run the reel HTTP server.

The server manages the same stored conversations as "reel chat" and streams
replies to clients as server-sent events. Agents can use the conversations
as MCP tools at /mcp.

Client settings in config.toml (model, endpoint, headers, proxy) are
reloaded when the file changes; storage and event settings need a restart.
Logs are also appended as JSON to .reel/reel.log.

Examples:
  reel serve
  reel serve --listen :9090 --storage sqlite`

const serveShortDesc string = "Run the reel HTTP server"

type serveCommander struct {
	listen string
	notify func(chan<- os.Signal)
}

func NewServeCmd() *cobra.Command {
	return newServeCmd(func(c chan<- os.Signal) { signal.Notify(c, syscall.SIGINT, syscall.SIGTERM) })
}

func newServeCmd(notify func(chan<- os.Signal)) *cobra.Command {
	cmder := &serveCommander{notify: notify}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	cmdenv.AddClientFlags(cmd)
	cmdenv.AddStorageFlags(cmd)

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	env, err := cmdenv.Load(cmd, slices.Concat([]string{config.FlagListen}, cmdenv.ClientFlags, cmdenv.StorageFlags))
	if err != nil {
		return err
	}

	fileLog, logFile, err := logger.OpenFile(filepath.Join(env.DotDir, logger.FileName), env.Debug)
	if err != nil {
		return err
	}
	defer logFile.Close()

	log := logger.Multi(env.Logger, fileLog)
	env.Logger = log

	svc, err := env.OpenService(cmd.Context(), "server", nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warn("closing storage", "error", err)
		}
	}()

	srv := server.NewServer(server.Config{ListenAddr: env.Config.Server.Listen}, svc, log)

	if file := env.Viper.ConfigFileUsed(); file != "" {
		config.Watch(env.Viper, srv.Reload, func(err error) {
			log.Error("config reload failed", "error", err)
		})
		log.Debug("watching config", "file", file)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	c.notify(sigChan)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())
		return srv.Shutdown()
	}
}
