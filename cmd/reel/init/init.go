// Package initcmder provides the init command for initializing a local .reel
// directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/reel/pkg/cliui"
	"github.com/papercomputeco/reel/pkg/config"
	"github.com/papercomputeco/reel/pkg/dotdir"
)

const initLongDesc string = `Initialize a new .reel/ directory in the current working directory.

Creates a local .reel/ directory that takes precedence over the default
~/.reel/ directory for configuration, credentials, stored conversations
and other reel state.

With --preset, a config.toml for a known provider is written as well.
An existing config.toml is only replaced with --force.

Presets: openai, openrouter, ollama

Examples:
  reel init
  reel init --preset openrouter
  reel init --preset ollama --force`

const initShortDesc string = "Initialize a local .reel/ directory"

type initCommander struct {
	preset string
	force  bool
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&cmder.preset, "preset", "p", "", "Write config.toml for a provider preset ("+strings.Join(config.ValidPresetNames(), ", ")+")")
	cmd.Flags().BoolVarP(&cmder.force, "force", "f", false, "Replace an existing config.toml")

	return cmd
}

func (c *initCommander) run(out io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dotdir.DirName)

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("checking .reel directory: %w", err)
	default:
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating .reel directory: %w", err)
		}
		fmt.Fprintf(out, "Initialized .reel directory: %s\n", dir)
	}

	if c.preset == "" {
		return nil
	}

	return c.writePreset(out, dir)
}

func (c *initCommander) writePreset(out io.Writer, dir string) error {
	cfg, err := config.PresetConfig(c.preset)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if _, err := os.Stat(cfger.GetTarget()); err == nil && !c.force {
		return fmt.Errorf("%s already exists; use --force to replace it", cfger.GetTarget())
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s Wrote %s preset to %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(strings.ToLower(c.preset)),
		cliui.DimStyle.Render(cfger.GetTarget()),
	)
	fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("Store an API key with: reel auth "+cfg.Profile))
	return nil
}
