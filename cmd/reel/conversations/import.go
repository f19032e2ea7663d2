package conversationscmder

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/reel/cmd/reel/cmdenv"
	"github.com/papercomputeco/reel/pkg/archive"
	"github.com/papercomputeco/reel/pkg/chat"
	"github.com/papercomputeco/reel/pkg/cliui"
	"github.com/papercomputeco/reel/pkg/config"
	"github.com/papercomputeco/reel/pkg/dotdir"
)

const importLongDesc string = `Import conversations from an export file.

Stored conversations are replaced by those in the file. Files written by
older single-conversation exports (a flat "messages" list) are imported as
one conversation.

With --config the exported configuration replaces config.toml as well. The
stored API key is kept either way.

Reads stdin when the file is "-".

Examples:
  reel conversations import reel-backup.json
  reel conversations import reel-backup.json --config`

func newImportCmd() *cobra.Command {
	var withConfig bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import conversations from an export",
		Long:  importLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}

			return withService(cmd, func(env *cmdenv.Env, svc *chat.Service) error {
				n := svc.Store().Import(doc.Conversations)
				if err := dotdir.NewManager().ClearState(env.ConfigDir); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "  %s Imported %d conversations\n", cliui.SuccessMark, n)

				if !withConfig {
					return nil
				}
				return importConfig(out, env, doc)
			})
		},
	}

	cmd.Flags().BoolVar(&withConfig, "config", false, "Replace config.toml with the exported configuration")
	return cmd
}

func readDocument(cmd *cobra.Command, path string) (*archive.Document, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening export: %w", err)
		}
		defer f.Close()
		r = f
	}

	return archive.Read(r)
}

func importConfig(out io.Writer, env *cmdenv.Env, doc *archive.Document) error {
	cfger, err := config.NewConfiger(env.ConfigDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	current, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg := doc.ImportedConfig(current)
	if cfg == nil {
		fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("The export carries no configuration."))
		return nil
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s Restored configuration to %s\n", cliui.SuccessMark, cliui.DimStyle.Render(cfger.GetTarget()))
	return nil
}
