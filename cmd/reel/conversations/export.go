package conversationscmder

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/reel/cmd/reel/cmdenv"
	"github.com/papercomputeco/reel/pkg/archive"
	"github.com/papercomputeco/reel/pkg/chat"
	"github.com/papercomputeco/reel/pkg/cliui"
)

const exportLongDesc string = `Export every conversation and the active configuration as JSON.

The API key is never exported; the config's api_key field reads "[HIDDEN]".
A PostgreSQL connection string is hidden the same way.

Writes to stdout when no file is given.

Examples:
  reel conversations export
  reel conversations export reel-backup.json`

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export conversations and configuration",
		Long:  exportLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(env *cmdenv.Env, svc *chat.Service) error {
				cfg := svc.Config()
				doc := archive.New(&cfg, svc.Store().List(), time.Now())

				if len(args) == 0 || args[0] == "-" {
					return archive.Write(cmd.OutOrStdout(), doc)
				}

				if err := writeFile(args[0], doc); err != nil {
					return err
				}

				fmt.Fprintf(cmd.ErrOrStderr(), "  %s Exported %d conversations to %s\n",
					cliui.SuccessMark, len(doc.Conversations), cliui.DimStyle.Render(args[0]))
				return nil
			})
		},
	}
}

func writeFile(path string, doc *archive.Document) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating export: %w", err)
	}

	if err := archive.Write(f, doc); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
