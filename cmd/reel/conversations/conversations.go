// Package conversationscmder provides the conversations command for managing
// stored conversations.
package conversationscmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/reel/cmd/reel/cmdenv"
	"github.com/papercomputeco/reel/pkg/chat"
	"github.com/papercomputeco/reel/pkg/cliui"
	"github.com/papercomputeco/reel/pkg/conversation"
	"github.com/papercomputeco/reel/pkg/dotdir"
	"github.com/papercomputeco/reel/pkg/render"
)

const conversationsLongDesc string = `Manage stored conversations.

Conversations live in the storage selected by storage.driver (a JSON file in
the .reel/ directory by default). The conversation "reel chat" resumes is
recorded in .reel/state.json and can be changed with "reel conversations use".

Examples:
  reel conversations list
  reel conversations show 3f2a...
  reel conversations use 3f2a...
  reel conversations export backup.json
  reel conversations import backup.json --config
  reel conversations clear`

const conversationsShortDesc string = "Manage stored conversations"

func NewConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   conversationsShortDesc,
		Long:    conversationsLongDesc,
	}

	for _, sub := range []*cobra.Command{
		newListCmd(),
		newShowCmd(),
		newUseCmd(),
		newDeleteCmd(),
		newClearCmd(),
		newExportCmd(),
		newImportCmd(),
	} {
		cmdenv.AddStorageFlags(sub)
		cmd.AddCommand(sub)
	}

	return cmd
}

// withService loads the environment, opens stored conversations, runs fn
// and closes the service so pending writes reach storage.
func withService(cmd *cobra.Command, fn func(env *cmdenv.Env, svc *chat.Service) error) error {
	env, err := cmdenv.Load(cmd, cmdenv.StorageFlags)
	if err != nil {
		return err
	}

	svc, err := env.OpenConversations(context.Background())
	if err != nil {
		return err
	}

	runErr := fn(env, svc)
	if err := svc.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("closing storage: %w", err)
	}
	return runErr
}

// selectedID returns the conversation recorded in state.json, falling back
// to the store's current one.
func selectedID(env *cmdenv.Env, svc *chat.Service) string {
	state, err := dotdir.NewManager().LoadState(env.ConfigDir)
	if err == nil && state != nil {
		if _, err := svc.Store().Get(state.ConversationID); err == nil {
			return state.ConversationID
		}
	}
	return svc.Store().CurrentID()
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(env *cmdenv.Env, svc *chat.Service) error {
				render.ConversationList(cmd.OutOrStdout(), svc.Store().List(), selectedID(env, svc))
				return nil
			})
		},
	}
}

func newShowCmd() *cobra.Command {
	var markdown bool

	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Print a conversation (default: the selected one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(env *cmdenv.Env, svc *chat.Service) error {
				id := selectedID(env, svc)
				if len(args) == 1 {
					id = args[0]
				}

				conv, err := svc.Store().Get(id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "\n  %s %s\n\n",
					cliui.NameStyle.Render(conversation.DisplayTitle(conv)),
					cliui.DimStyle.Render(conv.ID),
				)
				render.History(out, conv, markdown, cliui.DefaultWrap)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&markdown, "markdown", false, "Render assistant messages as markdown")
	return cmd
}

func newUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Select the conversation reel chat resumes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(env *cmdenv.Env, svc *chat.Service) error {
				conv, err := svc.Store().Get(args[0])
				if err != nil {
					return err
				}

				ddm := dotdir.NewManager()
				state, err := ddm.LoadState(env.ConfigDir)
				if err != nil {
					return err
				}
				if state == nil {
					state = &dotdir.State{}
				}
				state.ConversationID = conv.ID
				if err := ddm.SaveState(state, env.ConfigDir); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "  %s Selected %s\n",
					cliui.SuccessMark, cliui.NameStyle.Render(conversation.DisplayTitle(conv)))
				return nil
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(_ *cmdenv.Env, svc *chat.Service) error {
				conv, err := svc.Store().Get(args[0])
				if err != nil {
					return err
				}
				if _, err := svc.Store().Delete(conv.ID); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "  %s Deleted %s\n",
					cliui.SuccessMark, cliui.NameStyle.Render(conversation.DisplayTitle(conv)))
				return nil
			})
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(env *cmdenv.Env, svc *chat.Service) error {
				n := len(svc.Store().List())
				svc.Store().Reset()

				if err := dotdir.NewManager().ClearState(env.ConfigDir); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "  %s Cleared %d conversations\n", cliui.SuccessMark, n)
				return nil
			})
		},
	}
}
