// Package reelcmder assembles the reel command tree.
package reelcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/reel/cmd/reel/auth"
	chatcmder "github.com/papercomputeco/reel/cmd/reel/chat"
	configcmder "github.com/papercomputeco/reel/cmd/reel/config"
	conversationscmder "github.com/papercomputeco/reel/cmd/reel/conversations"
	initcmder "github.com/papercomputeco/reel/cmd/reel/init"
	servecmder "github.com/papercomputeco/reel/cmd/reel/serve"
	versioncmder "github.com/papercomputeco/reel/cmd/version"
)

const reelLongDesc string = `reel is a streaming chat client for OpenAI-compatible APIs.

Chat in the terminal or serve the same conversations over HTTP:
  reel init            Create a project-local .reel/ directory
  reel auth            Store an API key
  reel chat            Start an interactive chat session
  reel serve           Run the HTTP server
  reel conversations   List, export and import conversations
  reel config          View and change configuration`

const reelShortDesc string = "reel - streaming chat for OpenAI-compatible APIs"

func NewReelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "reel",
		Short:        reelShortDesc,
		Long:         reelLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .reel/ config directory")

	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(conversationscmder.NewConversationsCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
