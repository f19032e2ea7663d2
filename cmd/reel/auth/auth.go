// Package authcmder provides the auth command for storing API keys.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/reel/pkg/cliui"
	"github.com/papercomputeco/reel/pkg/credentials"
)

const authLongDesc string = `Store API keys for OpenAI-compatible endpoints.

Keys are stored per profile in credentials.toml (mode 0600) in the .reel/
directory. The active profile is set with "reel config set profile <name>"
and defaults to "default".

At request time the key is resolved in this order:
  REEL_API_KEY, the profile's provider variable (OPENAI_API_KEY for
  "openai", OPENROUTER_API_KEY for "openrouter"), then the stored key.

Examples:
  reel auth                      Prompt for the default profile's key
  reel auth openrouter           Prompt for the openrouter profile's key
  reel auth --list               List profiles with stored keys
  reel auth --remove openai      Remove the openai profile's key
  echo $KEY | reel auth openai   Pipe the key from stdin`

const authShortDesc string = "Store API keys"

func NewAuthCmd() *cobra.Command {
	var listFlag bool
	var removeFlag string

	cmd := &cobra.Command{
		Use:   "auth [profile]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			switch {
			case listFlag:
				return runList(cmd.OutOrStdout(), configDir)
			case removeFlag != "":
				return runRemove(cmd.OutOrStdout(), removeFlag, configDir)
			default:
				profile := credentials.DefaultProfile
				if len(args) == 1 {
					profile = args[0]
				}
				return runAuth(cmd, profile, configDir)
			}
		},
	}

	cmd.Flags().BoolVar(&listFlag, "list", false, "List profiles with stored keys")
	cmd.Flags().StringVar(&removeFlag, "remove", "", "Remove the stored key of a profile")

	return cmd
}

func runAuth(cmd *cobra.Command, profile, configDir string) error {
	profile = strings.ToLower(strings.TrimSpace(profile))
	if profile == "" {
		return errors.New("profile name cannot be empty")
	}

	apiKey, err := readAPIKey(cmd.InOrStdin(), cmd.OutOrStdout(), profile)
	if err != nil {
		return err
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.SetKey(profile, apiKey); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n  %s Stored key for profile %s %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(profile),
		cliui.DimStyle.Render("("+mgr.GetTarget()+")"),
	)

	if envVar := credentials.EnvVarForProfile(profile); envVar != "" && os.Getenv(envVar) != "" {
		fmt.Fprintf(out, "  %s %s is set and takes precedence over the stored key.\n",
			cliui.WarnStyle.Render("!"), envVar)
	}
	if os.Getenv(credentials.EnvAPIKey) != "" {
		fmt.Fprintf(out, "  %s %s is set and takes precedence over the stored key.\n",
			cliui.WarnStyle.Render("!"), credentials.EnvAPIKey)
	}

	fmt.Fprintln(out)
	return nil
}

func runList(out io.Writer, configDir string) error {
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	profiles, err := mgr.ListProfiles()
	if err != nil {
		return err
	}

	if len(profiles) == 0 {
		fmt.Fprintf(out, "\n  %s No stored keys.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(out, "  Use 'reel auth [profile]' to store one.\n\n")
		return nil
	}

	fmt.Fprintf(out, "\n  %s\n\n", cliui.NameStyle.Render("Stored keys"))
	for _, p := range profiles {
		if envVar := credentials.EnvVarForProfile(p); envVar != "" {
			fmt.Fprintf(out, "  %s  %s  %s\n",
				cliui.SuccessMark,
				cliui.NameStyle.Render(p),
				cliui.DimStyle.Render("overridden by "+envVar),
			)
		} else {
			fmt.Fprintf(out, "  %s  %s\n", cliui.SuccessMark, cliui.NameStyle.Render(p))
		}
	}
	fmt.Fprintln(out)

	return nil
}

func runRemove(out io.Writer, profile, configDir string) error {
	profile = strings.ToLower(strings.TrimSpace(profile))

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.RemoveKey(profile); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Removed key for profile %s.\n\n", cliui.SuccessMark, cliui.NameStyle.Render(profile))

	return nil
}

// readAPIKey reads an API key from in. A terminal gets a hidden prompt;
// anything else is read up to the first newline.
func readAPIKey(in io.Reader, out io.Writer, profile string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(out, "Enter API key for profile %s: ", profile)

		keyBytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return string(keyBytes), nil
	}

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}
