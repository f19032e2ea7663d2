// Package chatcmder provides the chat command for interactive streaming chat
// in the terminal.
package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/reel/cmd/reel/cmdenv"
	"github.com/papercomputeco/reel/pkg/chat"
	"github.com/papercomputeco/reel/pkg/cliui"
	"github.com/papercomputeco/reel/pkg/conversation"
	"github.com/papercomputeco/reel/pkg/dotdir"
	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/render"
	"github.com/papercomputeco/reel/pkg/stream"
)

const chatLongDesc string = `Start an interactive chat session.

Replies stream token by token from the configured OpenAI-compatible endpoint.
Providers that stream their reasoning show it before the answer when
reasoning is enabled (--reasoning or /reasoning).

Conversations are stored and resumed: "reel chat" continues the conversation
selected when the last session ended. Press Ctrl+C to stop a reply that is
streaming, or at the prompt to quit.

Commands:
  /new               Start a new conversation
  /list              List conversations
  /switch <n|id>     Switch to a conversation by list number or ID
  /history           Print the current conversation
  /rename <title>    Rename the current conversation
  /delete [n|id]     Delete a conversation (default: the current one)
  /clear             Remove every message of the current conversation
  /retry             Regenerate the last reply
  /attach <path>...  Attach files to the next message
  /reasoning [on|off]  Toggle streamed reasoning
  /model [name]      Show or change the model
  /help              Show this help
  /exit              Quit

Examples:
  reel chat
  reel chat --model gpt-4o-mini --reasoning
  reel chat --new --markdown
  reel chat --record session.sse`

const chatShortDesc string = "Interactive streaming chat"

const helpText string = `  /new  /list  /switch <n|id>  /history  /rename <title>  /delete [n|id]
  /clear  /retry  /attach <path>...  /reasoning [on|off]  /model [name]  /exit`

type chatCommander struct {
	env *cmdenv.Env
	svc *chat.Service
	out io.Writer

	markdown      bool
	hideReasoning bool
	fresh         bool
	record        string

	notify     func(chan<- os.Signal)
	interrupts chan os.Signal

	convID    string
	reasoning bool
	pending   []llm.Attachment
}

func NewChatCmd() *cobra.Command {
	return newChatCmd(func(c chan<- os.Signal) { signal.Notify(c, os.Interrupt) })
}

func newChatCmd(notify func(chan<- os.Signal)) *cobra.Command {
	cmder := &chatCommander{notify: notify}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := cmdenv.Load(cmd, slices.Concat(cmdenv.ClientFlags, cmdenv.StorageFlags))
			if err != nil {
				return err
			}
			cmder.env = env
			cmder.out = cmd.OutOrStdout()

			var transcript io.Writer
			if cmder.record != "" {
				f, err := os.OpenFile(cmder.record, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return fmt.Errorf("opening transcript: %w", err)
				}
				defer f.Close()
				transcript = f
			}

			cmder.svc, err = env.OpenService(cmd.Context(), "cli", transcript)
			if err != nil {
				return err
			}
			defer func() {
				if err := cmder.svc.Close(); err != nil {
					env.Logger.Warn("closing storage", "error", err)
				}
			}()

			cmder.interrupts = make(chan os.Signal, 1)
			cmder.notify(cmder.interrupts)
			defer signal.Stop(cmder.interrupts)

			return cmder.run(cmd.Context(), cmd.InOrStdin())
		},
	}

	cmdenv.AddClientFlags(cmd)
	cmdenv.AddStorageFlags(cmd)
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render replies as markdown once complete")
	cmd.Flags().BoolVar(&cmder.hideReasoning, "hide-reasoning", false, "Show only the reasoning duration, not its text")
	cmd.Flags().BoolVarP(&cmder.fresh, "new", "n", false, "Start a new conversation instead of resuming")
	cmd.Flags().StringVar(&cmder.record, "record", "", "Append every raw response stream to this file")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state, err := dotdir.NewManager().LoadState(c.env.ConfigDir)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	c.resume(state)
	c.banner()

	lines := c.readLines(ctx, in)
	for {
		fmt.Fprint(c.out, render.UserPrompt)

		var line string
		select {
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out)
				return c.saveState()
			}
			line = l
		case <-c.interrupts:
			fmt.Fprintln(c.out)
			return c.saveState()
		case <-ctx.Done():
			return c.saveState()
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := c.command(ctx, input)
			if err != nil {
				fmt.Fprintf(c.out, "  %s %s\n\n", cliui.FailMark, cliui.ErrorStyle.Render(err.Error()))
			}
			if quit {
				return c.saveState()
			}
			continue
		}

		req := chat.SendRequest{
			ConversationID: c.convID,
			Prompt:         input,
			Attachments:    c.pending,
			Reasoning:      &c.reasoning,
		}
		c.pending = nil

		err := c.stream(func(cb stream.Callbacks) (*stream.Result, error) {
			return c.svc.Send(ctx, req, cb)
		})
		if err != nil {
			fmt.Fprintf(c.out, "  %s %s\n\n", cliui.FailMark, cliui.ErrorStyle.Render(err.Error()))
		}
	}
}

// resume selects the conversation to continue and restores the reasoning
// toggle.
func (c *chatCommander) resume(state *dotdir.State) {
	store := c.svc.Store()
	c.reasoning = c.env.Config.Client.Reasoning

	switch {
	case c.fresh:
		c.convID = store.Create().ID
	case state != nil && store.Select(state.ConversationID) == nil:
		c.convID = state.ConversationID
	default:
		c.convID = store.CurrentID()
	}

	if state != nil && state.Reasoning {
		c.reasoning = true
	}
}

func (c *chatCommander) banner() {
	conv, err := c.svc.Store().Get(c.convID)
	fmt.Fprintln(c.out)
	if err == nil && len(conv.Messages) > 0 {
		fmt.Fprintf(c.out, "  %s Resuming %s %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(conversation.DisplayTitle(conv)),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(conv.Messages))),
		)
	} else {
		fmt.Fprintf(c.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
	}

	cfg := c.svc.Config()
	fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("Model:"), cliui.NameStyle.Render(cfg.Client.Model))
	fmt.Fprintf(c.out, "  %s %s\n\n", cliui.KeyStyle.Render("Reasoning:"), onOff(c.reasoning))
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /help for commands, /exit or Ctrl+D to quit."))
}

// readLines feeds stdin lines to the prompt loop so that it can also wait on
// interrupts. The channel closes at EOF.
func (c *chatCommander) readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			c.env.Logger.Warn("reading input", "error", err)
		}
	}()

	return lines
}

// stream runs one session, cancelling it on interrupt.
func (c *chatCommander) stream(run func(stream.Callbacks) (*stream.Result, error)) error {
	done := make(chan struct{})
	defer close(done)

	id := c.convID
	go func() {
		for {
			select {
			case <-c.interrupts:
				c.svc.Cancel(id)
			case <-done:
				return
			}
		}
	}()

	opts := []render.Option{render.WithReasoning(!c.hideReasoning)}
	if c.markdown {
		opts = append(opts, render.WithMarkdown(cliui.DefaultWrap))
	}

	result, err := run(render.NewTerminal(c.out, opts...).Callbacks())
	if err != nil {
		return err
	}

	c.env.Logger.Debug("session ended", "state", result.State.String())
	return nil
}

func (c *chatCommander) saveState() error {
	state := &dotdir.State{ConversationID: c.convID, Reasoning: c.reasoning}
	if err := dotdir.NewManager().SaveState(state, c.env.ConfigDir); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return cliui.ValueStyle.Render("on")
	}
	return cliui.DimStyle.Render("off")
}
