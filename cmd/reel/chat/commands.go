package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/papercomputeco/reel/pkg/attachment"
	"github.com/papercomputeco/reel/pkg/cliui"
	"github.com/papercomputeco/reel/pkg/conversation"
	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/render"
	"github.com/papercomputeco/reel/pkg/stream"
)

var errUsage = errors.New("usage")

// command runs a slash command. It reports whether the session should end.
func (c *chatCommander) command(ctx context.Context, input string) (bool, error) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	store := c.svc.Store()

	switch name {
	case "/exit", "/quit":
		return true, nil

	case "/help":
		fmt.Fprintf(c.out, "%s\n\n", cliui.DimStyle.Render(helpText))

	case "/new":
		c.convID = store.Create().ID
		c.pending = nil
		fmt.Fprintf(c.out, "  %s New conversation\n\n", cliui.DimStyle.Render("●"))

	case "/list":
		render.ConversationList(c.out, store.List(), c.convID)
		fmt.Fprintln(c.out)

	case "/switch":
		if arg == "" {
			return false, fmt.Errorf("%w: /switch <n|id>", errUsage)
		}
		conv, err := c.resolve(arg)
		if err != nil {
			return false, err
		}
		if err := store.Select(conv.ID); err != nil {
			return false, err
		}
		c.convID = conv.ID
		c.pending = nil
		fmt.Fprintf(c.out, "  %s Switched to %s %s\n\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(conversation.DisplayTitle(conv)),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(conv.Messages))),
		)

	case "/history":
		conv, err := store.Get(c.convID)
		if err != nil {
			return false, err
		}
		render.History(c.out, conv, c.markdown, cliui.DefaultWrap)

	case "/rename":
		if arg == "" {
			return false, fmt.Errorf("%w: /rename <title>", errUsage)
		}
		if err := store.Rename(c.convID, arg); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "  %s Renamed to %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(arg))

	case "/delete":
		return false, c.delete(arg)

	case "/clear":
		if err := store.ClearMessages(c.convID); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "  %s Cleared messages\n\n", cliui.SuccessMark)

	case "/retry":
		return false, c.stream(func(cb stream.Callbacks) (*stream.Result, error) {
			return c.svc.Retry(ctx, c.convID, &c.reasoning, cb)
		})

	case "/attach":
		return false, c.attach(arg)

	case "/reasoning":
		switch arg {
		case "":
			c.reasoning = !c.reasoning
		case "on":
			c.reasoning = true
		case "off":
			c.reasoning = false
		default:
			return false, fmt.Errorf("%w: /reasoning [on|off]", errUsage)
		}
		fmt.Fprintf(c.out, "  %s %s\n\n", cliui.KeyStyle.Render("Reasoning:"), onOff(c.reasoning))

	case "/model":
		return false, c.model(arg)

	default:
		return false, fmt.Errorf("unknown command %s, try /help", name)
	}

	return false, nil
}

// resolve finds a conversation by its /list number, ID or unique ID prefix.
func (c *chatCommander) resolve(arg string) (*llm.Conversation, error) {
	convs := c.svc.Store().List()

	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(convs) {
			return nil, fmt.Errorf("no conversation %d, /list shows %d", n, len(convs))
		}
		return convs[n-1], nil
	}

	var match *llm.Conversation
	for _, conv := range convs {
		if conv.ID == arg {
			return conv, nil
		}
		if strings.HasPrefix(conv.ID, arg) {
			if match != nil {
				return nil, fmt.Errorf("%q matches more than one conversation", arg)
			}
			match = conv
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no conversation matches %q", arg)
	}
	return match, nil
}

func (c *chatCommander) delete(arg string) error {
	id := c.convID
	if arg != "" {
		conv, err := c.resolve(arg)
		if err != nil {
			return err
		}
		id = conv.ID
	}

	if c.svc.Busy(id) {
		return fmt.Errorf("conversation %s is streaming", id)
	}

	current, err := c.svc.Store().Delete(id)
	if err != nil {
		return err
	}
	if id == c.convID {
		c.convID = current.ID
		c.pending = nil
	}

	fmt.Fprintf(c.out, "  %s Deleted conversation\n\n", cliui.SuccessMark)
	return nil
}

func (c *chatCommander) attach(arg string) error {
	paths := strings.Fields(arg)
	if len(paths) == 0 {
		return fmt.Errorf("%w: /attach <path>...", errUsage)
	}

	atts, err := attachment.ProcessPaths(paths...)
	if err != nil {
		return err
	}
	c.pending = append(c.pending, atts...)

	for _, a := range atts {
		fmt.Fprintf(c.out, "  %s Attached %s %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(a.Name),
			cliui.DimStyle.Render("("+attachment.FormatSize(a.Size)+")"),
		)
	}
	fmt.Fprintln(c.out)
	return nil
}

// model shows the configured models, or switches the session's model.
func (c *chatCommander) model(arg string) error {
	cfg := c.svc.Config()

	if arg == "" {
		fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("Model:"), cliui.NameStyle.Render(cfg.Client.Model))
		for _, m := range cfg.Client.Models {
			fmt.Fprintf(c.out, "    %s\n", cliui.DimStyle.Render(m))
		}
		fmt.Fprintln(c.out)
		return nil
	}

	cfg.Client.Model = arg
	if err := c.svc.SetConfig(&cfg); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "  %s %s\n\n", cliui.KeyStyle.Render("Model:"), cliui.NameStyle.Render(arg))
	return nil
}
