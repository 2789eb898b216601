package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/pagetalk/pkg/adapter"
	"github.com/m-mizutani/pagetalk/pkg/model"
	"github.com/m-mizutani/pagetalk/pkg/usecase/chat"
	"github.com/m-mizutani/pagetalk/pkg/usecase/export"
)

func chatCommand() *cli.Command {
	var (
		cfg      config
		pagePath string
		stream   bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "page",
			Aliases:     []string{"p"},
			Usage:       "Path to a text file used as page context",
			Destination: &pagePath,
		},
		&cli.BoolFlag{
			Name:        "stream",
			Usage:       "Consume responses incrementally",
			Destination: &stream,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive chat session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := cfg.setupLogger(); err != nil {
				return err
			}

			repo, err := cfg.newRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			settings, err := cfg.loadSettings(ctx, repo)
			if err != nil {
				return err
			}

			registry, err := chat.LoadRegistry(ctx, repo)
			if err != nil {
				return err
			}

			out := c.Root().Writer
			notifier := adapter.FuncNotifier(func(ctx context.Context, kind adapter.NotifyKind, message string) {
				fmt.Fprintf(out, "[%s] %s\n", kind, message)
			})

			var page adapter.PageSource
			if pagePath != "" {
				page = adapter.NewFilePageSource(pagePath)
			}

			controller := chat.NewController(chat.ControllerInput{
				Registry: registry,
				Client:   cfg.newGemini(settings, notifier),
				Notifier: notifier,
				Page:     page,
				Settings: settings,
			})
			controller.RefreshPageContext(ctx)

			return runChatLoop(ctx, out, controller, stream)
		},
	}
}

func runChatLoop(ctx context.Context, out io.Writer, controller *chat.Controller, stream bool) error {
	rl, err := readline.New("> ")
	if err != nil {
		return goerr.Wrap(err, "failed to initialize prompt")
	}
	defer rl.Close()

	fmt.Fprintf(out, "Chat session started. Type /help for commands, /exit to quit.\n")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := handleChatCommand(ctx, out, controller, line)
			if err != nil {
				fmt.Fprintf(out, "error: %s\n", err.Error())
			}
			if done {
				break
			}
			continue
		}

		sendAndPrint(ctx, out, controller, line, stream)
	}

	fmt.Fprintf(out, "\nChat session completed\n")
	return nil
}

func sendAndPrint(ctx context.Context, out io.Writer, controller *chat.Controller, text string, stream bool) {
	if stream {
		first := true
		msg, err := controller.SendStream(ctx, text, func(accumulated string) {
			if first {
				fmt.Fprintf(out, "receiving")
				first = false
			}
			fmt.Fprintf(out, ".")
		})
		if !first {
			fmt.Fprintln(out)
		}
		if err != nil {
			return // already surfaced through the notifier
		}
		fmt.Fprintf(out, "%s\n", msg.Content)
		return
	}

	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	sp.Suffix = " thinking..."
	sp.Start()
	msg, err := controller.Send(ctx, text)
	sp.Stop()

	if err != nil {
		if errors.Is(err, model.ErrEmptyMessage) || errors.Is(err, model.ErrNoCredential) {
			fmt.Fprintf(out, "error: %s\n", err.Error())
		}
		return
	}
	fmt.Fprintf(out, "%s\n", msg.Content)
}

func handleChatCommand(ctx context.Context, out io.Writer, controller *chat.Controller, line string) (bool, error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/exit", "/quit":
		return true, nil

	case "/help":
		fmt.Fprint(out, `Commands:
  /history              Show the conversation with message numbers
  /regen <n>            Regenerate the answer for message n
  /delete <n>           Delete message n
  /attach <file>...     Stage image attachments for the next message
  /attachments          List staged attachments
  /context <file>       Load page context from a text file
  /agent <name>         Switch to the named agent
  /agents               List agents
  /export <file>        Export the transcript (markdown or html)
  /clear                Reset the conversation
  /exit                 Quit
`)
		return false, nil

	case "/history":
		for i, msg := range controller.Conversation().Messages() {
			fmt.Fprintf(out, "[%d] %s: %s\n", i, msg.Role, summarize(msg.Content))
		}
		return false, nil

	case "/regen":
		msg, err := messageByIndex(controller, args)
		if err != nil {
			return false, err
		}
		sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		sp.Suffix = " regenerating..."
		sp.Start()
		answer, err := controller.Regenerate(ctx, msg.ID)
		sp.Stop()
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "%s\n", answer.Content)
		return false, nil

	case "/delete":
		msg, err := messageByIndex(controller, args)
		if err != nil {
			return false, err
		}
		return false, controller.DeleteMessage(msg.ID)

	case "/attach":
		if len(args) == 0 {
			return false, goerr.New("usage: /attach <file>...")
		}
		added, err := controller.Attachments().AddFiles(args)
		for _, att := range added {
			fmt.Fprintf(out, "attached %s (%s)\n", att.SourceRef, att.MimeType)
		}
		return false, err

	case "/attachments":
		for _, att := range controller.Attachments().List() {
			fmt.Fprintf(out, "%s (%s, %d bytes)\n", att.SourceRef, att.MimeType, len(att.Data))
		}
		return false, nil

	case "/context":
		if len(args) != 1 {
			return false, goerr.New("usage: /context <file>")
		}
		content, err := adapter.NewFilePageSource(args[0]).Extract(ctx)
		if err != nil {
			return false, err
		}
		controller.SetPageContext(content)
		fmt.Fprintf(out, "page context loaded (%d bytes)\n", len(content))
		return false, nil

	case "/agent":
		if len(args) == 0 {
			fmt.Fprintf(out, "active agent: %s\n", controller.Registry().Active().Name)
			return false, nil
		}
		agent, err := controller.Registry().FindByName(strings.Join(args, " "))
		if err != nil {
			return false, err
		}
		if err := controller.Registry().Activate(ctx, agent.ID); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "switched to agent: %s\n", agent.Name)
		return false, nil

	case "/agents":
		active := controller.Registry().Active()
		for _, agent := range controller.Registry().List() {
			marker := " "
			if agent.ID == active.ID {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, agent.Name)
		}
		return false, nil

	case "/export":
		if len(args) != 1 {
			return false, goerr.New("usage: /export <file>")
		}
		return false, exportTranscript(controller, args[0])

	case "/clear":
		if err := controller.Reset(); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "conversation cleared\n")
		return false, nil

	default:
		return false, goerr.New("unknown command", goerr.V("command", cmd))
	}
}

func messageByIndex(controller *chat.Controller, args []string) (*model.Message, error) {
	if len(args) != 1 {
		return nil, goerr.New("specify a message number (see /history)")
	}
	idx, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, goerr.Wrap(err, "invalid message number", goerr.V("arg", args[0]))
	}

	msgs := controller.Conversation().Messages()
	if idx < 0 || idx >= len(msgs) {
		return nil, goerr.Wrap(model.ErrMessageNotFound, "message number out of range", goerr.V("index", idx))
	}
	return msgs[idx], nil
}

func exportTranscript(controller *chat.Controller, path string) error {
	format := export.FormatForPath(path)
	writer, err := export.New(format, adapter.NewMarkdownRenderer())
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return goerr.Wrap(err, "failed to create export file", goerr.V("path", path))
	}
	defer f.Close()

	return writer.Write(f, controller.Conversation().Messages())
}

func summarize(content string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	const limit = 80
	if len(content) > limit {
		return content[:limit] + "..."
	}
	return content
}
