package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/memory"
	"github.com/m-mizutani/seeker/pkg/model"
	"github.com/m-mizutani/seeker/pkg/usecase/chat"
	"github.com/m-mizutani/seeker/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg     config
		verbose bool
	)
	tools := builtinTools()

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "verbose",
			Aliases:     []string{"v"},
			Usage:       "Show agent log events",
			Destination: &verbose,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, embeddingFlags(&cfg)...)
	flags = append(flags, documentFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)
	flags = append(flags, historyFlags(&cfg)...)
	flags = append(flags, toolFlags(tools)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive research session in the terminal",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			w := c.Root().Writer
			ctx = cfg.withLogger(ctx, c.Root().ErrWriter)

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}
			embedder, release, err := cfg.newEmbedder(ctx, gemini)
			if err != nil {
				return err
			}
			defer release()

			registry, disconnect, err := cfg.newRegistry(ctx, tools, gemini, cfg.newIndexer(embedder))
			if err != nil {
				return err
			}
			defer disconnect()

			opts := cfg.sessionOptions()
			recOpts, err := cfg.recorderOption(ctx)
			if err != nil {
				return err
			}
			opts = append(opts, recOpts...)
			// Session logs are rendered as events; keep slog output off the prompt
			opts = append(opts, chat.WithLogger(logging.Discard()))

			session, err := chat.New(chat.NewInput{
				Perceiver: chat.NewGeminiPerceiver(gemini),
				Planner:   chat.NewGeminiPlanner(gemini),
				Tools:     registry,
				Memory:    memory.New(embedder),
			}, opts...)
			if err != nil {
				return goerr.Wrap(err, "failed to create chat session")
			}
			if err := session.Start(ctx); err != nil {
				return err
			}

			r := newRenderer(w, w, verbose)
			go r.consume(session.Events())

			if err := chatLoop(ctx, session, r); err != nil {
				return err
			}

			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if err := session.Close(closeCtx); err != nil {
				return goerr.Wrap(err, "failed to close chat session")
			}
			<-r.done

			if err := session.Wait(); err != nil {
				return goerr.Wrap(err, "chat session failed")
			}
			fmt.Fprintf(w, "\nChat session completed\n")
			return nil
		},
	}
}

// chatLoop reads user input until exit, EOF or interrupt. Each request
// blocks until the assistant replies.
func chatLoop(ctx context.Context, session *chat.Session, r *renderer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return goerr.Wrap(err, "failed to initialize readline")
	}
	defer rl.Close()

	fmt.Fprintf(r.w, "Chat session started. Type 'exit' to quit.\n")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		message := strings.TrimSpace(line)
		if message == "" {
			continue
		}
		if message == "exit" {
			return nil
		}

		if err := session.Submit(ctx, message); err != nil {
			if errors.Is(err, chat.ErrSessionClosed) {
				return nil
			}
			return goerr.Wrap(err, "failed to submit message")
		}

		select {
		case <-r.replies:
		case <-r.done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// renderer prints session events to the terminal
type renderer struct {
	w       io.Writer
	spin    *spinner.Spinner
	verbose bool
	replies chan struct{}
	done    chan struct{}
}

func newRenderer(w, spinWriter io.Writer, verbose bool) *renderer {
	return &renderer{
		w:       w,
		spin:    spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(spinWriter)),
		verbose: verbose,
		replies: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (r *renderer) consume(events <-chan model.Event) {
	defer close(r.done)
	for ev := range events {
		r.render(ev)
	}
	r.spin.Stop()
}

func (r *renderer) render(ev model.Event) {
	switch data := ev.Data.(type) {
	case model.ChatData:
		if data.Role == model.RoleUser {
			r.spin.Suffix = " thinking..."
			r.spin.Start()
			return
		}
		r.spin.Stop()
		fmt.Fprintf(r.w, "\n%s\n\n", data.Content)
		select {
		case r.replies <- struct{}{}:
		default:
		}

	case model.LayerData:
		if data.Status == model.LayerActive {
			r.spin.Suffix = " " + data.Name + "..."
		}
		if r.verbose {
			r.print("[%s] %s", data.Name, data.Status)
		}

	case model.LogData:
		if r.verbose {
			r.print("%s %s: %s", data.Timestamp, data.Stage, data.Message)
		}

	case model.ResourcesData:
		if r.verbose {
			r.print("📚 %s results received", data.Type)
		}

	case model.OpenURLData:
		r.print("🔗 %s", data.URL)

	case []string:
		if ev.Type == model.EventTools {
			r.print("🔧 Tools: %s", strings.Join(data, ", "))
		}
	}
}

// print writes a line without mixing it into the spinner frame
func (r *renderer) print(format string, args ...any) {
	active := r.spin.Active()
	if active {
		r.spin.Stop()
	}
	fmt.Fprintf(r.w, format+"\n", args...)
	if active {
		r.spin.Start()
	}
}
