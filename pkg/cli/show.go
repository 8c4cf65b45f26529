package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/model"
	"github.com/m-mizutani/seeker/pkg/usecase/chat"
	"github.com/urfave/cli/v3"
)

func showCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, historyFlags(&cfg)...)

	return &cli.Command{
		Name:      "show",
		Usage:     "Show a saved session transcript",
		ArgsUsage: "<history-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx, c.Root().ErrWriter)

			id := model.HistoryID(c.Args().First())
			if id == "" {
				return goerr.New("history ID is required")
			}

			recorder, err := cfg.newHistoryRecorder(ctx)
			if err != nil {
				return err
			}

			history, err := recorder.Load(ctx, id)
			if err != nil {
				return goerr.Wrap(err, "failed to load history", goerr.V("id", id))
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "ID:      %s\n", history.ID)
			fmt.Fprintf(w, "Topic:   %s\n", history.Topic)
			fmt.Fprintf(w, "Created: %s\n\n", history.CreatedAt.Format("2006-01-02 15:04:05"))

			for _, turn := range history.Turns {
				switch turn.Role {
				case model.RoleTool:
					fmt.Fprintf(w, "[tool:%s]\n%s\n\n", turn.Name, turn.Content)
				default:
					fmt.Fprintf(w, "[%s]\n%s\n\n", turn.Role, turn.Content)
				}
			}

			if urls := chat.SourceURLs(history.Turns); len(urls) > 0 {
				fmt.Fprintf(w, "Sources:\n")
				for _, u := range urls {
					fmt.Fprintf(w, "  %s\n", u)
				}
			}
			return nil
		},
	}
}
