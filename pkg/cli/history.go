package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	var (
		cfg    config
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Number of transcripts to skip",
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of transcripts to list",
			Value:       20,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, historyFlags(&cfg)...)

	return &cli.Command{
		Name:  "history",
		Usage: "List saved session transcripts, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx, c.Root().ErrWriter)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			histories, err := repo.ListHistory(ctx, int(offset), int(limit))
			if err != nil {
				return goerr.Wrap(err, "failed to list histories")
			}

			if len(histories) == 0 {
				fmt.Fprintf(c.Root().Writer, "No transcripts found\n")
				return nil
			}

			for _, h := range histories {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%d turns\t%s\n",
					h.ID,
					h.CreatedAt.Format("2006-01-02 15:04:05"),
					h.TurnCount,
					h.Topic,
				)
			}
			return nil
		},
	}
}
