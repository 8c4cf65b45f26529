package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg  config
		topK int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "top-k",
			Aliases:     []string{"k"},
			Usage:       "Number of chunks to return",
			Value:       5,
			Destination: &topK,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, embeddingFlags(&cfg)...)
	flags = append(flags, documentFlags(&cfg)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Search the document index",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx, c.Root().ErrWriter)

			query := strings.Join(c.Args().Slice(), " ")
			if query == "" {
				return goerr.New("query is required")
			}

			embedder, release, err := cfg.newEmbedder(ctx, nil)
			if err != nil {
				return err
			}
			defer release()

			results, err := cfg.newIndexer(embedder).Search(ctx, query, int(topK))
			if err != nil {
				return goerr.Wrap(err, "failed to search documents")
			}

			if len(results) == 0 {
				fmt.Fprintf(c.Root().Writer, "No documents found\n")
				return nil
			}

			for i, r := range results {
				fmt.Fprintf(c.Root().Writer, "%d. %s (%s) distance=%.4f\n%s\n\n",
					i+1, r.Document, r.ChunkID, r.Distance, r.Chunk)
			}
			return nil
		},
	}
}
