package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/docindex"
	"github.com/urfave/cli/v3"
)

func indexCommand() *cli.Command {
	var (
		cfg   config
		watch bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "watch",
			Aliases:     []string{"w"},
			Usage:       "Keep running and re-index on changes",
			Destination: &watch,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, embeddingFlags(&cfg)...)
	flags = append(flags, documentFlags(&cfg)...)

	return &cli.Command{
		Name:  "index",
		Usage: "Embed new or changed documents into the local index",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx, c.Root().ErrWriter)

			embedder, release, err := cfg.newEmbedder(ctx, nil)
			if err != nil {
				return err
			}
			defer release()

			indexer := cfg.newIndexer(embedder)
			report, err := indexer.Process(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to index documents")
			}
			printReport(c.Root().Writer, report)

			if !watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return newWatcher(ctx, indexer).Run(ctx)
		},
	}
}

func printReport(w io.Writer, report *docindex.Report) {
	for _, path := range report.Processed {
		fmt.Fprintf(w, "indexed\t%s\n", path)
	}
	for _, path := range report.Skipped {
		fmt.Fprintf(w, "skipped\t%s\n", path)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(w, "failed\t%s\t%s\n", f.Document, f.Error)
	}
	fmt.Fprintf(w, "\n%d processed, %d skipped, %d failed, %d chunks in index\n",
		len(report.Processed), len(report.Skipped), len(report.Failed), report.Chunks)
}
