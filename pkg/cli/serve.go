package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/docindex"
	"github.com/m-mizutani/seeker/pkg/server"
	"github.com/m-mizutani/seeker/pkg/usecase/chat"
	"github.com/m-mizutani/seeker/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func serveCommand() *cli.Command {
	var (
		cfg       config
		addr      string
		watch     bool
		queueSize int64
	)
	tools := builtinTools()

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address of the WebSocket server",
			Value:       "127.0.0.1:8000",
			Sources:     cli.EnvVars("SEEKER_ADDR"),
			Destination: &addr,
		},
		&cli.BoolFlag{
			Name:        "watch",
			Usage:       "Re-index documents when the document directory changes",
			Sources:     cli.EnvVars("SEEKER_WATCH"),
			Destination: &watch,
		},
		&cli.IntFlag{
			Name:        "queue-size",
			Usage:       "Pending requests accepted per session",
			Value:       chat.DefaultQueueSize,
			Sources:     cli.EnvVars("SEEKER_QUEUE_SIZE"),
			Destination: &queueSize,
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
		Name:  "serve",
		Usage: "Serve research sessions over WebSocket",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx, c.Root().ErrWriter)
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}
			embedder, release, err := cfg.newEmbedder(ctx, gemini)
			if err != nil {
				return err
			}
			defer release()

			indexer := cfg.newIndexer(embedder)
			registry, disconnect, err := cfg.newRegistry(ctx, tools, gemini, indexer)
			if err != nil {
				return err
			}
			defer disconnect()

			opts := cfg.sessionOptions()
			opts = append(opts, chat.WithQueueSize(int(queueSize)))
			recOpts, err := cfg.recorderOption(ctx)
			if err != nil {
				return err
			}
			opts = append(opts, recOpts...)

			manager := chat.NewManager(chat.ManagerInput{
				Perceiver: chat.NewGeminiPerceiver(gemini),
				Planner:   chat.NewGeminiPlanner(gemini),
				Tools:     registry,
				Embedder:  embedder,
			}, opts...)

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				logging.From(ctx).Info("Starting server", "addr", addr)
				return server.New(manager).Serve(ctx, addr)
			})

			if watch {
				eg.Go(func() error {
					return newWatcher(ctx, indexer).Run(ctx)
				})
			}

			if err := eg.Wait(); err != nil {
				return goerr.Wrap(err, "server stopped with error")
			}
			return nil
		},
	}
}

func newWatcher(ctx context.Context, indexer *docindex.Indexer) *docindex.Watcher {
	logger := logging.From(ctx)
	return docindex.NewWatcher(indexer,
		docindex.WithDebounce(time.Second),
		docindex.WithReportHook(func(report *docindex.Report) {
			logger.Info("Documents re-indexed",
				"processed", len(report.Processed),
				"skipped", len(report.Skipped),
				"failed", len(report.Failed),
				"chunks", report.Chunks,
			)
		}),
	)
}
