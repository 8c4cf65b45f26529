package cli

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/adapter"
	"github.com/m-mizutani/seeker/pkg/docindex"
	"github.com/m-mizutani/seeker/pkg/repository"
	"github.com/m-mizutani/seeker/pkg/service/mcp"
	"github.com/m-mizutani/seeker/pkg/tool"
	"github.com/m-mizutani/seeker/pkg/tool/calc"
	"github.com/m-mizutani/seeker/pkg/tool/docs"
	"github.com/m-mizutani/seeker/pkg/tool/web"
	"github.com/m-mizutani/seeker/pkg/usecase/chat"
	"github.com/m-mizutani/seeker/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	embeddingProviderGemini = "gemini"
	embeddingProviderOllama = "ollama"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Repository
	project  string
	database string

	// LLM
	geminiProject   string
	geminiLocation  string
	generativeModel string

	// Embedding
	embeddingProvider  string
	embeddingModel     string
	embeddingDim       int64
	ollamaURL          string
	ollamaModel        string
	embeddingCacheSize int64

	// Documents
	documentDir string
	indexDir    string

	// Agent
	maxSteps    int64
	checkpoint  int64
	topK        int64
	callTimeout time.Duration
	mcpConfig   string

	// History
	historyBucket string
	historyPrefix string
	historyDir    string
}

// globalFlags returns logging flags shared by every command
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("SEEKER_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("SEEKER_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model for perception and planning",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.generativeModel,
		},
	}
}

func embeddingFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider (gemini, ollama)",
			Value:       embeddingProviderGemini,
			Sources:     cli.EnvVars("SEEKER_EMBEDDING_PROVIDER"),
			Destination: &cfg.embeddingProvider,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Gemini embedding model",
			Value:       "gemini-embedding-001",
			Sources:     cli.EnvVars("SEEKER_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "embedding-dim",
			Usage:       "Output dimensionality of Gemini embeddings (0 keeps the model default)",
			Value:       768,
			Sources:     cli.EnvVars("SEEKER_EMBEDDING_DIM"),
			Destination: &cfg.embeddingDim,
		},
		&cli.StringFlag{
			Name:        "ollama-url",
			Usage:       "Ollama server URL",
			Value:       adapter.DefaultOllamaURL,
			Sources:     cli.EnvVars("OLLAMA_HOST"),
			Destination: &cfg.ollamaURL,
		},
		&cli.StringFlag{
			Name:        "ollama-model",
			Usage:       "Ollama embedding model",
			Value:       adapter.DefaultOllamaModel,
			Sources:     cli.EnvVars("SEEKER_OLLAMA_MODEL"),
			Destination: &cfg.ollamaModel,
		},
		&cli.IntFlag{
			Name:        "embedding-cache-size",
			Usage:       "Number of embeddings kept in memory (0 disables the cache)",
			Value:       4096,
			Sources:     cli.EnvVars("SEEKER_EMBEDDING_CACHE_SIZE"),
			Destination: &cfg.embeddingCacheSize,
		},
	}
}

func documentFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "document-dir",
			Usage:       "Directory of documents to index",
			Value:       "documents",
			Sources:     cli.EnvVars("SEEKER_DOCUMENTS_DIR"),
			Destination: &cfg.documentDir,
		},
		&cli.StringFlag{
			Name:        "index-dir",
			Usage:       "Directory of the persisted document index",
			Value:       "index",
			Sources:     cli.EnvVars("SEEKER_INDEX_DIR"),
			Destination: &cfg.indexDir,
		},
	}
}

func agentFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-steps",
			Usage:       "Maximum planning steps per request",
			Value:       chat.DefaultMaxSteps,
			Sources:     cli.EnvVars("SEEKER_MAX_STEPS"),
			Destination: &cfg.maxSteps,
		},
		&cli.IntFlag{
			Name:        "checkpoint",
			Usage:       "Searches per request before asking whether to continue",
			Value:       chat.DefaultCheckpoint,
			Sources:     cli.EnvVars("SEEKER_CHECKPOINT"),
			Destination: &cfg.checkpoint,
		},
		&cli.IntFlag{
			Name:        "memory-top-k",
			Usage:       "Memories retrieved for each planning step",
			Value:       chat.DefaultTopK,
			Sources:     cli.EnvVars("SEEKER_MEMORY_TOP_K"),
			Destination: &cfg.topK,
		},
		&cli.DurationFlag{
			Name:        "call-timeout",
			Usage:       "Deadline of each external call (0 means none)",
			Sources:     cli.EnvVars("SEEKER_CALL_TIMEOUT"),
			Destination: &cfg.callTimeout,
		},
		&cli.StringFlag{
			Name:        "mcp-config",
			Usage:       "Path to a YAML file listing MCP servers",
			Sources:     cli.EnvVars("SEEKER_MCP_CONFIG"),
			Destination: &cfg.mcpConfig,
		},
	}
}

// historyFlags returns flags of transcript persistence. Transcripts are
// saved only when a Firestore project is given.
func historyFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID of Firestore",
			Sources:     cli.EnvVars("FIRESTORE_PROJECT_ID"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "history-bucket",
			Usage:       "Cloud Storage bucket for transcripts",
			Sources:     cli.EnvVars("SEEKER_HISTORY_BUCKET"),
			Destination: &cfg.historyBucket,
		},
		&cli.StringFlag{
			Name:        "history-prefix",
			Usage:       "Object prefix in the transcript bucket",
			Sources:     cli.EnvVars("SEEKER_HISTORY_PREFIX"),
			Destination: &cfg.historyPrefix,
		},
		&cli.StringFlag{
			Name:        "history-dir",
			Usage:       "Local directory for transcripts when no bucket is given",
			Value:       ".seeker",
			Sources:     cli.EnvVars("SEEKER_HISTORY_DIR"),
			Destination: &cfg.historyDir,
		},
	}
}

func (cfg *config) newLogger(w io.Writer) *slog.Logger {
	return logging.New(cfg.logLevel, logging.Format(cfg.logFormat), w)
}

// withLogger installs the configured logger as default and in ctx
func (cfg *config) withLogger(ctx context.Context, w io.Writer) context.Context {
	logger := cfg.newLogger(w)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithGenerativeModel(cfg.generativeModel),
		adapter.WithEmbeddingModel(cfg.embeddingModel),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return gemini, nil
}

// newEmbedder builds the configured embedder. gemini may be nil when the
// provider does not need it. The returned function releases the cache.
func (cfg *config) newEmbedder(ctx context.Context, gemini adapter.Gemini) (adapter.Embedder, func(), error) {
	var base adapter.Embedder
	switch cfg.embeddingProvider {
	case embeddingProviderGemini, "":
		if gemini == nil {
			g, err := cfg.newGemini(ctx)
			if err != nil {
				return nil, nil, err
			}
			gemini = g
		}
		base = adapter.NewGeminiEmbedder(gemini, adapter.WithDimensionality(int(cfg.embeddingDim)))

	case embeddingProviderOllama:
		base = adapter.NewOllamaEmbedder(
			adapter.WithOllamaURL(cfg.ollamaURL),
			adapter.WithOllamaModel(cfg.ollamaModel),
		)

	default:
		return nil, nil, goerr.New("unknown embedding provider", goerr.V("provider", cfg.embeddingProvider))
	}

	if cfg.embeddingCacheSize <= 0 {
		return base, func() {}, nil
	}

	cached, err := adapter.NewCachedEmbedder(base, cfg.embeddingCacheSize)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

func (cfg *config) newIndexer(embedder adapter.Embedder) *docindex.Indexer {
	return docindex.New(cfg.documentDir, cfg.indexDir, embedder)
}

// builtinTools returns the tools compiled into seeker. Their flags must be
// registered before the command runs.
func builtinTools() []tool.Tool {
	return []tool.Tool{docs.New(), web.New(), calc.New()}
}

func toolFlags(tools []tool.Tool) []cli.Flag {
	var flags []cli.Flag
	for _, t := range tools {
		flags = append(flags, t.Flags()...)
	}
	return flags
}

// newRegistry connects MCP servers, if configured, and builds the registry.
// The returned function disconnects them.
func (cfg *config) newRegistry(ctx context.Context, tools []tool.Tool, gemini adapter.Gemini, indexer *docindex.Indexer) (*tool.Registry, func(), error) {
	provider, err := mcp.LoadAndConnect(ctx, cfg.mcpConfig)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to load MCP servers")
	}

	all := append([]tool.Tool{}, tools...)
	closer := func() {}
	if provider != nil {
		all = append(all, provider)
		closer = func() {
			if err := provider.Close(); err != nil {
				logging.From(ctx).Warn("failed to close MCP servers", "error", err)
			}
		}
	}

	client := &tool.Client{
		Documents:  indexer,
		Gemini:     gemini,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	return tool.New(client, all...), closer, nil
}

func (cfg *config) sessionOptions() []chat.Option {
	return []chat.Option{
		chat.WithMaxSteps(int(cfg.maxSteps)),
		chat.WithCheckpoint(int(cfg.checkpoint)),
		chat.WithTopK(int(cfg.topK)),
		chat.WithCallTimeout(cfg.callTimeout),
	}
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newStorage returns Cloud Storage when a bucket is set, else a local
// directory
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.historyBucket != "" {
		storage, err := adapter.NewStorage(ctx, cfg.historyBucket, cfg.historyPrefix)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create storage")
		}
		return storage, nil
	}

	if cfg.historyDir == "" {
		return nil, goerr.New("history-bucket or history-dir is required")
	}
	return adapter.NewFileStorage(cfg.historyDir), nil
}

func (cfg *config) newHistoryRecorder(ctx context.Context) (*chat.HistoryRecorder, error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}
	storage, err := cfg.newStorage(ctx)
	if err != nil {
		return nil, err
	}
	return chat.NewHistoryRecorder(repo, storage), nil
}

// recorderOption enables transcript saving when a Firestore project is set
func (cfg *config) recorderOption(ctx context.Context) ([]chat.Option, error) {
	if cfg.project == "" {
		logging.From(ctx).Debug("transcript saving disabled, no Firestore project")
		return nil, nil
	}

	rec, err := cfg.newHistoryRecorder(ctx)
	if err != nil {
		return nil, err
	}
	return []chat.Option{chat.WithRecorder(rec)}, nil
}
