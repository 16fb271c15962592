package cmd

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/chunker"
	"github.com/ziadkadry99/docqa/internal/config"
	"github.com/ziadkadry99/docqa/internal/db"
	"github.com/ziadkadry99/docqa/internal/embeddings"
	"github.com/ziadkadry99/docqa/internal/llm"
	"github.com/ziadkadry99/docqa/internal/logging"
	"github.com/ziadkadry99/docqa/internal/metrics"
	"github.com/ziadkadry99/docqa/internal/rag"
	"github.com/ziadkadry99/docqa/internal/syncer"
	"github.com/ziadkadry99/docqa/internal/vectordb"
	"github.com/ziadkadry99/docqa/internal/walker"
)

// defaultOllamaDimensions matches nomic-embed-text.
const defaultOllamaDimensions = 768

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" && cfg.EmbeddingBaseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(cfg.EmbeddingModel), cfg.EmbeddingBaseURL, cfg.EmbeddingDimensions), nil
	case config.ProviderOllama:
		dims := cfg.EmbeddingDimensions
		if dims == 0 {
			dims = defaultOllamaDimensions
		}
		baseURL := cfg.EmbeddingBaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_HOST")
		}
		return embeddings.NewOllamaEmbedder(cfg.EmbeddingModel, dims, baseURL), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.EmbeddingProvider)
	}
}

// createLLMProviderFromConfig creates an LLM provider based on config settings.
func createLLMProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	return llm.NewProvider(string(cfg.Provider), cfg.Model, llm.Options{
		BaseURL:           cfg.BaseURL,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `docqa init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w\nFix %s or run `docqa init`", err, cfgFile)
	}
	return cfg, nil
}

// newLogger builds the command logger. --verbose forces debug output.
func newLogger(cfg *config.Config, development bool) (*zap.Logger, error) {
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	return logging.New(level, development)
}

// app holds the components shared by the commands that touch the index.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Collector
	database *db.DB
	engine   *syncer.Engine
}

// openApp loads the config and opens the catalog, the vector index and the
// sync engine for the configured documents folder.
func openApp(development bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, development)
	if err != nil {
		return nil, err
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	database, err := db.Open(cfg.CatalogPath())
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	index, err := vectordb.Open(cfg.DataDir, database, embedder, vectordb.WithLogger(logger))
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("opening vector index in %s: %w", cfg.DataDir, err)
	}

	splitter, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		database.Close()
		return nil, err
	}

	m := metrics.New()
	engine, err := syncer.New(index, walker.Config{
		RootDir:     cfg.DocumentsDir,
		Recursive:   cfg.Recursive,
		Include:     cfg.Include,
		Exclude:     cfg.Exclude,
		MaxFileSize: cfg.MaxFileSize,
	},
		syncer.WithLogger(logger),
		syncer.WithMetrics(m),
		syncer.WithSplitter(splitter),
	)
	if err != nil {
		database.Close()
		return nil, err
	}

	logger.Debug("opened index",
		zap.String("documents", engine.Root()),
		zap.String("data", cfg.DataDir),
		zap.String("embedder", embedder.Name()),
	)

	return &app{cfg: cfg, logger: logger, metrics: m, database: database, engine: engine}, nil
}

// assistant creates the question answering assistant.
func (a *app) assistant() (*rag.Assistant, error) {
	provider, err := createLLMProviderFromConfig(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	return rag.New(a.engine, provider,
		rag.WithModel(a.cfg.Model),
		rag.WithTopK(a.cfg.TopK),
		rag.WithTemperature(a.cfg.Temperature),
		rag.WithMaxTokens(a.cfg.MaxTokens),
		rag.WithLogger(a.logger),
		rag.WithMetrics(a.metrics),
	), nil
}

func (a *app) watchDebounce() time.Duration {
	if a.cfg.Server.WatchDebounceMS <= 0 {
		return syncer.DefaultDebounce
	}
	return time.Duration(a.cfg.Server.WatchDebounceMS) * time.Millisecond
}

func (a *app) Close() {
	a.logger.Sync()
	a.database.Close()
}
