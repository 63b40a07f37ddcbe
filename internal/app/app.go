// Package app wires configuration into a running memory server: store,
// cache, providers, analyzer, ingestor, engine, and the MCP surface.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/recall"
	"github.com/nevindra/recall/analyze"
	"github.com/nevindra/recall/cache"
	"github.com/nevindra/recall/ingest"
	"github.com/nevindra/recall/internal/config"
	"github.com/nevindra/recall/mcp"
	"github.com/nevindra/recall/observer"
	"github.com/nevindra/recall/provider/resolve"
	"github.com/nevindra/recall/store/postgres"
	"github.com/nevindra/recall/store/sqlite"
)

// Version is stamped at build time.
var Version = "dev"

// App is the assembled memory server.
type App struct {
	Engine *recall.Engine
	Server *mcp.Server

	logger    *slog.Logger
	shutdowns []func(context.Context) error
}

// Build constructs an App from configuration. The returned App owns its
// store and observability pipelines; call Close when done.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = recall.NopLogger()
	}
	a := &App{logger: logger}

	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			return nil, fmt.Errorf("init observer: %w", err)
		}
		a.shutdowns = append(a.shutdowns, shutdown)
	}

	store, err := a.buildStore(ctx, cfg)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.shutdowns = append(a.shutdowns, func(context.Context) error { return store.Close() })

	embedding, err := buildEmbedding(cfg, logger, inst)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	var resultCache recall.ResultCache = cache.New(
		cfg.Cache.MaxSize,
		time.Duration(cfg.Cache.TTLSeconds)*time.Second,
		cache.WithLogger(logger),
	)
	if inst != nil {
		resultCache = observer.WrapCache(resultCache, inst)
	}

	var retriever recall.Retriever = recall.NewReader(store, embedding,
		recall.WithReaderLogger(logger),
		recall.WithReaderCache(resultCache),
		recall.WithAuthorityWeights(recall.AuthorityWeights{
			Symbolic: cfg.Authority.Symbolic,
			Episodic: cfg.Authority.Episodic,
			Semantic: cfg.Authority.Semantic,
		}),
	)
	if inst != nil {
		retriever = observer.WrapRetriever(retriever, inst)
	}

	analyzer, err := buildAnalyzer(cfg, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	opts := []recall.EngineOption{
		recall.WithEngineLogger(logger),
		recall.WithEngineRetriever(retriever),
		recall.WithEngineCache(resultCache),
		recall.WithEngineAnalyzer(analyzer),
	}
	if embedding != nil {
		var ingestor recall.Ingestor = ingest.New(store, embedding,
			ingest.WithLogger(logger),
			ingest.WithChunker(ingest.NewWordChunker(
				ingest.WithChunkSize(cfg.Ingest.ChunkSize),
				ingest.WithChunkOverlap(cfg.Ingest.ChunkOverlap),
			)),
			ingest.WithBatchSize(cfg.Ingest.BatchSize),
		)
		if inst != nil {
			ingestor = observer.WrapIngestor(ingestor, inst)
		}
		opts = append(opts, recall.WithEngineIngestor(ingestor))
	}

	a.Engine = recall.NewEngine(store, opts...)

	a.Server = mcp.New("recall", Version, mcp.WithServerLogger(logger))
	mcp.RegisterTools(a.Server, a.Engine)
	mcp.RegisterResources(a.Server, a.Engine)

	logger.Info("app: built",
		"backend", cfg.Store.Backend,
		"data_root", cfg.DataRoot,
		"semantic", embedding != nil,
		"extraction", cfg.Analyze.ExtractionMode,
		"observer", cfg.Observer.Enabled)
	return a, nil
}

// buildStore opens the sqlite store, optionally swapping the semantic
// substrate for pgvector.
func (a *App) buildStore(ctx context.Context, cfg config.Config) (recall.Store, error) {
	base, err := sqlite.Open(ctx, cfg.DataRoot,
		sqlite.WithLogger(a.logger),
		sqlite.WithPoolSize(cfg.PoolSize),
		sqlite.WithDimensions(cfg.Embedding.Dimensions),
		sqlite.WithDedupMode(recall.DedupMode(cfg.Memory.DeduplicationMode)),
		sqlite.WithMinEpisodeConfidence(cfg.Memory.MinEpisodeConfidence),
	)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if cfg.Store.Backend != "postgres" {
		return base, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Store.PostgresURL)
	if err != nil {
		base.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pg := postgres.New(pool, postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions))
	if err := pg.Init(ctx); err != nil {
		pool.Close()
		base.Close()
		return nil, fmt.Errorf("init postgres store: %w", err)
	}
	a.shutdowns = append(a.shutdowns, func(context.Context) error {
		pool.Close()
		return nil
	})
	return &hybridStore{Store: base, semantic: pg}, nil
}

// buildEmbedding resolves the embedding provider with retry and
// instrumentation. A missing model disables the semantic substrate.
func buildEmbedding(cfg config.Config, logger *slog.Logger, inst *observer.Instruments) (recall.EmbeddingProvider, error) {
	if cfg.Embedding.Model == "" {
		return nil, nil
	}
	emb, err := resolve.EmbeddingProvider(resolve.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	wrapped := recall.WithEmbeddingRetry(emb, recall.RetryLogger(logger))
	if inst != nil {
		return observer.WrapEmbedding(wrapped, cfg.Embedding.Model, inst), nil
	}
	return wrapped, nil
}

// buildAnalyzer assembles the conversation analyzer, attaching a chat
// provider only in model mode.
func buildAnalyzer(cfg config.Config, logger *slog.Logger) (*analyze.Analyzer, error) {
	opts := []analyze.Option{
		analyze.WithLogger(logger),
		analyze.WithMinFactConfidence(cfg.Memory.MinFactConfidence),
		analyze.WithMinEpisodeConfidence(cfg.Memory.MinEpisodeConfidence),
		analyze.WithMinMessageLength(cfg.Analyze.MinMessageLength),
		analyze.WithSkipPatterns(cfg.Analyze.SkipPatterns),
	}
	if cfg.Analyze.ExtractionMode == "model" {
		p, err := resolve.Provider(resolve.Config{
			Provider: cfg.LLM.Provider,
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.Model,
			BaseURL:  cfg.LLM.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("resolve chat provider: %w", err)
		}
		opts = append(opts, analyze.WithProvider(recall.WithChatRetry(p, recall.RetryLogger(logger))))
	}
	return analyze.New(opts...), nil
}

// Run serves MCP over stdio until ctx is cancelled or stdin closes.
func (a *App) Run(ctx context.Context) error {
	return a.Server.Serve(ctx)
}

// RunWithSignal wraps Run with OS signal handling for graceful shutdown.
func (a *App) RunWithSignal() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := a.Run(ctx)
	a.close(context.Background())
	return err
}

// Close releases everything Build acquired, newest first.
func (a *App) Close(ctx context.Context) error {
	return a.close(ctx)
}

func (a *App) close(ctx context.Context) error {
	var first error
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		if err := a.shutdowns[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	a.shutdowns = nil
	return first
}
