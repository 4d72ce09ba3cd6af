package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engineqa/engineqa/db"
	"github.com/engineqa/engineqa/internal/config"
	"github.com/engineqa/engineqa/internal/knowledge"
	"github.com/engineqa/engineqa/internal/log"
	"github.com/engineqa/engineqa/internal/provider"
	"github.com/engineqa/engineqa/internal/rag"
)

// app bundles the wired components shared by serve and index.
type app struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	store    *knowledge.PGVectorStore
	upstream *provider.Client
	indexer  *rag.Indexer
}

// setup loads configuration and wires the storage and upstream layers.
// The caller owns the returned app and must call close.
func setup(ctx context.Context, logger log.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnString())
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	store, err := knowledge.NewPGVectorStore(pool, cfg.TableName, cfg.EmbeddingDim, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}
	if err := store.EnsureReady(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("preparing knowledge store: %w", err)
	}

	upstream := provider.New(provider.Config{
		BaseURL:          cfg.Upstream.BaseURL,
		Token:            cfg.Upstream.Token,
		ChatPath:         cfg.Upstream.ChatPath,
		EmbedPath:        cfg.Upstream.EmbedPath,
		ChatModel:        cfg.Upstream.ChatModel,
		EmbedModel:       cfg.Upstream.EmbedModel,
		ChatTimeout:      cfg.Upstream.ChatTimeout(),
		EmbedTimeout:     cfg.Upstream.EmbedTimeout(),
		RetryChatMax:     cfg.Upstream.RetryChatMax,
		RetryEmbedMax:    cfg.Upstream.RetryEmbedMax,
		ChatRateLimitRPM: cfg.Upstream.ChatRateLimitRPM,
		ChatBurst:        cfg.Upstream.ChatBurst,
	}, logger)

	chunker, err := rag.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating chunker: %w", err)
	}

	indexer, err := rag.NewIndexer(store, upstream, chunker, cfg.KnowledgeDir,
		cfg.Upstream.OutboundMaxConcurrency, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating indexer: %w", err)
	}

	return &app{
		cfg:      cfg,
		pool:     pool,
		store:    store,
		upstream: upstream,
		indexer:  indexer,
	}, nil
}

func (a *app) close() {
	a.pool.Close()
}
