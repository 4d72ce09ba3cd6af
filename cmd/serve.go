package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/engineqa/engineqa/api"
	"github.com/engineqa/engineqa/internal/feedback"
	"github.com/engineqa/engineqa/internal/jobs"
	"github.com/engineqa/engineqa/internal/log"
	"github.com/engineqa/engineqa/internal/query"
	"github.com/engineqa/engineqa/internal/rag"
)

// runServe wires the full pipeline and serves the HTTP API until
// SIGINT/SIGTERM.
func runServe(logger log.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting engineqa", "version", AppVersion)

	a, err := setup(ctx, logger)
	if err != nil {
		return err
	}
	defer a.close()

	retriever, err := rag.NewRetriever(a.store, a.cfg.ScoreThreshold, a.cfg.TopK, logger)
	if err != nil {
		return fmt.Errorf("creating retriever: %w", err)
	}

	querySvc, err := query.NewService(a.upstream, retriever, logger)
	if err != nil {
		return fmt.Errorf("creating query service: %w", err)
	}

	server := api.NewServer(api.Deps{
		Query:    querySvc,
		Jobs:     jobs.NewManager(),
		Indexer:  a.indexer,
		Store:    a.store,
		Upstream: a.upstream,
		Feedback: feedback.NewStore(),
		Pool:     a.pool,
		Table:    a.cfg.TableName,
		Logger:   logger,
	})

	return server.Run(ctx, a.cfg.Addr())
}
