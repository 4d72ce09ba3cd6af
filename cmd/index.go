package cmd

import (
	"context"
	"fmt"

	"github.com/engineqa/engineqa/internal/log"
)

// runIndex performs one indexing pass and exits. Used from cron jobs and
// CI, where the HTTP reindex endpoint would be a detour. Pass
// --incremental to re-embed only new or changed documents.
func runIndex(logger log.Logger, args []string) error {
	full := true
	for _, arg := range args {
		switch arg {
		case "--incremental":
			full = false
		default:
			return fmt.Errorf("unknown flag for index: %s", arg)
		}
	}

	ctx := context.Background()
	a, err := setup(ctx, logger)
	if err != nil {
		return err
	}
	defer a.close()

	run, err := a.indexer.Index(ctx, full)
	if err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	fmt.Printf("Indexed %d/%d files (%d skipped, %d failed)\n",
		run.IndexedFiles, run.TotalFiles, run.SkippedFiles, run.FailedFiles)
	fmt.Printf("Chunks: %d written, %d failed, %d deleted\n",
		run.SuccessfulChunks, run.FailedChunks, run.DeletedChunks)
	fmt.Printf("Took %dms\n", run.DurationMS)
	return nil
}
