// Package indexer loads recently merged pull requests into the text index.
package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/relatedwork/internal/textindex"
	"github.com/seanblong/relatedwork/pkg/models"
)

// DefaultWorkers bounds concurrent detail fetches when none is configured.
const DefaultWorkers = 4

// Source lists pull requests and fetches their details.
type Source interface {
	ListRecentClosed(ctx context.Context, limit int) ([]models.PullRequestSummary, error)
	FetchDetail(ctx context.Context, number int) (models.PullRequestDetails, error)
}

// DocumentIndex is the write side of the text index.
type DocumentIndex interface {
	Ingest(doc models.IndexDocument) error
	Commit(ctx context.Context) (int, error)
	Replace(ctx context.Context) (int, error)
	IsEmpty(ctx context.Context) (bool, error)
}

// Indexer handles loading of a pull request corpus.
type Indexer struct {
	Source  Source
	Index   DocumentIndex
	Workers int
}

// New creates an Indexer. workers <= 0 uses DefaultWorkers.
func New(src Source, idx DocumentIndex, workers int) *Indexer {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Indexer{Source: src, Index: idx, Workers: workers}
}

// Result describes one load run.
type Result struct {
	RunID     string                      `json:"run_id"`
	Skipped   bool                        `json:"skipped"`
	Summaries []models.PullRequestSummary `json:"summaries"`
	Indexed   int                         `json:"indexed"`
}

// Load fetches up to limit recent merged pull requests and commits them to
// the index in one step. With forceRefresh the fetched documents replace
// the index contents; without it an already populated index is left
// untouched. Any fetch or write failure aborts the run and leaves the
// index as it was.
func (ix *Indexer) Load(ctx context.Context, limit int, forceRefresh bool) (Result, error) {
	res := Result{RunID: uuid.NewString(), Summaries: []models.PullRequestSummary{}}
	logger := log.With().Str("run_id", res.RunID).Logger()
	start := time.Now()

	if !forceRefresh {
		empty, err := ix.Index.IsEmpty(ctx)
		if err != nil {
			return res, err
		}
		if !empty {
			logger.Info().Msg("index already populated, skipping load")
			res.Skipped = true
			return res, nil
		}
	}

	prs, err := ix.Source.ListRecentClosed(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("list pull requests: %w", err)
	}
	logger.Info().Int("pull_requests", len(prs)).Int("workers", ix.Workers).Msg("loading pull requests")

	details, err := ix.fetchAll(ctx, prs)
	if err != nil {
		return res, err
	}

	for _, d := range details {
		if !d.Merged {
			continue
		}
		if err := ix.Index.Ingest(textindex.NewDocument(d)); err != nil {
			return res, err
		}
	}
	commit := ix.Index.Commit
	if forceRefresh {
		commit = ix.Index.Replace
	}
	n, err := commit(ctx)
	if err != nil {
		return res, err
	}

	res.Summaries = append(res.Summaries, prs...)
	res.Indexed = n
	logger.Info().
		Int("indexed", n).
		Dur("took", time.Since(start)).
		Msg("load complete")
	return res, nil
}

// fetchAll fetches details for prs with at most ix.Workers requests in
// flight. Results keep listing order. The first failure cancels the rest.
func (ix *Indexer) fetchAll(ctx context.Context, prs []models.PullRequestSummary) ([]models.PullRequestDetails, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([]models.PullRequestDetails, len(prs))
	workChan := make(chan int)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	numWorkers := ix.Workers
	if numWorkers > len(prs) {
		numWorkers = len(prs)
	}
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range workChan {
				d, err := ix.Source.FetchDetail(ctx, prs[i].Number)
				if err != nil {
					errOnce.Do(func() {
						firstErr = fmt.Errorf("fetch pull request %d: %w", prs[i].Number, err)
						cancel()
					})
					continue
				}
				log.Debug().Int("worker", workerID).Int("number", d.Number).Msg("fetched pull request")
				out[i] = d
			}
		}(w)
	}

send:
	for i := range prs {
		select {
		case workChan <- i:
		case <-ctx.Done():
			break send
		}
	}
	close(workChan)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
