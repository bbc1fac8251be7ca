package similarity

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/relatedwork/internal/metrics"
	"github.com/seanblong/relatedwork/internal/query"
	"github.com/seanblong/relatedwork/pkg/models"
)

// Tracker is the remote corpus the structured path fetches from.
type Tracker interface {
	FetchByQuery(ctx context.Context, req query.Request, page query.Page) ([]models.Item, error)
	FetchChangeProposals(ctx context.Context, itemID string) ([]models.ChangeProposal, error)
}

// Retriever runs the structured retrieval path for one seed at a time.
type Retriever struct {
	Tracker Tracker
	Page    query.Page
	Workers int
}

// NewRetriever creates a Retriever with the default page and workers bounded
// enrichment fan-out.
func NewRetriever(t Tracker, workers int) *Retriever {
	if workers <= 0 {
		workers = 4
	}
	return &Retriever{Tracker: t, Page: query.DefaultPage, Workers: workers}
}

// Candidates issues every candidate request for seed concurrently and
// concatenates the batches in request order. A failed fetch contributes an
// empty batch.
func (r *Retriever) Candidates(ctx context.Context, seed models.Item) []models.Item {
	reqs := BuildCandidateQueries(seed)
	if len(reqs) == 0 {
		log.Debug().Str("seed", seed.Key).Msg("no relationship signal, no structured candidates")
		return nil
	}

	batches := make([][]models.Item, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req query.Request) {
			defer wg.Done()
			items, err := r.Tracker.FetchByQuery(ctx, req, r.Page)
			if err != nil {
				log.Warn().Err(err).Str("seed", seed.Key).Str("predicate", req.Predicate.String()).
					Msg("candidate fetch failed, continuing without this group")
				return
			}
			batches[i] = items
		}(i, req)
	}
	wg.Wait()

	var out []models.Item
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

// Retrieve fetches, scores, ranks and bounds the structured candidates for
// seed, then attaches change proposals to the survivors. Remote failures
// degrade to partial results; only cancellation is reported.
func (r *Retriever) Retrieve(ctx context.Context, seed models.Item, opts Options) ([]models.ScoredCandidate, error) {
	cands := r.Candidates(ctx, seed)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := RankBySimilarity(seed, cands)
	metrics.CandidatesScoredTotal.Add(float64(len(ranked)))

	out := AggregateCandidates(opts, ranked)
	log.Info().Str("seed", seed.Key).Int("candidates", len(cands)).Int("kept", len(out)).Msg("ranked structured candidates")

	r.enrich(ctx, out)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// enrich loads change proposals for each result with at most Workers calls in
// flight. A failed lookup leaves that result without proposals.
func (r *Retriever) enrich(ctx context.Context, results []models.ScoredCandidate) {
	if len(results) == 0 {
		return
	}
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(results) {
		workers = len(results)
	}

	work := make(chan int, workers*2)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				c := &results[i].Candidate
				prs, err := r.Tracker.FetchChangeProposals(ctx, c.ID)
				if err != nil {
					log.Warn().Err(err).Str("key", c.Key).Msg("change proposal lookup failed")
					continue
				}
				c.ChangeProposals = prs
			}
		}()
	}

	for i := range results {
		select {
		case work <- i:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(work)
	wg.Wait()
}
