// Package search serves the two retrieval paths: ranked text search over the
// pull request index and structured similarity for a tracked issue.
package search

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/relatedwork/internal/metrics"
	"github.com/seanblong/relatedwork/internal/similarity"
	"github.com/seanblong/relatedwork/pkg/models"
)

// TextIndex answers ranked text queries.
type TextIndex interface {
	Query(ctx context.Context, text string, limit int) ([]models.RankedResult, error)
}

// IssueGetter fetches a seed issue by key.
type IssueGetter interface {
	GetIssue(ctx context.Context, key string) (models.Item, error)
}

// CandidateRetriever runs the structured path for a seed.
type CandidateRetriever interface {
	Retrieve(ctx context.Context, seed models.Item, opts similarity.Options) ([]models.ScoredCandidate, error)
}

// Service wires the retrieval paths. Either side may be nil when the
// corresponding collaborator is not configured.
type Service struct {
	Index     TextIndex
	Issues    IssueGetter
	Retriever CandidateRetriever
}

// NewService creates a new search service.
func NewService(index TextIndex, issues IssueGetter, retriever CandidateRetriever) *Service {
	return &Service{
		Index:     index,
		Issues:    issues,
		Retriever: retriever,
	}
}

// Query returns up to k pull requests matching q, optionally dropping hits
// below minScore. Scores are only comparable within one call.
func (s *Service) Query(ctx context.Context, q string, k int, minScore *float64) ([]models.RankedResult, error) {
	q = strings.TrimSpace(q)
	start := time.Now()
	defer func() { metrics.SearchDuration.WithLabelValues("text").Observe(time.Since(start).Seconds()) }()

	res, err := s.Index.Query(ctx, q, k)
	if err != nil {
		log.Warn().Err(err).Str("q", q).Msg("text search failed")
		return nil, err
	}
	res = similarity.AggregateResults(similarity.Options{MinScore: minScore, Limit: k}, res)
	log.Debug().Str("q", q).Int("hits", len(res)).Msg("text search")
	return res, nil
}

// Similar is the structured result for one seed issue.
type Similar struct {
	Seed    models.Item              `json:"seed"`
	Related []models.ScoredCandidate `json:"related"`
}

// Similar fetches the issue key and ranks related issues against it.
func (s *Service) Similar(ctx context.Context, key string, opts similarity.Options) (Similar, error) {
	start := time.Now()
	defer func() { metrics.SearchDuration.WithLabelValues("structured").Observe(time.Since(start).Seconds()) }()

	seed, err := s.Issues.GetIssue(ctx, key)
	if err != nil {
		return Similar{}, err
	}
	related, err := s.Retriever.Retrieve(ctx, seed, opts)
	if err != nil {
		return Similar{}, err
	}
	if related == nil {
		related = []models.ScoredCandidate{}
	}
	log.Info().Str("key", key).Int("related", len(related)).Msg("similar issues")
	return Similar{Seed: seed, Related: related}, nil
}
