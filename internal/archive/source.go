package archive

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/relatedwork/pkg/models"
)

// Upstream is where pull request listings and details come from.
type Upstream interface {
	ListRecentClosed(ctx context.Context, limit int) ([]models.PullRequestSummary, error)
	FetchDetail(ctx context.Context, number int) (models.PullRequestDetails, error)
}

// Source serves an archive directory as an offline corpus. Higher pull
// request numbers count as more recent.
type Source struct {
	Store *Store
}

// ListRecentClosed returns up to limit merged pull requests from the archive.
func (s *Source) ListRecentClosed(ctx context.Context, limit int) ([]models.PullRequestSummary, error) {
	all, err := s.Store.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.PullRequestSummary
	for _, d := range all {
		if len(out) >= limit {
			break
		}
		if d.Merged {
			out = append(out, d.Summary())
		}
	}
	return out, nil
}

// FetchDetail loads one archived pull request.
func (s *Source) FetchDetail(_ context.Context, number int) (models.PullRequestDetails, error) {
	return s.Store.Load(number)
}

// CachedSource reads details from Store first and falls back to Upstream,
// saving what it fetched. Listings always come from Upstream.
type CachedSource struct {
	Upstream Upstream
	Store    *Store
	// Refresh skips cache reads but still writes through.
	Refresh bool
}

func (c *CachedSource) ListRecentClosed(ctx context.Context, limit int) ([]models.PullRequestSummary, error) {
	return c.Upstream.ListRecentClosed(ctx, limit)
}

func (c *CachedSource) FetchDetail(ctx context.Context, number int) (models.PullRequestDetails, error) {
	if !c.Refresh {
		d, err := c.Store.Load(number)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Int("number", number).Msg("unreadable cache entry, refetching")
		}
	}
	d, err := c.Upstream.FetchDetail(ctx, number)
	if err != nil {
		return d, err
	}
	if err := c.Store.Save(d); err != nil {
		log.Warn().Err(err).Int("number", number).Msg("cache write failed")
	}
	return d, nil
}
