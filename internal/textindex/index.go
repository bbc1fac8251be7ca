// Package textindex is the full-text index over pull request documents. It
// buffers ingested documents until Commit, parses a small boolean query
// language and ranks hits with the backend's relevance function.
package textindex

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/relatedwork/internal/metrics"
	"github.com/seanblong/relatedwork/pkg/models"
)

// Hit is a raw backend match. Stored fields are pointers so a missing value
// can be told apart from an empty one.
type Hit struct {
	DocID        *string
	Title        *string
	Status       *string
	ChecksStatus *string
	Files        *string
	Score        float64
}

// Backend persists documents and evaluates parsed queries.
type Backend interface {
	Migrate(ctx context.Context) error
	// Insert writes docs atomically: either all become visible or none.
	Insert(ctx context.Context, docs []models.IndexDocument) error
	// Replace swaps every committed document for docs in one step.
	Replace(ctx context.Context, docs []models.IndexDocument) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	// Search returns at most limit hits ordered by descending score.
	Search(ctx context.Context, q *Node, limit int) ([]Hit, error)
	Close() error
}

// Index is a single-writer document index. Ingested documents stay invisible
// to Query until Commit.
type Index struct {
	backend Backend

	mu      sync.Mutex
	pending []models.IndexDocument
	closed  bool
}

// New migrates b and wraps it in an Index.
func New(ctx context.Context, b Backend) (*Index, error) {
	if err := b.Migrate(ctx); err != nil {
		return nil, indexErr(OpMigrate, err)
	}
	return &Index{backend: b}, nil
}

// Open builds an index on the named driver: "sqlite" (path may be empty for
// an in-memory index) or "postgres" (dsn required).
func Open(ctx context.Context, driver, path, dsn string) (*Index, error) {
	var (
		b   Backend
		err error
	)
	switch strings.ToLower(driver) {
	case "", "sqlite":
		b, err = OpenSQLite(path)
	case "postgres", "postgresql":
		b, err = OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown index driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	ix, err := New(ctx, b)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return ix, nil
}

// Ingest buffers doc for the next Commit. Documents are not deduplicated.
func (ix *Index) Ingest(doc models.IndexDocument) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return ErrClosed
	}
	ix.pending = append(ix.pending, doc)
	return nil
}

// Pending reports how many ingested documents await Commit.
func (ix *Index) Pending() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.pending)
}

// Commit makes every pending document visible. On failure nothing becomes
// visible and the pending buffer is kept for a retry.
func (ix *Index) Commit(ctx context.Context) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return 0, ErrClosed
	}
	if len(ix.pending) == 0 {
		return 0, nil
	}
	if err := ix.backend.Insert(ctx, ix.pending); err != nil {
		return 0, indexErr(OpCommit, err)
	}
	n := len(ix.pending)
	ix.pending = nil
	metrics.IndexedDocumentsTotal.Add(float64(n))
	log.Debug().Int("documents", n).Msg("index commit")
	return n, nil
}

// Replace commits the pending documents as the entire index contents.
// Readers see either the old documents or the new ones, and a failure
// leaves the committed documents and the pending buffer as they were.
func (ix *Index) Replace(ctx context.Context) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return 0, ErrClosed
	}
	if err := ix.backend.Replace(ctx, ix.pending); err != nil {
		return 0, indexErr(OpReplace, err)
	}
	n := len(ix.pending)
	ix.pending = nil
	metrics.IndexedDocumentsTotal.Add(float64(n))
	log.Debug().Int("documents", n).Msg("index replace")
	return n, nil
}

// Clear removes every committed and pending document.
func (ix *Index) Clear(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return ErrClosed
	}
	ix.pending = nil
	return indexErr(OpClear, ix.backend.DeleteAll(ctx))
}

// IsEmpty reports whether no committed documents exist.
func (ix *Index) IsEmpty(ctx context.Context) (bool, error) {
	n, err := ix.Count(ctx)
	return n == 0, err
}

// Count returns the number of committed documents.
func (ix *Index) Count(ctx context.Context) (int, error) {
	if ix.isClosed() {
		return 0, ErrClosed
	}
	n, err := ix.backend.Count(ctx)
	return n, indexErr(OpCount, err)
}

// Query parses text and returns up to limit committed documents by
// descending relevance. Queries that can match nothing return an empty
// slice.
func (ix *Index) Query(ctx context.Context, text string, limit int) ([]models.RankedResult, error) {
	if ix.isClosed() {
		return nil, ErrClosed
	}
	q, err := Parse(text)
	if err != nil {
		return nil, err
	}
	if q == nil || limit <= 0 {
		return []models.RankedResult{}, nil
	}
	hits, err := ix.backend.Search(ctx, q, limit)
	if err != nil {
		return nil, indexErr(OpSearch, err)
	}
	out := make([]models.RankedResult, 0, len(hits))
	for _, h := range hits {
		r, err := toResult(h)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Close releases the backend. Pending documents are discarded.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	ix.pending = nil
	return ix.backend.Close()
}

func (ix *Index) isClosed() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.closed
}

func toResult(h Hit) (models.RankedResult, error) {
	id := ""
	if h.DocID != nil {
		id = *h.DocID
	}
	fields := []struct {
		name string
		v    *string
	}{
		{FieldID, h.DocID},
		{FieldTitle, h.Title},
		{FieldStatus, h.Status},
		{FieldChecksStatus, h.ChecksStatus},
		{FieldFiles, h.Files},
	}
	for _, f := range fields {
		if f.v == nil {
			return models.RankedResult{}, &LookupError{DocID: id, Field: f.name}
		}
	}
	return models.RankedResult{
		DocID:        *h.DocID,
		Score:        h.Score,
		Title:        *h.Title,
		Status:       *h.Status,
		ChecksStatus: *h.ChecksStatus,
		Files:        splitFiles(*h.Files),
	}, nil
}

// Files are stored newline separated; paths never contain newlines.
func joinFiles(files []string) string { return strings.Join(files, "\n") }

func splitFiles(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}
