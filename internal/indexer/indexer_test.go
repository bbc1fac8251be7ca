package indexer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/seanblong/relatedwork/internal/textindex"
	"github.com/seanblong/relatedwork/pkg/models"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// MockSource implements Source for testing
type MockSource struct {
	ListRecentClosedFunc func(ctx context.Context, limit int) ([]models.PullRequestSummary, error)
	FetchDetailFunc      func(ctx context.Context, number int) (models.PullRequestDetails, error)
	listCalls            int32
}

func (m *MockSource) ListRecentClosed(ctx context.Context, limit int) ([]models.PullRequestSummary, error) {
	atomic.AddInt32(&m.listCalls, 1)
	if m.ListRecentClosedFunc != nil {
		return m.ListRecentClosedFunc(ctx, limit)
	}
	return nil, nil
}

func (m *MockSource) FetchDetail(ctx context.Context, number int) (models.PullRequestDetails, error) {
	if m.FetchDetailFunc != nil {
		return m.FetchDetailFunc(ctx, number)
	}
	return models.PullRequestDetails{Number: number, Merged: true}, nil
}

// MockIndex implements DocumentIndex for testing
type MockIndex struct {
	mu        sync.Mutex
	Empty     bool
	CommitErr error
	ingested  []models.IndexDocument
	committed []models.IndexDocument
	commits   int
	replaces  int
}

func (m *MockIndex) Ingest(doc models.IndexDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingested = append(m.ingested, doc)
	return nil
}

func (m *MockIndex) Commit(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	if m.CommitErr != nil {
		return 0, m.CommitErr
	}
	n := len(m.ingested)
	m.committed = append(m.committed, m.ingested...)
	m.ingested = nil
	return n, nil
}

func (m *MockIndex) Replace(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaces++
	if m.CommitErr != nil {
		return 0, m.CommitErr
	}
	n := len(m.ingested)
	m.committed = m.ingested
	m.ingested = nil
	m.Empty = n == 0
	return n, nil
}

func (m *MockIndex) IsEmpty(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Empty, nil
}

func listing(numbers ...int) func(ctx context.Context, limit int) ([]models.PullRequestSummary, error) {
	return func(ctx context.Context, limit int) ([]models.PullRequestSummary, error) {
		var out []models.PullRequestSummary
		for _, n := range numbers {
			if len(out) == limit {
				break
			}
			out = append(out, models.PullRequestSummary{Number: n, State: "closed", Merged: true})
		}
		return out, nil
	}
}

func TestIndexer_Load(t *testing.T) {
	src := &MockSource{
		ListRecentClosedFunc: listing(30, 20, 10),
		FetchDetailFunc: func(ctx context.Context, n int) (models.PullRequestDetails, error) {
			return models.PullRequestDetails{
				Number: n,
				Title:  "title",
				State:  "closed",
				Merged: n != 20,
				Diff:   "diff --git a/f.go b/f.go\n",
			}, nil
		},
	}
	idx := &MockIndex{Empty: true}

	res, err := New(src, idx, 2).Load(context.Background(), 10, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := uuid.Parse(res.RunID); err != nil {
		t.Errorf("RunID %q is not a uuid", res.RunID)
	}
	if res.Skipped {
		t.Error("load should not be skipped on an empty index")
	}
	if len(res.Summaries) != 3 {
		t.Errorf("Summaries = %+v", res.Summaries)
	}
	if res.Indexed != 2 || idx.commits != 1 {
		t.Errorf("Indexed = %d, commits = %d", res.Indexed, idx.commits)
	}
	if len(idx.committed) != 2 || idx.committed[0].ID != "30" || idx.committed[1].ID != "10" {
		t.Errorf("committed = %+v", idx.committed)
	}
	if got := idx.committed[0].Files; len(got) != 1 || got[0] != "f.go" {
		t.Errorf("Files = %v", got)
	}
}

func TestIndexer_Load_SkipsPopulatedIndex(t *testing.T) {
	src := &MockSource{ListRecentClosedFunc: listing(1)}
	idx := &MockIndex{Empty: false}

	res, err := New(src, idx, 0).Load(context.Background(), 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped || src.listCalls != 0 || idx.commits != 0 {
		t.Errorf("res = %+v, listCalls = %d, commits = %d", res, src.listCalls, idx.commits)
	}
}

func TestIndexer_Load_ForceRefresh(t *testing.T) {
	src := &MockSource{ListRecentClosedFunc: listing(5, 4)}
	idx := &MockIndex{Empty: false, committed: []models.IndexDocument{{ID: "old"}}}

	res, err := New(src, idx, 0).Load(context.Background(), 10, true)
	if err != nil {
		t.Fatal(err)
	}
	if idx.replaces != 1 || idx.commits != 0 {
		t.Errorf("replaces = %d, commits = %d, want 1 and 0", idx.replaces, idx.commits)
	}
	if res.Indexed != 2 || len(idx.committed) != 2 {
		t.Errorf("committed = %+v", idx.committed)
	}
	for _, d := range idx.committed {
		if d.ID == "old" {
			t.Error("stale document survived a forced refresh")
		}
	}
}

func TestIndexer_Load_FailedForceRefreshKeepsIndex(t *testing.T) {
	ctx := context.Background()
	ix, err := textindex.Open(ctx, "sqlite", "", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()

	seed := &MockSource{ListRecentClosedFunc: listing(1)}
	if _, err := New(seed, ix, 0).Load(ctx, 10, false); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	boom := errors.New("upstream 500")
	failing := &MockSource{
		ListRecentClosedFunc: listing(2, 3),
		FetchDetailFunc: func(ctx context.Context, n int) (models.PullRequestDetails, error) {
			if n == 2 {
				return models.PullRequestDetails{}, boom
			}
			return models.PullRequestDetails{Number: n, Merged: true}, nil
		},
	}
	if _, err := New(failing, ix, 2).Load(ctx, 10, true); !errors.Is(err, boom) {
		t.Fatalf("forced refresh error = %v, want %v", err, boom)
	}

	n, err := ix.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count = %d after failed forced refresh, want 1", n)
	}
	if ix.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", ix.Pending())
	}
}

func TestIndexer_Load_Errors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		src       *MockSource
		commitErr error
		commits   int
	}{
		{
			name:    "list fails",
			src:     &MockSource{ListRecentClosedFunc: func(ctx context.Context, limit int) ([]models.PullRequestSummary, error) { return nil, boom }},
			commits: 0,
		},
		{
			name: "detail fails",
			src: &MockSource{
				ListRecentClosedFunc: listing(1, 2, 3, 4),
				FetchDetailFunc: func(ctx context.Context, n int) (models.PullRequestDetails, error) {
					if n == 3 {
						return models.PullRequestDetails{}, boom
					}
					return models.PullRequestDetails{Number: n, Merged: true}, nil
				},
			},
			commits: 0,
		},
		{
			name:      "commit fails",
			src:       &MockSource{ListRecentClosedFunc: listing(1)},
			commitErr: boom,
			commits:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &MockIndex{Empty: true, CommitErr: tt.commitErr}
			_, err := New(tt.src, idx, 2).Load(context.Background(), 10, false)
			if !errors.Is(err, boom) {
				t.Fatalf("error = %v, want boom", err)
			}
			if idx.commits != tt.commits {
				t.Errorf("commits = %d, want %d", idx.commits, tt.commits)
			}
			if len(idx.committed) != 0 {
				t.Errorf("documents committed despite failure: %+v", idx.committed)
			}
		})
	}
}

func TestIndexer_Load_BoundedFetches(t *testing.T) {
	var inFlight, peak int32
	src := &MockSource{
		ListRecentClosedFunc: listing(1, 2, 3, 4, 5, 6, 7, 8, 9, 10),
		FetchDetailFunc: func(ctx context.Context, n int) (models.PullRequestDetails, error) {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return models.PullRequestDetails{Number: n, Merged: true}, nil
		},
	}
	idx := &MockIndex{Empty: true}

	res, err := New(src, idx, 3).Load(context.Background(), 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Indexed != 10 {
		t.Errorf("Indexed = %d, want 10", res.Indexed)
	}
	if peak > 3 {
		t.Errorf("peak concurrent fetches = %d, want <= 3", peak)
	}
}

func TestIndexer_Load_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &MockSource{
		ListRecentClosedFunc: listing(1, 2, 3),
		FetchDetailFunc: func(ctx context.Context, n int) (models.PullRequestDetails, error) {
			cancel()
			return models.PullRequestDetails{}, ctx.Err()
		},
	}
	idx := &MockIndex{Empty: true}
	if _, err := New(src, idx, 1).Load(ctx, 10, false); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if idx.commits != 0 {
		t.Errorf("commits = %d after cancellation", idx.commits)
	}
}

func TestNew_DefaultWorkers(t *testing.T) {
	if got := New(&MockSource{}, &MockIndex{}, 0).Workers; got != DefaultWorkers {
		t.Errorf("Workers = %d, want %d", got, DefaultWorkers)
	}
}
