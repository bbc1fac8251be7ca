package textindex

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seanblong/relatedwork/pkg/models"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

func newMemoryIndex(t *testing.T) (*Index, *SQLiteBackend) {
	t.Helper()
	b, err := OpenSQLite("")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	ix, err := New(context.Background(), b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = ix.Close() })
	return ix, b
}

func ingestAll(t *testing.T, ix *Index, docs ...models.IndexDocument) {
	t.Helper()
	for _, d := range docs {
		if err := ix.Ingest(d); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}
	if _, err := ix.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func ids(rs []models.RankedResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.DocID
	}
	return out
}

var corpus = []models.IndexDocument{
	{
		ID: "1", Title: "Retry uploads", Description: "retry retry retry",
		Status: "closed", ChecksStatus: models.ChecksAllPassed,
		Files: []string{"upload/retry.go", "upload/retry_test.go"},
		Diff:  "diff --git a/upload/retry.go b/upload/retry.go\n+func Retry() {}",
	},
	{
		ID: "2", Title: "Bump vendor", Description: "retry alpha beta gamma delta epsilon zeta eta theta",
		Status: "closed", ChecksStatus: models.ChecksSomeFailed,
		Files: []string{"vendor/modules.txt"},
		Diff:  "diff --git a/vendor/modules.txt b/vendor/modules.txt",
	},
	{
		ID: "3", Title: "Flaky test quarantine", Description: "skip the flaky integration test",
		Status: "closed", ChecksStatus: models.ChecksIncomplete,
		Files: []string{},
		Diff:  "",
	},
}

func TestIndex_QueryRanksByRelevance(t *testing.T) {
	ix, _ := newMemoryIndex(t)
	ingestAll(t, ix, corpus...)

	got, err := ix.Query(context.Background(), "retry", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if want := []string{"1", "2"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("Query ids = %v, want %v", ids(got), want)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("scores not descending: %v then %v", got[0].Score, got[1].Score)
	}
	if got[0].Score <= 0 {
		t.Errorf("score should be positive, got %v", got[0].Score)
	}
	first := got[0]
	if first.Title != "Retry uploads" || first.Status != "closed" || first.ChecksStatus != models.ChecksAllPassed {
		t.Errorf("stored fields = %+v", first)
	}
	if !reflect.DeepEqual(first.Files, corpus[0].Files) {
		t.Errorf("Files = %q, want %q", first.Files, corpus[0].Files)
	}
}

func TestIndex_Query(t *testing.T) {
	ix, _ := newMemoryIndex(t)
	ingestAll(t, ix, corpus...)

	tests := []struct {
		name  string
		query string
		limit int
		want  []string
	}{
		{"default field only", "vendor", 10, []string{}},
		{"title field", "title:vendor", 10, []string{"2"}},
		{"files field", "files:vendor", 10, []string{"2"}},
		{"diff field", "diff:func", 10, []string{"1"}},
		{"phrase", `"flaky integration"`, 10, []string{"3"}},
		{"phrase order matters", `"integration flaky"`, 10, []string{}},
		{"excluded", "retry -alpha", 10, []string{"1"}},
		{"and", "retry AND gamma", 10, []string{"2"}},
		{"or", "skip OR gamma", 10, nil},
		{"limit", "retry", 1, []string{"1"}},
		{"zero limit", "retry", 0, []string{}},
		{"empty query", "", 10, []string{}},
		{"negative only", "-retry", 10, []string{}},
		{"no match", "kubernetes", 10, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ix.Query(context.Background(), tt.query, tt.limit)
			if err != nil {
				t.Fatalf("Query(%q): %v", tt.query, err)
			}
			if got == nil {
				t.Fatalf("Query(%q) returned nil slice", tt.query)
			}
			if tt.want == nil {
				if len(got) != 2 {
					t.Errorf("Query(%q) = %v, want 2 hits", tt.query, ids(got))
				}
				return
			}
			if !reflect.DeepEqual(ids(got), tt.want) {
				t.Errorf("Query(%q) = %v, want %v", tt.query, ids(got), tt.want)
			}
		})
	}
}

func TestIndex_UncommittedInvisible(t *testing.T) {
	ctx := context.Background()
	ix, _ := newMemoryIndex(t)

	if err := ix.Ingest(corpus[0]); err != nil {
		t.Fatal(err)
	}
	if ix.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", ix.Pending())
	}
	got, err := ix.Query(ctx, "retry", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("uncommitted document visible: %v", ids(got))
	}
	empty, err := ix.IsEmpty(ctx)
	if err != nil || !empty {
		t.Errorf("IsEmpty = %v, %v before commit", empty, err)
	}

	n, err := ix.Commit(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Commit = %d, %v", n, err)
	}
	if ix.Pending() != 0 {
		t.Errorf("Pending = %d after commit", ix.Pending())
	}
	got, _ = ix.Query(ctx, "retry", 10)
	if len(got) != 1 {
		t.Errorf("committed document not visible: %v", ids(got))
	}
}

func TestIndex_Clear(t *testing.T) {
	ctx := context.Background()
	ix, _ := newMemoryIndex(t)
	ingestAll(t, ix, corpus...)
	_ = ix.Ingest(corpus[0])

	if n, _ := ix.Count(ctx); n != 3 {
		t.Fatalf("Count = %d, want 3", n)
	}
	if err := ix.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	empty, err := ix.IsEmpty(ctx)
	if err != nil || !empty {
		t.Errorf("IsEmpty = %v, %v after clear", empty, err)
	}
	if ix.Pending() != 0 {
		t.Errorf("Clear kept %d pending documents", ix.Pending())
	}
	got, _ := ix.Query(ctx, "retry", 10)
	if len(got) != 0 {
		t.Errorf("cleared documents still match: %v", ids(got))
	}

	// the index stays usable after a clear
	ingestAll(t, ix, corpus[2])
	got, _ = ix.Query(ctx, "flaky", 10)
	if !reflect.DeepEqual(ids(got), []string{"3"}) {
		t.Errorf("after re-ingest = %v", ids(got))
	}
}

func TestIndex_Replace(t *testing.T) {
	ctx := context.Background()
	ix, _ := newMemoryIndex(t)
	ingestAll(t, ix, corpus[0], corpus[1])

	_ = ix.Ingest(corpus[2])
	n, err := ix.Replace(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Replace = %d, %v", n, err)
	}
	if c, _ := ix.Count(ctx); c != 1 {
		t.Errorf("Count = %d, want 1", c)
	}
	got, _ := ix.Query(ctx, "retry flaky", 10)
	if !reflect.DeepEqual(ids(got), []string{"3"}) {
		t.Errorf("ids = %v, want only the replacement", ids(got))
	}

	// nothing pending empties the index
	if n, err := ix.Replace(ctx); err != nil || n != 0 {
		t.Fatalf("empty Replace = %d, %v", n, err)
	}
	if empty, _ := ix.IsEmpty(ctx); !empty {
		t.Error("index not empty after replacing with nothing")
	}
}

func TestIndex_FailedReplaceKeepsPending(t *testing.T) {
	ctx := context.Background()
	mb := &MockBackend{}
	ix, _ := New(ctx, mb)
	_ = ix.Ingest(corpus[0])
	if _, err := ix.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	mb.InsertFunc = func(ctx context.Context, docs []models.IndexDocument) error {
		return errors.New("disk full")
	}
	_ = ix.Ingest(corpus[1])
	_, err := ix.Replace(ctx)
	var ie *IndexError
	if !errors.As(err, &ie) || ie.Op != OpReplace {
		t.Fatalf("Replace error = %v, want IndexError{replace}", err)
	}
	if ix.Pending() != 1 || mb.inserted != 1 {
		t.Errorf("Pending = %d, backend = %d, want 1 and 1", ix.Pending(), mb.inserted)
	}
}

func TestIndex_QueryDuringCommitSeesWholeBatch(t *testing.T) {
	ctx := context.Background()
	ix, _ := newMemoryIndex(t)

	const batch = 200
	for i := 0; i < batch; i++ {
		_ = ix.Ingest(models.IndexDocument{
			ID: strconv.Itoa(i), Title: "batch", Description: "snapshot marker",
			Status: "closed", ChecksStatus: models.ChecksAllPassed,
		})
	}

	done := make(chan struct{})
	var commitErr error
	go func() {
		defer close(done)
		_, commitErr = ix.Commit(ctx)
	}()

	var seen []int
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		got, err := ix.Query(ctx, "marker", batch*2)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		seen = append(seen, len(got))
	}
	if commitErr != nil {
		t.Fatalf("Commit: %v", commitErr)
	}
	for _, n := range seen {
		if n != 0 && n != batch {
			t.Fatalf("query saw %d of %d documents mid-commit", n, batch)
		}
	}
	if got, _ := ix.Query(ctx, "marker", batch*2); len(got) != batch {
		t.Errorf("after commit = %d, want %d", len(got), batch)
	}
}

func TestIndex_DuplicatesNotMerged(t *testing.T) {
	ix, _ := newMemoryIndex(t)
	ingestAll(t, ix, corpus[2], corpus[2])
	got, err := ix.Query(context.Background(), "flaky", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids(got), []string{"3", "3"}) {
		t.Errorf("ids = %v, want both copies", ids(got))
	}
}

func TestIndex_ParseError(t *testing.T) {
	ix, _ := newMemoryIndex(t)
	_, err := ix.Query(context.Background(), `"unterminated`, 10)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
}

func TestIndex_MissingStoredField(t *testing.T) {
	ctx := context.Background()
	ix, b := newMemoryIndex(t)

	if _, err := b.db.ExecContext(ctx,
		`INSERT INTO documents (id, doc_id, title, status, checks_status, files) VALUES (7, '7', NULL, 'closed', 'all_passed', '')`); err != nil {
		t.Fatal(err)
	}
	if _, err := b.db.ExecContext(ctx,
		`INSERT INTO documents_fts (rowid, title, description, files, diff) VALUES (7, '', 'orphan', '', '')`); err != nil {
		t.Fatal(err)
	}

	_, err := ix.Query(ctx, "orphan", 10)
	var le *LookupError
	if !errors.As(err, &le) {
		t.Fatalf("error = %v, want *LookupError", err)
	}
	if le.DocID != "7" || le.Field != FieldTitle {
		t.Errorf("LookupError = %+v", le)
	}
}

// MockBackend implements Backend for testing
type MockBackend struct {
	InsertFunc func(ctx context.Context, docs []models.IndexDocument) error
	inserted   int
	closed     bool
}

func (m *MockBackend) Migrate(ctx context.Context) error { return nil }
func (m *MockBackend) Insert(ctx context.Context, docs []models.IndexDocument) error {
	if m.InsertFunc != nil {
		if err := m.InsertFunc(ctx, docs); err != nil {
			return err
		}
	}
	m.inserted += len(docs)
	return nil
}
func (m *MockBackend) Replace(ctx context.Context, docs []models.IndexDocument) error {
	if m.InsertFunc != nil {
		if err := m.InsertFunc(ctx, docs); err != nil {
			return err
		}
	}
	m.inserted = len(docs)
	return nil
}
func (m *MockBackend) DeleteAll(ctx context.Context) error    { return nil }
func (m *MockBackend) Count(ctx context.Context) (int, error) { return m.inserted, nil }
func (m *MockBackend) Search(ctx context.Context, q *Node, limit int) ([]Hit, error) {
	return nil, nil
}
func (m *MockBackend) Close() error { m.closed = true; return nil }

func TestIndex_FailedCommitKeepsPending(t *testing.T) {
	ctx := context.Background()
	fail := true
	mb := &MockBackend{InsertFunc: func(ctx context.Context, docs []models.IndexDocument) error {
		if fail {
			return errors.New("disk full")
		}
		return nil
	}}
	ix, err := New(ctx, mb)
	if err != nil {
		t.Fatal(err)
	}
	_ = ix.Ingest(corpus[0])
	_ = ix.Ingest(corpus[1])

	_, err = ix.Commit(ctx)
	var ie *IndexError
	if !errors.As(err, &ie) || ie.Op != OpCommit {
		t.Fatalf("Commit error = %v, want IndexError{commit}", err)
	}
	if ix.Pending() != 2 {
		t.Errorf("Pending = %d after failed commit, want 2", ix.Pending())
	}
	if mb.inserted != 0 {
		t.Errorf("backend saw %d documents", mb.inserted)
	}

	fail = false
	n, err := ix.Commit(ctx)
	if err != nil || n != 2 {
		t.Errorf("retry Commit = %d, %v", n, err)
	}
}

func TestIndex_Closed(t *testing.T) {
	ctx := context.Background()
	mb := &MockBackend{}
	ix, _ := New(ctx, mb)
	if err := ix.Close(); err != nil {
		t.Fatal(err)
	}
	if !mb.closed {
		t.Error("backend not closed")
	}
	if err := ix.Ingest(corpus[0]); !errors.Is(err, ErrClosed) {
		t.Errorf("Ingest after close = %v", err)
	}
	if _, err := ix.Commit(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Commit after close = %v", err)
	}
	if _, err := ix.Query(ctx, "retry", 5); !errors.Is(err, ErrClosed) {
		t.Errorf("Query after close = %v", err)
	}
	if err := ix.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "elastic", "", ""); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestOpen_SQLiteFile(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/nested/index.db"
	ix, err := Open(ctx, "sqlite", path, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ingestAll(t, ix, corpus[0])
	_ = ix.Close()

	ix, err = Open(ctx, "sqlite", path, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ix.Close()
	if n, _ := ix.Count(ctx); n != 1 {
		t.Errorf("Count after reopen = %d, want 1", n)
	}
}
