package textindex

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/seanblong/relatedwork/pkg/models"
)

// SQLiteBackend keeps stored fields in a plain table and token streams in a
// contentless FTS5 table sharing its rowid. Hits are ranked with bm25.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens the index database at path, or an in-memory database when
// path is empty.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection: a second one would see a different in-memory
	// database, and sqlite allows a single writer anyway.
	db.SetMaxOpenConns(1)
	if path != "" {
		for _, pragma := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA busy_timeout=5000`} {
			if _, err := db.Exec(pragma); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }

func (b *SQLiteBackend) Migrate(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS documents (
  id            INTEGER PRIMARY KEY,
  doc_id        TEXT,
  title         TEXT,
  status        TEXT,
  checks_status TEXT,
  files         TEXT
);
CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
  title, description, files, diff,
  content='', tokenize='unicode61'
);`
	_, err := b.db.ExecContext(ctx, q)
	return err
}

// Insert writes docs in one transaction.
func (b *SQLiteBackend) Insert(ctx context.Context, docs []models.IndexDocument) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := insertDocs(ctx, tx, docs); err != nil {
		return err
	}
	return tx.Commit()
}

// Replace swaps the whole index for docs in one transaction.
func (b *SQLiteBackend) Replace(ctx context.Context, docs []models.IndexDocument) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := deleteDocs(ctx, tx); err != nil {
		return err
	}
	if err := insertDocs(ctx, tx, docs); err != nil {
		return err
	}
	return tx.Commit()
}

func (b *SQLiteBackend) DeleteAll(ctx context.Context) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := deleteDocs(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func insertDocs(ctx context.Context, tx *sql.Tx, docs []models.IndexDocument) error {
	stored, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (doc_id, title, status, checks_status, files) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stored.Close()
	fts, err := tx.PrepareContext(ctx,
		`INSERT INTO documents_fts (rowid, title, description, files, diff) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer fts.Close()

	for _, d := range docs {
		files := joinFiles(d.Files)
		res, err := stored.ExecContext(ctx, d.ID, d.Title, d.Status, d.ChecksStatus, files)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := fts.ExecContext(ctx, id,
			analyzed(d.Title), analyzed(d.Description), analyzed(files), analyzed(d.Diff)); err != nil {
			return err
		}
	}
	return nil
}

func deleteDocs(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO documents_fts(documents_fts) VALUES('delete-all')`)
	return err
}

func (b *SQLiteBackend) Count(ctx context.Context) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// Search ranks matches by bm25, negated so higher is better.
func (b *SQLiteBackend) Search(ctx context.Context, q *Node, limit int) ([]Hit, error) {
	const query = `
SELECT d.doc_id, d.title, d.status, d.checks_status, d.files, -bm25(documents_fts) AS score
FROM documents_fts
JOIN documents d ON d.id = documents_fts.rowid
WHERE documents_fts MATCH ?
ORDER BY score DESC, d.id
LIMIT ?`
	rows, err := b.db.QueryContext(ctx, query, fts5Match(q), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var (
			h                     Hit
			id, title, st, cs, fl sql.NullString
		)
		if err := rows.Scan(&id, &title, &st, &cs, &fl, &h.Score); err != nil {
			return nil, err
		}
		h.DocID, h.Title, h.Status, h.ChecksStatus, h.Files =
			nullable(id), nullable(title), nullable(st), nullable(cs), nullable(fl)
		out = append(out, h)
	}
	return out, rows.Err()
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
