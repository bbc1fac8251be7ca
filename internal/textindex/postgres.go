package textindex

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seanblong/relatedwork/pkg/models"
)

// maxVectorText caps the analyzed diff text fed to to_tsvector, which
// rejects vectors over 1MB.
const maxVectorText = 512 << 10

// PostgresBackend stores documents in a table with a weighted tsvector and
// ranks hits with ts_rank_cd.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database at url.
func OpenPostgres(ctx context.Context, url string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresBackend{pool: p}, nil
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}

// Ping checks database connectivity.
func (b *PostgresBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return b.pool.Ping(ctx)
}

// Migrate creates the document table. Token streams are produced by Analyze
// and indexed with the 'simple' configuration so queries see the same
// vocabulary as the sqlite backend.
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS pr_documents (
  id            BIGSERIAL PRIMARY KEY,
  doc_id        TEXT,
  title         TEXT,
  status        TEXT,
  checks_status TEXT,
  files         TEXT,
  search_tsv    tsvector NOT NULL,
  indexed_at    TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS pr_documents_doc_id_idx
  ON pr_documents (doc_id);
CREATE INDEX IF NOT EXISTS pr_documents_tsv_gin
  ON pr_documents USING GIN (search_tsv);
`
	_, err := b.pool.Exec(ctx, q)
	return err
}

const insertDocument = `
INSERT INTO pr_documents (doc_id, title, status, checks_status, files, search_tsv)
VALUES ($1, $2, $3, $4, $5,
  setweight(to_tsvector('simple', $6), 'A') ||
  setweight(to_tsvector('simple', $7), 'B') ||
  setweight(to_tsvector('simple', $8), 'C') ||
  setweight(to_tsvector('simple', $9), 'D'))`

// Insert writes docs in one transaction.
func (b *PostgresBackend) Insert(ctx context.Context, docs []models.IndexDocument) error {
	return b.write(ctx, false, docs)
}

// Replace swaps the whole index for docs in one transaction.
func (b *PostgresBackend) Replace(ctx context.Context, docs []models.IndexDocument) error {
	return b.write(ctx, true, docs)
}

func (b *PostgresBackend) write(ctx context.Context, truncate bool, docs []models.IndexDocument) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	if truncate {
		batch.Queue(`DELETE FROM pr_documents`)
	}
	for _, d := range docs {
		files := joinFiles(d.Files)
		batch.Queue(insertDocument,
			d.ID, d.Title, d.Status, d.ChecksStatus, files,
			analyzed(d.Title), analyzed(d.Description), analyzed(files), capText(analyzed(d.Diff)),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func capText(s string) string {
	if len(s) <= maxVectorText {
		return s
	}
	s = s[:maxVectorText]
	// drop a token cut in half
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ' ' {
			return s[:i]
		}
	}
	return s
}

func (b *PostgresBackend) DeleteAll(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `TRUNCATE pr_documents`)
	return err
}

func (b *PostgresBackend) Count(ctx context.Context) (int, error) {
	var n int
	err := b.pool.QueryRow(ctx, `SELECT count(*) FROM pr_documents`).Scan(&n)
	return n, err
}

// Search evaluates q as a weight-restricted tsquery.
func (b *PostgresBackend) Search(ctx context.Context, q *Node, limit int) ([]Hit, error) {
	const sql = `
SELECT doc_id, title, status, checks_status, files, ts_rank_cd(search_tsv, q) AS score
FROM pr_documents, to_tsquery('simple', $1) q
WHERE search_tsv @@ q
ORDER BY score DESC, id
LIMIT $2`
	rows, err := b.pool.Query(ctx, sql, tsQuery(q), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.DocID, &h.Title, &h.Status, &h.ChecksStatus, &h.Files, &h.Score); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
