package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"poem-annotator/internal/parser"
	"poem-annotator/internal/poem"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Advisory lock so the gateway and worker don't migrate concurrently.
	const lockID = 580214377

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !acquired {
		// Another service is running migrations; wait briefly and skip
		time.Sleep(2 * time.Second)
		return nil
	}

	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS batches (
			id UUID PRIMARY KEY,
			status TEXT NOT NULL,
			total INT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT now(),
			updated_at TIMESTAMPTZ DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS annotations (
			batch_id UUID REFERENCES batches(id) ON DELETE SET NULL,
			ord INT NOT NULL,
			poem_id JSONB,
			title TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			translation TEXT NOT NULL DEFAULT '',
			background TEXT NOT NULL DEFAULT '',
			appreciation TEXT NOT NULL DEFAULT '',
			missing TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ DEFAULT now(),
			UNIQUE (title, author)
		);`,
		`CREATE INDEX IF NOT EXISTS annotations_batch_idx ON annotations (batch_id, ord);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) CreateBatch(ctx context.Context, total int) (Batch, error) {
	now := time.Now().UTC()
	b := Batch{ID: uuid.New(), Status: StatusQueued, Total: total, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx, `INSERT INTO batches(id, status, total, created_at, updated_at) VALUES($1,$2,$3,$4,$5)`,
		b.ID, b.Status, b.Total, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return Batch{}, err
	}
	return b, nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id uuid.UUID) (Batch, error) {
	var b Batch
	row := s.db.QueryRowContext(ctx, `SELECT id, status, total, created_at, updated_at FROM batches WHERE id=$1`, id)
	if err := row.Scan(&b.ID, &b.Status, &b.Total, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Batch{}, ErrNotFound
		}
		return Batch{}, fmt.Errorf("failed to get batch %s: %w", id, err)
	}
	return b, nil
}

func (s *PostgresStore) UpdateBatchStatus(ctx context.Context, id uuid.UUID, status BatchStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE batches SET status=$1, updated_at=now() WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveResults(ctx context.Context, batchID uuid.UUID, results []poem.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i, r := range results {
		id, err := json.Marshal(r.ID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO annotations(batch_id, ord, poem_id, title, author, translation, background, appreciation, missing)
			VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (title, author) DO UPDATE SET
				batch_id=excluded.batch_id, ord=excluded.ord, poem_id=excluded.poem_id,
				translation=excluded.translation, background=excluded.background,
				appreciation=excluded.appreciation, missing=excluded.missing, created_at=now()`,
			batchID, i, string(id), r.Title, r.Author,
			r.Annotation.Translation, r.Annotation.Background, r.Annotation.Appreciation,
			pq.Array(missingSections(r.Annotation)))
		if err != nil {
			return fmt.Errorf("failed to save %q: %w", r.Title, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListResults(ctx context.Context, batchID uuid.UUID) ([]poem.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT poem_id, title, author, translation, background, appreciation
		FROM annotations WHERE batch_id=$1 ORDER BY ord`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []poem.Result{}
	for rows.Next() {
		var (
			r  poem.Result
			id []byte
		)
		if err := rows.Scan(&id, &r.Title, &r.Author, &r.Annotation.Translation, &r.Annotation.Background, &r.Annotation.Appreciation); err != nil {
			return nil, err
		}
		if r.ID, err = decodeID(id); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetAnnotation(ctx context.Context, title, author string) (Annotation, error) {
	var (
		a       Annotation
		batchID uuid.NullUUID
		id      []byte
		missing []string
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT batch_id, ord, poem_id, title, author, translation, background, appreciation, missing, created_at
		FROM annotations WHERE title=$1 AND author=$2`, title, author)
	err := row.Scan(&batchID, &a.Index, &id, &a.Title, &a.Author,
		&a.Annotation.Translation, &a.Annotation.Background, &a.Annotation.Appreciation,
		pq.Array(&missing), &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Annotation{}, ErrNotFound
		}
		return Annotation{}, fmt.Errorf("failed to get annotation for %q: %w", title, err)
	}
	if a.ID, err = decodeID(id); err != nil {
		return Annotation{}, err
	}
	a.BatchID = batchID.UUID
	a.Missing = missing
	return a, nil
}

func missingSections(a poem.Annotation) []string {
	empty := parser.Empty(a)
	out := make([]string, len(empty))
	for i, s := range empty {
		out[i] = string(s)
	}
	return out
}

func decodeID(raw []byte) (poem.ID, error) {
	var id poem.ID
	if len(raw) == 0 {
		return id, nil
	}
	if err := json.Unmarshal(raw, &id); err != nil {
		return poem.ID{}, fmt.Errorf("invalid stored poem id %s: %w", raw, err)
	}
	return id, nil
}
