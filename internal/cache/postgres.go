package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmerrifield20/BaseProofs/internal/promise"
)

// PostgresStore keeps records in the proof_records table (see migrations/).
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to databaseURL and pings it.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, ns Namespace) ([]promise.Record, error) {
	if err := validNamespace(ns); err != nil {
		return nil, err
	}

	query := `SELECT record FROM proof_records WHERE namespace = $1 ORDER BY position`
	rows, err := s.db.Query(ctx, query, string(ns))
	if err != nil {
		return nil, fmt.Errorf("query %s cache: %w", ns, err)
	}
	defer rows.Close()

	var records []promise.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var r promise.Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Save implements Store. The namespace is replaced inside one transaction.
func (s *PostgresStore) Save(ctx context.Context, ns Namespace, records []promise.Record) error {
	if err := validNamespace(ns); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM proof_records WHERE namespace = $1`, string(ns)); err != nil {
		return fmt.Errorf("clear %s cache: %w", ns, err)
	}

	batch := &pgx.Batch{}
	for i, r := range records {
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
		batch.Queue(`
			INSERT INTO proof_records (namespace, id, digest, status, created_at, position, record)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			string(ns), r.ID, r.Digest, string(r.Status), r.CreatedAt, i, raw,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert %s cache: %w", ns, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s cache: %w", ns, err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
