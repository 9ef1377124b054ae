package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed bundle store.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Insert(ctx context.Context, b *Bundle) error {
	refs, err := json.Marshal(b.Refs)
	if err != nil {
		return fmt.Errorf("encode refs: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO bundles (id, requested_name, identity_name, description, refs, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.RequestedName, b.IdentityName, b.Description, refs, string(b.Status), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert bundle: %w", err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context) ([]Bundle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, requested_name, identity_name, description, refs, status, created_at, updated_at
		FROM bundles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	defer rows.Close()

	var bundles []Bundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	return bundles, nil
}

func (s *PGStore) GetByID(ctx context.Context, id string) (*Bundle, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, requested_name, identity_name, description, refs, status, created_at, updated_at
		FROM bundles WHERE id = $1`, id)

	b, err := scanBundle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBundleNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bundles SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update bundle status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBundleNotFound
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM bundles WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete bundle: %w", err)
	}
	return nil
}

func scanBundle(row pgx.Row) (*Bundle, error) {
	var (
		b      Bundle
		refs   []byte
		status string
	)
	if err := row.Scan(&b.ID, &b.RequestedName, &b.IdentityName, &b.Description, &refs, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan bundle: %w", err)
	}
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &b.Refs); err != nil {
			return nil, fmt.Errorf("decode refs for bundle %s: %w", b.ID, err)
		}
	}
	b.Status = Status(status)
	return &b, nil
}
