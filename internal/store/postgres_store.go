package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/EternisAI/silo-sidecar/internal/environment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists environments as JSONB rows in
// workspace_environments. The table is created by the db migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const (
	getEnvironmentQuery = `SELECT workspace_id, env_name, owner_id, environment, updated_at
FROM workspace_environments WHERE workspace_id = $1`

	saveEnvironmentQuery = `INSERT INTO workspace_environments (workspace_id, env_name, owner_id, environment, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (workspace_id) DO UPDATE
SET env_name = EXCLUDED.env_name,
    owner_id = EXCLUDED.owner_id,
    environment = EXCLUDED.environment,
    updated_at = now()
RETURNING updated_at`

	deleteEnvironmentQuery = `DELETE FROM workspace_environments WHERE workspace_id = $1`

	listEnvironmentsQuery = `SELECT workspace_id FROM workspace_environments ORDER BY workspace_id`
)

func (s *PostgresStore) Get(ctx context.Context, workspaceID string) (*Record, error) {
	var (
		r   Record
		raw []byte
	)
	err := s.pool.QueryRow(ctx, getEnvironmentQuery, workspaceID).Scan(
		&r.Identity.WorkspaceID,
		&r.Identity.EnvName,
		&r.Identity.OwnerID,
		&raw,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query environment: %w", err)
	}

	env, err := environment.Decode(raw)
	if err != nil {
		return nil, err
	}
	r.Environment = env
	return &r, nil
}

func (s *PostgresStore) Save(ctx context.Context, record *Record) error {
	if record == nil || record.Identity.WorkspaceID == "" {
		return fmt.Errorf("record must have a workspace ID")
	}

	env := record.Environment
	if env == nil {
		env = environment.New()
	}
	raw, err := env.Encode()
	if err != nil {
		return err
	}

	err = s.pool.QueryRow(ctx, saveEnvironmentQuery,
		record.Identity.WorkspaceID,
		record.Identity.EnvName,
		record.Identity.OwnerID,
		raw,
	).Scan(&record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save environment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, workspaceID string) error {
	tag, err := s.pool.Exec(ctx, deleteEnvironmentQuery, workspaceID)
	if err != nil {
		return fmt.Errorf("delete environment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, listEnvironmentsQuery)
	if err != nil {
		return nil, fmt.Errorf("list environments: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list environments: %w", err)
	}
	return ids, nil
}
