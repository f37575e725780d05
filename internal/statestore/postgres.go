package statestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oriys/actorforge/internal/domain"
)

// PostgresStore is the production State Store Adapter backed by a
// single table keyed by (actor_type, actor_id). Optimistic
// concurrency is a conditional UPDATE that only succeeds if the row's
// version still matches.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool against dsn and ensures the actor_states
// table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &PostgresStore{pool: pool}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS actor_states (
			actor_type TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			status TEXT NOT NULL,
			state JSONB NOT NULL,
			correlation_id TEXT,
			metadata JSONB,
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_activated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (actor_type, actor_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure actor_states schema: %w", err)
	}
	return nil
}

// Save writes record, enforcing optimistic concurrency when
// record.Version is non-zero; a zero Version inserts or overwrites
// the row unconditionally.
func (s *PostgresStore) Save(ctx context.Context, record *domain.ActorRecord) error {
	state, err := json.Marshal(record.State)
	if err != nil {
		return fmt.Errorf("marshal actor state: %w", err)
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("marshal actor metadata: %w", err)
	}

	if record.Version > 0 {
		tag, err := s.pool.Exec(ctx, `
			UPDATE actor_states
			SET status = $3, state = $4::jsonb, correlation_id = $5, metadata = $6::jsonb,
			    version = version + 1, last_activated_at = NOW()
			WHERE actor_type = $1 AND actor_id = $2 AND version = $7
		`, record.ActorType, record.ID, string(record.Status), state, record.CorrelationID, metadata, record.Version)
		if err != nil {
			return fmt.Errorf("save actor state (conditional): %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrVersionConflict
		}
		return nil
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO actor_states (actor_type, actor_id, status, state, correlation_id, metadata, version, created_at, last_activated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6::jsonb, 1, NOW(), NOW())
		ON CONFLICT (actor_type, actor_id) DO UPDATE SET
			status = EXCLUDED.status,
			state = EXCLUDED.state,
			correlation_id = EXCLUDED.correlation_id,
			metadata = EXCLUDED.metadata,
			version = actor_states.version + 1,
			last_activated_at = NOW()
	`, record.ActorType, record.ID, string(record.Status), state, record.CorrelationID, metadata)
	if err != nil {
		return fmt.Errorf("save actor state: %w", err)
	}
	return nil
}

// Load returns the record for (actorType, actorID), or
// domain.ErrNotFound.
func (s *PostgresStore) Load(ctx context.Context, actorType, actorID string) (*domain.ActorRecord, error) {
	record := &domain.ActorRecord{ActorType: actorType, ID: actorID}
	var status string
	var state, metadata []byte
	var createdAt, lastActivatedAt int64

	err := s.pool.QueryRow(ctx, `
		SELECT status, state, correlation_id, metadata, version,
		       EXTRACT(EPOCH FROM created_at)*1000, EXTRACT(EPOCH FROM last_activated_at)*1000
		FROM actor_states
		WHERE actor_type = $1 AND actor_id = $2
	`, actorType, actorID).Scan(&status, &state, &record.CorrelationID, &metadata, &record.Version, &createdAt, &lastActivatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("load actor state %s/%s: %w", actorType, actorID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load actor state: %w", err)
	}

	record.Status = domain.ActorStatus(status)
	record.CreatedAt = createdAt
	record.LastActivatedAt = lastActivatedAt
	record.PartitionKey = actorID

	if len(state) > 0 {
		if err := json.Unmarshal(state, &record.State); err != nil {
			return nil, fmt.Errorf("unmarshal actor state: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal actor metadata: %w", err)
		}
	}
	return record, nil
}

// Delete removes the record for (actorType, actorID).
func (s *PostgresStore) Delete(ctx context.Context, actorType, actorID string) error {
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM actor_states WHERE actor_type = $1 AND actor_id = $2
	`, actorType, actorID); err != nil {
		return fmt.Errorf("delete actor state: %w", err)
	}
	return nil
}

// QueryByType lists records for actorType ordered by actor_id, paginated
// by limit/offset.
func (s *PostgresStore) QueryByType(ctx context.Context, actorType string, limit, offset int) ([]*domain.ActorRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := s.pool.Query(ctx, `
		SELECT actor_id, status, state, correlation_id, metadata, version,
		       EXTRACT(EPOCH FROM created_at)*1000, EXTRACT(EPOCH FROM last_activated_at)*1000
		FROM actor_states
		WHERE actor_type = $1
		ORDER BY actor_id
		LIMIT $2 OFFSET $3
	`, actorType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query actor states: %w", err)
	}
	defer rows.Close()

	var out []*domain.ActorRecord
	for rows.Next() {
		record := &domain.ActorRecord{ActorType: actorType}
		var status string
		var state, metadata []byte
		var createdAt, lastActivatedAt int64
		if err := rows.Scan(&record.ID, &status, &state, &record.CorrelationID, &metadata, &record.Version, &createdAt, &lastActivatedAt); err != nil {
			return nil, fmt.Errorf("scan actor state row: %w", err)
		}
		record.Status = domain.ActorStatus(status)
		record.CreatedAt = createdAt
		record.LastActivatedAt = lastActivatedAt
		record.PartitionKey = record.ID
		if len(state) > 0 {
			if err := json.Unmarshal(state, &record.State); err != nil {
				return nil, fmt.Errorf("unmarshal actor state: %w", err)
			}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal actor metadata: %w", err)
			}
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query actor states rows: %w", err)
	}
	return out, nil
}
