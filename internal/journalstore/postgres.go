package journalstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oriys/actorforge/internal/domain"
)

// PostgresStore is the production Journal Store Adapter: one row per
// journal entry plus a single-row-per-actor snapshot table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool against dsn and ensures the journal
// tables exist.
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
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS actor_journal_entries (
			actor_type TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			cursor BIGINT NOT NULL,
			entry_type TEXT NOT NULL,
			data JSONB NOT NULL,
			ts BIGINT NOT NULL,
			PRIMARY KEY (actor_type, actor_id, cursor)
		)`,
		`CREATE TABLE IF NOT EXISTS actor_snapshots (
			actor_type TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			state JSONB NOT NULL,
			cursor BIGINT NOT NULL,
			ts BIGINT NOT NULL,
			PRIMARY KEY (actor_type, actor_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure journal schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, actorType, actorID string, entry domain.JournalEntry) error {
	data, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO actor_journal_entries (actor_type, actor_id, cursor, entry_type, data, ts)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		ON CONFLICT (actor_type, actor_id, cursor) DO NOTHING
	`, actorType, actorID, entry.Cursor, string(entry.Type), data, entry.Timestamp); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Read(ctx context.Context, actorType, actorID string, sinceCursor int64) (domain.Journal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT cursor, entry_type, data, ts
		FROM actor_journal_entries
		WHERE actor_type = $1 AND actor_id = $2 AND cursor > $3
		ORDER BY cursor
	`, actorType, actorID, sinceCursor)
	if err != nil {
		return domain.Journal{}, fmt.Errorf("read journal: %w", err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		var entryType string
		var data []byte
		if err := rows.Scan(&e.Cursor, &entryType, &data, &e.Timestamp); err != nil {
			return domain.Journal{}, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Type = domain.JournalEntryType(entryType)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return domain.Journal{}, fmt.Errorf("unmarshal journal entry: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return domain.Journal{}, fmt.Errorf("read journal rows: %w", err)
	}
	return domain.Journal{Entries: entries}, nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, actorType, actorID string, snapshot domain.Snapshot) error {
	state, err := json.Marshal(snapshot.State)
	if err != nil {
		return fmt.Errorf("marshal snapshot state: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO actor_snapshots (actor_type, actor_id, state, cursor, ts)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		ON CONFLICT (actor_type, actor_id) DO UPDATE SET
			state = EXCLUDED.state, cursor = EXCLUDED.cursor, ts = EXCLUDED.ts
	`, actorType, actorID, state, snapshot.Cursor, snapshot.Timestamp); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context, actorType, actorID string) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{ActorID: actorID}
	var state []byte
	err := s.pool.QueryRow(ctx, `
		SELECT state, cursor, ts FROM actor_snapshots WHERE actor_type = $1 AND actor_id = $2
	`, actorType, actorID).Scan(&state, &snap.Cursor, &snap.Timestamp)
	if err != nil {
		return nil, nil
	}
	if err := json.Unmarshal(state, &snap.State); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot state: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) Trim(ctx context.Context, actorType, actorID string, beforeCursor int64) error {
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM actor_journal_entries WHERE actor_type = $1 AND actor_id = $2 AND cursor <= $3
	`, actorType, actorID, beforeCursor); err != nil {
		return fmt.Errorf("trim journal: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, actorType, actorID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM actor_journal_entries WHERE actor_type = $1 AND actor_id = $2`, actorType, actorID); err != nil {
		return fmt.Errorf("delete journal entries: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM actor_snapshots WHERE actor_type = $1 AND actor_id = $2`, actorType, actorID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
