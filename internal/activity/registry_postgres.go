package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oriys/actorforge/internal/domain"
)

// PostgresRegistry is the production Activity Registry.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry opens a pool against dsn and ensures the
// activity_definitions table exists.
func NewPostgresRegistry(ctx context.Context, dsn string) (*PostgresRegistry, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	r := &PostgresRegistry{pool: pool}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS activity_definitions (
			name TEXT NOT NULL,
			version TEXT NOT NULL,
			blob_path TEXT NOT NULL,
			limits JSONB NOT NULL,
			capabilities JSONB,
			PRIMARY KEY (name, version)
		)
	`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure activity_definitions schema: %w", err)
	}
	return r, nil
}

func (r *PostgresRegistry) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func (r *PostgresRegistry) Save(ctx context.Context, def domain.ActivityDefinition) error {
	limits, err := json.Marshal(def.Limits)
	if err != nil {
		return fmt.Errorf("marshal activity limits: %w", err)
	}
	caps, err := json.Marshal(def.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal activity capabilities: %w", err)
	}

	if _, err := r.pool.Exec(ctx, `
		INSERT INTO activity_definitions (name, version, blob_path, limits, capabilities)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb)
		ON CONFLICT (name, version) DO UPDATE SET
			blob_path = EXCLUDED.blob_path, limits = EXCLUDED.limits, capabilities = EXCLUDED.capabilities
	`, def.Name, def.Version, def.BlobPath, limits, caps); err != nil {
		return fmt.Errorf("save activity definition: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Resolve(ctx context.Context, name, version string) (*domain.ActivityDefinition, error) {
	def := &domain.ActivityDefinition{Name: name}
	var limits, caps []byte
	var err error

	if version != "" {
		err = r.pool.QueryRow(ctx, `
			SELECT version, blob_path, limits, capabilities
			FROM activity_definitions WHERE name = $1 AND version = $2
		`, name, version).Scan(&def.Version, &def.BlobPath, &limits, &caps)
	} else {
		err = r.pool.QueryRow(ctx, `
			SELECT version, blob_path, limits, capabilities
			FROM activity_definitions WHERE name = $1
			ORDER BY string_to_array(version, '.')::int[] DESC
			LIMIT 1
		`, name).Scan(&def.Version, &def.BlobPath, &limits, &caps)
	}
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("resolve activity %s: %w", name, domain.ErrActivityNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve activity: %w", err)
	}

	if len(limits) > 0 {
		if err := json.Unmarshal(limits, &def.Limits); err != nil {
			return nil, fmt.Errorf("unmarshal activity limits: %w", err)
		}
	}
	if len(caps) > 0 {
		if err := json.Unmarshal(caps, &def.Capabilities); err != nil {
			return nil, fmt.Errorf("unmarshal activity capabilities: %w", err)
		}
	}
	return def, nil
}

func (r *PostgresRegistry) List(ctx context.Context, name string) ([]domain.ActivityDefinition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT version, blob_path, limits, capabilities
		FROM activity_definitions WHERE name = $1
		ORDER BY string_to_array(version, '.')::int[] DESC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("list activity definitions: %w", err)
	}
	defer rows.Close()

	var out []domain.ActivityDefinition
	for rows.Next() {
		def := domain.ActivityDefinition{Name: name}
		var limits, caps []byte
		if err := rows.Scan(&def.Version, &def.BlobPath, &limits, &caps); err != nil {
			return nil, fmt.Errorf("scan activity definition: %w", err)
		}
		if len(limits) > 0 {
			_ = json.Unmarshal(limits, &def.Limits)
		}
		if len(caps) > 0 {
			_ = json.Unmarshal(caps, &def.Capabilities)
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (r *PostgresRegistry) Delete(ctx context.Context, name, version string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM activity_definitions WHERE name = $1 AND version = $2`, name, version); err != nil {
		return fmt.Errorf("delete activity definition: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Exists(ctx context.Context, name, version string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM activity_definitions WHERE name = $1 AND version = $2)
	`, name, version).Scan(&exists); err != nil {
		return false, fmt.Errorf("check activity existence: %w", err)
	}
	return exists, nil
}
