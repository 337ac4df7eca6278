// Package tenantstore manages the per-tenant lead stores. Every tenant
// owns an isolated Postgres schema with its own leads and lead_fields
// tables; nothing references across schemas. Stores are opened for the
// duration of one unit of work and must be closed on every exit path.
package tenantstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"leadbridge/platform/logger"
)

// Manager provisions, opens and tears down tenant stores.
type Manager struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewManager creates a store manager on the shared connection pool.
func NewManager(pool *pgxpool.Pool, log *logger.Logger) *Manager {
	return &Manager{pool: pool, log: log}
}

func schemaName(tenantID int64) string {
	return fmt.Sprintf("tenant_%d", tenantID)
}

// Provision creates the tenant's schema and tables. Idempotent.
func (m *Manager) Provision(ctx context.Context, tenantID int64) error {
	schema := schemaName(tenantID)

	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.leads (
			id BIGSERIAL PRIMARY KEY,
			phone TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT,
			remote_id TEXT,
			assigned_by_name TEXT,
			status_semantic_id TEXT,
			deal_id TEXT,
			deal_amount TEXT,
			deal_status TEXT,
			deal_status_name TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, schema),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS leads_remote_id_idx
			ON %s.leads (remote_id) WHERE remote_id IS NOT NULL`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS leads_phone_idx ON %s.leads (phone)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.lead_fields (
			id BIGSERIAL PRIMARY KEY,
			lead_id BIGINT NOT NULL REFERENCES %s.leads (id) ON DELETE CASCADE,
			field_name TEXT NOT NULL,
			field_value TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (lead_id, field_name)
		)`, schema, schema),
	}

	for _, stmt := range statements {
		if _, err := m.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("tenantstore: provision %s: %w", schema, err)
		}
	}

	m.log.Info("tenant store provisioned", "tenant_id", tenantID)
	return nil
}

// Teardown drops the tenant's schema and everything in it.
func (m *Manager) Teardown(ctx context.Context, tenantID int64) error {
	schema := schemaName(tenantID)
	if _, err := m.pool.Exec(ctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, schema)); err != nil {
		return fmt.Errorf("tenantstore: teardown %s: %w", schema, err)
	}
	m.log.Info("tenant store dropped", "tenant_id", tenantID)
	return nil
}

// Open acquires a connection scoped to the tenant's schema. The caller
// must Close the returned store; Close is safe on every path.
func (m *Manager) Open(ctx context.Context, tenantID int64) (*Store, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("tenantstore: acquire connection: %w", err)
	}

	schema := schemaName(tenantID)
	if _, err := conn.Exec(ctx, fmt.Sprintf(`SET search_path TO %s`, schema)); err != nil {
		conn.Release()
		return nil, fmt.Errorf("tenantstore: enter %s: %w", schema, err)
	}

	return &Store{tenantID: tenantID, conn: conn}, nil
}
