package tenantstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Lead is one tracked record in a tenant's store. RemoteID is the
// CRM-side identifier: a lead id, or a deal id for deal-type tenants.
type Lead struct {
	ID               int64
	Phone            string
	Name             string
	Status           *string
	RemoteID         *string
	AssignedByName   *string
	StatusSemanticID *string
	DealID           *string
	DealAmount       *string
	DealStatus       *string
	DealStatusName   *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Field is one key/value extension attribute of a lead.
type Field struct {
	ID         int64
	LeadID     int64
	FieldName  string
	FieldValue *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store is an open handle on one tenant's schema. It wraps a pooled
// connection with the search_path set; Close returns the connection to
// the pool.
type Store struct {
	tenantID int64
	conn     *pgxpool.Conn
	closed   bool
}

// TenantID returns the id of the tenant this store belongs to.
func (s *Store) TenantID() int64 { return s.tenantID }

// Close resets the connection's search_path and releases it. Safe to
// call more than once.
func (s *Store) Close() {
	if s == nil || s.closed {
		return
	}
	s.closed = true
	// Best effort: the connection goes back to the pool and must not
	// keep the tenant schema on its path.
	_, _ = s.conn.Exec(context.Background(), `SET search_path TO public`)
	s.conn.Release()
}

const leadColumns = `id, phone, name, status, remote_id, assigned_by_name,
	status_semantic_id, deal_id, deal_amount, deal_status, deal_status_name,
	created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID, &l.Phone, &l.Name, &l.Status, &l.RemoteID, &l.AssignedByName,
		&l.StatusSemanticID, &l.DealID, &l.DealAmount, &l.DealStatus, &l.DealStatusName,
		&l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}

// FindLeadByRemoteID returns the lead whose remote id equals the given
// value, or nil when the tenant does not track it.
func (s *Store) FindLeadByRemoteID(ctx context.Context, remoteID string) (*Lead, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE remote_id = $1`, remoteID)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenantstore: find lead by remote id: %w", err)
	}
	return &lead, nil
}

// GetLead returns one lead by local id.
func (s *Store) GetLead(ctx context.Context, id int64) (*Lead, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenantstore: get lead: %w", err)
	}
	return &lead, nil
}

// ListLeads returns the tenant's leads, newest first.
func (s *Store) ListLeads(ctx context.Context, limit, offset int) ([]Lead, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.conn.Query(ctx,
		`SELECT `+leadColumns+` FROM leads ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("tenantstore: list leads: %w", err)
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("tenantstore: scan lead: %w", err)
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// CountLeads returns the total number of leads in the store.
func (s *Store) CountLeads(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRow(ctx, `SELECT count(*) FROM leads`).Scan(&count); err != nil {
		return 0, fmt.Errorf("tenantstore: count leads: %w", err)
	}
	return count, nil
}

// CreateLead inserts a lead and its extension fields in one
// transaction.
func (s *Store) CreateLead(ctx context.Context, lead Lead, fields map[string]string) (Lead, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return Lead{}, fmt.Errorf("tenantstore: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO leads (phone, name, status, remote_id, status_semantic_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+leadColumns,
		lead.Phone, lead.Name, lead.Status, lead.RemoteID, lead.StatusSemanticID,
	)
	created, err := scanLead(row)
	if err != nil {
		return Lead{}, fmt.Errorf("tenantstore: insert lead: %w", err)
	}

	for name, value := range fields {
		if err := upsertField(ctx, tx, created.ID, name, value); err != nil {
			return Lead{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Lead{}, fmt.Errorf("tenantstore: commit: %w", err)
	}
	return created, nil
}

// SetRemoteID records the CRM entity id assigned after a successful
// create call.
func (s *Store) SetRemoteID(ctx context.Context, leadID int64, remoteID string) error {
	_, err := s.conn.Exec(ctx,
		`UPDATE leads SET remote_id = $2, updated_at = now() WHERE id = $1`, leadID, remoteID)
	if err != nil {
		return fmt.Errorf("tenantstore: set remote id: %w", err)
	}
	return nil
}

// UpdateLead persists the lead's reconciliation fields together with
// any extension field upserts in a single transaction. This is one
// commit point of the reconciler.
func (s *Store) UpdateLead(ctx context.Context, lead *Lead, fields map[string]string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tenantstore: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE leads
		SET status = $2, status_semantic_id = $3, assigned_by_name = $4,
			deal_id = $5, deal_amount = $6, deal_status = $7, deal_status_name = $8,
			updated_at = now()
		WHERE id = $1`,
		lead.ID, lead.Status, lead.StatusSemanticID, lead.AssignedByName,
		lead.DealID, lead.DealAmount, lead.DealStatus, lead.DealStatusName,
	)
	if err != nil {
		return fmt.Errorf("tenantstore: update lead: %w", err)
	}

	for name, value := range fields {
		if err := upsertField(ctx, tx, lead.ID, name, value); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tenantstore: commit: %w", err)
	}
	return nil
}

func upsertField(ctx context.Context, tx pgx.Tx, leadID int64, name, value string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO lead_fields (lead_id, field_name, field_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (lead_id, field_name)
		DO UPDATE SET field_value = EXCLUDED.field_value, updated_at = now()`,
		leadID, name, value,
	)
	if err != nil {
		return fmt.Errorf("tenantstore: upsert lead field %s: %w", name, err)
	}
	return nil
}

// ListLeadFields returns a lead's extension fields ordered by name.
func (s *Store) ListLeadFields(ctx context.Context, leadID int64) ([]Field, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, lead_id, field_name, field_value, created_at, updated_at
		FROM lead_fields WHERE lead_id = $1 ORDER BY field_name`, leadID)
	if err != nil {
		return nil, fmt.Errorf("tenantstore: list lead fields: %w", err)
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		var f Field
		if err := rows.Scan(&f.ID, &f.LeadID, &f.FieldName, &f.FieldValue, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("tenantstore: scan lead field: %w", err)
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}
