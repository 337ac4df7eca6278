package repository

import (
	"context"
	"errors"
	"time"

	"leadbridge/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tenantNotFoundMsg = "tenant not found"
const mappingNotFoundMsg = "field mapping not found"

// Repository provides database operations for tenants and their field
// mappings. Both live in the main database; lead records live in
// per-tenant stores.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new tenant repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Tenant is one partner's CRM integration configuration.
type Tenant struct {
	ID             int64
	Name           string
	WebhookURL     *string
	Domain         *string
	AppToken       *string
	APIToken       *string
	EntityType     string
	DealCategoryID *int
	DealStageID    *string
	LeadStatusID   *string
	CreatedAt      time.Time
}

// FieldMapping links a local field name to a CRM field id for one
// tenant and entity type.
type FieldMapping struct {
	ID            int64
	TenantID      int64
	FieldName     string
	DisplayName   string
	CRMFieldID    string
	CRMFieldName  string
	EntityType    string
	UpdateOnEvent bool
	CreatedAt     time.Time
}

const tenantColumns = `id, name, webhook_url, domain, app_token, api_token,
	entity_type, deal_category_id, deal_stage_id, lead_status_id, created_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(
		&t.ID, &t.Name, &t.WebhookURL, &t.Domain, &t.AppToken, &t.APIToken,
		&t.EntityType, &t.DealCategoryID, &t.DealStageID, &t.LeadStatusID, &t.CreatedAt,
	)
	return t, err
}

// Create inserts a tenant and returns it with the generated id.
func (r *Repository) Create(ctx context.Context, t Tenant) (Tenant, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tenants (name, webhook_url, domain, app_token, api_token,
			entity_type, deal_category_id, deal_stage_id, lead_status_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+tenantColumns,
		t.Name, t.WebhookURL, t.Domain, t.AppToken, t.APIToken,
		t.EntityType, t.DealCategoryID, t.DealStageID, t.LeadStatusID,
	)
	created, err := scanTenant(row)
	if err != nil {
		return Tenant{}, apperr.Wrap(apperr.KindInternal, "failed to create tenant", err)
	}
	return created, nil
}

// GetByID fetches one tenant.
func (r *Repository) GetByID(ctx context.Context, id int64) (Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, apperr.NotFound(tenantNotFoundMsg)
	}
	if err != nil {
		return Tenant{}, apperr.Wrap(apperr.KindInternal, "failed to get tenant", err)
	}
	return t, nil
}

// GetByAPIToken fetches the tenant owning a public API token.
func (r *Repository) GetByAPIToken(ctx context.Context, token string) (Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE api_token = $1`, token)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, apperr.NotFound(tenantNotFoundMsg)
	}
	if err != nil {
		return Tenant{}, apperr.Wrap(apperr.KindInternal, "failed to get tenant by token", err)
	}
	return t, nil
}

// List returns all tenants ordered by id.
func (r *Repository) List(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list tenants", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan tenant", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// ListByDomain returns all tenants bound to a CRM portal domain,
// ordered by id so the first match is deterministic. Several tenants
// can share one domain.
func (r *Repository) ListByDomain(ctx context.Context, domain string) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE domain = $1 ORDER BY id`, domain)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list tenants by domain", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan tenant", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// Update rewrites all mutable tenant fields.
func (r *Repository) Update(ctx context.Context, t Tenant) (Tenant, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE tenants
		SET name = $2, webhook_url = $3, domain = $4, app_token = $5, api_token = $6,
			entity_type = $7, deal_category_id = $8, deal_stage_id = $9, lead_status_id = $10
		WHERE id = $1
		RETURNING `+tenantColumns,
		t.ID, t.Name, t.WebhookURL, t.Domain, t.AppToken, t.APIToken,
		t.EntityType, t.DealCategoryID, t.DealStageID, t.LeadStatusID,
	)
	updated, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, apperr.NotFound(tenantNotFoundMsg)
	}
	if err != nil {
		return Tenant{}, apperr.Wrap(apperr.KindInternal, "failed to update tenant", err)
	}
	return updated, nil
}

// Delete removes a tenant and its field mappings.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to delete tenant", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(tenantNotFoundMsg)
	}
	return nil
}

const mappingColumns = `id, tenant_id, field_name, display_name, crm_field_id,
	crm_field_name, entity_type, update_on_event, created_at`

func scanMapping(row pgx.Row) (FieldMapping, error) {
	var m FieldMapping
	err := row.Scan(
		&m.ID, &m.TenantID, &m.FieldName, &m.DisplayName, &m.CRMFieldID,
		&m.CRMFieldName, &m.EntityType, &m.UpdateOnEvent, &m.CreatedAt,
	)
	return m, err
}

// CreateMapping inserts a field mapping for a tenant.
func (r *Repository) CreateMapping(ctx context.Context, m FieldMapping) (FieldMapping, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tenant_field_mappings
			(tenant_id, field_name, display_name, crm_field_id, crm_field_name, entity_type, update_on_event)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+mappingColumns,
		m.TenantID, m.FieldName, m.DisplayName, m.CRMFieldID, m.CRMFieldName, m.EntityType, m.UpdateOnEvent,
	)
	created, err := scanMapping(row)
	if err != nil {
		return FieldMapping{}, apperr.Wrap(apperr.KindInternal, "failed to create field mapping", err)
	}
	return created, nil
}

// ListMappings returns a tenant's mappings, optionally filtered by
// entity type ("lead" or "deal"); empty entityType returns all.
func (r *Repository) ListMappings(ctx context.Context, tenantID int64, entityType string) ([]FieldMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM tenant_field_mappings WHERE tenant_id = $1`
	args := []any{tenantID}
	if entityType != "" {
		query += ` AND entity_type = $2`
		args = append(args, entityType)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list field mappings", err)
	}
	defer rows.Close()

	var mappings []FieldMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan field mapping", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// UpdateMapping rewrites one mapping.
func (r *Repository) UpdateMapping(ctx context.Context, m FieldMapping) (FieldMapping, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE tenant_field_mappings
		SET field_name = $3, display_name = $4, crm_field_id = $5,
			crm_field_name = $6, entity_type = $7, update_on_event = $8
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+mappingColumns,
		m.ID, m.TenantID, m.FieldName, m.DisplayName, m.CRMFieldID,
		m.CRMFieldName, m.EntityType, m.UpdateOnEvent,
	)
	updated, err := scanMapping(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return FieldMapping{}, apperr.NotFound(mappingNotFoundMsg)
	}
	if err != nil {
		return FieldMapping{}, apperr.Wrap(apperr.KindInternal, "failed to update field mapping", err)
	}
	return updated, nil
}

// DeleteMapping removes one mapping.
func (r *Repository) DeleteMapping(ctx context.Context, tenantID, mappingID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM tenant_field_mappings WHERE id = $1 AND tenant_id = $2`, mappingID, tenantID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to delete field mapping", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(mappingNotFoundMsg)
	}
	return nil
}
