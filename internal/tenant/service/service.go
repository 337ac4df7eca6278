package service

import (
	"context"
	"strings"

	"leadbridge/internal/crm"
	"leadbridge/internal/tenant/repository"
	"leadbridge/platform/apperr"
	"leadbridge/platform/logger"

	"github.com/google/uuid"
)

// EntityTypeLead and EntityTypeDeal are the two tenant conventions: the
// tracked CRM entity is either a lead (deals spawned from it are
// auxiliary) or a deal (the deal stage is the tracked status).
const (
	EntityTypeLead = "lead"
	EntityTypeDeal = "deal"
)

// StoreProvisioner creates and tears down per-tenant lead stores.
type StoreProvisioner interface {
	Provision(ctx context.Context, tenantID int64) error
	Teardown(ctx context.Context, tenantID int64) error
}

// Service implements tenant management: CRUD, domain derivation, store
// provisioning and CRM field discovery for mapping configuration.
type Service struct {
	repo   *repository.Repository
	stores StoreProvisioner
	crm    *crm.Factory
	log    *logger.Logger
}

// New creates a new tenant service.
func New(repo *repository.Repository, stores StoreProvisioner, crmFactory *crm.Factory, log *logger.Logger) *Service {
	return &Service{repo: repo, stores: stores, crm: crmFactory, log: log}
}

// TenantInput carries the mutable tenant fields from the API.
type TenantInput struct {
	Name           string
	WebhookURL     *string
	AppToken       *string
	EntityType     string
	DealCategoryID *int
	DealStageID    *string
	LeadStatusID   *string
}

// Create validates the input, derives the portal domain from the
// webhook URL, generates a public API token and provisions the tenant's
// lead store.
func (s *Service) Create(ctx context.Context, input TenantInput) (repository.Tenant, error) {
	tenant, err := buildTenant(input)
	if err != nil {
		return repository.Tenant{}, err
	}
	apiToken := uuid.NewString()
	tenant.APIToken = &apiToken

	created, err := s.repo.Create(ctx, tenant)
	if err != nil {
		return repository.Tenant{}, err
	}

	if err := s.stores.Provision(ctx, created.ID); err != nil {
		// The tenant row without a store is unusable; undo.
		if delErr := s.repo.Delete(ctx, created.ID); delErr != nil {
			s.log.DatabaseError("tenant rollback", delErr)
		}
		return repository.Tenant{}, apperr.Wrap(apperr.KindInternal, "failed to provision tenant store", err)
	}

	s.log.Info("tenant created", "tenant_id", created.ID, "name", created.Name)
	return created, nil
}

// Get returns one tenant.
func (s *Service) Get(ctx context.Context, id int64) (repository.Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByAPIToken resolves a public API token to its tenant.
func (s *Service) GetByAPIToken(ctx context.Context, token string) (repository.Tenant, error) {
	return s.repo.GetByAPIToken(ctx, token)
}

// List returns all tenants.
func (s *Service) List(ctx context.Context) ([]repository.Tenant, error) {
	return s.repo.List(ctx)
}

// ListByDomain returns all tenants bound to a portal domain.
func (s *Service) ListByDomain(ctx context.Context, domain string) ([]repository.Tenant, error) {
	return s.repo.ListByDomain(ctx, domain)
}

// Update rewrites a tenant's configuration, re-deriving the domain when
// the webhook URL changed. The API token is preserved.
func (s *Service) Update(ctx context.Context, id int64, input TenantInput) (repository.Tenant, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return repository.Tenant{}, err
	}

	tenant, err := buildTenant(input)
	if err != nil {
		return repository.Tenant{}, err
	}
	tenant.ID = id
	tenant.APIToken = existing.APIToken

	return s.repo.Update(ctx, tenant)
}

// Delete removes a tenant and tears down its lead store.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.stores.Teardown(ctx, id); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to tear down tenant store", err)
	}
	return s.repo.Delete(ctx, id)
}

// RotateAPIToken generates a fresh public API token for the tenant.
func (s *Service) RotateAPIToken(ctx context.Context, id int64) (repository.Tenant, error) {
	tenant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return repository.Tenant{}, err
	}
	apiToken := uuid.NewString()
	tenant.APIToken = &apiToken
	return s.repo.Update(ctx, tenant)
}

func buildTenant(input TenantInput) (repository.Tenant, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return repository.Tenant{}, apperr.Validation("tenant name is required")
	}

	entityType := input.EntityType
	if entityType == "" {
		entityType = EntityTypeLead
	}
	if entityType != EntityTypeLead && entityType != EntityTypeDeal {
		return repository.Tenant{}, apperr.Validation("entity_type must be lead or deal")
	}

	tenant := repository.Tenant{
		Name:           name,
		WebhookURL:     input.WebhookURL,
		AppToken:       normalizeOptional(input.AppToken),
		EntityType:     entityType,
		DealCategoryID: input.DealCategoryID,
		DealStageID:    input.DealStageID,
		LeadStatusID:   input.LeadStatusID,
	}

	if input.WebhookURL != nil && strings.TrimSpace(*input.WebhookURL) != "" {
		webhookURL := strings.TrimSpace(*input.WebhookURL)
		if _, _, err := crm.ParseWebhookURL(webhookURL); err != nil {
			return repository.Tenant{}, apperr.Validation("invalid webhook URL")
		}
		domain, err := crm.DomainFromWebhookURL(webhookURL)
		if err != nil {
			return repository.Tenant{}, apperr.Validation("invalid webhook URL")
		}
		tenant.WebhookURL = &webhookURL
		tenant.Domain = &domain
	}

	return tenant, nil
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// MappingInput carries the mutable field mapping attributes.
type MappingInput struct {
	FieldName     string
	DisplayName   string
	CRMFieldID    string
	CRMFieldName  string
	EntityType    string
	UpdateOnEvent bool
}

// CreateMapping adds a field mapping to a tenant.
func (s *Service) CreateMapping(ctx context.Context, tenantID int64, input MappingInput) (repository.FieldMapping, error) {
	if _, err := s.repo.GetByID(ctx, tenantID); err != nil {
		return repository.FieldMapping{}, err
	}
	mapping, err := buildMapping(tenantID, input)
	if err != nil {
		return repository.FieldMapping{}, err
	}
	return s.repo.CreateMapping(ctx, mapping)
}

// ListMappings lists a tenant's mappings, optionally by entity type.
func (s *Service) ListMappings(ctx context.Context, tenantID int64, entityType string) ([]repository.FieldMapping, error) {
	return s.repo.ListMappings(ctx, tenantID, entityType)
}

// UpdateMapping rewrites one mapping.
func (s *Service) UpdateMapping(ctx context.Context, tenantID, mappingID int64, input MappingInput) (repository.FieldMapping, error) {
	mapping, err := buildMapping(tenantID, input)
	if err != nil {
		return repository.FieldMapping{}, err
	}
	mapping.ID = mappingID
	return s.repo.UpdateMapping(ctx, mapping)
}

// DeleteMapping removes one mapping.
func (s *Service) DeleteMapping(ctx context.Context, tenantID, mappingID int64) error {
	return s.repo.DeleteMapping(ctx, tenantID, mappingID)
}

func buildMapping(tenantID int64, input MappingInput) (repository.FieldMapping, error) {
	if strings.TrimSpace(input.FieldName) == "" {
		return repository.FieldMapping{}, apperr.Validation("field_name is required")
	}
	if strings.TrimSpace(input.CRMFieldID) == "" {
		return repository.FieldMapping{}, apperr.Validation("crm_field_id is required")
	}
	if input.EntityType != EntityTypeLead && input.EntityType != EntityTypeDeal {
		return repository.FieldMapping{}, apperr.Validation("entity_type must be lead or deal")
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = input.FieldName
	}
	return repository.FieldMapping{
		TenantID:      tenantID,
		FieldName:     strings.TrimSpace(input.FieldName),
		DisplayName:   displayName,
		CRMFieldID:    strings.TrimSpace(input.CRMFieldID),
		CRMFieldName:  strings.TrimSpace(input.CRMFieldName),
		EntityType:    input.EntityType,
		UpdateOnEvent: input.UpdateOnEvent,
	}, nil
}

// clientFor returns a CRM client for the tenant, or a validation error
// when no webhook URL is configured yet.
func (s *Service) clientFor(tenant repository.Tenant) (*crm.Client, error) {
	if tenant.WebhookURL == nil || *tenant.WebhookURL == "" {
		return nil, apperr.Validation("tenant has no webhook URL configured")
	}
	return s.crm.ClientFor(*tenant.WebhookURL), nil
}

// DiscoverLeadFields lists the tenant portal's lead fields.
func (s *Service) DiscoverLeadFields(ctx context.Context, tenantID int64) ([]crm.Field, error) {
	tenant, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	client, err := s.clientFor(tenant)
	if err != nil {
		return nil, err
	}
	fields, err := client.LeadFields(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to fetch lead fields", err)
	}
	return fields, nil
}

// DiscoverDealFields lists the tenant portal's deal fields.
func (s *Service) DiscoverDealFields(ctx context.Context, tenantID int64) ([]crm.Field, error) {
	tenant, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	client, err := s.clientFor(tenant)
	if err != nil {
		return nil, err
	}
	fields, err := client.DealFields(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to fetch deal fields", err)
	}
	return fields, nil
}

// DiscoverDealCategories lists the tenant portal's deal funnels.
func (s *Service) DiscoverDealCategories(ctx context.Context, tenantID int64) ([]crm.Category, error) {
	tenant, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	client, err := s.clientFor(tenant)
	if err != nil {
		return nil, err
	}
	categories, err := client.DealCategories(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to fetch deal categories", err)
	}
	return categories, nil
}

// DiscoverDealStages lists the stages of one funnel on the tenant's
// portal.
func (s *Service) DiscoverDealStages(ctx context.Context, tenantID int64, categoryID int) ([]crm.Status, error) {
	tenant, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	client, err := s.clientFor(tenant)
	if err != nil {
		return nil, err
	}
	stages, err := client.DealStages(ctx, categoryID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to fetch deal stages", err)
	}
	return stages, nil
}
