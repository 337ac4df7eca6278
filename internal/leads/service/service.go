// Package service implements lead intake: single creates through the
// admin and public APIs, bulk CSV imports and CSV exports. Every
// created lead is mirrored into the tenant's CRM portal on a
// best-effort basis; the local record is the source of truth.
package service

import (
	"context"
	"io"

	"leadbridge/internal/crm"
	domainevents "leadbridge/internal/events"
	"leadbridge/internal/tenant/repository"
	"leadbridge/internal/tenantstore"
	"leadbridge/platform/apperr"
	"leadbridge/platform/events"
	"leadbridge/platform/logger"
)

// statusNew is the local status every freshly created lead starts in.
const statusNew = "NEW"

// Source labels for the lead.created event.
const (
	SourceAPI    = "api"
	SourcePublic = "public"
	SourceCSV    = "csv"
)

// LeadStore is the slice of the tenant store used by lead intake.
type LeadStore interface {
	TenantID() int64
	CreateLead(ctx context.Context, lead tenantstore.Lead, fields map[string]string) (tenantstore.Lead, error)
	SetRemoteID(ctx context.Context, leadID int64, remoteID string) error
	GetLead(ctx context.Context, id int64) (*tenantstore.Lead, error)
	ListLeads(ctx context.Context, limit, offset int) ([]tenantstore.Lead, error)
	CountLeads(ctx context.Context) (int, error)
	ListLeadFields(ctx context.Context, leadID int64) ([]tenantstore.Field, error)
	Close()
}

// StoreOpener opens a tenant's lead store.
type StoreOpener interface {
	Open(ctx context.Context, tenantID int64) (LeadStore, error)
}

// CRMClient is the portal-side surface used when mirroring leads.
type CRMClient interface {
	CreateLead(ctx context.Context, name, phone, statusID string, extra map[string]string) (string, error)
	CreateDeal(ctx context.Context, name, phone string, categoryID int, stageID string, extra map[string]string) (string, error)
	LeadStatuses(ctx context.Context) ([]crm.Status, error)
	DealStages(ctx context.Context, categoryID int) ([]crm.Status, error)
}

// ClientFactory builds a portal-scoped CRM client.
type ClientFactory interface {
	ClientFor(webhookURL string) CRMClient
}

// TenantProvider resolves tenants and their field mappings.
type TenantProvider interface {
	Get(ctx context.Context, id int64) (repository.Tenant, error)
	GetByAPIToken(ctx context.Context, token string) (repository.Tenant, error)
	ListMappings(ctx context.Context, tenantID int64, entityType string) ([]repository.FieldMapping, error)
}

// Service coordinates lead creation across the local store and the CRM.
type Service struct {
	tenants TenantProvider
	stores  StoreOpener
	crm     ClientFactory
	bus     events.Bus
	log     *logger.Logger
}

// New creates the lead intake service.
func New(tenants TenantProvider, stores StoreOpener, crm ClientFactory, bus events.Bus, log *logger.Logger) *Service {
	return &Service{tenants: tenants, stores: stores, crm: crm, bus: bus, log: log}
}

// CreateInput is one lead to create. Extra carries attributes beyond
// name and phone; only attributes with a field mapping reach the CRM.
type CreateInput struct {
	Name  string
	Phone string
	Extra map[string]string
}

// LeadDetail is a lead with its extension fields.
type LeadDetail struct {
	Lead   tenantstore.Lead
	Fields []tenantstore.Field
}

// ListResult is one page of leads plus the total count.
type ListResult struct {
	Leads []LeadDetail
	Total int
}

// Create creates a lead for the tenant and mirrors it into the CRM.
func (s *Service) Create(ctx context.Context, tenantID int64, input CreateInput) (LeadDetail, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return LeadDetail{}, err
	}
	return s.createForTenant(ctx, tenant, input, SourceAPI)
}

// CreateByToken creates a lead for the tenant owning the API token.
// This is the unauthenticated public intake path.
func (s *Service) CreateByToken(ctx context.Context, token string, input CreateInput) (LeadDetail, error) {
	tenant, err := s.tenants.GetByAPIToken(ctx, token)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return LeadDetail{}, apperr.NotFound("invalid API token")
		}
		return LeadDetail{}, err
	}
	return s.createForTenant(ctx, tenant, input, SourcePublic)
}

func (s *Service) createForTenant(ctx context.Context, tenant repository.Tenant, input CreateInput, source string) (LeadDetail, error) {
	if input.Name == "" || input.Phone == "" {
		return LeadDetail{}, apperr.Validation("name and phone are required")
	}

	mapping := s.fieldMapping(ctx, tenant)

	store, err := s.stores.Open(ctx, tenant.ID)
	if err != nil {
		return LeadDetail{}, apperr.Wrap(apperr.KindInternal, "open tenant store", err)
	}
	defer store.Close()

	detail, err := s.createOne(ctx, tenant, store, mapping, input, source)
	if err != nil {
		return LeadDetail{}, err
	}
	return detail, nil
}

// createOne inserts the local record, then mirrors it into the CRM.
// The mirror call is best-effort: a portal failure leaves the lead
// without a remote id and is only logged.
func (s *Service) createOne(ctx context.Context, tenant repository.Tenant, store LeadStore, mapping map[string]string, input CreateInput, source string) (LeadDetail, error) {
	crmExtra := make(map[string]string)
	localFields := make(map[string]string)
	for name, value := range input.Extra {
		crmFieldID, ok := mapping[name]
		if !ok {
			continue
		}
		crmExtra[crmFieldID] = value
		localFields[name] = value
	}

	status := statusNew
	lead, err := store.CreateLead(ctx, tenantstore.Lead{
		Name:   input.Name,
		Phone:  input.Phone,
		Status: &status,
	}, localFields)
	if err != nil {
		return LeadDetail{}, apperr.Wrap(apperr.KindInternal, "create lead", err)
	}

	remoteID := s.mirrorToCRM(ctx, tenant, lead, crmExtra)
	if remoteID != "" {
		if err := store.SetRemoteID(ctx, lead.ID, remoteID); err != nil {
			s.log.DatabaseError("record remote id", err)
		} else {
			lead.RemoteID = &remoteID
		}
	}

	s.bus.Publish(ctx, domainevents.NewLeadCreated(tenant.ID, lead.ID, remoteID, source))

	fields, err := store.ListLeadFields(ctx, lead.ID)
	if err != nil {
		s.log.DatabaseError("list lead fields", err)
	}
	return LeadDetail{Lead: lead, Fields: fields}, nil
}

// mirrorToCRM creates the lead's CRM counterpart and returns its id,
// or "" when the tenant has no portal or the call fails.
func (s *Service) mirrorToCRM(ctx context.Context, tenant repository.Tenant, lead tenantstore.Lead, extra map[string]string) string {
	if tenant.WebhookURL == nil || *tenant.WebhookURL == "" {
		return ""
	}
	client := s.crm.ClientFor(*tenant.WebhookURL)

	var (
		remoteID string
		err      error
	)
	if tenant.EntityType == "deal" {
		categoryID := 0
		if tenant.DealCategoryID != nil {
			categoryID = *tenant.DealCategoryID
		}
		stageID := statusNew
		if tenant.DealStageID != nil && *tenant.DealStageID != "" {
			stageID = *tenant.DealStageID
		}
		remoteID, err = client.CreateDeal(ctx, lead.Name, lead.Phone, categoryID, stageID, extra)
	} else {
		statusID := statusNew
		if tenant.LeadStatusID != nil && *tenant.LeadStatusID != "" {
			statusID = *tenant.LeadStatusID
		}
		remoteID, err = client.CreateLead(ctx, lead.Name, lead.Phone, statusID, extra)
	}
	if err != nil {
		s.log.CRMCallError("crm create "+tenant.EntityType, err)
		return ""
	}
	return remoteID
}

// Get returns one lead with its extension fields.
func (s *Service) Get(ctx context.Context, tenantID, leadID int64) (LeadDetail, error) {
	store, err := s.stores.Open(ctx, tenantID)
	if err != nil {
		return LeadDetail{}, apperr.Wrap(apperr.KindInternal, "open tenant store", err)
	}
	defer store.Close()

	lead, err := store.GetLead(ctx, leadID)
	if err != nil {
		return LeadDetail{}, apperr.Wrap(apperr.KindInternal, "get lead", err)
	}
	if lead == nil {
		return LeadDetail{}, apperr.NotFound("lead not found")
	}
	fields, err := store.ListLeadFields(ctx, leadID)
	if err != nil {
		return LeadDetail{}, apperr.Wrap(apperr.KindInternal, "list lead fields", err)
	}
	return LeadDetail{Lead: *lead, Fields: fields}, nil
}

// List returns one page of the tenant's leads, newest first.
func (s *Service) List(ctx context.Context, tenantID int64, limit, offset int) (ListResult, error) {
	store, err := s.stores.Open(ctx, tenantID)
	if err != nil {
		return ListResult{}, apperr.Wrap(apperr.KindInternal, "open tenant store", err)
	}
	defer store.Close()

	leads, err := store.ListLeads(ctx, limit, offset)
	if err != nil {
		return ListResult{}, apperr.Wrap(apperr.KindInternal, "list leads", err)
	}
	total, err := store.CountLeads(ctx)
	if err != nil {
		return ListResult{}, apperr.Wrap(apperr.KindInternal, "count leads", err)
	}

	result := ListResult{Total: total}
	for _, lead := range leads {
		fields, err := store.ListLeadFields(ctx, lead.ID)
		if err != nil {
			return ListResult{}, apperr.Wrap(apperr.KindInternal, "list lead fields", err)
		}
		result.Leads = append(result.Leads, LeadDetail{Lead: lead, Fields: fields})
	}
	return result, nil
}

// Import creates one lead per CSV row. A malformed row fails the whole
// import before anything is written; per-lead CRM mirror failures do
// not.
func (s *Service) Import(ctx context.Context, tenantID int64, r io.Reader, columnMapping map[string]string, limit int) ([]LeadDetail, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	rows, err := ParseLeadsCSV(r, columnMapping)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	mapping := s.fieldMapping(ctx, tenant)

	store, err := s.stores.Open(ctx, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "open tenant store", err)
	}
	defer store.Close()

	created := make([]LeadDetail, 0, len(rows))
	for _, row := range rows {
		detail, err := s.createOne(ctx, tenant, store, mapping, CreateInput{
			Name:  row.Name,
			Phone: row.Phone,
			Extra: row.Extra,
		}, SourceCSV)
		if err != nil {
			return nil, err
		}
		created = append(created, detail)
	}
	return created, nil
}

// fieldMapping returns field_name → CRM field id for the tenant's
// entity type. Lookup failures degrade to no mapped fields.
func (s *Service) fieldMapping(ctx context.Context, tenant repository.Tenant) map[string]string {
	mappings, err := s.tenants.ListMappings(ctx, tenant.ID, tenant.EntityType)
	if err != nil {
		s.log.DatabaseError("list field mappings", err)
		return nil
	}
	result := make(map[string]string, len(mappings))
	for _, m := range mappings {
		result[m.FieldName] = m.CRMFieldID
	}
	return result
}
