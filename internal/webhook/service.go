package webhook

import (
	"context"
	"strconv"
	"strings"

	"leadbridge/internal/crm"
	domainevents "leadbridge/internal/events"
	"leadbridge/internal/formenc"
	"leadbridge/internal/tenant/repository"
	"leadbridge/platform/apperr"
	"leadbridge/platform/events"
	"leadbridge/platform/logger"
)

// CRMClient is the portal read surface the reconciler consumes.
// *crm.Client satisfies it.
type CRMClient interface {
	GetLead(ctx context.Context, leadID string) (crm.Entity, error)
	GetDeal(ctx context.Context, dealID string) (crm.Entity, error)
	AssignedName(ctx context.Context, userID string) *string
	DealsByLeadID(ctx context.Context, leadID string) []crm.Entity
	StatusName(ctx context.Context, statusID string) string
	StageName(ctx context.Context, categoryID int, stageID string) string
}

// ClientFactory builds a portal-scoped CRM client.
type ClientFactory interface {
	ClientFor(webhookURL string) CRMClient
}

// TenantDirectory resolves tenants and their field mapping
// configuration from the main database.
type TenantDirectory interface {
	ListByDomain(ctx context.Context, domain string) ([]repository.Tenant, error)
	ListMappings(ctx context.Context, tenantID int64, entityType string) ([]repository.FieldMapping, error)
}

// Service is the webhook reconciliation engine: it resolves an inbound
// CRM event to one local lead across all tenants sharing the portal
// domain, merges the freshly fetched CRM state into it, and derives the
// at-most-once became-successful signal.
type Service struct {
	tenants TenantDirectory
	stores  StoreOpener
	crm     ClientFactory
	bus     events.Bus
	log     *logger.Logger
}

// New creates the reconciliation service.
func New(tenants TenantDirectory, stores StoreOpener, crmFactory ClientFactory, bus events.Bus, log *logger.Logger) *Service {
	return &Service{tenants: tenants, stores: stores, crm: crmFactory, bus: bus, log: log}
}

const (
	semanticSuccess = "S"

	eventLeadAdd    = "ONCRMLEADADD"
	eventLeadUpdate = "ONCRMLEADUPDATE"
	eventDealAdd    = "ONCRMDEALADD"
	eventDealUpdate = "ONCRMDEALUPDATE"
)

// Process reconciles one decoded webhook payload. A nil LeadUpdate with
// nil error means the event was acknowledged without touching local
// state (unknown event, missing id, no local lead). Typed errors carry
// the 4xx taxonomy for the handler.
func (s *Service) Process(ctx context.Context, root *formenc.Node) (*LeadUpdate, error) {
	domain, token := resolveAuth(root)
	if domain == "" {
		return nil, apperr.BadRequest("domain is required")
	}

	tenants, err := s.tenants.ListByDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	matched, err := matchTenants(tenants, token)
	if err != nil {
		s.log.Warn("tenant match failed", "domain", domain, "token_present", token != "")
		return nil, err
	}

	client := s.clientForDefault(matched)
	if client == nil {
		s.log.Warn("matched tenants have no webhook URL", "domain", domain)
		return nil, nil
	}

	event, _ := root.Leaf("event")
	event = strings.ToUpper(strings.TrimSpace(event))
	s.log.WebhookEvent(event, domain, matched[0].ID)

	data := root.Child("data")

	switch event {
	case eventLeadAdd, eventLeadUpdate:
		return s.processLeadEvent(ctx, client, matched, data)
	case eventDealAdd, eventDealUpdate:
		return s.processDealEvent(ctx, client, matched, data)
	default:
		s.log.Info("ignoring unknown event", "event", event, "domain", domain)
		return nil, nil
	}
}

// clientForDefault builds the CRM client from the first matched tenant
// carrying a webhook URL; fetching uses this default tenant even when
// the record later turns out to live in a sibling tenant.
func (s *Service) clientForDefault(tenants []repository.Tenant) CRMClient {
	for _, t := range tenants {
		if t.WebhookURL != nil && *t.WebhookURL != "" {
			return s.crm.ClientFor(*t.WebhookURL)
		}
	}
	return nil
}

func (s *Service) processLeadEvent(ctx context.Context, client CRMClient, tenants []repository.Tenant, data *formenc.Node) (*LeadUpdate, error) {
	leadID := formenc.ExtractID(data)
	if leadID == "" {
		s.log.Warn("lead event without entity id")
		return nil, nil
	}

	entity, err := client.GetLead(ctx, leadID)
	if err != nil {
		// Fetch failure aborts the event with no partial writes; the
		// CRM still gets a 200 so it does not retry forever.
		s.log.CRMCallError("crm.lead.get", err)
		return nil, nil
	}
	statusID := entity.Str("STATUS_ID")
	if statusID == "" {
		s.log.Warn("lead entity without STATUS_ID", "lead_id", leadID)
		return nil, nil
	}
	semantic := entity.Str("STATUS_SEMANTIC_ID")

	found := s.locate(ctx, tenants, leadID, "")
	if found == nil {
		s.log.Warn("no local lead for CRM lead", "lead_id", leadID)
		return nil, nil
	}
	defer found.store.Close()

	lead := found.lead
	lead.Status = &statusID
	if semantic != "" {
		lead.StatusSemanticID = &semantic
	}
	// Assignee display name is refreshed on every event, mapping rules
	// do not apply to it.
	lead.AssignedByName = client.AssignedName(ctx, entity.Str("ASSIGNED_BY_ID"))

	fields := s.mappedEventFields(ctx, found.tenant.ID, "lead", entity)

	if err := found.store.UpdateLead(ctx, lead, fields); err != nil {
		s.log.DatabaseError("persist lead update", err)
		return nil, nil
	}

	statusName := client.StatusName(ctx, statusID)

	// A lead reaching semantic S means converted to a deal; pull the
	// deal's details onto the record. Strictly additive: failure here
	// never rolls back the committed status update.
	if deref(lead.StatusSemanticID) == semanticSuccess {
		if deals := client.DealsByLeadID(ctx, leadID); len(deals) > 0 {
			deal := deals[0]

			dealID := deal.Str("ID")
			lead.DealID = &dealID
			if deal.Truthy("OPPORTUNITY") {
				amount := deal.Str("OPPORTUNITY")
				lead.DealAmount = &amount
			} else {
				lead.DealAmount = nil
			}
			dealStatus := deal.Str("STAGE_ID")
			lead.DealStatus = &dealStatus
			stageName := client.StageName(ctx, categoryOf(deal, found.tenant), dealStatus)
			lead.DealStatusName = &stageName

			if err := found.store.UpdateLead(ctx, lead, nil); err != nil {
				s.log.DatabaseError("persist deal linkage", err)
			}
		}
	}

	// A stored deal amount wins; otherwise the lead entity's own
	// OPPORTUNITY field still counts.
	opportunity := lead.DealAmount
	if opportunity == nil {
		if raw := entity.Str("OPPORTUNITY"); raw != "" {
			opportunity = &raw
		}
	}

	// Lead-semantic S means "converted to a deal", not "deal won": the
	// payout-worthy success signal is reserved for deal events.
	return &LeadUpdate{
		RemoteID:         leadID,
		TenantID:         found.tenant.ID,
		Status:           statusID,
		StatusName:       statusName,
		StatusSemanticID: deref(lead.StatusSemanticID),
		BecameSuccessful: false,
		Opportunity:      opportunity,
		DealID:           lead.DealID,
	}, nil
}

func (s *Service) processDealEvent(ctx context.Context, client CRMClient, tenants []repository.Tenant, data *formenc.Node) (*LeadUpdate, error) {
	dealID := formenc.ExtractID(data)
	if dealID == "" {
		s.log.Warn("deal event without entity id")
		return nil, nil
	}

	deal, err := client.GetDeal(ctx, dealID)
	if err != nil {
		s.log.CRMCallError("crm.deal.get", err)
		return nil, nil
	}
	stageID := deal.Str("STAGE_ID")
	if stageID == "" {
		s.log.Warn("deal entity without STAGE_ID", "deal_id", dealID)
		return nil, nil
	}
	semantic := deal.Str("STAGE_SEMANTIC_ID")
	originatingLeadID := deal.Str("LEAD_ID")

	found := s.locate(ctx, tenants, dealID, originatingLeadID)
	if found == nil {
		s.log.Warn("no local lead for CRM deal", "deal_id", dealID, "lead_id", originatingLeadID)
		return nil, nil
	}
	defer found.store.Close()

	lead := found.lead

	// Both previous values must be captured before any overwrite; the
	// became-successful comparison reads them after the write.
	previousSemantic := deref(lead.StatusSemanticID)
	previousDealStatus := deref(lead.DealStatus)

	if !found.viaLeadID {
		// Deal-type tenant: the deal stage is the lead's tracked
		// status.
		lead.Status = &stageID
		if semantic != "" {
			lead.StatusSemanticID = &semantic
		}
	}
	// Lead-type tenants keep lead.Status for lead-stage tracking; only
	// the deal linkage fields below are touched.

	lead.AssignedByName = client.AssignedName(ctx, deal.Str("ASSIGNED_BY_ID"))

	fields := s.mappedEventFields(ctx, found.tenant.ID, "deal", deal)

	lead.DealID = &dealID
	if deal.Truthy("OPPORTUNITY") {
		amount := deal.Str("OPPORTUNITY")
		lead.DealAmount = &amount
	}
	lead.DealStatus = &stageID
	stageName := client.StageName(ctx, categoryOf(deal, found.tenant), stageID)
	lead.DealStatusName = &stageName

	if err := found.store.UpdateLead(ctx, lead, fields); err != nil {
		s.log.DatabaseError("persist deal update", err)
		return nil, nil
	}

	var became bool
	if found.viaLeadID {
		// No prior deal-semantic history is stored for lead-type
		// tenants; stage equality stands in for "already processed".
		became = semantic == semanticSuccess && previousDealStatus != stageID
	} else {
		became = previousSemantic != semanticSuccess && semantic == semanticSuccess
	}

	remoteID := dealID
	if found.viaLeadID {
		remoteID = originatingLeadID
	}

	var opportunity *string
	if raw := deal.Str("OPPORTUNITY"); raw != "" {
		opportunity = &raw
	}

	// A deal payload may omit STAGE_SEMANTIC_ID; the stored semantic
	// still describes the lead then.
	resultSemantic := semantic
	if resultSemantic == "" {
		resultSemantic = deref(lead.StatusSemanticID)
	}

	result := &LeadUpdate{
		RemoteID:         remoteID,
		TenantID:         found.tenant.ID,
		Status:           stageID,
		StatusName:       stageName,
		StatusSemanticID: resultSemantic,
		BecameSuccessful: became,
		Opportunity:      opportunity,
		DealID:           &dealID,
	}

	if became {
		s.bus.Publish(ctx, domainevents.NewLeadBecameSuccessful(
			found.tenant.ID, lead.ID, remoteID, dealID,
			opportunity, stageName, lead.Name, lead.Phone,
		))
	}

	return result, nil
}

// mappedEventFields selects the CRM values to mirror into the lead's
// extension rows: only mappings flagged update_on_event, and only when
// the entity carries a non-null value. Mapping lookup failures degrade
// to no field updates.
func (s *Service) mappedEventFields(ctx context.Context, tenantID int64, entityType string, entity crm.Entity) map[string]string {
	mappings, err := s.tenants.ListMappings(ctx, tenantID, entityType)
	if err != nil {
		s.log.DatabaseError("list field mappings", err)
		return nil
	}

	var fields map[string]string
	for _, mapping := range mappings {
		if !mapping.UpdateOnEvent {
			continue
		}
		value, ok := entity[mapping.CRMFieldID]
		if !ok || value == nil {
			continue
		}
		if fields == nil {
			fields = make(map[string]string)
		}
		fields[mapping.FieldName] = entity.Str(mapping.CRMFieldID)
	}
	return fields
}

// categoryOf picks the funnel for stage-name resolution: the deal's own
// CATEGORY_ID, else the tenant's configured funnel, else the default.
func categoryOf(deal crm.Entity, tenant repository.Tenant) int {
	if raw := deal.Str("CATEGORY_ID"); raw != "" {
		if id, err := strconv.Atoi(raw); err == nil {
			return id
		}
	}
	if tenant.DealCategoryID != nil {
		return *tenant.DealCategoryID
	}
	return 0
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
