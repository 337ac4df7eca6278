// Package transport defines request/response DTOs for tenant routes.
package transport

import (
	"time"

	"leadbridge/internal/tenant/repository"
	"leadbridge/internal/tenant/service"
)

// CreateTenantRequest is the admin payload for creating a tenant.
type CreateTenantRequest struct {
	Name           string  `json:"name" validate:"required,min=1,max=200"`
	WebhookURL     *string `json:"webhook_url" validate:"omitempty,url"`
	AppToken       *string `json:"app_token"`
	EntityType     string  `json:"entity_type" validate:"omitempty,oneof=lead deal"`
	DealCategoryID *int    `json:"deal_category_id"`
	DealStageID    *string `json:"deal_stage_id"`
	LeadStatusID   *string `json:"lead_status_id"`
}

// UpdateTenantRequest mirrors CreateTenantRequest for full updates.
type UpdateTenantRequest = CreateTenantRequest

// ToInput converts the request to a service input.
func (r CreateTenantRequest) ToInput() service.TenantInput {
	return service.TenantInput{
		Name:           r.Name,
		WebhookURL:     r.WebhookURL,
		AppToken:       r.AppToken,
		EntityType:     r.EntityType,
		DealCategoryID: r.DealCategoryID,
		DealStageID:    r.DealStageID,
		LeadStatusID:   r.LeadStatusID,
	}
}

// TenantResponse is the API shape of a tenant. The application token is
// never echoed back in full.
type TenantResponse struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	WebhookURL     *string   `json:"webhook_url"`
	Domain         *string   `json:"domain"`
	HasAppToken    bool      `json:"has_app_token"`
	APIToken       *string   `json:"api_token"`
	EntityType     string    `json:"entity_type"`
	DealCategoryID *int      `json:"deal_category_id"`
	DealStageID    *string   `json:"deal_stage_id"`
	LeadStatusID   *string   `json:"lead_status_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// FromTenant converts a repository tenant to its API shape.
func FromTenant(t repository.Tenant) TenantResponse {
	return TenantResponse{
		ID:             t.ID,
		Name:           t.Name,
		WebhookURL:     t.WebhookURL,
		Domain:         t.Domain,
		HasAppToken:    t.AppToken != nil,
		APIToken:       t.APIToken,
		EntityType:     t.EntityType,
		DealCategoryID: t.DealCategoryID,
		DealStageID:    t.DealStageID,
		LeadStatusID:   t.LeadStatusID,
		CreatedAt:      t.CreatedAt,
	}
}

// FromTenants converts a slice of tenants.
func FromTenants(tenants []repository.Tenant) []TenantResponse {
	out := make([]TenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, FromTenant(t))
	}
	return out
}

// MappingRequest is the admin payload for creating or updating a field
// mapping.
type MappingRequest struct {
	FieldName     string `json:"field_name" validate:"required,min=1,max=100"`
	DisplayName   string `json:"display_name"`
	CRMFieldID    string `json:"crm_field_id" validate:"required,min=1,max=200"`
	CRMFieldName  string `json:"crm_field_name"`
	EntityType    string `json:"entity_type" validate:"required,oneof=lead deal"`
	UpdateOnEvent bool   `json:"update_on_event"`
}

// ToInput converts the request to a service input.
func (r MappingRequest) ToInput() service.MappingInput {
	return service.MappingInput{
		FieldName:     r.FieldName,
		DisplayName:   r.DisplayName,
		CRMFieldID:    r.CRMFieldID,
		CRMFieldName:  r.CRMFieldName,
		EntityType:    r.EntityType,
		UpdateOnEvent: r.UpdateOnEvent,
	}
}

// MappingResponse is the API shape of a field mapping.
type MappingResponse struct {
	ID            int64     `json:"id"`
	TenantID      int64     `json:"tenant_id"`
	FieldName     string    `json:"field_name"`
	DisplayName   string    `json:"display_name"`
	CRMFieldID    string    `json:"crm_field_id"`
	CRMFieldName  string    `json:"crm_field_name"`
	EntityType    string    `json:"entity_type"`
	UpdateOnEvent bool      `json:"update_on_event"`
	CreatedAt     time.Time `json:"created_at"`
}

// FromMapping converts a repository mapping to its API shape.
func FromMapping(m repository.FieldMapping) MappingResponse {
	return MappingResponse{
		ID:            m.ID,
		TenantID:      m.TenantID,
		FieldName:     m.FieldName,
		DisplayName:   m.DisplayName,
		CRMFieldID:    m.CRMFieldID,
		CRMFieldName:  m.CRMFieldName,
		EntityType:    m.EntityType,
		UpdateOnEvent: m.UpdateOnEvent,
		CreatedAt:     m.CreatedAt,
	}
}

// FromMappings converts a slice of mappings.
func FromMappings(mappings []repository.FieldMapping) []MappingResponse {
	out := make([]MappingResponse, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, FromMapping(m))
	}
	return out
}
