// Package transport defines request/response DTOs for lead routes.
package transport

import (
	"time"

	"leadbridge/internal/leads/service"
)

// LeadFieldResponse is one extension attribute of a lead.
type LeadFieldResponse struct {
	FieldName  string `json:"field_name"`
	FieldValue string `json:"field_value"`
}

// LeadResponse is the API shape of a lead.
type LeadResponse struct {
	ID               int64               `json:"id"`
	Phone            string              `json:"phone"`
	Name             string              `json:"name"`
	Status           *string             `json:"status"`
	RemoteID         *string             `json:"remote_id"`
	AssignedByName   *string             `json:"assigned_by_name"`
	StatusSemanticID *string             `json:"status_semantic_id"`
	DealID           *string             `json:"deal_id"`
	DealAmount       *string             `json:"deal_amount"`
	DealStatus       *string             `json:"deal_status"`
	DealStatusName   *string             `json:"deal_status_name"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	Fields           []LeadFieldResponse `json:"fields"`
}

// ListLeadsResponse is one page of leads.
type ListLeadsResponse struct {
	Leads []LeadResponse `json:"leads"`
	Total int            `json:"total"`
}

// FromDetail converts a lead with fields to its API shape.
func FromDetail(d service.LeadDetail) LeadResponse {
	fields := make([]LeadFieldResponse, 0, len(d.Fields))
	for _, f := range d.Fields {
		value := ""
		if f.FieldValue != nil {
			value = *f.FieldValue
		}
		fields = append(fields, LeadFieldResponse{FieldName: f.FieldName, FieldValue: value})
	}
	lead := d.Lead
	return LeadResponse{
		ID:               lead.ID,
		Phone:            lead.Phone,
		Name:             lead.Name,
		Status:           lead.Status,
		RemoteID:         lead.RemoteID,
		AssignedByName:   lead.AssignedByName,
		StatusSemanticID: lead.StatusSemanticID,
		DealID:           lead.DealID,
		DealAmount:       lead.DealAmount,
		DealStatus:       lead.DealStatus,
		DealStatusName:   lead.DealStatusName,
		CreatedAt:        lead.CreatedAt,
		UpdatedAt:        lead.UpdatedAt,
		Fields:           fields,
	}
}

// FromDetails converts a list of leads.
func FromDetails(details []service.LeadDetail) []LeadResponse {
	out := make([]LeadResponse, 0, len(details))
	for _, d := range details {
		out = append(out, FromDetail(d))
	}
	return out
}
