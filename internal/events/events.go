// Package events defines the domain events exchanged between modules
// over the platform event bus.
package events

import (
	"leadbridge/platform/events"
)

// Event names for subscription.
const (
	LeadBecameSuccessfulName = "lead.became_successful"
	LeadCreatedName          = "lead.created"
)

// LeadBecameSuccessful fires when webhook reconciliation observes a
// genuine success transition on a deal. Notification consumers treat it
// as a one-time payout trigger, so it is published at most once per
// transition.
type LeadBecameSuccessful struct {
	events.BaseEvent
	TenantID    int64   `json:"tenant_id"`
	LeadID      int64   `json:"lead_id"`
	RemoteID    string  `json:"remote_id"`
	DealID      string  `json:"deal_id"`
	Opportunity *string `json:"opportunity"`
	StatusName  string  `json:"status_name"`
	LeadName    string  `json:"lead_name"`
	LeadPhone   string  `json:"lead_phone"`
}

// EventName returns the event identifier.
func (e LeadBecameSuccessful) EventName() string {
	return LeadBecameSuccessfulName
}

// NewLeadBecameSuccessful creates the event with the current timestamp.
func NewLeadBecameSuccessful(tenantID, leadID int64, remoteID, dealID string, opportunity *string, statusName, leadName, leadPhone string) LeadBecameSuccessful {
	return LeadBecameSuccessful{
		BaseEvent:   events.NewBaseEvent(),
		TenantID:    tenantID,
		LeadID:      leadID,
		RemoteID:    remoteID,
		DealID:      dealID,
		Opportunity: opportunity,
		StatusName:  statusName,
		LeadName:    leadName,
		LeadPhone:   leadPhone,
	}
}

// LeadCreated fires when a lead record is created locally, whether or
// not the CRM-side creation succeeded.
type LeadCreated struct {
	events.BaseEvent
	TenantID int64  `json:"tenant_id"`
	LeadID   int64  `json:"lead_id"`
	RemoteID string `json:"remote_id"`
	Source   string `json:"source"`
}

// EventName returns the event identifier.
func (e LeadCreated) EventName() string {
	return LeadCreatedName
}

// NewLeadCreated creates the event with the current timestamp.
func NewLeadCreated(tenantID, leadID int64, remoteID, source string) LeadCreated {
	return LeadCreated{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  tenantID,
		LeadID:    leadID,
		RemoteID:  remoteID,
		Source:    source,
	}
}
