package webhook

// LeadUpdate is the reconciliation result returned to the CRM caller
// when an event changed a local lead. Downstream consumers treat
// BecameSuccessful as a one-time payout trigger.
type LeadUpdate struct {
	RemoteID         string  `json:"remote_id"`
	TenantID         int64   `json:"tenant_id"`
	Status           string  `json:"status"`
	StatusName       string  `json:"status_name"`
	StatusSemanticID string  `json:"status_semantic_id"`
	BecameSuccessful bool    `json:"became_successful"`
	Opportunity      *string `json:"opportunity"`
	DealID           *string `json:"deal_id"`
}

// Response is the webhook acknowledgement body. LeadUpdate is present
// only when a reconciliation occurred.
type Response struct {
	Status     string      `json:"status"`
	LeadUpdate *LeadUpdate `json:"lead_update,omitempty"`
}
