// Package email renders and delivers notification emails over SMTP.
package email

import "context"

// LeadSuccessData fills the lead-success notification template.
type LeadSuccessData struct {
	TenantName  string
	LeadName    string
	LeadPhone   string
	StatusName  string
	Opportunity string
	DealID      string
}

// Sender delivers notification emails.
type Sender interface {
	SendLeadSuccessEmail(ctx context.Context, toEmail string, data LeadSuccessData) error
}
