// Package notification fans out lead-success signals: a bus subscriber
// enqueues a task per success, and a worker-side processor delivers
// the notification email. The queue decouples webhook latency from
// SMTP latency.
package notification

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeLeadSuccessEmail is the asynq task type for success emails.
const TypeLeadSuccessEmail = "notification:lead_success_email"

// LeadSuccessPayload is the task payload for a success email.
type LeadSuccessPayload struct {
	TenantID    int64  `json:"tenant_id"`
	TenantName  string `json:"tenant_name"`
	LeadID      int64  `json:"lead_id"`
	RemoteID    string `json:"remote_id"`
	DealID      string `json:"deal_id"`
	Opportunity string `json:"opportunity"`
	StatusName  string `json:"status_name"`
	LeadName    string `json:"lead_name"`
	LeadPhone   string `json:"lead_phone"`
	ToEmail     string `json:"to_email"`
}

// NewLeadSuccessTask builds the asynq task for one success email.
func NewLeadSuccessTask(payload LeadSuccessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("notification: marshal payload: %w", err)
	}
	return asynq.NewTask(TypeLeadSuccessEmail, data, asynq.MaxRetry(5)), nil
}
