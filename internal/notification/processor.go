package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"leadbridge/internal/email"
	"leadbridge/platform/logger"

	"github.com/hibiken/asynq"
)

// Processor executes queued notification tasks on the worker.
type Processor struct {
	sender email.Sender
	log    *logger.Logger
}

// NewProcessor creates the worker-side task processor.
func NewProcessor(sender email.Sender, log *logger.Logger) *Processor {
	return &Processor{sender: sender, log: log}
}

// Register mounts the processor's handlers on the worker mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeLeadSuccessEmail, p.HandleLeadSuccessEmail)
}

// HandleLeadSuccessEmail delivers one success email. Returning an
// error hands the task back to asynq for retry.
func (p *Processor) HandleLeadSuccessEmail(ctx context.Context, task *asynq.Task) error {
	var payload LeadSuccessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("notification: unmarshal payload: %w", asynq.SkipRetry)
	}

	err := p.sender.SendLeadSuccessEmail(ctx, payload.ToEmail, email.LeadSuccessData{
		TenantName:  payload.TenantName,
		LeadName:    payload.LeadName,
		LeadPhone:   payload.LeadPhone,
		StatusName:  payload.StatusName,
		Opportunity: payload.Opportunity,
		DealID:      payload.DealID,
	})
	if err != nil {
		p.log.Error("notification_send_failed",
			"tenant_id", payload.TenantID,
			"lead_id", payload.LeadID,
			"error", err.Error(),
		)
		return err
	}

	p.log.Info("notification_sent",
		"tenant_id", payload.TenantID,
		"lead_id", payload.LeadID,
	)
	return nil
}
