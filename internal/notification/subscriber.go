package notification

import (
	"context"
	"fmt"

	domainevents "leadbridge/internal/events"
	"leadbridge/internal/tenant/repository"
	"leadbridge/platform/config"
	"leadbridge/platform/events"
	"leadbridge/platform/logger"

	"github.com/hibiken/asynq"
)

// Enqueuer is the slice of the asynq client used by the subscriber.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TenantNames resolves tenant display names for the email body.
type TenantNames interface {
	Get(ctx context.Context, id int64) (repository.Tenant, error)
}

// Subscriber turns lead.became_successful events into queued email
// tasks. Enqueue failures are logged, never propagated: notification
// delivery must not affect webhook acknowledgement.
type Subscriber struct {
	queue   Enqueuer
	tenants TenantNames
	cfg     config.NotificationConfig
	log     *logger.Logger
}

// NewSubscriber creates the success-notification subscriber.
func NewSubscriber(queue Enqueuer, tenants TenantNames, cfg config.NotificationConfig, log *logger.Logger) *Subscriber {
	return &Subscriber{queue: queue, tenants: tenants, cfg: cfg, log: log}
}

// Register subscribes to the success event on the bus.
func (s *Subscriber) Register(bus events.Bus) {
	bus.Subscribe(domainevents.LeadBecameSuccessfulName, s)
}

// Handle implements events.Handler.
func (s *Subscriber) Handle(ctx context.Context, event events.Event) error {
	success, ok := event.(domainevents.LeadBecameSuccessful)
	if !ok {
		return fmt.Errorf("notification: unexpected event %T", event)
	}

	toEmail := s.cfg.GetNotifyEmailTo()
	if !s.cfg.GetEmailEnabled() || toEmail == "" {
		return nil
	}

	payload := LeadSuccessPayload{
		TenantID:   success.TenantID,
		LeadID:     success.LeadID,
		RemoteID:   success.RemoteID,
		DealID:     success.DealID,
		StatusName: success.StatusName,
		LeadName:   success.LeadName,
		LeadPhone:  success.LeadPhone,
		ToEmail:    toEmail,
	}
	if success.Opportunity != nil {
		payload.Opportunity = *success.Opportunity
	}
	if tenant, err := s.tenants.Get(ctx, success.TenantID); err == nil {
		payload.TenantName = tenant.Name
	}

	task, err := NewLeadSuccessTask(payload)
	if err != nil {
		s.log.Error("notification_task_build_failed", "error", err.Error())
		return err
	}

	if _, err := s.queue.EnqueueContext(ctx, task, asynq.Queue(s.cfg.GetNotifyQueueName())); err != nil {
		s.log.Error("notification_enqueue_failed",
			"tenant_id", success.TenantID,
			"lead_id", success.LeadID,
			"error", err.Error(),
		)
		return err
	}

	s.log.Info("notification_enqueued",
		"tenant_id", success.TenantID,
		"lead_id", success.LeadID,
		"deal_id", success.DealID,
	)
	return nil
}
