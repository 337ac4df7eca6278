package scheduler

import (
	"context"
	"fmt"

	"leadbridge/platform/config"
	"leadbridge/platform/logger"

	"github.com/hibiken/asynq"
)

// Worker runs the asynq server consuming the notification queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

// NewWorker builds the asynq server for the configured queue.
func NewWorker(cfg config.NotificationConfig, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetNotifyQueueName()
	if queue == "" {
		queue = "default"
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			queue: 1,
		},
	})

	return &Worker{server: server, mux: asynq.NewServeMux(), log: log}, nil
}

// Mux exposes the handler mux for task registration.
func (w *Worker) Mux() *asynq.ServeMux {
	return w.mux
}

// Run serves the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("worker stopped", "error", err)
	}
}
