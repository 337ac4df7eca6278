package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"leadbridge/internal/email"
	"leadbridge/internal/notification"
	"leadbridge/internal/scheduler"
	"leadbridge/platform/config"
	"leadbridge/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting notification worker", "env", cfg.Env, "queue", cfg.GetNotifyQueueName())

	if !cfg.GetEmailEnabled() {
		log.Error("EMAIL_ENABLED must be true for the worker")
		panic("email delivery is disabled; nothing to process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sender := email.NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
	)

	worker, err := scheduler.NewWorker(cfg, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	processor := notification.NewProcessor(sender, log)
	processor.Register(worker.Mux())

	worker.Run(ctx)
	log.Info("worker stopped")
}
