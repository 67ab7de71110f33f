package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aprendesoft/colegio-api/pkg/config"
	"github.com/aprendesoft/colegio-api/pkg/jobs"
	"github.com/aprendesoft/colegio-api/pkg/mailer"
)

// OutboundEmail is a queued message waiting on the relay.
type OutboundEmail struct {
	ToName    string
	ToAddress string
	Subject   string
	Body      string
}

// MailRelay pushes outbound email through the background job queue. Delivery
// is best-effort; a dropped message never surfaces to the caller.
type MailRelay struct {
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewMailRelay wires the mailer behind a worker queue. A nil metrics service
// disables instrumentation.
func NewMailRelay(m mailer.Mailer, cfg config.NotifierConfig, metrics *MetricsService, logger *zap.Logger) *MailRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	relay := &MailRelay{metrics: metrics, logger: logger}
	relay.queue = jobs.NewQueue("email", func(ctx context.Context, job jobs.Job) error {
		email, ok := job.Payload.(OutboundEmail)
		if !ok {
			logger.Sugar().Errorw("email job carries unexpected payload", "job_id", job.ID)
			return nil
		}
		return m.Send(ctx, email.ToName, email.ToAddress, email.Subject, email.Body)
	}, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return relay
}

// Start launches the relay workers.
func (r *MailRelay) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Stop drains the workers.
func (r *MailRelay) Stop() {
	r.queue.Stop()
}

// Enqueue schedules one message. Failures are logged, never returned.
func (r *MailRelay) Enqueue(email OutboundEmail) {
	err := r.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "email.send",
		Payload: email,
	})
	if err != nil {
		r.logger.Sugar().Warnw("failed to enqueue email", "to", email.ToAddress, "error", err)
		return
	}
	r.metrics.EmailEnqueued()
}
