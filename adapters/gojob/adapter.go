package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-lti-bridge/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const JobIDRetentionPurge = "ltibridge.retention.purge"

// NewRetentionPurgeMessage builds the queue message for one purge sweep.
// The idempotency key pins the sweep to its schedule slot so a scheduler
// retry does not double-enqueue.
func NewRetentionPurgeMessage(scheduledFor time.Time) *core.JobExecutionMessage {
	return &core.JobExecutionMessage{
		JobID:          JobIDRetentionPurge,
		IdempotencyKey: fmt.Sprintf("%s:%d", JobIDRetentionPurge, scheduledFor.UTC().Unix()),
		DedupPolicy:    "drop",
	}
}

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// ToExecutionMessage maps a bridge runtime message to go-job.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message into the bridge contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// ToNackOptions maps bridge nack options to go-job. The bridge contract
// carries requeue/dead-letter booleans; go-job models the outcome as a
// single disposition, with dead-letter taking precedence over retry and
// neither flag meaning a terminal failure.
func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	disposition := queue.NackDispositionFailed
	switch {
	case opts.DeadLetter:
		disposition = queue.NackDispositionDeadLetter
	case opts.Requeue:
		disposition = queue.NackDispositionRetry
	}
	return queue.NackOptions{
		Disposition: disposition,
		Delay:       opts.Delay,
		Reason:      opts.Reason,
	}
}

// FromNackOptions maps go-job nack options to the bridge contract.
func FromNackOptions(opts queue.NackOptions) core.JobNackOptions {
	return core.JobNackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Disposition == queue.NackDispositionRetry,
		DeadLetter: opts.Disposition == queue.NackDispositionDeadLetter,
		Reason:     opts.Reason,
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	_, err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
	return err
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	normalized := d.policy.NormalizeAttempt(opts, attempt)
	return d.delivery.Nack(ctx, ToNackOptions(normalized))
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

// RetentionService is the slice of the bridge service the purge runner
// needs.
type RetentionService interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// PurgeRunner consumes retention purge deliveries and runs the sweep.
type PurgeRunner struct {
	Service RetentionService
	Policy  RetryPolicy
}

func (r *PurgeRunner) Run(ctx context.Context, delivery core.JobDelivery) error {
	if r == nil || r.Service == nil {
		return fmt.Errorf("gojob: retention service is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil || msg.JobID != JobIDRetentionPurge {
		return delivery.Nack(ctx, core.JobNackOptions{
			Requeue: false, DeadLetter: true, Reason: "unexpected job id",
		})
	}
	if _, err := r.Service.PurgeExpired(ctx); err != nil {
		return delivery.Nack(ctx, core.JobNackOptions{
			Requeue: true, Reason: err.Error(),
		})
	}
	return delivery.Ack(ctx)
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
)
