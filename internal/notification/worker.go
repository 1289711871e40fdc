package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"notify-delivery-backend/internal/gateway"
	"notify-delivery-backend/internal/model"
	"notify-delivery-backend/internal/store"
)

// Job is the delivery of one notification to one endpoint. AttemptsMade is
// the attempt count already stored on the delivery log.
type Job struct {
	DeliveryLogID string
	Endpoint      model.Endpoint
	Message       gateway.Message
	AttemptsMade  int
	// Recheck reloads the row before the first send, skipping it if it
	// resolved while the job was queued.
	Recheck bool
}

// Result is the outcome of one Deliver call.
type Result struct {
	Status    model.DeliveryStatus
	Attempts  int
	LastError string
	// Superseded is set when another actor resolved the row first.
	Superseded bool
}

// Deliverer drives the sender for one delivery log with local retries and
// writes every attempt back to the log.
type Deliverer struct {
	logs   store.DeliveryLogStore
	sender gateway.Sender
	policy RetryPolicy
	log    *zap.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewDeliverer creates a deliverer.
func NewDeliverer(logs store.DeliveryLogStore, sender gateway.Sender, policy RetryPolicy, log *zap.Logger) *Deliverer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Deliverer{
		logs:   logs,
		sender: sender,
		policy: policy,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepContext,
	}
}

// Policy returns the retry policy in use.
func (d *Deliverer) Policy() RetryPolicy {
	return d.policy
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send makes one gateway call bounded by the policy's send timeout. Running
// out of time is a transient failure.
func (d *Deliverer) send(ctx context.Context, job Job) error {
	if d.policy.SendTimeout <= 0 {
		return d.sender.Send(ctx, job.Endpoint, job.Message)
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.policy.SendTimeout)
	defer cancel()

	err := d.sender.Send(sendCtx, job.Endpoint, job.Message)
	if err != nil && ctx.Err() == nil && errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
		return gateway.TransientError("send timed out", err)
	}
	return err
}

// superseded reports a row another actor resolved first.
func (d *Deliverer) superseded(ctx context.Context, job Job, res Result) Result {
	res.Superseded = true
	if current, err := d.logs.GetDeliveryLog(ctx, job.DeliveryLogID); err == nil {
		res.Status = current.Status
		res.Attempts = current.AttemptCount
	}
	return res
}

// Deliver sends the job's message until it succeeds, fails permanently or
// runs out of attempts. The returned error is a storage or cancellation
// failure; send failures are reported through Result.
func (d *Deliverer) Deliver(ctx context.Context, job Job) (Result, error) {
	res := Result{Status: model.DeliveryPending, Attempts: job.AttemptsMade}

	if job.Recheck {
		current, err := d.logs.GetDeliveryLog(ctx, job.DeliveryLogID)
		if err != nil {
			return res, fmt.Errorf("reload delivery log %s: %w", job.DeliveryLogID, err)
		}
		if current.Status.Terminal() {
			res.Status = current.Status
			res.Attempts = current.AttemptCount
			res.Superseded = true
			return res, nil
		}
		res.Attempts = current.AttemptCount
	}

	backoff := d.policy.Start(res.Attempts)
	for backoff.Remaining() {
		// Refresh the activity clock so reconciliation leaves an attempt in
		// flight alone. A row that is no longer PENDING is not sent.
		active, err := d.logs.TouchPending(ctx, job.DeliveryLogID, d.now())
		if err != nil {
			return res, err
		}
		if !active {
			return d.superseded(ctx, job, res), nil
		}

		sendErr := d.send(ctx, job)

		rec := store.AttemptRecord{
			ID:          job.DeliveryLogID,
			MaxAttempts: d.policy.MaxAttempts,
		}
		var delay time.Duration
		switch {
		case sendErr == nil:
			rec.Status = model.DeliverySuccess
		case gateway.Classify(sendErr) == gateway.Permanent:
			rec.Status = model.DeliveryFailed
		default:
			var retry bool
			delay, retry = backoff.Next()
			rec.Status = model.DeliveryPending
			if !retry {
				rec.Status = model.DeliveryFailed
			}
		}
		if sendErr != nil {
			text := sendErr.Error()
			rec.LastError = &text
		}
		rec.At = d.now()

		applied, err := d.logs.RecordAttempt(ctx, rec)
		if err != nil {
			if sendErr == nil {
				d.log.Error("delivery succeeded but write-back failed; reconciliation may send it again",
					zap.String("delivery_log_id", job.DeliveryLogID), zap.Error(err))
			}
			return res, err
		}
		if !applied {
			res.Superseded = true
			return res, nil
		}

		res.Attempts++
		res.Status = rec.Status
		if rec.LastError != nil {
			res.LastError = *rec.LastError
		}
		if rec.Status.Terminal() {
			return res, nil
		}

		d.log.Debug("delivery attempt failed, retrying",
			zap.String("delivery_log_id", job.DeliveryLogID),
			zap.Int("attempt", res.Attempts),
			zap.Duration("delay", delay),
			zap.Error(sendErr))
		if err := d.sleep(ctx, delay); err != nil {
			return res, err
		}
	}
	return res, nil
}
