package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/cv-evaluation-pipeline/internal/metrics"
	"alfredoptarigan/cv-evaluation-pipeline/internal/models"
	"alfredoptarigan/cv-evaluation-pipeline/internal/repositories"
)

var ErrMalformedMessage = errors.New("malformed evaluation message")

// PermanentError marks a failure that redelivery cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

func permanent(err error) error {
	return &PermanentError{Err: err}
}

type Worker interface {
	Start(ctx context.Context)
	Stop()
}

type WorkerOptions struct {
	ID                    string
	RetryMaxAttempts      int
	LeaseTTL              time.Duration
	EvaluationTimeout     time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	// IdleDelay is slept after an empty fetch when the broker does not block.
	IdleDelay time.Duration
}

type worker struct {
	broker    *QueueBroker
	jobRepo   repositories.JobRepository
	evaluator EvaluatorService
	opts      WorkerOptions
	log       *zap.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	cancel   context.CancelFunc
}

func NewWorker(
	broker *QueueBroker,
	jobRepo repositories.JobRepository,
	evaluator EvaluatorService,
	opts WorkerOptions,
	log *zap.Logger,
) Worker {
	return newWorker(broker, jobRepo, evaluator, opts, log)
}

func newWorker(
	broker *QueueBroker,
	jobRepo repositories.JobRepository,
	evaluator EvaluatorService,
	opts WorkerOptions,
	log *zap.Logger,
) *worker {
	if opts.RetryMaxAttempts < 1 {
		opts.RetryMaxAttempts = 1
	}
	if opts.ReconnectInitialDelay <= 0 {
		opts.ReconnectInitialDelay = time.Second
	}
	if opts.ReconnectMaxDelay < opts.ReconnectInitialDelay {
		opts.ReconnectMaxDelay = opts.ReconnectInitialDelay
	}
	if opts.IdleDelay <= 0 {
		opts.IdleDelay = 200 * time.Millisecond
	}

	return &worker{
		broker:    broker,
		jobRepo:   jobRepo,
		evaluator: evaluator,
		opts:      opts,
		log:       log.With(zap.String("worker_id", opts.ID)),
	}
}

// Start implements Worker. It returns immediately; the consumer loop runs
// until Stop is called or ctx is cancelled.
func (w *worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.run(ctx)

	w.log.Info("worker started", zap.String("queue", w.broker.Options().Stream))
}

// Stop implements Worker. The message in flight, if any, is abandoned
// unacknowledged and will be redelivered.
func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		w.log.Info("stopping worker")
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
		w.log.Info("worker stopped")
	})
}

func (w *worker) run(ctx context.Context) {
	defer w.wg.Done()

	delay := w.opts.ReconnectInitialDelay
	for {
		connected, err := w.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			delay = w.opts.ReconnectInitialDelay
		}

		w.log.Warn("queue session ended, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", delay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > w.opts.ReconnectMaxDelay {
			delay = w.opts.ReconnectMaxDelay
		}
	}
}

// consume owns one broker session until it fails or ctx ends. connected
// reports whether the session was established at all.
func (w *worker) consume(ctx context.Context) (connected bool, err error) {
	ch, err := w.broker.Open(ctx)
	if err != nil {
		return false, err
	}
	defer ch.Close()

	if err := ch.Declare(ctx); err != nil {
		return true, err
	}

	w.log.Info("worker waiting for messages")

	for {
		if ctx.Err() != nil {
			return true, nil
		}

		deliveries, err := ch.Fetch(ctx, w.opts.ID)
		if err != nil {
			return true, err
		}

		if len(deliveries) == 0 {
			if w.broker.Options().BlockTimeout <= 0 {
				select {
				case <-ctx.Done():
				case <-time.After(w.opts.IdleDelay):
				}
			}
			continue
		}

		for _, d := range deliveries {
			if err := w.handle(ctx, ch, d); err != nil {
				return true, err
			}
		}
	}
}

// outcome of processing one delivery
type outcome struct {
	jobID    uuid.UUID
	attempts int
}

// handle processes one delivery. The returned error is a broker failure that
// ends the session; evaluation failures are resolved here.
func (w *worker) handle(ctx context.Context, ch *QueueChannel, d Delivery) error {
	log := w.log.With(zap.String("message_id", d.ID), zap.Int("delivery", d.Attempt))
	if d.Attempt > 1 {
		metrics.DeliveriesRedelivered.Inc()
	}

	start := time.Now()
	res, err := w.process(ctx, d, log)
	if err == nil {
		metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
		metrics.JobsCompleted.Inc()
		log.Info("job completed", zap.String("job_id", res.jobID.String()))
		return ch.Ack(ctx, d)
	}

	// Shutting down: the message is redelivered later without spending the budget.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	log = log.With(zap.String("job_id", res.jobID.String()), zap.Int("attempts", res.attempts))

	switch {
	case errors.Is(err, repositories.ErrJobTerminal):
		log.Info("job already finished, acknowledging redelivery")
		return ch.Ack(ctx, d)

	case errors.Is(err, repositories.ErrLeaseHeld), errors.Is(err, repositories.ErrLeaseLost):
		log.Warn("job owned by another worker, leaving message unacknowledged", zap.Error(err))
		return nil
	}

	metrics.DeliveriesFailed.WithLabelValues(failureReason(err)).Inc()

	var perm *PermanentError
	if errors.As(err, &perm) || res.attempts >= w.opts.RetryMaxAttempts {
		return w.giveUp(ctx, ch, d, res.jobID, err, log)
	}

	log.Warn("evaluation failed, message left for redelivery",
		zap.Error(err),
		zap.Int("max_attempts", w.opts.RetryMaxAttempts))
	return nil
}

// process runs claim, evaluation and persistence for one delivery under the
// per-message timeout.
func (w *worker) process(ctx context.Context, d Delivery, log *zap.Logger) (outcome, error) {
	res := outcome{attempts: d.Attempt}

	req, jobID, err := decodeRequest(d.Body)
	res.jobID = jobID
	if err != nil {
		return res, err
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.EvaluationTimeout)
	defer cancel()

	job, err := w.jobRepo.Claim(ctx, jobID, w.opts.ID, w.opts.LeaseTTL)
	if err != nil {
		return res, err
	}
	// Claims on the job row are the authoritative attempt count once the job exists.
	res.attempts = job.Attempts

	log.Info("evaluating job",
		zap.String("job_id", jobID.String()),
		zap.String("title", req.Title),
		zap.Int("attempts", job.Attempts))

	output, err := w.evaluator.Evaluate(ctx, req)
	if err != nil {
		return res, err
	}

	if err := w.jobRepo.Complete(ctx, jobID, w.opts.ID, output); err != nil {
		return res, err
	}

	return res, nil
}

// giveUp marks the job failed and moves the message to the dead-letter
// stream. If the job cannot be marked, the message stays pending so the next
// delivery tries again.
func (w *worker) giveUp(ctx context.Context, ch *QueueChannel, d Delivery, jobID uuid.UUID, cause error, log *zap.Logger) error {
	if jobID != uuid.Nil {
		err := w.jobRepo.Fail(ctx, jobID, cause.Error())
		switch {
		case err == nil:
			metrics.JobsFailed.Inc()
		case errors.Is(err, repositories.ErrJobNotFound), errors.Is(err, repositories.ErrJobTerminal):
			log.Warn("could not mark job failed", zap.Error(err))
		default:
			log.Error("failed to mark job failed, keeping message", zap.Error(err))
			return nil
		}
	}

	if err := ch.DeadLetter(ctx, d, cause.Error()); err != nil {
		return err
	}

	metrics.JobsDeadLettered.Inc()
	log.Error("job failed, message dead-lettered", zap.Error(cause))
	return nil
}

// decodeRequest parses a message body. The job id is returned whenever it
// could be read, even if the message is otherwise unusable.
func decodeRequest(body []byte) (models.EvaluationRequest, uuid.UUID, error) {
	var req models.EvaluationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		var envelope struct {
			JobID string `json:"jobId"`
		}
		jobID := uuid.Nil
		if json.Unmarshal(body, &envelope) == nil {
			if id, perr := uuid.Parse(envelope.JobID); perr == nil {
				jobID = id
			}
		}
		return req, jobID, permanent(fmt.Errorf("%w: %v", ErrMalformedMessage, err))
	}

	if strings.TrimSpace(req.JobID) == "" {
		return req, uuid.Nil, permanent(fmt.Errorf("%w: missing jobId", ErrMalformedMessage))
	}

	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		return req, uuid.Nil, permanent(fmt.Errorf("%w: invalid jobId %q", ErrMalformedMessage, req.JobID))
	}

	return req, jobID, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedMessage):
		return "malformed_message"
	case errors.Is(err, repositories.ErrJobNotFound):
		return "job_not_found"
	case errors.Is(err, ErrEmptyCompletion):
		return "empty_completion"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
