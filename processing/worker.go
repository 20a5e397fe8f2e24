// Package worker runs the background anchoring engine: it consumes anchor
// tasks enqueued after failed ledger submissions and re-runs the anchoring
// step until the commitment lands or the task exhausts its attempts.
package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"pvchain/config"
	"pvchain/internal/errs"
	"pvchain/internal/messaging/consumer"
	"pvchain/internal/messaging/producer"
	"pvchain/internal/models"
	ledger "pvchain/ledger/client"
	"pvchain/storage/store"
)

// Worker processes anchor retry tasks.
type Worker struct {
	workerConfig       config.WorkerConfig
	consumerRetryDelay time.Duration // Parsed from workerConfig.ConsumerRetryDelay
	anchorTimeout      time.Duration // Parsed from workerConfig.AnchorTimeout
	requeueDelay       time.Duration // Parsed from workerConfig.RequeueDelay

	maxTaskAttempts int
	logger          *log.Logger
	store           store.Store
	consumer        consumer.Consumer
	producer        producer.Producer
	ledgerClient    ledger.LedgerClient
}

// New creates a new Worker instance.
func New(cfg config.WorkerConfig, logger *log.Logger, s store.Store, c consumer.Consumer, p producer.Producer, lc ledger.LedgerClient) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	consumerRetryDelay, err := time.ParseDuration(cfg.ConsumerRetryDelay)
	if err != nil {
		logger.Printf("Warning: Invalid consumer_retry_delay '%s', using default 5s", cfg.ConsumerRetryDelay)
		consumerRetryDelay = 5 * time.Second
	}

	anchorTimeout, err := time.ParseDuration(cfg.AnchorTimeout)
	if err != nil {
		logger.Printf("Warning: Invalid anchor_timeout '%s', using default 45s", cfg.AnchorTimeout)
		anchorTimeout = 45 * time.Second
	}

	requeueDelay, err := time.ParseDuration(cfg.RequeueDelay)
	if err != nil {
		logger.Printf("Warning: Invalid requeue_delay '%s', using default 30s", cfg.RequeueDelay)
		requeueDelay = 30 * time.Second
	}

	maxAttempts := cfg.MaxTaskAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	return &Worker{
		workerConfig:       cfg,
		consumerRetryDelay: consumerRetryDelay,
		anchorTimeout:      anchorTimeout,
		requeueDelay:       requeueDelay,
		maxTaskAttempts:    maxAttempts,
		logger:             logger,
		store:              s,
		consumer:           c,
		producer:           p,
		ledgerClient:       lc,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Printf("Starting anchor worker pool with concurrency: %d, max attempts: %d", w.workerConfig.Concurrency, w.maxTaskAttempts)
	var wg sync.WaitGroup
	for i := 0; i < w.workerConfig.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.logger.Printf("Worker %d started", workerID)
			w.consumeLoop(ctx, workerID)
			w.logger.Printf("Worker %d stopped", workerID)
		}(i + 1)
	}
	wg.Wait()
	w.logger.Println("Anchor worker pool stopped.")
}

// consumeLoop is the main loop for a worker goroutine.
func (w *Worker) consumeLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Printf("Worker %d: Context cancelled, stopping.", workerID)
			return
		default:
		}

		consumeCtx, consumeCancel := context.WithTimeout(ctx, 100*time.Millisecond)
		task, ack, err := w.consumer.Consume(consumeCtx)
		consumeCancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Printf("Worker %d: Consumer error: %v", workerID, err)
			time.Sleep(w.consumerRetryDelay)
			continue
		}
		if task == nil {
			continue
		}

		ack(w.handleTask(ctx, workerID, task))
	}
}

// handleTask runs one anchoring attempt. The return value is the Kafka ack:
// true commits the message (done, dropped, or re-published with an
// incremented attempt count), false re-delivers it as-is.
func (w *Worker) handleTask(ctx context.Context, workerID int, task *models.AnchorTask) bool {
	report, err := w.store.GetByBatchID(ctx, task.BatchID)
	if err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			w.logger.Printf("Worker %d: Dropping task %s: batch %s no longer exists", workerID, task.TaskID, task.BatchID)
			return true
		}
		w.logger.Printf("Worker %d: DB error loading batch %s: %v", workerID, task.BatchID, err)
		return false
	}

	// Only approved reports are anchored; the fingerprint must be frozen.
	if report.Status != models.StatusApproved || report.Fingerprint == "" {
		w.logger.Printf("Worker %d: Dropping task %s: batch %s is not approved", workerID, task.TaskID, task.BatchID)
		return true
	}
	if report.AnchorStatus == models.AnchorConfirmed && report.AnchorRef != "" {
		// Already anchored, usually by the manual retry endpoint.
		return true
	}

	submitCtx, cancel := context.WithTimeout(ctx, w.anchorTimeout)
	proof, err := w.ledgerClient.Submit(submitCtx, report.BatchID, report.Fingerprint, report.StorageRef, report.Submitter)
	cancel()

	if err == nil {
		if setErr := w.store.SetAnchored(ctx, report.BatchID, proof.TransactionID); setErr != nil {
			w.logger.Printf("CRITICAL: Worker %d: anchor confirmed for batch %s (tx %s) but persisting it failed: %v",
				workerID, report.BatchID, proof.TransactionID, setErr)
			return false
		}
		w.logger.Printf("Worker %d: Anchored batch %s (tx %s, attempt %d)", workerID, report.BatchID, proof.TransactionID, task.Attempts+1)
		return true
	}

	errClass := string(errs.KindOf(err))
	w.logger.Printf("Worker %d: Anchor attempt %d for batch %s failed (%s): %v", workerID, task.Attempts+1, task.BatchID, errClass, err)
	if setErr := w.store.SetAnchorFailed(ctx, report.BatchID, errClass); setErr != nil {
		w.logger.Printf("CRITICAL: Worker %d: recording anchor failure for batch %s failed: %v", workerID, report.BatchID, setErr)
	}

	switch errs.KindOf(err) {
	case errs.KindConflict:
		// The chain holds a different fingerprint for this batch. Retrying
		// cannot fix that; operators must reconcile.
		w.logger.Printf("ALERT: Worker %d: conflicting ledger commitment for batch %s: %v", workerID, task.BatchID, err)
		return true
	case errs.KindNonRetryable, errs.KindValidation:
		w.logger.Printf("ALERT: Worker %d: dropping task %s for batch %s, operator intervention needed", workerID, task.TaskID, task.BatchID)
		return true
	}

	// Retryable and timeout classes. Timeouts are safe to re-submit because
	// the ledger client reconciles against the chain before every submit.
	return w.requeue(ctx, workerID, task)
}

// requeue re-publishes the task with an incremented attempt count after a
// delay, or drops it once attempts are exhausted. The manual retry endpoint
// and the backfill scan still cover dropped batches.
func (w *Worker) requeue(ctx context.Context, workerID int, task *models.AnchorTask) bool {
	if task.Attempts+1 >= w.maxTaskAttempts {
		w.logger.Printf("ALERT: Worker %d: batch %s exhausted %d anchor attempts, leaving it for manual retry", workerID, task.BatchID, w.maxTaskAttempts)
		return true
	}

	select {
	case <-ctx.Done():
		// Shutting down; leave the message uncommitted for redelivery.
		return false
	case <-time.After(w.requeueDelay):
	}

	next := &models.AnchorTask{
		TaskID:     uuid.NewString(),
		BatchID:    task.BatchID,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Attempts:   task.Attempts + 1,
	}
	if err := w.producer.Publish(ctx, next); err != nil {
		w.logger.Printf("Worker %d: Failed to re-publish task for batch %s: %v", workerID, task.BatchID, err)
		return false
	}
	return true
}

// Backfill scans for approved reports whose anchoring never completed and
// enqueues tasks for them. It runs at engine startup to pick up work lost to
// crashes between the approval transaction and the retry enqueue.
func (w *Worker) Backfill(ctx context.Context, limit int) error {
	reports, err := w.store.ListByStatus(ctx, models.StatusApproved, limit)
	if err != nil {
		return err
	}
	enqueued := 0
	for _, r := range reports {
		if r.AnchorStatus == models.AnchorConfirmed && r.AnchorRef != "" {
			continue
		}
		task := &models.AnchorTask{
			TaskID:     uuid.NewString(),
			BatchID:    r.BatchID,
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339Nano),
		}
		if err := w.producer.Publish(ctx, task); err != nil {
			w.logger.Printf("Backfill: failed to enqueue batch %s: %v", r.BatchID, err)
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		w.logger.Printf("Backfill: enqueued %d unanchored approved reports", enqueued)
	}
	return nil
}
