// Package approval implements the report approval state machine: the only
// component that mutates report records. An Approve transition runs hash →
// store → persist-approved → anchor in strict order, persisting each step's
// result before the next starts, so a crash between steps leaves the report
// in a well-defined, resumable state.
package approval

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"pvchain/cas"
	"pvchain/internal/canonical"
	"pvchain/internal/errs"
	"pvchain/internal/events"
	"pvchain/internal/messaging/producer"
	"pvchain/internal/models"
	ledger "pvchain/ledger/client"
	"pvchain/storage/store"
)

// AnchorState tells the caller how far an approval got. Approval and
// anchoring are deliberately distinct outcomes: "approved, anchor pending"
// is a success variant, not a failure.
type AnchorState string

const (
	// Anchored means the ledger commitment is confirmed.
	Anchored AnchorState = "anchored"
	// AnchorPending means the report is approved but the ledger commitment
	// has not been confirmed yet; a retry path will complete it.
	AnchorPending AnchorState = "anchor-pending"
)

// Outcome is the structurally distinct result of an Approve or RetryAnchor
// transition.
type Outcome struct {
	Report      *models.Report
	AnchorState AnchorState
	// AnchorError carries the error class of the last anchor failure when
	// AnchorState is AnchorPending.
	AnchorError string
	// AlreadyApproved is set when Approve found the report approved and
	// returned the existing result without re-hashing.
	AlreadyApproved bool
}

// Pipeline drives the approval state machine.
type Pipeline struct {
	store    store.Store
	cas      cas.Client
	ledger   ledger.LedgerClient
	producer producer.Producer // anchor retry queue, may be nil
	emitter  events.Emitter
	logger   *log.Logger
	locks    *batchLocks

	storageTimeout time.Duration
	anchorTimeout  time.Duration

	now func() time.Time
}

// Options configures a Pipeline.
type Options struct {
	Store    store.Store
	CAS      cas.Client
	Ledger   ledger.LedgerClient
	Producer producer.Producer // optional
	Emitter  events.Emitter    // optional
	Logger   *log.Logger

	// StorageTimeout bounds the CAS put; AnchorTimeout bounds the ledger
	// submit. The anchor timeout is the larger of the two because submit
	// waits for confirmation.
	StorageTimeout time.Duration
	AnchorTimeout  time.Duration
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.Discard{}
	}
	storageTimeout := opts.StorageTimeout
	if storageTimeout == 0 {
		storageTimeout = 15 * time.Second
	}
	anchorTimeout := opts.AnchorTimeout
	if anchorTimeout == 0 {
		anchorTimeout = 45 * time.Second
	}
	return &Pipeline{
		store:          opts.Store,
		cas:            opts.CAS,
		ledger:         opts.Ledger,
		producer:       opts.Producer,
		emitter:        emitter,
		logger:         opts.Logger,
		locks:          newBatchLocks(),
		storageTimeout: storageTimeout,
		anchorTimeout:  anchorTimeout,
		now:            time.Now,
	}
}

// Approve runs the approval transition for batchID on behalf of approverID.
// The approver identity comes from the authentication layer and is trusted
// here.
//
// On an already-approved report Approve is a no-op returning the existing
// result. Failures in the hash or storage steps leave the report pending
// with nothing persisted, so a later retry starts clean. A failure in the
// anchor step leaves the report fully approved with an anchor-failed marker.
func (p *Pipeline) Approve(ctx context.Context, batchID, approverID, notes string) (*Outcome, error) {
	if batchID == "" {
		return nil, errs.New(errs.KindValidation, "approval.approve", "batch id is required")
	}
	if approverID == "" {
		return nil, errs.New(errs.KindValidation, "approval.approve", "approver id is required")
	}

	if !p.locks.tryAcquire(batchID) {
		return nil, errs.New(errs.KindConcurrency, "approval.approve", "another transition is in progress for batch "+batchID)
	}
	defer p.locks.release(batchID)

	report, err := p.store.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	switch report.Status {
	case models.StatusApproved:
		// Idempotent re-invocation: return the existing result without
		// re-hashing or re-storing.
		return p.outcomeFor(report, true), nil
	case models.StatusRejected:
		return nil, errs.New(errs.KindValidation, "approval.approve", "report has been rejected")
	}

	p.emitter.Emit(events.New(events.ApprovalStarted, batchID, approverID, ""))

	// Step 1: freeze the snapshot. The approver identity and timestamp are
	// part of what downstream parties verify, so they go into the hashed
	// payload.
	approvedAt := p.now().UTC()
	snapshot := models.Snapshot{
		BatchID:    report.BatchID,
		Submitter:  report.Submitter,
		Content:    report.Content,
		ApprovedBy: approverID,
		ApprovedAt: approvedAt,
	}

	// Step 2: fingerprint. A serialization failure is fatal to this attempt
	// and must not mutate report state.
	data, err := canonical.Marshal(snapshot)
	if err != nil {
		p.emitter.Emit(events.New(events.ApprovalFailed, batchID, approverID, "canonical serialization failed"))
		return nil, err
	}
	fingerprint := canonical.SumHex(data)

	// Step 3: durable off-chain storage. The fingerprint is not persisted
	// before this succeeds: an approved fingerprint without a corresponding
	// stored snapshot would be unverifiable.
	putCtx, cancelPut := context.WithTimeout(ctx, p.storageTimeout)
	storageRef, err := p.cas.Put(putCtx, data, cas.Metadata{BatchID: batchID, Fingerprint: fingerprint})
	cancelPut()
	if err != nil {
		p.emitter.Emit(events.New(events.ApprovalFailed, batchID, approverID, "snapshot storage failed: "+string(errs.KindOf(err))))
		p.logger.Printf("Approval aborted for batch %s: snapshot storage failed (%v). Report remains pending.", batchID, err)
		return nil, err
	}

	// Step 4: persist approval. From here on the report is approved for all
	// business purposes; anchoring is an enhancement, not a precondition.
	if err := p.store.MarkApproved(ctx, batchID, fingerprint, storageRef, approverID, notes, approvedAt); err != nil {
		if errs.KindOf(err) == errs.KindConcurrency {
			// Lost a cross-process race. If the winner approved the report,
			// return its result.
			if current, getErr := p.store.GetByBatchID(ctx, batchID); getErr == nil && current.Status == models.StatusApproved {
				return p.outcomeFor(current, true), nil
			}
		}
		return nil, err
	}
	report, err = p.store.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	p.emitter.Emit(events.New(events.ApprovalSucceeded, batchID, approverID, "fingerprint "+fingerprint))

	// Step 5: anchor. Any failure here leaves the report approved.
	state, anchorErrClass := p.anchor(ctx, report)
	report, err = p.store.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Report: report, AnchorState: state, AnchorError: anchorErrClass}, nil
}

// Reject runs the reject transition. It requires a non-empty reason and is
// terminal: no hashing, storage or anchoring happens.
func (p *Pipeline) Reject(ctx context.Context, batchID, reviewerID, reason string) (*models.Report, error) {
	if batchID == "" {
		return nil, errs.New(errs.KindValidation, "approval.reject", "batch id is required")
	}
	if reason == "" {
		return nil, errs.New(errs.KindValidation, "approval.reject", "rejection reason is required")
	}

	if !p.locks.tryAcquire(batchID) {
		return nil, errs.New(errs.KindConcurrency, "approval.reject", "another transition is in progress for batch "+batchID)
	}
	defer p.locks.release(batchID)

	report, err := p.store.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if report.Status != models.StatusPending {
		return nil, errs.New(errs.KindValidation, "approval.reject", "report is not pending")
	}

	if err := p.store.MarkRejected(ctx, batchID, reviewerID, reason, p.now().UTC()); err != nil {
		return nil, err
	}
	p.emitter.Emit(events.New(events.ReportRejected, batchID, reviewerID, reason))

	return p.store.GetByBatchID(ctx, batchID)
}

// RetryAnchor re-runs the anchor step only, for approved reports whose
// anchoring previously failed. It never re-hashes or re-stores: the frozen
// snapshot and fingerprint stay exactly as approved.
func (p *Pipeline) RetryAnchor(ctx context.Context, batchID string) (*Outcome, error) {
	if !p.locks.tryAcquire(batchID) {
		return nil, errs.New(errs.KindConcurrency, "approval.retry_anchor", "another transition is in progress for batch "+batchID)
	}
	defer p.locks.release(batchID)

	report, err := p.store.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if report.Status != models.StatusApproved {
		return nil, errs.New(errs.KindValidation, "approval.retry_anchor", "report is not approved")
	}
	if report.AnchorRef != "" && report.AnchorStatus == models.AnchorConfirmed {
		return &Outcome{Report: report, AnchorState: Anchored, AlreadyApproved: true}, nil
	}

	state, anchorErrClass := p.anchor(ctx, report)
	report, err = p.store.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Report: report, AnchorState: state, AnchorError: anchorErrClass}, nil
}

// anchor submits the commitment and persists the result. It returns the
// resulting anchor state and, for failures, the error class. Anchor
// failures are absorbed here: this is the one place in the pipeline where a
// failure is deliberately recorded instead of propagated, and it is always
// logged.
func (p *Pipeline) anchor(ctx context.Context, report *models.Report) (AnchorState, string) {
	submitCtx, cancel := context.WithTimeout(ctx, p.anchorTimeout)
	proof, err := p.ledger.Submit(submitCtx, report.BatchID, report.Fingerprint, report.StorageRef, report.Submitter)
	cancel()

	if err == nil {
		if setErr := p.store.SetAnchored(ctx, report.BatchID, proof.TransactionID); setErr != nil {
			p.logger.Printf("CRITICAL: anchor confirmed for batch %s (tx %s) but persisting it failed: %v", report.BatchID, proof.TransactionID, setErr)
			return AnchorPending, string(errs.KindOf(setErr))
		}
		p.emitter.Emit(events.New(events.AnchorSucceeded, report.BatchID, report.ApprovedBy, "tx "+proof.TransactionID))
		return Anchored, ""
	}

	errClass := string(errs.KindOf(err))
	if errClass == "" {
		errClass = "unknown"
	}
	p.logger.Printf("Anchor failed for batch %s (%s): %v. Report remains approved, anchor pending.", report.BatchID, errClass, err)
	p.emitter.Emit(events.New(events.AnchorFailed, report.BatchID, report.ApprovedBy, errClass))

	if setErr := p.store.SetAnchorFailed(ctx, report.BatchID, errClass); setErr != nil {
		p.logger.Printf("CRITICAL: recording anchor failure for batch %s failed: %v", report.BatchID, setErr)
	}
	p.enqueueRetry(ctx, report.BatchID)
	return AnchorPending, errClass
}

// enqueueRetry publishes an anchor task for the background engine. Enqueue
// failure is logged and dropped: the manual retry endpoint and the backfill
// scan still cover the report.
func (p *Pipeline) enqueueRetry(ctx context.Context, batchID string) {
	if p.producer == nil {
		return
	}
	task := &models.AnchorTask{
		TaskID:     uuid.NewString(),
		BatchID:    batchID,
		EnqueuedAt: p.now().UTC().Format(time.RFC3339Nano),
	}
	if err := p.producer.Publish(ctx, task); err != nil {
		p.logger.Printf("Failed to enqueue anchor retry for batch %s: %v", batchID, err)
	}
}

func (p *Pipeline) outcomeFor(report *models.Report, already bool) *Outcome {
	state := AnchorPending
	if report.AnchorStatus == models.AnchorConfirmed && report.AnchorRef != "" {
		state = Anchored
	}
	return &Outcome{
		Report:          report,
		AnchorState:     state,
		AnchorError:     report.AnchorError,
		AlreadyApproved: already,
	}
}
