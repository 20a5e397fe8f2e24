package store

import (
	"context"
	"time"

	"pvchain/internal/models"
)

// Store is the document store holding report records. Implementations must
// make the approval transitions conditional on the current status so that
// concurrent transitions on the same batch serialize at the database even if
// the in-process lock is bypassed.
type Store interface {
	// CreateReport inserts a new pending report. A duplicate batch id is a
	// validation error: batch ids are unique business keys.
	CreateReport(ctx context.Context, r *models.Report) error

	// GetByBatchID returns the report for the batch, or a not_found error.
	GetByBatchID(ctx context.Context, batchID string) (*models.Report, error)

	// ListByStatus returns up to limit reports in the given status, newest
	// first. Used by admin dashboards and the anchor backfill path.
	ListByStatus(ctx context.Context, status models.ReportStatus, limit int) ([]*models.Report, error)

	// MarkApproved persists status=approved together with the fingerprint
	// and storage ref, only if the report is still pending. If the
	// conditional update matches no row it returns an already_in_progress
	// error: some other transition won.
	MarkApproved(ctx context.Context, batchID, fingerprint, storageRef, approvedBy, notes string, approvedAt time.Time) error

	// MarkRejected persists status=rejected with the reason, only if the
	// report is still pending.
	MarkRejected(ctx context.Context, batchID, rejectedBy, reason string, rejectedAt time.Time) error

	// SetAnchored records a confirmed anchor for an approved report.
	SetAnchored(ctx context.Context, batchID, anchorRef string) error

	// SetAnchorFailed records an anchor failure class for an approved
	// report, leaving the anchor ref empty.
	SetAnchorFailed(ctx context.Context, batchID, errClass string) error

	// ClearAnchor removes any stale anchor state before a retry against a
	// changed fingerprint.
	ClearAnchor(ctx context.Context, batchID string) error

	Close()
}
