package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pvchain/internal/errs"
	"pvchain/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
    batch_id         TEXT PRIMARY KEY,
    submitter        TEXT NOT NULL,
    content          JSONB NOT NULL,
    status           TEXT NOT NULL DEFAULT 'pending',
    fingerprint      TEXT,
    storage_ref      TEXT,
    anchor_ref       TEXT,
    anchor_status    TEXT NOT NULL DEFAULT '',
    anchor_error     TEXT NOT NULL DEFAULT '',
    approved_at      TIMESTAMPTZ,
    approved_by      TEXT NOT NULL DEFAULT '',
    approval_notes   TEXT NOT NULL DEFAULT '',
    rejected_at      TIMESTAMPTZ,
    rejected_by      TEXT NOT NULL DEFAULT '',
    rejection_reason TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports (status, created_at DESC);
`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewPostgresStore connects to the database, applies the schema and returns
// the store.
func NewPostgresStore(ctx context.Context, dsn string, minConns, maxConns int, logger *log.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	if minConns > 0 {
		poolCfg.MinConns = int32(minConns)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Println("Postgres report store initialized.")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) CreateReport(ctx context.Context, r *models.Report) error {
	contentJSON, err := json.Marshal(r.Content)
	if err != nil {
		return errs.Wrap(errs.KindValidation, "store.create", "serialize report content", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO reports (batch_id, submitter, content, status)
		VALUES ($1, $2, $3::jsonb, $4)
	`, r.BatchID, r.Submitter, string(contentJSON), string(models.StatusPending))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return errs.Newf(errs.KindValidation, "store.create", "batch id %s already exists", r.BatchID)
		}
		return errs.Wrap(errs.KindRetryable, "store.create", "insert report", err)
	}
	return nil
}

const reportColumns = `
	batch_id, submitter, content, status,
	COALESCE(fingerprint, ''), COALESCE(storage_ref, ''), COALESCE(anchor_ref, ''),
	anchor_status, anchor_error,
	approved_at, approved_by, approval_notes,
	rejected_at, rejected_by, rejection_reason,
	created_at, updated_at`

func scanReport(row pgx.Row) (*models.Report, error) {
	var (
		r           models.Report
		contentJSON []byte
		status      string
		anchorSt    string
	)
	err := row.Scan(
		&r.BatchID, &r.Submitter, &contentJSON, &status,
		&r.Fingerprint, &r.StorageRef, &r.AnchorRef,
		&anchorSt, &r.AnchorError,
		&r.ApprovedAt, &r.ApprovedBy, &r.ApprovalNotes,
		&r.RejectedAt, &r.RejectedBy, &r.RejectionReason,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = models.ReportStatus(status)
	r.AnchorStatus = models.AnchorStatus(anchorSt)
	if err := json.Unmarshal(contentJSON, &r.Content); err != nil {
		return nil, fmt.Errorf("failed to decode report content: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) GetByBatchID(ctx context.Context, batchID string) (*models.Report, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE batch_id = $1`, batchID)
	r, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.KindNotFound, "store.get", "no report for batch "+batchID)
		}
		return nil, errs.Wrap(errs.KindRetryable, "store.get", "query report", err)
	}
	return r, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.ReportStatus, limit int) ([]*models.Report, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+reportColumns+` FROM reports
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, errs.Wrap(errs.KindRetryable, "store.list", "query reports", err)
	}
	defer rows.Close()

	var reports []*models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindRetryable, "store.list", "scan report row", err)
		}
		reports = append(reports, r)
	}
	if rows.Err() != nil {
		return nil, errs.Wrap(errs.KindRetryable, "store.list", "iterate report rows", rows.Err())
	}
	return reports, nil
}

func (s *PostgresStore) MarkApproved(ctx context.Context, batchID, fingerprint, storageRef, approvedBy, notes string, approvedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reports
		SET status = 'approved', fingerprint = $2, storage_ref = $3,
		    approved_at = $4, approved_by = $5, approval_notes = $6,
		    updated_at = now()
		WHERE batch_id = $1 AND status = 'pending'
	`, batchID, fingerprint, storageRef, approvedAt, approvedBy, notes)
	if err != nil {
		return errs.Wrap(errs.KindRetryable, "store.approve", "update report", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindConcurrency, "store.approve", "report is not pending")
	}
	return nil
}

func (s *PostgresStore) MarkRejected(ctx context.Context, batchID, rejectedBy, reason string, rejectedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reports
		SET status = 'rejected', rejected_at = $2, rejected_by = $3,
		    rejection_reason = $4, updated_at = now()
		WHERE batch_id = $1 AND status = 'pending'
	`, batchID, rejectedAt, rejectedBy, reason)
	if err != nil {
		return errs.Wrap(errs.KindRetryable, "store.reject", "update report", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindConcurrency, "store.reject", "report is not pending")
	}
	return nil
}

func (s *PostgresStore) SetAnchored(ctx context.Context, batchID, anchorRef string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reports
		SET anchor_ref = $2, anchor_status = 'confirmed', anchor_error = '',
		    updated_at = now()
		WHERE batch_id = $1 AND status = 'approved'
	`, batchID, anchorRef)
	if err != nil {
		return errs.Wrap(errs.KindRetryable, "store.anchor", "update report", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "store.anchor", "no approved report for batch "+batchID)
	}
	return nil
}

func (s *PostgresStore) SetAnchorFailed(ctx context.Context, batchID, errClass string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reports
		SET anchor_ref = NULL, anchor_status = 'failed', anchor_error = $2,
		    updated_at = now()
		WHERE batch_id = $1 AND status = 'approved'
	`, batchID, errClass)
	if err != nil {
		return errs.Wrap(errs.KindRetryable, "store.anchor", "update report", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.KindNotFound, "store.anchor", "no approved report for batch "+batchID)
	}
	return nil
}

func (s *PostgresStore) ClearAnchor(ctx context.Context, batchID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE reports
		SET anchor_ref = NULL, anchor_status = '', anchor_error = '',
		    updated_at = now()
		WHERE batch_id = $1
	`, batchID)
	if err != nil {
		return errs.Wrap(errs.KindRetryable, "store.anchor", "clear anchor state", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

var _ Store = (*PostgresStore)(nil)
