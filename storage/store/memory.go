package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"pvchain/internal/errs"
	"pvchain/internal/models"
)

// MemoryStore implements Store in process memory. It is the injected test
// backend and also serves mock deployments without a database.
type MemoryStore struct {
	mu      sync.Mutex
	reports map[string]*models.Report
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[string]*models.Report)}
}

func (s *MemoryStore) CreateReport(ctx context.Context, r *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.BatchID]; ok {
		return errs.Newf(errs.KindValidation, "store.create", "batch id %s already exists", r.BatchID)
	}
	cp := *r
	cp.Status = models.StatusPending
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.reports[r.BatchID] = &cp
	return nil
}

func (s *MemoryStore) GetByBatchID(ctx context.Context, batchID string) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[batchID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "store.get", "no report for batch "+batchID)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status models.ReportStatus, limit int) ([]*models.Report, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Report
	for _, r := range s.reports {
		if r.Status == status {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkApproved(ctx context.Context, batchID, fingerprint, storageRef, approvedBy, notes string, approvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[batchID]
	if !ok {
		return errs.New(errs.KindNotFound, "store.approve", "no report for batch "+batchID)
	}
	if r.Status != models.StatusPending {
		return errs.New(errs.KindConcurrency, "store.approve", "report is not pending")
	}
	r.Status = models.StatusApproved
	r.Fingerprint = fingerprint
	r.StorageRef = storageRef
	at := approvedAt
	r.ApprovedAt = &at
	r.ApprovedBy = approvedBy
	r.ApprovalNotes = notes
	r.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MarkRejected(ctx context.Context, batchID, rejectedBy, reason string, rejectedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[batchID]
	if !ok {
		return errs.New(errs.KindNotFound, "store.reject", "no report for batch "+batchID)
	}
	if r.Status != models.StatusPending {
		return errs.New(errs.KindConcurrency, "store.reject", "report is not pending")
	}
	r.Status = models.StatusRejected
	at := rejectedAt
	r.RejectedAt = &at
	r.RejectedBy = rejectedBy
	r.RejectionReason = reason
	r.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetAnchored(ctx context.Context, batchID, anchorRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[batchID]
	if !ok || r.Status != models.StatusApproved {
		return errs.New(errs.KindNotFound, "store.anchor", "no approved report for batch "+batchID)
	}
	r.AnchorRef = anchorRef
	r.AnchorStatus = models.AnchorConfirmed
	r.AnchorError = ""
	r.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetAnchorFailed(ctx context.Context, batchID, errClass string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[batchID]
	if !ok || r.Status != models.StatusApproved {
		return errs.New(errs.KindNotFound, "store.anchor", "no approved report for batch "+batchID)
	}
	r.AnchorRef = ""
	r.AnchorStatus = models.AnchorFailed
	r.AnchorError = errClass
	r.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ClearAnchor(ctx context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[batchID]
	if !ok {
		return errs.New(errs.KindNotFound, "store.anchor", "no report for batch "+batchID)
	}
	r.AnchorRef = ""
	r.AnchorStatus = models.AnchorNone
	r.AnchorError = ""
	r.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Close() {}

var _ Store = (*MemoryStore)(nil)
