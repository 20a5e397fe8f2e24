// Package service implements the submission-side business logic of the API
// gateway: validating merchant reports and creating the pending records the
// approval pipeline later acts on.
package service

import (
	"context"
	"log"
	"time"

	"pvchain/internal/errs"
	"pvchain/internal/models"
	"pvchain/storage/store"
)

// SubmitInput defines the information required for a report submission.
type SubmitInput struct {
	BatchID   string
	Submitter string
	Content   models.ReportContent
}

// Service encapsulates the core business logic of the API gateway.
type Service struct {
	store  store.Store
	logger *log.Logger
	now    func() time.Time
}

// NewService creates a new Service instance.
func NewService(s store.Store, l *log.Logger) *Service {
	return &Service{store: s, logger: l, now: time.Now}
}

// Submit validates the input and creates a pending report. The batch id is
// the unique business key; resubmitting an existing batch is rejected rather
// than overwritten, because the existing record may already be approved and
// anchored.
func (s *Service) Submit(ctx context.Context, input *SubmitInput) (*models.Report, error) {
	if err := validateSubmission(input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	report := &models.Report{
		BatchID:   input.BatchID,
		Submitter: input.Submitter,
		Content:   input.Content,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateReport(ctx, report); err != nil {
		return nil, err
	}
	s.logger.Printf("Report submitted for batch %s by %s", input.BatchID, input.Submitter)
	return report, nil
}

// Get returns the report for a batch id.
func (s *Service) Get(ctx context.Context, batchID string) (*models.Report, error) {
	if batchID == "" {
		return nil, errs.New(errs.KindValidation, "gateway.get", "batch id is required")
	}
	return s.store.GetByBatchID(ctx, batchID)
}

// ListByStatus returns up to limit reports in the given status, for the
// admin review queue.
func (s *Service) ListByStatus(ctx context.Context, status models.ReportStatus, limit int) ([]*models.Report, error) {
	switch status {
	case models.StatusPending, models.StatusApproved, models.StatusRejected:
	default:
		return nil, errs.New(errs.KindValidation, "gateway.list", "unknown status "+string(status))
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListByStatus(ctx, status, limit)
}

func validateSubmission(input *SubmitInput) error {
	const op = "gateway.submit"
	if input.BatchID == "" {
		return errs.New(errs.KindValidation, op, "batchId is required")
	}
	if input.Submitter == "" {
		return errs.New(errs.KindValidation, op, "submitter is required")
	}
	c := input.Content
	if c.Ingredients == nil && c.TestProcess == nil && c.Authentication == nil && c.Raw == "" {
		return errs.New(errs.KindValidation, op, "report content is empty")
	}
	if ing := c.Ingredients; ing != nil {
		if ing.ProductName == "" || ing.Manufacturer == "" || ing.Ingredients == "" {
			return errs.New(errs.KindValidation, op, "ingredients section requires productName, manufacturer and ingredients")
		}
	}
	if tp := c.TestProcess; tp != nil {
		if tp.TestingLaboratory == "" || tp.TestResults == "" {
			return errs.New(errs.KindValidation, op, "testProcess section requires testingLaboratory and testResults")
		}
	}
	if auth := c.Authentication; auth != nil {
		if auth.Certificates == "" {
			return errs.New(errs.KindValidation, op, "authentication section requires certificates")
		}
	}
	return nil
}
