package service

import (
	"context"
	"io"
	"log"
	"testing"

	"pvchain/internal/errs"
	"pvchain/internal/models"
	"pvchain/storage/store"
)

func newTestService() *Service {
	return NewService(store.NewMemoryStore(), log.New(io.Discard, "", 0))
}

func validInput() *SubmitInput {
	return &SubmitInput{
		BatchID:   "B-1",
		Submitter: "merchant-1",
		Content: models.ReportContent{
			Ingredients: &models.IngredientsSection{
				ProductName:  "Vitamin C 500mg",
				Manufacturer: "Acme Labs",
				Ingredients:  "ascorbic acid",
			},
		},
	}
}

func TestSubmit_CreatesPendingReport(t *testing.T) {
	svc := newTestService()
	r, err := svc.Submit(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r.Status != models.StatusPending {
		t.Errorf("status = %s, want pending", r.Status)
	}
	if r.Fingerprint != "" || r.StorageRef != "" || r.AnchorRef != "" {
		t.Error("submission produced approval artifacts")
	}

	got, err := svc.Get(context.Background(), "B-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Submitter != "merchant-1" {
		t.Errorf("submitter = %s", got.Submitter)
	}
}

func TestSubmit_DuplicateBatch(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Submit(context.Background(), validInput()); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Submit(context.Background(), validInput())
	if errs.KindOf(err) != errs.KindValidation {
		t.Errorf("kind = %q, want %q", errs.KindOf(err), errs.KindValidation)
	}
}

func TestSubmit_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SubmitInput)
	}{
		{"missing batch id", func(in *SubmitInput) { in.BatchID = "" }},
		{"missing submitter", func(in *SubmitInput) { in.Submitter = "" }},
		{"empty content", func(in *SubmitInput) { in.Content = models.ReportContent{} }},
		{"ingredients missing product name", func(in *SubmitInput) { in.Content.Ingredients.ProductName = "" }},
		{"test process missing lab", func(in *SubmitInput) {
			in.Content.TestProcess = &models.TestProcessSection{TestResults: "pass"}
		}},
		{"authentication missing certificates", func(in *SubmitInput) {
			in.Content.Authentication = &models.AuthenticationSection{ComplianceChecks: "ok"}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService()
			in := validInput()
			tc.mutate(in)
			_, err := svc.Submit(context.Background(), in)
			if errs.KindOf(err) != errs.KindValidation {
				t.Errorf("kind = %q, want %q (err: %v)", errs.KindOf(err), errs.KindValidation, err)
			}
		})
	}
}

func TestSubmit_RawOnlyContent(t *testing.T) {
	svc := newTestService()
	_, err := svc.Submit(context.Background(), &SubmitInput{
		BatchID:   "B-legacy",
		Submitter: "merchant-1",
		Content:   models.ReportContent{Raw: "free-text legacy report"},
	})
	if err != nil {
		t.Fatalf("raw-only submission rejected: %v", err)
	}
}

func TestListByStatus(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Submit(context.Background(), validInput()); err != nil {
		t.Fatal(err)
	}

	reports, err := svc.ListByStatus(context.Background(), models.StatusPending, 10)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(reports) != 1 {
		t.Errorf("count = %d, want 1", len(reports))
	}

	_, err = svc.ListByStatus(context.Background(), "bogus", 10)
	if errs.KindOf(err) != errs.KindValidation {
		t.Errorf("kind = %q, want %q", errs.KindOf(err), errs.KindValidation)
	}
}
