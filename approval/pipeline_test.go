package approval

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"pvchain/cas"
	"pvchain/internal/errs"
	"pvchain/internal/models"
	"pvchain/ledger/client/memledger"
	"pvchain/storage/store"
)

type fixture struct {
	store    *store.MemoryStore
	cas      *cas.MemoryClient
	ledger   *memledger.Ledger
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	s := store.NewMemoryStore()
	c := cas.NewMemoryClient()
	l := memledger.New(logger)
	p := New(Options{Store: s, CAS: c, Ledger: l, Logger: logger})
	return &fixture{store: s, cas: c, ledger: l, pipeline: p}
}

func (f *fixture) seedPending(t *testing.T, batchID string) {
	t.Helper()
	err := f.store.CreateReport(context.Background(), &models.Report{
		BatchID:   batchID,
		Submitter: "merchant-1",
		Content: models.ReportContent{
			Ingredients: &models.IngredientsSection{
				ProductName:  "Vitamin C 500mg",
				Manufacturer: "Acme Labs",
				Ingredients:  "ascorbic acid, cellulose",
			},
			TestProcess: &models.TestProcessSection{
				TestingLaboratory: "CentralLab",
				TestResults:       "pass",
			},
			Authentication: &models.AuthenticationSection{
				Certificates: "ISO-22000",
			},
		},
	})
	if err != nil {
		t.Fatalf("seed report: %v", err)
	}
}

func TestApprove_HappyPath(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "B-1")

	out, err := f.pipeline.Approve(context.Background(), "B-1", "admin-1", "looks good")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if out.AnchorState != Anchored {
		t.Errorf("anchor state = %s, want %s", out.AnchorState, Anchored)
	}

	r := out.Report
	if r.Status != models.StatusApproved {
		t.Errorf("status = %s, want approved", r.Status)
	}
	if r.Fingerprint == "" || r.StorageRef == "" {
		t.Error("approved report missing fingerprint or storage ref")
	}
	if r.AnchorRef == "" || r.AnchorStatus != models.AnchorConfirmed {
		t.Errorf("anchor not recorded: ref=%q status=%q", r.AnchorRef, r.AnchorStatus)
	}
	if r.ApprovedBy != "admin-1" || r.ApprovedAt == nil {
		t.Error("approver identity not recorded")
	}

	// The stored snapshot must hash to the persisted fingerprint.
	data, err := f.cas.Get(context.Background(), r.StorageRef)
	if err != nil {
		t.Fatalf("snapshot fetch: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty snapshot")
	}

	// The ledger commitment must match the persisted fields.
	c, err := f.ledger.Lookup(context.Background(), "B-1")
	if err != nil {
		t.Fatalf("ledger lookup: %v", err)
	}
	if c.Fingerprint != r.Fingerprint || c.StorageRef != r.StorageRef {
		t.Errorf("ledger commitment %+v does not match report", c)
	}
}

func TestApprove_IdempotentReinvocation(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "B-1")

	first, err := f.pipeline.Approve(context.Background(), "B-1", "admin-1", "")
	if err != nil {
		t.Fatalf("first Approve: %v", err)
	}
	second, err := f.pipeline.Approve(context.Background(), "B-1", "admin-2", "")
	if err != nil {
		t.Fatalf("second Approve: %v", err)
	}
	if !second.AlreadyApproved {
		t.Error("second approval not flagged as already approved")
	}
	if second.Report.Fingerprint != first.Report.Fingerprint {
		t.Error("re-approval changed the fingerprint")
	}
	if second.Report.ApprovedBy != "admin-1" {
		t.Errorf("re-approval changed the approver to %s", second.Report.ApprovedBy)
	}
	if f.cas.Len() != 1 {
		t.Errorf("snapshot store holds %d objects, want 1", f.cas.Len())
	}
}

func TestApprove_RejectedReport(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "B-1")
	if _, err := f.pipeline.Reject(context.Background(), "B-1", "admin-1", "incomplete data"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	_, err := f.pipeline.Approve(context.Background(), "B-1", "admin-2", "")
	if errs.KindOf(err) != errs.KindValidation {
		t.Errorf("kind = %q, want %q", errs.KindOf(err), errs.KindValidation)
	}
}

func TestApprove_StorageFailureLeavesPending(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "B-1")
	failing := &failingCAS{err: errs.New(errs.KindRetryable, "cas.put", "storage unavailable")}
	f.pipeline.cas = failing

	_, err := f.pipeline.Approve(context.Background(), "B-1", "admin-1", "")
	if err == nil {
		t.Fatal("expected storage error")
	}
	if errs.KindOf(err) != errs.KindRetryable {
		t.Errorf("kind = %q", errs.KindOf(err))
	}

	r, err := f.store.GetByBatchID(context.Background(), "B-1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != models.StatusPending {
		t.Errorf("status = %s, want pending", r.Status)
	}
	if r.Fingerprint != "" || r.StorageRef != "" {
		t.Error("failed approval leaked fingerprint or storage ref")
	}
}

func TestApprove_LedgerFailureStillApproves(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "B-1")
	f.ledger.SubmitErr = errs.New(errs.KindRetryable, "ledger.submit", "all nodes down")

	out, err := f.pipeline.Approve(context.Background(), "B-1", "admin-1", "")
	if err != nil {
		t.Fatalf("Approve must not fail on anchor errors: %v", err)
	}
	if out.AnchorState != AnchorPending {
		t.Errorf("anchor state = %s, want %s", out.AnchorState, AnchorPending)
	}
	if out.AnchorError != string(errs.KindRetryable) {
		t.Errorf("anchor error class = %q", out.AnchorError)
	}

	r := out.Report
	if r.Status != models.StatusApproved {
		t.Errorf("status = %s, want approved", r.Status)
	}
	if r.Fingerprint == "" || r.StorageRef == "" {
		t.Error("approved report missing fingerprint or storage ref")
	}
	if r.AnchorRef != "" {
		t.Errorf("anchor ref set to %q despite ledger failure", r.AnchorRef)
	}
	if r.AnchorStatus != models.AnchorFailed {
		t.Errorf("anchor status = %q, want failed", r.AnchorStatus)
	}
}

func TestRetryAnchor_CompletesAfterLedgerRecovers(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "B-1")
	f.ledger.SubmitErr = errs.New(errs.KindRetryable, "ledger.submit", "all nodes down")

	first, err := f.pipeline.Approve(context.Background(), "B-1", "admin-1", "")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	f.ledger.SubmitErr = nil
	out, err := f.pipeline.RetryAnchor(context.Background(), "B-1")
	if err != nil {
		t.Fatalf("RetryAnchor: %v", err)
	}
	if out.AnchorState != Anchored {
		t.Errorf("anchor state = %s, want %s", out.AnchorState, Anchored)
	}
	if out.Report.AnchorRef == "" || out.Report.AnchorStatus != models.AnchorConfirmed {
		t.Error("anchor not recorded after retry")
	}
	// Retry must not have re-hashed: fingerprint unchanged.
	if out.Report.Fingerprint != first.Report.Fingerprint {
		t.Error("retry changed the fingerprint")
	}
	if f.cas.Len() != 1 {
		t.Errorf("snapshot store holds %d objects, want 1", f.cas.Len())
	}
}

func TestRetryAnchor_NoOpWhenAnchored(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "B-1")
	if _, err := f.pipeline.Approve(context.Background(), "B-1", "admin-1", ""); err != nil {
		t.Fatal(err)
	}

	out, err := f.pipeline.RetryAnchor(context.Background(), "B-1")
	if err != nil {
		t.Fatalf("RetryAnchor: %v", err)
	}
	if out.AnchorState != Anchored || !out.AlreadyApproved {
		t.Errorf("outcome = %+v, want anchored no-op", out)
	}
}

func TestRetryAnchor_NotApproved(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "B-1")

	_, err := f.pipeline.RetryAnchor(context.Background(), "B-1")
	if errs.KindOf(err) != errs.KindValidation {
		t.Errorf("kind = %q, want %q", errs.KindOf(err), errs.KindValidation)
	}
}

func TestReject_RequiresReason(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "B-1")

	_, err := f.pipeline.Reject(context.Background(), "B-1", "admin-1", "")
	if errs.KindOf(err) != errs.KindValidation {
		t.Errorf("kind = %q, want %q", errs.KindOf(err), errs.KindValidation)
	}

	r, err := f.store.GetByBatchID(context.Background(), "B-1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != models.StatusPending {
		t.Errorf("status = %s, want pending", r.Status)
	}
}

func TestReject_Terminal(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "B-1")

	r, err := f.pipeline.Reject(context.Background(), "B-1", "admin-1", "falsified lab data")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if r.Status != models.StatusRejected || r.RejectionReason != "falsified lab data" {
		t.Errorf("report = %+v", r)
	}
	if r.Fingerprint != "" || r.StorageRef != "" || r.AnchorRef != "" {
		t.Error("rejected report carries approval artifacts")
	}
	if f.cas.Len() != 0 {
		t.Error("rejection stored a snapshot")
	}
}

func TestApprove_ConcurrentSameBatch(t *testing.T) {
	f := newFixture(t)
	f.seedPending(t, "B-1")

	const n = 8
	var wg sync.WaitGroup
	outcomes := make([]*Outcome, n)
	errors := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errors[i] = f.pipeline.Approve(context.Background(), "B-1", "admin-1", "")
		}(i)
	}
	wg.Wait()

	var fingerprints []string
	for i := 0; i < n; i++ {
		switch {
		case errors[i] == nil:
			fingerprints = append(fingerprints, outcomes[i].Report.Fingerprint)
		case errs.KindOf(errors[i]) == errs.KindConcurrency:
			// Losers of the per-batch lock.
		default:
			t.Errorf("unexpected error: %v", errors[i])
		}
	}
	if len(fingerprints) == 0 {
		t.Fatal("no approval succeeded")
	}
	for _, fp := range fingerprints {
		if fp != fingerprints[0] {
			t.Error("successful approvals disagree on the fingerprint")
		}
	}
	if f.cas.Len() != 1 {
		t.Errorf("snapshot store holds %d objects, want 1", f.cas.Len())
	}
}

func TestApprove_Validation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.pipeline.Approve(context.Background(), "", "admin-1", ""); errs.KindOf(err) != errs.KindValidation {
		t.Errorf("empty batch id: kind = %q", errs.KindOf(err))
	}
	if _, err := f.pipeline.Approve(context.Background(), "B-1", "", ""); errs.KindOf(err) != errs.KindValidation {
		t.Errorf("empty approver: kind = %q", errs.KindOf(err))
	}
}

func TestApprove_MissingReport(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Approve(context.Background(), "nope", "admin-1", "")
	if errs.KindOf(err) != errs.KindNotFound {
		t.Errorf("kind = %q, want %q", errs.KindOf(err), errs.KindNotFound)
	}
}

// failingCAS rejects every Put.
type failingCAS struct {
	err error
}

func (f *failingCAS) Put(ctx context.Context, data []byte, meta cas.Metadata) (string, error) {
	return "", f.err
}

func (f *failingCAS) Get(ctx context.Context, ref string) ([]byte, error) {
	return nil, errs.New(errs.KindNotFound, "cas.get", "no object")
}

func (f *failingCAS) Close() error { return nil }
