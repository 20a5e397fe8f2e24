package verify

import (
	"context"
	"io"
	"log"
	"testing"

	"pvchain/approval"
	"pvchain/cas"
	"pvchain/internal/errs"
	"pvchain/internal/models"
	"pvchain/ledger/client/memledger"
	"pvchain/storage/store"
)

type env struct {
	store    *store.MemoryStore
	ledger   *memledger.Ledger
	pipeline *approval.Pipeline
	engine   *Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	s := store.NewMemoryStore()
	l := memledger.New(logger)
	p := approval.New(approval.Options{Store: s, CAS: cas.NewMemoryClient(), Ledger: l, Logger: logger})
	return &env{
		store:    s,
		ledger:   l,
		pipeline: p,
		engine:   NewEngine(s, l, logger, 0),
	}
}

func fullContent() models.ReportContent {
	return models.ReportContent{
		Ingredients: &models.IngredientsSection{
			ProductName:  "Vitamin C 500mg",
			Manufacturer: "Acme Labs",
			Ingredients:  "ascorbic acid",
		},
		TestProcess: &models.TestProcessSection{
			TestingLaboratory: "CentralLab",
			TestResults:       "pass",
		},
		Authentication: &models.AuthenticationSection{
			Certificates: "ISO-22000",
		},
	}
}

func (e *env) seed(t *testing.T, batchID string, content models.ReportContent) {
	t.Helper()
	err := e.store.CreateReport(context.Background(), &models.Report{
		BatchID:   batchID,
		Submitter: "merchant-1",
		Content:   content,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (e *env) approve(t *testing.T, batchID string) {
	t.Helper()
	if _, err := e.pipeline.Approve(context.Background(), batchID, "admin-1", ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}
}

func TestVerify_FullyAnchoredReport(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "B-1", fullContent())
	e.approve(t, "B-1")

	res, err := e.engine.Verify(context.Background(), "B-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Verified {
		t.Fatalf("not verified: %+v", res)
	}
	if !res.OnChain || !res.HashesMatch {
		t.Errorf("onChain=%v hashesMatch=%v, want both true", res.OnChain, res.HashesMatch)
	}
	if res.TrustScore != 100 {
		t.Errorf("trust score = %d, want 100", res.TrustScore)
	}
	if res.Fingerprint == "" || res.AnchorRef == "" {
		t.Error("result missing fingerprint or anchor ref")
	}
}

func TestVerify_MinimalContent(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "B-1", models.ReportContent{Raw: "legacy free-text report"})
	e.approve(t, "B-1")

	res, err := e.engine.Verify(context.Background(), "B-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Verified {
		t.Fatal("not verified")
	}
	// Integrity (30) plus anchored (25), no structured sections.
	if res.TrustScore != 55 {
		t.Errorf("trust score = %d, want 55", res.TrustScore)
	}
}

func TestVerify_ApprovedButUnanchored(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "B-1", fullContent())
	e.ledger.SubmitErr = errs.New(errs.KindRetryable, "ledger.submit", "down")
	e.approve(t, "B-1")

	res, err := e.engine.Verify(context.Background(), "B-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Verified {
		t.Fatal("approved report must verify without an anchor")
	}
	if res.OnChain {
		t.Error("onChain true without an anchor")
	}
	if !res.HashesMatch {
		t.Error("hashesMatch false without a mismatch")
	}
	// All content factors, no chain factor.
	if res.TrustScore != 75 {
		t.Errorf("trust score = %d, want 75", res.TrustScore)
	}
}

func TestVerify_LedgerOutageDegradesGracefully(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "B-1", fullContent())
	e.approve(t, "B-1")
	e.ledger.LookupErr = errs.New(errs.KindRetryable, "ledger.lookup", "all nodes down")

	res, err := e.engine.Verify(context.Background(), "B-1")
	if err != nil {
		t.Fatalf("Verify must not fail on ledger outage: %v", err)
	}
	if !res.Verified {
		t.Fatal("not verified")
	}
	if res.OnChain {
		t.Error("onChain true while ledger unreachable")
	}
	if !res.HashesMatch {
		t.Error("outage reported as a hash mismatch")
	}
	if res.LedgerDiagnostic == "" {
		t.Error("missing ledger diagnostic")
	}
	if res.TrustScore != 75 {
		t.Errorf("trust score = %d, want 75", res.TrustScore)
	}
}

func TestVerify_FingerprintMismatchSurfaces(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "B-1", fullContent())
	e.approve(t, "B-1")

	// Tamper with the stored record after anchoring.
	r, err := e.store.GetByBatchID(context.Background(), "B-1")
	if err != nil {
		t.Fatal(err)
	}
	tampered := memledger.New(log.New(io.Discard, "", 0))
	if _, err := tampered.Submit(context.Background(), "B-1", "fp-forged", r.StorageRef, r.Submitter); err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(e.store, tampered, log.New(io.Discard, "", 0), 0)

	res, err := engine.Verify(context.Background(), "B-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.OnChain {
		t.Error("commitment exists, onChain should be true")
	}
	if res.HashesMatch {
		t.Error("mismatch was silently ignored")
	}
	if res.TrustScore >= 100 {
		t.Errorf("trust score = %d despite mismatch", res.TrustScore)
	}
}

func TestVerify_MissingAndRejectedIndistinguishable(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "B-rejected", fullContent())
	if _, err := e.pipeline.Reject(context.Background(), "B-rejected", "admin-1", "bad data"); err != nil {
		t.Fatal(err)
	}
	e.seed(t, "B-pending", fullContent())

	for _, batchID := range []string{"B-rejected", "B-pending", "B-never-existed"} {
		res, err := e.engine.Verify(context.Background(), batchID)
		if err != nil {
			t.Fatalf("Verify(%s): %v", batchID, err)
		}
		if res.Verified {
			t.Errorf("%s: verified should be false", batchID)
		}
		if res.Reason != ReasonNotApprovedOrMissing {
			t.Errorf("%s: reason = %q, want %q", batchID, res.Reason, ReasonNotApprovedOrMissing)
		}
		if res.Content != nil || res.Fingerprint != "" {
			t.Errorf("%s: response leaks report details", batchID)
		}
	}
}

func TestVerify_EmptyBatchID(t *testing.T) {
	e := newEnv(t)
	_, err := e.engine.Verify(context.Background(), "")
	if errs.KindOf(err) != errs.KindValidation {
		t.Errorf("kind = %q, want %q", errs.KindOf(err), errs.KindValidation)
	}
}
