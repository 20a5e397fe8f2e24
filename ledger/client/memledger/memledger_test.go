package memledger

import (
	"context"
	"io"
	"log"
	"testing"

	"pvchain/internal/errs"
)

func newTestLedger() *Ledger {
	return New(log.New(io.Discard, "", 0))
}

func TestSubmitAndLookup(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	proof, err := l.Submit(ctx, "B-1", "fp-1", "ref-1", "merchant-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if proof.TransactionID == "" {
		t.Error("empty transaction id")
	}
	if proof.BlockHeight == 0 {
		t.Error("block height not advanced")
	}

	c, err := l.Lookup(ctx, "B-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if c.Fingerprint != "fp-1" || c.StorageRef != "ref-1" || c.Submitter != "merchant-1" {
		t.Errorf("commitment = %+v", c)
	}
	if c.TxID != proof.TransactionID {
		t.Errorf("commitment tx %s, submit returned %s", c.TxID, proof.TransactionID)
	}
}

func TestSubmit_DuplicateSameFingerprint(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	first, err := l.Submit(ctx, "B-1", "fp-1", "ref-1", "m")
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second, err := l.Submit(ctx, "B-1", "fp-1", "ref-1", "m")
	if err != nil {
		t.Fatalf("duplicate Submit with same fingerprint: %v", err)
	}
	if second.TransactionID != first.TransactionID {
		t.Errorf("duplicate submit minted a new transaction: %s vs %s", second.TransactionID, first.TransactionID)
	}
}

func TestSubmit_ConflictingFingerprint(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	if _, err := l.Submit(ctx, "B-1", "fp-1", "ref-1", "m"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err := l.Submit(ctx, "B-1", "fp-OTHER", "ref-2", "m")
	if err == nil {
		t.Fatal("expected conflict error")
	}
	if errs.KindOf(err) != errs.KindConflict {
		t.Errorf("kind = %q, want %q", errs.KindOf(err), errs.KindConflict)
	}

	// The original commitment must be untouched.
	c, err := l.Lookup(ctx, "B-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if c.Fingerprint != "fp-1" {
		t.Errorf("commitment fingerprint mutated to %s", c.Fingerprint)
	}
}

func TestLookup_Missing(t *testing.T) {
	l := newTestLedger()
	_, err := l.Lookup(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if errs.KindOf(err) != errs.KindNotFound {
		t.Errorf("kind = %q, want %q", errs.KindOf(err), errs.KindNotFound)
	}
}

func TestSubmit_FaultInjection(t *testing.T) {
	l := newTestLedger()
	l.SubmitErr = errs.New(errs.KindRetryable, "ledger.submit", "node unreachable")
	_, err := l.Submit(context.Background(), "B-1", "fp", "ref", "m")
	if errs.KindOf(err) != errs.KindRetryable {
		t.Errorf("kind = %q, want %q", errs.KindOf(err), errs.KindRetryable)
	}
}
