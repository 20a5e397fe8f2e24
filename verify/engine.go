// Package verify implements the public read-side verification of anchored
// reports. The engine is stateless and safe for concurrent use; it never
// mutates report records.
package verify

import (
	"context"
	"log"
	"time"

	"pvchain/internal/errs"
	"pvchain/internal/models"
	ledger "pvchain/ledger/client"
	"pvchain/storage/store"
)

// ReasonNotApprovedOrMissing is the single failure reason returned for both
// missing and non-approved reports. Callers must not be able to distinguish
// "rejected" from "never existed": that would leak administrative decisions
// to the public.
const ReasonNotApprovedOrMissing = "NotApprovedOrMissing"

// Result is the derived verification outcome for a batch. It is recomputed
// on every request and never persisted.
type Result struct {
	BatchID  string `json:"batchId"`
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`

	OnChain     bool   `json:"onChain"`
	HashesMatch bool   `json:"hashesMatch"`
	// LedgerDiagnostic describes a ledger lookup problem that downgraded
	// OnChain; verification itself still succeeds.
	LedgerDiagnostic string `json:"ledgerDiagnostic,omitempty"`

	Fingerprint string `json:"fingerprint,omitempty"`
	StorageRef  string `json:"storageRef,omitempty"`
	AnchorRef   string `json:"anchorRef,omitempty"`

	TrustScore int `json:"trustScore"`

	Content    *models.ReportContent `json:"content,omitempty"`
	ApprovedAt *time.Time            `json:"approvedAt,omitempty"`
	ApprovedBy string                `json:"approvedBy,omitempty"`
}

// Engine combines stored report state with an optional ledger lookup.
type Engine struct {
	store         store.Store
	ledger        ledger.LedgerClient
	logger        *log.Logger
	lookupTimeout time.Duration
}

// NewEngine creates an Engine. lookupTimeout bounds the ledger query; zero
// selects a default.
func NewEngine(s store.Store, l ledger.LedgerClient, logger *log.Logger, lookupTimeout time.Duration) *Engine {
	if lookupTimeout == 0 {
		lookupTimeout = 10 * time.Second
	}
	return &Engine{store: s, ledger: l, logger: logger, lookupTimeout: lookupTimeout}
}

// Verify reconstructs the verification result for batchID.
//
// Ledger unavailability never fails the request: it downgrades OnChain with
// a diagnostic. A fingerprint mismatch against the chain is always surfaced
// via HashesMatch=false, never silently ignored.
func (e *Engine) Verify(ctx context.Context, batchID string) (*Result, error) {
	if batchID == "" {
		return nil, errs.New(errs.KindValidation, "verify", "batch id is required")
	}

	report, err := e.store.GetByBatchID(ctx, batchID)
	if err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			return &Result{BatchID: batchID, Reason: ReasonNotApprovedOrMissing}, nil
		}
		return nil, err
	}
	if report.Status != models.StatusApproved {
		return &Result{BatchID: batchID, Reason: ReasonNotApprovedOrMissing}, nil
	}

	result := &Result{
		BatchID:     batchID,
		Verified:    true,
		Fingerprint: report.Fingerprint,
		StorageRef:  report.StorageRef,
		AnchorRef:   report.AnchorRef,
		Content:     &report.Content,
		ApprovedAt:  report.ApprovedAt,
		ApprovedBy:  report.ApprovedBy,
		HashesMatch: true,
	}

	if report.AnchorRef != "" {
		e.checkLedger(ctx, report, result)
	}
	// An approved-but-unanchored report is still internally verified: the
	// integrity guarantee at that stage rests on the admin approval record,
	// not the ledger.

	result.TrustScore = Score(Factors{
		ContentIntegrity:  true,
		OnChainVerified:   result.OnChain && result.HashesMatch,
		SectionsComplete:  report.Content.HasAllSections(),
		HasTestResults:    report.Content.TestProcess != nil && report.Content.TestProcess.TestResults != "",
		HasCertifications: report.Content.Authentication != nil && report.Content.Authentication.Certificates != "",
	})

	return result, nil
}

// checkLedger cross-checks the persisted fingerprint and storage ref
// against the chain commitment.
func (e *Engine) checkLedger(ctx context.Context, report *models.Report, result *Result) {
	lookupCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()

	commitment, err := e.ledger.Lookup(lookupCtx, report.BatchID)
	if err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			// An anchor ref without a chain commitment is suspicious but not
			// a mismatch; report it and leave local integrity standing.
			result.LedgerDiagnostic = "anchor recorded locally but no commitment found on ledger"
			return
		}
		e.logger.Printf("Ledger lookup failed during verification of batch %s: %v", report.BatchID, err)
		result.LedgerDiagnostic = "ledger unreachable: " + string(errs.KindOf(err))
		return
	}

	result.OnChain = true
	if commitment.Fingerprint != report.Fingerprint || commitment.StorageRef != report.StorageRef {
		result.HashesMatch = false
		e.logger.Printf("DATA INTEGRITY: ledger commitment for batch %s does not match local state (ledger fp %s, local fp %s)",
			report.BatchID, commitment.Fingerprint, report.Fingerprint)
	}
}
