// Package memledger implements the ledger client against an in-process map.
// It enforces the same one-commitment-per-batch rule as the on-chain
// contract and exists for tests and mock deployments.
package memledger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"pvchain/internal/errs"
	"pvchain/ledger/types"
)

// Ledger is an in-memory, append-only commitment registry.
type Ledger struct {
	mu          sync.Mutex
	commitments map[string]*types.Commitment
	height      uint64
	logger      *log.Logger

	// SubmitErr, when set, is returned by every Submit. Tests use it to
	// simulate ledger outages and timeouts.
	SubmitErr error
	// LookupErr, when set, is returned by every Lookup.
	LookupErr error
}

// New creates an empty in-memory ledger.
func New(logger *log.Logger) *Ledger {
	return &Ledger{
		commitments: make(map[string]*types.Commitment),
		logger:      logger,
	}
}

func (l *Ledger) Submit(ctx context.Context, batchID, fingerprint, storageRef, submitter string) (*types.AnchorProof, error) {
	if l.SubmitErr != nil {
		return nil, l.SubmitErr
	}
	if batchID == "" || fingerprint == "" {
		return nil, errs.New(errs.KindValidation, "ledger.submit", "batch id and fingerprint are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.commitments[batchID]; ok {
		if existing.Fingerprint != fingerprint {
			return nil, errs.Newf(errs.KindConflict, "ledger.submit",
				"batch %s already committed with fingerprint %s", batchID, existing.Fingerprint)
		}
		// Same content resubmitted: the chain state is already what the
		// caller wants, return the recorded position.
		l.logger.Printf("memledger: duplicate submit for batch %s with matching fingerprint, returning existing commitment", batchID)
		return &types.AnchorProof{TransactionID: existing.TxID, BlockHeight: l.height}, nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx := txID(batchID, now)
	l.commitments[batchID] = &types.Commitment{
		BatchID:     batchID,
		Fingerprint: fingerprint,
		StorageRef:  storageRef,
		Submitter:   submitter,
		Timestamp:   now,
		TxID:        tx,
	}
	l.height++
	return &types.AnchorProof{TransactionID: tx, BlockHeight: l.height}, nil
}

func (l *Ledger) Lookup(ctx context.Context, batchID string) (*types.Commitment, error) {
	if l.LookupErr != nil {
		return nil, l.LookupErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.commitments[batchID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "ledger.lookup", "no commitment for batch "+batchID)
	}
	cp := *c
	return &cp, nil
}

func (l *Ledger) Close() error { return nil }

func (l *Ledger) Config() any { return nil }

func txID(batchID, ts string) string {
	return fmt.Sprintf("mem-%s-%s", batchID, ts)
}
