package ledger

import (
	"context"

	"pvchain/ledger/types"
)

// LedgerClient defines the generic interface for anchoring commitments.
// This interface is ledger-agnostic and can be implemented by different
// blockchain clients.
type LedgerClient interface {
	// Submit anchors a commitment for batchID and blocks until the
	// transaction is confirmed or fails. There is no pending-forever state:
	// the client waits for confirmation within its configured timeout and
	// returns a timeout-classed error when confirmation cannot be observed.
	//
	// If the ledger already holds a commitment for batchID with the same
	// fingerprint, Submit returns the existing commitment's proof. A
	// commitment with a different fingerprint fails with a
	// conflicting_commitment error and never overwrites chain state.
	Submit(ctx context.Context, batchID, fingerprint, storageRef, submitter string) (*types.AnchorProof, error)

	// Lookup queries the ledger for the commitment stored under batchID.
	// A missing commitment is a not_found error.
	Lookup(ctx context.Context, batchID string) (*types.Commitment, error)

	// Close closes the client and releases resources.
	Close() error

	// Config returns the configuration associated with the client.
	Config() any // any to accommodate different config types
}
