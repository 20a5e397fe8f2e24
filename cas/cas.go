// Package cas provides the content-addressed storage client used to durably
// store approved report snapshots off-chain. References are derived from the
// content itself, so storing identical bytes twice yields the same reference.
package cas

import "context"

// Metadata is attached to stored objects for operator-side inspection. It is
// not part of the addressed content.
type Metadata struct {
	BatchID     string
	Fingerprint string
	ContentType string
}

// Client stores and retrieves immutable blobs.
//
// Put is idempotent from the caller's perspective: retrying a failed Put with
// identical bytes must return the same reference, never an error about the
// content already existing. Failures are classified with errs kinds:
// retryable_infra for network/auth errors, non_retryable_infra for quota.
type Client interface {
	Put(ctx context.Context, data []byte, meta Metadata) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Close() error
}
