package types

// Commitment is the ledger-resident record binding a batch identifier to a
// report fingerprint and its off-chain storage reference. The contract keeps
// at most one commitment per batch id, append-only.
type Commitment struct {
	BatchID     string `json:"batch_id"`
	Fingerprint string `json:"fingerprint"`
	StorageRef  string `json:"storage_ref"`
	Submitter   string `json:"submitter"`
	Timestamp   string `json:"timestamp"`
	TxID        string `json:"tx_id,omitempty"` // transaction that created the commitment
}

// AnchorProof is the on-chain credential returned after a confirmed Submit.
type AnchorProof struct {
	TransactionID string // TxID of the commitment transaction
	BlockHeight   uint64 // block height where the transaction was included
}
