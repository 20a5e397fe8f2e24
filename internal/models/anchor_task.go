package models

// AnchorTask is the message published to the anchor-retry queue when the
// inline anchoring step of an approval fails. The background engine consumes
// these and re-runs the anchor step only.
type AnchorTask struct {
	TaskID     string `json:"TaskID"`
	BatchID    string `json:"BatchID"`
	EnqueuedAt string `json:"EnqueuedAt"` // RFC3339Nano, string for easy JSON serialization
	Attempts   int    `json:"Attempts"`
}
