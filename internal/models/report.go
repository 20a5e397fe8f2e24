package models

import "time"

// ReportStatus is the lifecycle state of a report record.
type ReportStatus string

const (
	StatusPending  ReportStatus = "pending"
	StatusApproved ReportStatus = "approved"
	StatusRejected ReportStatus = "rejected"
)

// AnchorStatus tracks the outcome of the ledger anchoring step. It is only
// meaningful for approved reports: approval never blocks on the ledger.
type AnchorStatus string

const (
	AnchorNone      AnchorStatus = ""
	AnchorConfirmed AnchorStatus = "confirmed"
	AnchorFailed    AnchorStatus = "failed"
)

// IngredientsSection describes the product and its composition.
type IngredientsSection struct {
	ProductName       string `json:"productName"`
	Manufacturer      string `json:"manufacturer"`
	ManufacturingDate string `json:"manufacturingDate"`
	ExpiryDate        string `json:"expiryDate"`
	Ingredients       string `json:"ingredients"`
	NutritionalInfo   string `json:"nutritionalInfo,omitempty"`
	Allergens         string `json:"allergens,omitempty"`
	Certifications    string `json:"certifications,omitempty"`
}

// TestProcessSection describes laboratory testing of the batch.
type TestProcessSection struct {
	TestingLaboratory string `json:"testingLaboratory"`
	TestDate          string `json:"testDate"`
	TestResults       string `json:"testResults"`
	TestMethodology   string `json:"testMethodology,omitempty"`
}

// AuthenticationSection carries certificates and compliance evidence.
type AuthenticationSection struct {
	Certificates     string `json:"certificates"`
	ComplianceChecks string `json:"complianceChecks,omitempty"`
	AuditTrail       string `json:"auditTrail,omitempty"`
}

// ReportContent is the merchant-submitted payload of a report. Sections are
// pointers: an absent section is nil, which the canonical serializer encodes
// distinctly from an empty section. Raw holds unstructured legacy text that
// predates the section schemas.
type ReportContent struct {
	Ingredients    *IngredientsSection    `json:"ingredients,omitempty"`
	TestProcess    *TestProcessSection    `json:"testProcess,omitempty"`
	Authentication *AuthenticationSection `json:"authentication,omitempty"`
	Raw            string                 `json:"raw,omitempty"`
}

// Report is the unit of verification. BatchID is the unique business key and
// is immutable after creation. Only the approval pipeline mutates status,
// fingerprint, storage ref and anchor fields.
type Report struct {
	BatchID   string        `json:"batchId"`
	Submitter string        `json:"submitter"`
	Content   ReportContent `json:"content"`
	Status    ReportStatus  `json:"status"`

	// Set on transition into approved, never before.
	Fingerprint string `json:"fingerprint,omitempty"`
	StorageRef  string `json:"storageRef,omitempty"`

	// Anchoring outcome. AnchorRef is non-empty only after a confirmed
	// ledger submission for the current fingerprint.
	AnchorRef    string       `json:"anchorRef,omitempty"`
	AnchorStatus AnchorStatus `json:"anchorStatus,omitempty"`
	AnchorError  string       `json:"anchorError,omitempty"`

	ApprovedAt    *time.Time `json:"approvedAt,omitempty"`
	ApprovedBy    string     `json:"approvedBy,omitempty"`
	ApprovalNotes string     `json:"approvalNotes,omitempty"`

	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	RejectedBy      string     `json:"rejectedBy,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasAllSections reports whether all three structured sections are present.
func (c ReportContent) HasAllSections() bool {
	return c.Ingredients != nil && c.TestProcess != nil && c.Authentication != nil
}

// Snapshot is the frozen payload hashed and stored at approval time. It
// includes the approver identity and timestamp because downstream parties
// verify those fields too.
type Snapshot struct {
	BatchID    string        `json:"batchId"`
	Submitter  string        `json:"submitter"`
	Content    ReportContent `json:"content"`
	ApprovedBy string        `json:"approvedBy"`
	ApprovedAt time.Time     `json:"approvedAt"`
}
