// Package http exposes the gateway's REST surface: report submission, the
// admin approval actions and the public verification endpoint.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"pvchain/approval"
	core "pvchain/gateway/service/core"
	"pvchain/internal/errs"
	"pvchain/internal/models"
	"pvchain/verify"
)

const maxRequestBody = 10 * 1024 * 1024 // 10MB limit

// Handler encapsulates the logic for handling HTTP report requests.
type Handler struct {
	svc      *core.Service
	pipeline *approval.Pipeline
	verifier *verify.Engine
	logger   *log.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc *core.Service, p *approval.Pipeline, v *verify.Engine, l *log.Logger) *Handler {
	return &Handler{svc: svc, pipeline: p, verifier: v, logger: l}
}

// Register wires all routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/reports", h.SubmitReport)
	mux.HandleFunc("GET /v1/reports", h.ListReports)
	mux.HandleFunc("GET /v1/reports/{batchId}", h.GetReport)
	mux.HandleFunc("POST /v1/reports/{batchId}/approve", h.ApproveReport)
	mux.HandleFunc("POST /v1/reports/{batchId}/reject", h.RejectReport)
	mux.HandleFunc("POST /v1/reports/{batchId}/anchor", h.RetryAnchor)
	mux.HandleFunc("GET /v1/verify/{batchId}", h.VerifyReport)
	mux.HandleFunc("GET /health", h.HealthCheck)
}

// SubmitReport handles POST /v1/reports requests.
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/json" {
		h.respondError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}
	if r.ContentLength > maxRequestBody {
		h.respondError(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	var reqPayload struct {
		BatchID   string               `json:"batchId"`
		Submitter string               `json:"submitter"`
		Content   models.ReportContent `json:"content"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&reqPayload); err != nil {
		h.logger.Printf("HTTP Handler: Failed to parse JSON request: %v", err)
		h.respondError(w, "Bad Request: Invalid JSON format", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// The submitter identity may be injected by the gateway in front of us.
	submitter := r.Header.Get("X-Submitter-ID")
	if submitter == "" {
		submitter = reqPayload.Submitter
	}

	report, err := h.svc.Submit(r.Context(), &core.SubmitInput{
		BatchID:   reqPayload.BatchID,
		Submitter: submitter,
		Content:   reqPayload.Content,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"batchId":   report.BatchID,
		"status":    report.Status,
		"createdAt": report.CreatedAt.Format(time.RFC3339Nano),
	}, http.StatusCreated)
}

// ListReports handles GET /v1/reports?status=pending requests.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(models.StatusPending)
	}
	reports, err := h.svc.ListByStatus(r.Context(), models.ReportStatus(status), 0)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, map[string]interface{}{"reports": reports, "count": len(reports)}, http.StatusOK)
}

// GetReport handles GET /v1/reports/{batchId} requests.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Get(r.Context(), r.PathValue("batchId"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, report, http.StatusOK)
}

// ApproveReport handles POST /v1/reports/{batchId}/approve requests. The
// approver identity comes from the X-Approver-ID header set by the
// authenticating proxy.
func (h *Handler) ApproveReport(w http.ResponseWriter, r *http.Request) {
	approver := r.Header.Get("X-Approver-ID")
	if approver == "" {
		h.respondError(w, "X-Approver-ID header is required", http.StatusUnauthorized)
		return
	}

	var reqPayload struct {
		Notes string `json:"notes,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&reqPayload); err != nil {
			h.respondError(w, "Bad Request: Invalid JSON format", http.StatusBadRequest)
			return
		}
	}
	defer r.Body.Close()

	outcome, err := h.pipeline.Approve(r.Context(), r.PathValue("batchId"), approver, reqPayload.Notes)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondOutcome(w, outcome)
}

// RejectReport handles POST /v1/reports/{batchId}/reject requests.
func (h *Handler) RejectReport(w http.ResponseWriter, r *http.Request) {
	reviewer := r.Header.Get("X-Approver-ID")
	if reviewer == "" {
		h.respondError(w, "X-Approver-ID header is required", http.StatusUnauthorized)
		return
	}

	var reqPayload struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqPayload); err != nil {
		h.respondError(w, "Bad Request: Invalid JSON format", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	report, err := h.pipeline.Reject(r.Context(), r.PathValue("batchId"), reviewer, reqPayload.Reason)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, map[string]interface{}{
		"batchId":         report.BatchID,
		"status":          report.Status,
		"rejectionReason": report.RejectionReason,
	}, http.StatusOK)
}

// RetryAnchor handles POST /v1/reports/{batchId}/anchor requests. It re-runs
// only the ledger anchoring step for an approved report.
func (h *Handler) RetryAnchor(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.pipeline.RetryAnchor(r.Context(), r.PathValue("batchId"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondOutcome(w, outcome)
}

// VerifyReport handles GET /v1/verify/{batchId} requests. This is the one
// public, unauthenticated route.
func (h *Handler) VerifyReport(w http.ResponseWriter, r *http.Request) {
	result, err := h.verifier.Verify(r.Context(), r.PathValue("batchId"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if !result.Verified {
		// Missing, pending and rejected all look identical from outside.
		h.respondJSON(w, result, http.StatusNotFound)
		return
	}
	h.respondJSON(w, result, http.StatusOK)
}

// HealthCheck handles GET /health requests.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339Nano),
		"service":   "gateway",
	}, http.StatusOK)
}

// respondOutcome renders an approval outcome. An approved report whose
// anchoring failed is still a success response; the anchor state says what
// remains to be done.
func (h *Handler) respondOutcome(w http.ResponseWriter, outcome *approval.Outcome) {
	payload := map[string]interface{}{
		"batchId":     outcome.Report.BatchID,
		"status":      outcome.Report.Status,
		"fingerprint": outcome.Report.Fingerprint,
		"storageRef":  outcome.Report.StorageRef,
		"anchorState": outcome.AnchorState,
	}
	if outcome.Report.AnchorRef != "" {
		payload["anchorRef"] = outcome.Report.AnchorRef
	}
	if outcome.AnchorState == approval.AnchorPending {
		payload["message"] = "report approved; ledger anchoring pending and will be retried"
		if outcome.AnchorError != "" {
			payload["anchorError"] = outcome.AnchorError
		}
	}
	if outcome.AlreadyApproved {
		payload["message"] = "report was already approved"
	}
	h.respondJSON(w, payload, http.StatusOK)
}

// respondServiceError maps service error kinds to HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindConcurrency:
		status = http.StatusConflict
	case errs.KindConflict:
		// A conflicting ledger commitment means local state and chain state
		// disagree; operators must investigate.
		h.logger.Printf("ALERT: %v", err)
		status = http.StatusInternalServerError
	case errs.KindRetryable, errs.KindTimeout:
		status = http.StatusServiceUnavailable
	case errs.KindNonRetryable:
		status = http.StatusBadGateway
	}
	if status >= 500 {
		h.logger.Printf("HTTP Handler: Service layer processing failed: %v", err)
	}

	var e *errs.Error
	msg := "internal error"
	if errors.As(err, &e) && status < 500 {
		msg = e.Msg
	}
	h.respondError(w, msg, status)
}

// respondJSON sends JSON response.
func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("HTTP Handler: Failed to encode JSON response: %v", err)
	}
}

// respondError sends error response.
func (h *Handler) respondError(w http.ResponseWriter, message string, statusCode int) {
	h.respondJSON(w, map[string]interface{}{
		"error":   message,
		"status":  statusCode,
		"message": http.StatusText(statusCode),
	}, statusCode)
}
