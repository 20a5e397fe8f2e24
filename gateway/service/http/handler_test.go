package http

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pvchain/approval"
	"pvchain/cas"
	core "pvchain/gateway/service/core"
	"pvchain/ledger/client/memledger"
	"pvchain/storage/store"
	"pvchain/verify"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	s := store.NewMemoryStore()
	l := memledger.New(logger)
	pipeline := approval.New(approval.Options{Store: s, CAS: cas.NewMemoryClient(), Ledger: l, Logger: logger})
	handler := NewHandler(core.NewService(s, logger), pipeline, verify.NewEngine(s, l, logger, 0), logger)

	mux := http.NewServeMux()
	handler.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

const submitBody = `{
	"batchId": "B-1",
	"submitter": "merchant-1",
	"content": {
		"ingredients": {"productName": "Vitamin C", "manufacturer": "Acme", "ingredients": "ascorbic acid"},
		"testProcess": {"testingLaboratory": "CentralLab", "testResults": "pass"},
		"authentication": {"certificates": "ISO-22000"}
	}
}`

func submitReport(t *testing.T, srv *httptest.Server) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/reports", "application/json", strings.NewReader(submitBody))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("submit status = %d, body: %s", resp.StatusCode, body)
	}
}

func doApprove(t *testing.T, srv *httptest.Server, batchID, approver string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/reports/"+batchID+"/approve", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if approver != "" {
		req.Header.Set("X-Approver-ID", approver)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestSubmitApproveVerifyFlow(t *testing.T) {
	srv := newTestServer(t)
	submitReport(t, srv)

	resp := doApprove(t, srv, "B-1", "admin-1")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("approve status = %d, body: %s", resp.StatusCode, body)
	}
	var approvePayload struct {
		Status      string `json:"status"`
		AnchorState string `json:"anchorState"`
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&approvePayload); err != nil {
		t.Fatal(err)
	}
	if approvePayload.Status != "approved" || approvePayload.AnchorState != "anchored" {
		t.Errorf("approve payload = %+v", approvePayload)
	}
	if approvePayload.Fingerprint == "" {
		t.Error("approve response missing fingerprint")
	}

	vresp, err := http.Get(srv.URL + "/v1/verify/B-1")
	if err != nil {
		t.Fatal(err)
	}
	defer vresp.Body.Close()
	if vresp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d", vresp.StatusCode)
	}
	var result verify.Result
	if err := json.NewDecoder(vresp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if !result.Verified || !result.OnChain || !result.HashesMatch {
		t.Errorf("verify result = %+v", result)
	}
	if result.TrustScore != 100 {
		t.Errorf("trust score = %d, want 100", result.TrustScore)
	}
}

func TestApprove_RequiresApproverHeader(t *testing.T) {
	srv := newTestServer(t)
	submitReport(t, srv)

	resp := doApprove(t, srv, "B-1", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestApprove_UnknownBatch(t *testing.T) {
	srv := newTestServer(t)
	resp := doApprove(t, srv, "nope", "admin-1")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestReject_RequiresReason(t *testing.T) {
	srv := newTestServer(t)
	submitReport(t, srv)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/reports/B-1/reject", strings.NewReader(`{"reason":""}`))
	req.Header.Set("X-Approver-ID", "admin-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSubmit_InvalidPayload(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/reports", "application/json", strings.NewReader(`{"batchId":""}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSubmit_DuplicateBatch(t *testing.T) {
	srv := newTestServer(t)
	submitReport(t, srv)

	resp, err := http.Post(srv.URL+"/v1/reports", "application/json", strings.NewReader(submitBody))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestVerify_UnknownBatchIs404(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/verify/unknown")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	var result verify.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Reason != verify.ReasonNotApprovedOrMissing {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
