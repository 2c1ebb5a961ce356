package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lyceum-edu/lyceum/internal/audit"
)

type stubAuditService struct {
	result      audit.Result
	report      audit.SecurityReport
	chainReport audit.ChainReport
	csv         []byte
	pdfErr      error

	lastFilters  audit.TimelineFilters
	lastFrom     time.Time
	lastTo       time.Time
	segmentCalls int
	chainCalls   int
}

func (s *stubAuditService) Timeline(_ context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubAuditService) SecurityReport(_ context.Context, from, to time.Time) (audit.SecurityReport, error) {
	s.lastFrom = from
	s.lastTo = to
	return s.report, nil
}

func (s *stubAuditService) ExportCSV(_ context.Context, filters audit.TimelineFilters) ([]byte, error) {
	s.lastFilters = filters
	return s.csv, nil
}

func (s *stubAuditService) ExportPDF(_ context.Context, filters audit.TimelineFilters) ([]byte, error) {
	s.lastFilters = filters
	if s.pdfErr != nil {
		return nil, s.pdfErr
	}
	return []byte("%PDF-1.4"), nil
}

func (s *stubAuditService) VerifyChain(context.Context) (audit.ChainReport, error) {
	s.chainCalls++
	return s.chainReport, nil
}

func (s *stubAuditService) VerifySegment(_ context.Context, _ int64, _ int) (audit.ChainReport, error) {
	s.segmentCalls++
	return s.chainReport, nil
}

func newAuditHandler(service *stubAuditService) *Handler {
	handler := NewHandler(nil, service)
	handler.now = func() time.Time { return time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC) }
	return handler
}

func TestRecordsParsesFilters(t *testing.T) {
	service := &stubAuditService{result: audit.Result{Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	handler := newAuditHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/records?from=2025-06-01&to=2025-06-10&principal_id=m-1&decision=denied&page=2&page_size=25", nil)
	rr := httptest.NewRecorder()
	handler.handleRecords(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if service.lastFilters.PrincipalID != "m-1" {
		t.Fatalf("unexpected filters: %+v", service.lastFilters)
	}
	if service.lastFilters.Decision != "denied" {
		t.Fatalf("expected denied filter, got %q", service.lastFilters.Decision)
	}
	if service.lastFilters.From.Format("2006-01-02") != "2025-06-01" {
		t.Fatalf("unexpected from: %v", service.lastFilters.From)
	}
	// Batas atas eksklusif mencakup seluruh hari "to".
	if service.lastFilters.To.Format("2006-01-02") != "2025-06-11" {
		t.Fatalf("unexpected to: %v", service.lastFilters.To)
	}
	if service.lastFilters.Page != 2 || service.lastFilters.PageSize != 25 {
		t.Fatalf("unexpected paging: %+v", service.lastFilters)
	}
}

func TestRecordsRejectsBadDecision(t *testing.T) {
	handler := newAuditHandler(&stubAuditService{})

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/records?decision=maybe", nil)
	rr := httptest.NewRecorder()
	handler.handleRecords(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "decision") {
		t.Fatalf("expected offending field in body: %s", rr.Body.String())
	}
}

func TestRecordsRejectsOversizedRange(t *testing.T) {
	handler := newAuditHandler(&stubAuditService{})

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/records?from=2024-01-01&to=2025-06-01", nil)
	rr := httptest.NewRecorder()
	handler.handleRecords(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSecurityReportWindow(t *testing.T) {
	service := &stubAuditService{report: audit.SecurityReport{TotalDecisions: 9}}
	handler := newAuditHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/security-report?from=2025-06-01&to=2025-06-02", nil)
	rr := httptest.NewRecorder()
	handler.handleSecurityReport(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got audit.SecurityReport
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.TotalDecisions != 9 {
		t.Fatalf("unexpected report: %+v", got)
	}
	if service.lastFrom.Format("2006-01-02") != "2025-06-01" {
		t.Fatalf("unexpected window start: %v", service.lastFrom)
	}
}

func TestExportCSV(t *testing.T) {
	service := &stubAuditService{csv: []byte("id,timestamp\n")}
	handler := newAuditHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/export?from=2025-06-01&to=2025-06-05", nil)
	rr := httptest.NewRecorder()
	handler.handleExport(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ctype := rr.Header().Get("Content-Type"); !strings.Contains(ctype, "text/csv") {
		t.Fatalf("unexpected content-type: %s", ctype)
	}
	if disposition := rr.Header().Get("Content-Disposition"); !strings.Contains(disposition, "authz-audit.csv") {
		t.Fatalf("unexpected disposition: %s", disposition)
	}
}

func TestExportPDFNotConfigured(t *testing.T) {
	service := &stubAuditService{pdfErr: audit.ErrPDFUnavailable}
	handler := newAuditHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/export?format=pdf", nil)
	rr := httptest.NewRecorder()
	handler.handleExport(rr, req)

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rr.Code)
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	handler := newAuditHandler(&stubAuditService{})

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/export?format=xlsx", nil)
	rr := httptest.NewRecorder()
	handler.handleExport(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestVerifyFullChain(t *testing.T) {
	service := &stubAuditService{chainReport: audit.ChainReport{Checked: 12, Valid: true}}
	handler := newAuditHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/verify", nil)
	rr := httptest.NewRecorder()
	handler.handleVerify(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if service.chainCalls != 1 || service.segmentCalls != 0 {
		t.Fatalf("expected full chain verification, got chain=%d segment=%d", service.chainCalls, service.segmentCalls)
	}
}

func TestVerifySegment(t *testing.T) {
	service := &stubAuditService{chainReport: audit.ChainReport{Checked: 5, Valid: true}}
	handler := newAuditHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/verify?from_seq=100&limit=5", nil)
	rr := httptest.NewRecorder()
	handler.handleVerify(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if service.segmentCalls != 1 || service.chainCalls != 0 {
		t.Fatalf("expected segment verification, got chain=%d segment=%d", service.chainCalls, service.segmentCalls)
	}
}
