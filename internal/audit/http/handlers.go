// Package audithttp menyajikan API admin untuk audit trail otorisasi.
package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lyceum-edu/lyceum/internal/audit"
	"github.com/lyceum-edu/lyceum/internal/platform/httpx"
	"github.com/lyceum-edu/lyceum/internal/shared"
)

const (
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
)

// AuditService defines the business contract for audit data.
type AuditService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	SecurityReport(ctx context.Context, from, to time.Time) (audit.SecurityReport, error)
	ExportCSV(ctx context.Context, filters audit.TimelineFilters) ([]byte, error)
	ExportPDF(ctx context.Context, filters audit.TimelineFilters) ([]byte, error)
	VerifyChain(ctx context.Context) (audit.ChainReport, error)
	VerifySegment(ctx context.Context, fromSeq int64, limit int) (audit.ChainReport, error)
}

// Handler menangani permintaan audit trail.
type Handler struct {
	logger  *slog.Logger
	service AuditService
	flight  singleflight.Group
	now     func() time.Time
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service AuditService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		now:     time.Now,
	}
}

func (h *Handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "audit service not configured")
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "load audit records", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleSecurityReport(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "audit service not configured")
		return
	}
	from, to, err := h.parseWindow(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}

	// Laporan mahal dihitung sekali untuk permintaan bersamaan dengan
	// jendela yang sama.
	key := from.Format(time.RFC3339) + "|" + to.Format(time.RFC3339)
	value, err, _ := h.flight.Do(key, func() (any, error) {
		return h.service.SecurityReport(r.Context(), from, to)
	})
	if err != nil {
		h.handleServerError(w, "build security report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, value)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "audit service not configured")
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	switch format {
	case "", "csv":
		data, err := h.service.ExportCSV(r.Context(), filters)
		if err != nil {
			h.handleServerError(w, "export audit csv", err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="authz-audit.csv"`)
		if _, err := w.Write(data); err != nil {
			h.logger.Warn("write csv", slog.Any("error", err))
		}
	case "pdf":
		data, err := h.service.ExportPDF(r.Context(), filters)
		if err != nil {
			if errors.Is(err, audit.ErrPDFUnavailable) {
				httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "pdf export is not configured")
				return
			}
			h.handleServerError(w, "export audit pdf", err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="authz-audit.pdf"`)
		if _, err := w.Write(data); err != nil {
			h.logger.Warn("write pdf", slog.Any("error", err))
		}
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "format must be csv or pdf")
	}
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "audit service not configured")
		return
	}

	query := r.URL.Query()
	fromSeqStr := strings.TrimSpace(query.Get("from_seq"))
	if fromSeqStr == "" {
		report, err := h.service.VerifyChain(r.Context())
		if err != nil {
			h.handleServerError(w, "verify audit chain", err)
			return
		}
		httpx.JSON(w, http.StatusOK, report)
		return
	}

	fromSeq, err := strconv.ParseInt(fromSeqStr, 10, 64)
	if err != nil || fromSeq < 0 {
		h.handleFilterError(w, shared.FieldError{Field: "from_seq"})
		return
	}
	limit := 0
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			h.handleFilterError(w, shared.FieldError{Field: "limit"})
			return
		}
		limit = parsed
	}
	report, err := h.service.VerifySegment(r.Context(), fromSeq, limit)
	if err != nil {
		h.handleServerError(w, "verify audit segment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	from, to, err := h.parseWindow(r)
	if err != nil {
		return audit.TimelineFilters{}, err
	}

	query := r.URL.Query()
	decision := strings.ToLower(strings.TrimSpace(query.Get("decision")))
	switch decision {
	case "", "granted", "denied":
	default:
		return audit.TimelineFilters{}, shared.FieldError{Field: "decision"}
	}

	page, err := shared.ParsePageRequest(query)
	if err != nil {
		return audit.TimelineFilters{}, err
	}

	return audit.TimelineFilters{
		From:         from,
		To:           to,
		PrincipalID:  strings.TrimSpace(query.Get("principal_id")),
		ResourceType: strings.TrimSpace(query.Get("resource_type")),
		Action:       strings.TrimSpace(query.Get("action")),
		Decision:     decision,
		Page:         page.Page,
		PageSize:     page.Size,
	}, nil
}

func (h *Handler) parseWindow(r *http.Request) (time.Time, time.Time, error) {
	now := h.now().UTC()
	query := r.URL.Query()

	toStr := strings.TrimSpace(query.Get("to"))
	if toStr == "" {
		toStr = now.Format("2006-01-02")
	}
	toTime, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return time.Time{}, time.Time{}, shared.FieldError{Field: "to"}
	}
	// Batas atas eksklusif: sertakan seluruh hari "to".
	toTime = toTime.Add(24 * time.Hour)

	fromStr := strings.TrimSpace(query.Get("from"))
	if fromStr == "" {
		fromStr = toTime.Add(-defaultDateRange - 24*time.Hour).Format("2006-01-02")
	}
	fromTime, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, shared.FieldError{Field: "from"}
	}
	if fromTime.After(toTime) {
		return time.Time{}, time.Time{}, shared.FieldError{Field: "range"}
	}
	if toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return time.Time{}, time.Time{}, shared.FieldError{Field: "range"}
	}
	return fromTime, toTime, nil
}

func (h *Handler) handleFilterError(w http.ResponseWriter, err error) {
	var fieldErr shared.FieldError
	if errors.As(err, &fieldErr) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid filter: "+fieldErr.Field)
		return
	}
	h.handleServerError(w, "validate filters", err)
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	if h.logger != nil {
		h.logger.Error(message, slog.Any("error", err))
	}
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
