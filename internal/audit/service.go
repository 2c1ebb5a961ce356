package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lyceum-edu/lyceum/internal/shared"
)

// ErrPDFUnavailable dikembalikan saat renderer PDF belum dikonfigurasi.
var ErrPDFUnavailable = errors.New("audit: pdf renderer unavailable")

const (
	defaultPageSize = 20
	maxPageSize     = 50
	exportCap       = 10_000
	chainSegment    = 1_000
)

// Reader membaca audit store.
type Reader interface {
	Timeline(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Entry, error)
	ChainSegment(ctx context.Context, fromSeq int64, limit int) ([]Entry, error)
	DenialAggregates(ctx context.Context, from, to time.Time, topN int) (Aggregates, error)
}

// FailureCounter membaca penghitung kegagalan live dari Redis.
type FailureCounter interface {
	FailureCount(ctx context.Context, principalID string) (int64, error)
}

// Renderer mengubah HTML menjadi PDF.
type Renderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Service mengoordinasikan pembacaan audit untuk API admin.
type Service struct {
	store     Reader
	tracker   FailureCounter
	renderer  Renderer
	threshold int64
	now       func() time.Time
}

// NewService membuat service audit baru. Tracker dan renderer boleh nil;
// fitur terkait dinonaktifkan.
func NewService(store Reader, tracker FailureCounter, renderer Renderer, suspiciousThreshold int64) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("audit: store is required")
	}
	if suspiciousThreshold <= 0 {
		suspiciousThreshold = 10
	}
	return &Service{
		store:     store,
		tracker:   tracker,
		renderer:  renderer,
		threshold: suspiciousThreshold,
		now:       time.Now,
	}, nil
}

// Timeline mengambil data audit dengan paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	page := shared.NewPageRequest(filters.Page, filters.PageSize, defaultPageSize, maxPageSize)

	// Ambil satu baris ekstra untuk mendeteksi halaman berikutnya.
	rows, err := s.store.Timeline(ctx, filters, page.Offset(), page.Size+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > page.Size
	if hasNext {
		rows = rows[:page.Size]
	}

	paging := PagingInfo{Page: page.Page, PageSize: page.Size, HasNext: hasNext}
	if page.Page > 1 {
		paging.PrevPage = page.Page - 1
	}
	if hasNext {
		paging.NextPage = page.Page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// SecurityReport merangkum penolakan dalam jendela waktu dan menandai
// principal yang melewati ambang batas, digabung dengan penghitung live
// dari Redis bila tersedia.
func (s *Service) SecurityReport(ctx context.Context, from, to time.Time) (SecurityReport, error) {
	now := s.now().UTC()
	if to.IsZero() {
		to = now
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if !from.Before(to) {
		return SecurityReport{}, fmt.Errorf("audit: invalid report window")
	}

	agg, err := s.store.DenialAggregates(ctx, from, to, 10)
	if err != nil {
		return SecurityReport{}, err
	}

	report := SecurityReport{
		WindowStart:    from,
		WindowEnd:      to,
		TotalDecisions: agg.TotalDecisions,
		TotalDenied:    agg.TotalDenied,
		TopReasons:     agg.TopReasons,
		GeneratedAt:    now,
	}
	for _, sp := range agg.ByPrincipal {
		if s.tracker != nil {
			if live, err := s.tracker.FailureCount(ctx, sp.PrincipalID); err == nil {
				sp.LiveCount = live
			}
		}
		if sp.DenialCount >= s.threshold || sp.LiveCount >= s.threshold {
			report.Suspicious = append(report.Suspicious, sp)
		}
	}
	return report, nil
}

// ExportTimeline mengambil seluruh entry sesuai filter untuk ekspor, tanpa
// paging tapi dibatasi exportCap.
func (s *Service) ExportTimeline(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	return s.store.Timeline(ctx, filters, 0, exportCap)
}

// ExportCSV menulis hasil ekspor sebagai CSV.
func (s *Service) ExportCSV(ctx context.Context, filters TimelineFilters) ([]byte, error) {
	entries, err := s.ExportTimeline(ctx, filters)
	if err != nil {
		return nil, err
	}
	return WriteCSV(entries)
}

// ExportPDF merender hasil ekspor menjadi PDF lewat renderer eksternal.
func (s *Service) ExportPDF(ctx context.Context, filters TimelineFilters) ([]byte, error) {
	if s.renderer == nil {
		return nil, ErrPDFUnavailable
	}
	entries, err := s.ExportTimeline(ctx, filters)
	if err != nil {
		return nil, err
	}
	html, err := RenderHTML(filters, entries, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return s.renderer.RenderHTML(ctx, html)
}

// VerifySegment memverifikasi satu potongan chain mulai dari seq tertentu.
func (s *Service) VerifySegment(ctx context.Context, fromSeq int64, limit int) (ChainReport, error) {
	if limit <= 0 || limit > exportCap {
		limit = chainSegment
	}
	entries, err := s.store.ChainSegment(ctx, fromSeq, limit)
	if err != nil {
		return ChainReport{}, err
	}
	return VerifyEntries(entries), nil
}

// VerifyChain memverifikasi seluruh chain dari awal secara bertahap.
func (s *Service) VerifyChain(ctx context.Context) (ChainReport, error) {
	var (
		checked  int
		prevHash string
		fromSeq  int64
		first    = true
	)
	for {
		entries, err := s.store.ChainSegment(ctx, fromSeq, chainSegment)
		if err != nil {
			return ChainReport{}, err
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			expectedPrev := prevHash
			if first {
				expectedPrev = GenesisHash
				first = false
			}
			if e.PrevHash != expectedPrev || ComputeHash(e.PrevHash, e) != e.Hash {
				return ChainReport{Checked: checked + 1, Valid: false, BrokenAt: e.Seq, BrokenID: e.ID}, nil
			}
			prevHash = e.Hash
			checked++
		}
		if len(entries) < chainSegment {
			break
		}
		fromSeq = entries[len(entries)-1].Seq + 1
	}
	return ChainReport{Checked: checked, Valid: true}, nil
}
