// Package audit menyimpan jejak keputusan otorisasi: setiap evaluasi
// menghasilkan tepat satu record yang dirangkai dalam hash chain agar
// manipulasi dapat terdeteksi.
package audit

import (
	"time"

	"github.com/lyceum-edu/lyceum/internal/authz"
)

// Entry adalah satu baris audit yang tersimpan, termasuk posisi chain-nya.
type Entry struct {
	ID           string    `json:"id"`
	Seq          int64     `json:"seq"`
	Timestamp    time.Time `json:"timestamp"`
	PrincipalID  string    `json:"principal_id"`
	Role         string    `json:"role"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Action       string    `json:"action"`
	Authorized   bool      `json:"authorized"`
	Reason       string    `json:"reason"`
	SessionID    string    `json:"session_id"`
	IPAddress    string    `json:"ip_address"`
	PrevHash     string    `json:"prev_hash"`
	Hash         string    `json:"hash"`
}

// TimelineFilters menampung filter dasar untuk audit timeline.
type TimelineFilters struct {
	From         time.Time
	To           time.Time
	PrincipalID  string
	ResourceType string
	Action       string
	// Decision menyaring hasil: "granted", "denied", atau kosong untuk
	// keduanya.
	Decision string
	Page     int
	PageSize int
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []Entry    `json:"rows"`
	Paging PagingInfo `json:"paging"`
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"has_next"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// SecurityReport merangkum aktivitas penolakan dalam satu jendela waktu.
type SecurityReport struct {
	WindowStart    time.Time              `json:"window_start"`
	WindowEnd      time.Time              `json:"window_end"`
	TotalDecisions int64                  `json:"total_decisions"`
	TotalDenied    int64                  `json:"total_denied"`
	Suspicious     []SuspiciousPrincipal  `json:"suspicious_principals"`
	TopReasons     []ReasonCount          `json:"top_denial_reasons"`
	GeneratedAt    time.Time              `json:"generated_at"`
}

// SuspiciousPrincipal adalah principal dengan jumlah penolakan di atas
// ambang batas.
type SuspiciousPrincipal struct {
	PrincipalID string    `json:"principal_id"`
	DenialCount int64     `json:"denial_count"`
	LiveCount   int64     `json:"live_failure_count"`
	LastDenied  time.Time `json:"last_denied"`
}

// ReasonCount menghitung frekuensi satu alasan penolakan.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}

// ChainReport adalah hasil verifikasi hash chain.
type ChainReport struct {
	Checked  int    `json:"checked"`
	Valid    bool   `json:"valid"`
	BrokenAt int64  `json:"broken_at_seq,omitempty"`
	BrokenID string `json:"broken_id,omitempty"`
}

// RecordTask adalah payload task asynq untuk satu audit record.
type RecordTask struct {
	ID     string       `json:"id"`
	Record authz.Record `json:"record"`
}

// TaskTypeRecord adalah nama task asynq untuk penulisan audit record.
const TaskTypeRecord = "authz:audit_record"

// QueueAudit adalah antrean asynq khusus audit.
const QueueAudit = "audit"

func entryFromRecord(id string, rec authz.Record) Entry {
	return Entry{
		ID:           id,
		Timestamp:    rec.Timestamp,
		PrincipalID:  rec.PrincipalID,
		Role:         rec.Role,
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		Action:       rec.Action,
		Authorized:   rec.Authorized,
		Reason:       rec.Reason,
		SessionID:    rec.SessionID,
		IPAddress:    rec.IPAddress,
	}
}
