package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lyceum-edu/lyceum/internal/authz"
	"github.com/lyceum-edu/lyceum/internal/platform/db"
)

// chainLockID menserikan penulisan chain lewat advisory lock transaksi.
const chainLockID = 7_201_129

// Store menulis dan membaca audit record di PostgreSQL. Store memenuhi
// authz.Sink sehingga bisa dipakai langsung tanpa worker.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore membuat store audit baru.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Record implements authz.Sink: menulis satu record sinkron dengan ID baru.
func (s *Store) Record(ctx context.Context, rec authz.Record) (string, error) {
	id := uuid.NewString()
	if err := s.Insert(ctx, id, rec); err != nil {
		return "", err
	}
	return id, nil
}

// Insert menulis satu record dengan ID yang sudah ditentukan. Penulisan
// ulang dengan ID sama tidak menghasilkan baris baru, jadi task worker yang
// diulang tetap aman.
func (s *Store) Insert(ctx context.Context, id string, rec authz.Record) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, chainLockID); err != nil {
			return fmt.Errorf("audit: chain lock: %w", err)
		}

		var exists bool
		err := tx.QueryRow(ctx, `SELECT true FROM audit_records WHERE id = $1`, id).Scan(&exists)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("audit: check duplicate: %w", err)
		}

		prev := GenesisHash
		err = tx.QueryRow(ctx, `SELECT hash FROM audit_records ORDER BY seq DESC LIMIT 1`).Scan(&prev)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("audit: read chain head: %w", err)
		}

		entry := entryFromRecord(id, rec)
		if entry.Timestamp.IsZero() {
			entry.Timestamp = time.Now().UTC()
		}
		entry.PrevHash = prev
		entry.Hash = ComputeHash(prev, entry)

		const insert = `
INSERT INTO audit_records (id, at, principal_id, role, resource_type, resource_id, action, authorized, reason, session_id, ip_address, prev_hash, hash)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO NOTHING`
		_, err = tx.Exec(ctx, insert,
			entry.ID,
			entry.Timestamp,
			entry.PrincipalID,
			entry.Role,
			entry.ResourceType,
			entry.ResourceID,
			entry.Action,
			entry.Authorized,
			entry.Reason,
			entry.SessionID,
			entry.IPAddress,
			entry.PrevHash,
			entry.Hash,
		)
		if err != nil {
			return fmt.Errorf("audit: insert record: %w", err)
		}
		return nil
	})
}

// Timeline membaca entry sesuai filter, terbaru lebih dulu.
func (s *Store) Timeline(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Entry, error) {
	const query = `
SELECT id, seq, at, principal_id, role, resource_type, resource_id, action, authorized, reason, session_id, ip_address, prev_hash, hash
FROM audit_records
WHERE ($1::timestamptz IS NULL OR at >= $1)
  AND ($2::timestamptz IS NULL OR at < $2)
  AND ($3::text IS NULL OR principal_id = $3)
  AND ($4::text IS NULL OR resource_type = $4)
  AND ($5::text IS NULL OR action = $5)
  AND ($6::boolean IS NULL OR authorized = $6)
ORDER BY at DESC, seq DESC
OFFSET $7 LIMIT $8`

	rows, err := s.pool.Query(ctx, query,
		toPgTime(filters.From),
		toPgTime(filters.To),
		optionalText(filters.PrincipalID),
		optionalText(filters.ResourceType),
		optionalText(filters.Action),
		decisionFlag(filters.Decision),
		offset,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline query: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ChainSegment membaca entry terurut seq naik untuk verifikasi chain.
func (s *Store) ChainSegment(ctx context.Context, fromSeq int64, limit int) ([]Entry, error) {
	const query = `
SELECT id, seq, at, principal_id, role, resource_type, resource_id, action, authorized, reason, session_id, ip_address, prev_hash, hash
FROM audit_records
WHERE seq >= $1
ORDER BY seq ASC
LIMIT $2`

	rows, err := s.pool.Query(ctx, query, fromSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: chain segment: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Aggregates menghitung ringkasan penolakan untuk laporan keamanan.
type Aggregates struct {
	TotalDecisions int64
	TotalDenied    int64
	ByPrincipal    []SuspiciousPrincipal
	TopReasons     []ReasonCount
}

// DenialAggregates merangkum keputusan dalam satu jendela waktu.
func (s *Store) DenialAggregates(ctx context.Context, from, to time.Time, topN int) (Aggregates, error) {
	var agg Aggregates

	const totals = `
SELECT count(*), count(*) FILTER (WHERE NOT authorized)
FROM audit_records
WHERE at >= $1 AND at < $2`
	if err := s.pool.QueryRow(ctx, totals, from, to).Scan(&agg.TotalDecisions, &agg.TotalDenied); err != nil {
		return Aggregates{}, fmt.Errorf("audit: totals: %w", err)
	}

	const byPrincipal = `
SELECT principal_id, count(*), max(at)
FROM audit_records
WHERE NOT authorized AND at >= $1 AND at < $2
GROUP BY principal_id
ORDER BY count(*) DESC, principal_id
LIMIT $3`
	rows, err := s.pool.Query(ctx, byPrincipal, from, to, topN)
	if err != nil {
		return Aggregates{}, fmt.Errorf("audit: denials by principal: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sp SuspiciousPrincipal
		if err := rows.Scan(&sp.PrincipalID, &sp.DenialCount, &sp.LastDenied); err != nil {
			return Aggregates{}, fmt.Errorf("audit: scan principal denials: %w", err)
		}
		agg.ByPrincipal = append(agg.ByPrincipal, sp)
	}
	if err := rows.Err(); err != nil {
		return Aggregates{}, err
	}

	const topReasons = `
SELECT reason, count(*)
FROM audit_records
WHERE NOT authorized AND at >= $1 AND at < $2
GROUP BY reason
ORDER BY count(*) DESC, reason
LIMIT 5`
	reasonRows, err := s.pool.Query(ctx, topReasons, from, to)
	if err != nil {
		return Aggregates{}, fmt.Errorf("audit: top reasons: %w", err)
	}
	defer reasonRows.Close()
	for reasonRows.Next() {
		var rc ReasonCount
		if err := reasonRows.Scan(&rc.Reason, &rc.Count); err != nil {
			return Aggregates{}, fmt.Errorf("audit: scan reason: %w", err)
		}
		agg.TopReasons = append(agg.TopReasons, rc)
	}
	if err := reasonRows.Err(); err != nil {
		return Aggregates{}, err
	}
	return agg, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID,
			&e.Seq,
			&e.Timestamp,
			&e.PrincipalID,
			&e.Role,
			&e.ResourceType,
			&e.ResourceID,
			&e.Action,
			&e.Authorized,
			&e.Reason,
			&e.SessionID,
			&e.IPAddress,
			&e.PrevHash,
			&e.Hash,
		); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}

func decisionFlag(decision string) pgtype.Bool {
	switch decision {
	case "granted":
		return pgtype.Bool{Bool: true, Valid: true}
	case "denied":
		return pgtype.Bool{Bool: false, Valid: true}
	}
	return pgtype.Bool{}
}

var _ authz.Sink = (*Store)(nil)
