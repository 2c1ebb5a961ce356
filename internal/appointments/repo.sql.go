package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lyceum-edu/lyceum/internal/authz"
	"github.com/lyceum-edu/lyceum/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchSnapshot loads the appointment together with the participant and
// program states in a single query.
func (r *Repository) FetchSnapshot(ctx context.Context, id string) (authz.Snapshot, error) {
	const query = `
SELECT a.id, a.member_id, a.instructor_id, a.program_id, a.status, a.starts_at,
       m.status AS member_status,
       i.status AS instructor_status,
       p.active AS program_active
FROM appointments a
JOIN members m ON m.id = a.member_id
LEFT JOIN members i ON i.id = a.instructor_id
JOIN programs p ON p.id = a.program_id
WHERE a.id = $1`

	var (
		snap             Snapshot
		instructorID     pgtype.Text
		instructorStatus pgtype.Text
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&snap.ID,
		&snap.MemberID,
		&instructorID,
		&snap.ProgramID,
		&snap.AppointmentStatus,
		&snap.StartsAt,
		&snap.MemberStatus,
		&instructorStatus,
		&snap.ProgramActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("appointments: fetch snapshot: %w", err)
	}
	if instructorID.Valid {
		snap.InstructorID = instructorID.String
	}
	if instructorStatus.Valid {
		snap.InstructorStatus = instructorStatus.String
	}
	return snap, nil
}

// ListVisible returns the appointments matching an authorization filter,
// newest start time first. The filter predicate references the member_id and
// instructor_id columns produced by BuildFilter with the appointment rule
// set.
func (r *Repository) ListVisible(ctx context.Context, filter authz.Filter, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT id, member_id, COALESCE(instructor_id, ''), program_id, status, starts_at, ends_at, COALESCE(notes, ''), created_at, updated_at
FROM appointments
WHERE %s
ORDER BY starts_at DESC
LIMIT %d`, filter.Predicate, limit)

	rows, err := r.pool.Query(ctx, query, filter.Args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	var items []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.MemberID, &a.InstructorID, &a.ProgramID, &a.Status, &a.StartsAt, &a.EndsAt, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

var _ authz.ResourceStore = (*Repository)(nil)
