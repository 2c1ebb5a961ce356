package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lyceum-edu/lyceum/internal/authz"
	"github.com/lyceum-edu/lyceum/internal/shared"
)

// Repository provides PostgreSQL backed persistence. It doubles as the
// engine's principal store: every decision revalidates the caller against
// the members table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchPrincipal returns the stored role and status for a member.
func (r *Repository) FetchPrincipal(ctx context.Context, id string) (authz.PrincipalState, error) {
	const query = `SELECT role, status FROM members WHERE id = $1`

	var role, status string
	if err := r.pool.QueryRow(ctx, query, id).Scan(&role, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.PrincipalState{}, shared.ErrNotFound
		}
		return authz.PrincipalState{}, fmt.Errorf("members: fetch principal: %w", err)
	}
	return authz.PrincipalState{Role: authz.Role(role), Status: authz.Status(status)}, nil
}

// FetchSnapshot loads the member account as an authorization resource.
func (r *Repository) FetchSnapshot(ctx context.Context, id string) (authz.Snapshot, error) {
	const query = `SELECT id, role, status FROM members WHERE id = $1`

	var snap Snapshot
	var role, status string
	if err := r.pool.QueryRow(ctx, query, id).Scan(&snap.MemberID, &role, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("members: fetch snapshot: %w", err)
	}
	snap.MemberRole = authz.Role(role)
	snap.MemberStatus = authz.Status(status)
	return snap, nil
}

// GetMember loads a full member row.
func (r *Repository) GetMember(ctx context.Context, id string) (Member, error) {
	const query = `SELECT id, email, name, role, status, created_at, updated_at FROM members WHERE id = $1`

	var m Member
	var role, status string
	err := r.pool.QueryRow(ctx, query, id).Scan(&m.ID, &m.Email, &m.Name, &role, &status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, shared.ErrNotFound
		}
		return Member{}, fmt.Errorf("members: get member: %w", err)
	}
	m.Role = authz.Role(role)
	m.Status = authz.Status(status)
	return m, nil
}

var (
	_ authz.PrincipalStore = (*Repository)(nil)
	_ authz.ResourceStore  = (*Repository)(nil)
)
