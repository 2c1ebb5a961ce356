package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lyceum-edu/lyceum/internal/authz"
	"github.com/lyceum-edu/lyceum/internal/shared"
)

// PostRepository provides PostgreSQL backed persistence for posts.
type PostRepository struct {
	pool *pgxpool.Pool
}

// NewPostRepository constructs a post repository.
func NewPostRepository(pool *pgxpool.Pool) *PostRepository {
	return &PostRepository{pool: pool}
}

// FetchSnapshot loads the post joined with its author state.
func (r *PostRepository) FetchSnapshot(ctx context.Context, id string) (authz.Snapshot, error) {
	const query = `
SELECT p.id, p.author_id, p.status, m.status AS author_status
FROM posts p
JOIN members m ON m.id = p.author_id
WHERE p.id = $1`

	var snap PostSnapshot
	err := r.pool.QueryRow(ctx, query, id).Scan(&snap.ID, &snap.AuthorID, &snap.PostStatus, &snap.AuthorStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("content: fetch post snapshot: %w", err)
	}
	return snap, nil
}

// ListVisible returns the posts matching an authorization filter, newest
// first.
func (r *PostRepository) ListVisible(ctx context.Context, filter authz.Filter, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT id, author_id, title, body, status, created_at, updated_at
FROM posts
WHERE %s
ORDER BY created_at DESC
LIMIT %d`, filter.Predicate, limit)

	rows, err := r.pool.Query(ctx, query, filter.Args...)
	if err != nil {
		return nil, fmt.Errorf("content: list posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Body, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("content: scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

// CommentRepository provides PostgreSQL backed persistence for comments.
type CommentRepository struct {
	pool *pgxpool.Pool
}

// NewCommentRepository constructs a comment repository.
func NewCommentRepository(pool *pgxpool.Pool) *CommentRepository {
	return &CommentRepository{pool: pool}
}

// FetchSnapshot loads the comment joined with its author state and the
// parent post status.
func (r *CommentRepository) FetchSnapshot(ctx context.Context, id string) (authz.Snapshot, error) {
	const query = `
SELECT c.id, c.post_id, c.author_id, c.status,
       m.status AS author_status,
       p.status AS post_status
FROM comments c
JOIN members m ON m.id = c.author_id
JOIN posts p ON p.id = c.post_id
WHERE c.id = $1`

	var snap CommentSnapshot
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&snap.ID,
		&snap.PostID,
		&snap.AuthorID,
		&snap.CommentStatus,
		&snap.AuthorStatus,
		&snap.PostStatus,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("content: fetch comment snapshot: %w", err)
	}
	return snap, nil
}

var (
	_ authz.ResourceStore = (*PostRepository)(nil)
	_ authz.ResourceStore = (*CommentRepository)(nil)
)
