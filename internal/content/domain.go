// Package content covers community posts and their comments: the resource
// snapshots, the policy rule sets and the PostgreSQL stores behind them.
package content

import (
	"time"

	"github.com/lyceum-edu/lyceum/internal/authz"
)

// Resource type identifiers.
const (
	PostResourceType    = "post"
	CommentResourceType = "comment"
)

// Post statuses. Removed is terminal.
const (
	PostDraft     = "draft"
	PostPublished = "published"
	PostArchived  = "archived"
	PostRemoved   = "removed"
)

// Comment statuses. Deleted is terminal.
const (
	CommentVisible = "visible"
	CommentHidden  = "hidden"
	CommentDeleted = "deleted"
)

// Actions shared by posts and comments.
const (
	ActionRead     = "read"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionModerate = "moderate"
)

// Post is one community post.
type Post struct {
	ID        string
	AuthorID  string
	Title     string
	Body      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Comment is one reply under a post.
type Comment struct {
	ID        string
	PostID    string
	AuthorID  string
	Body      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PostSnapshot is the per-decision read model of a post.
type PostSnapshot struct {
	ID           string
	AuthorID     string
	PostStatus   string
	AuthorStatus string
}

// ResourceID implements authz.Snapshot.
func (s PostSnapshot) ResourceID() string { return s.ID }

// OwnerID returns the post author.
func (s PostSnapshot) OwnerID() string { return s.AuthorID }

// SecondaryOwnerID is always empty: posts have a single author.
func (s PostSnapshot) SecondaryOwnerID() string { return "" }

// Status returns the post status.
func (s PostSnapshot) Status() string { return s.PostStatus }

// DependentStates exposes the author account state.
func (s PostSnapshot) DependentStates() map[string]string {
	return map[string]string{"author": s.AuthorStatus}
}

// CommentSnapshot is the per-decision read model of a comment, carrying the
// parent post status it depends on.
type CommentSnapshot struct {
	ID            string
	PostID        string
	AuthorID      string
	CommentStatus string
	AuthorStatus  string
	PostStatus    string
}

// ResourceID implements authz.Snapshot.
func (s CommentSnapshot) ResourceID() string { return s.ID }

// OwnerID returns the comment author.
func (s CommentSnapshot) OwnerID() string { return s.AuthorID }

// SecondaryOwnerID is always empty for comments.
func (s CommentSnapshot) SecondaryOwnerID() string { return "" }

// Status returns the comment status.
func (s CommentSnapshot) Status() string { return s.CommentStatus }

// DependentStates exposes the author account and parent post states.
func (s CommentSnapshot) DependentStates() map[string]string {
	return map[string]string{
		"author":      s.AuthorStatus,
		"parent_post": s.PostStatus,
	}
}

var (
	_ authz.Snapshot = PostSnapshot{}
	_ authz.Snapshot = CommentSnapshot{}
)
