package storage

import (
	"context"
	"time"

	"linkdrop/internal/domain"
)

// NewLink holds the caller-supplied fields of a link. The repository assigns
// ID and CreatedAt and starts every link unwatched.
type NewLink struct {
	SenderID    string
	RecipientID string
	URL         string
	Title       *string
	Thumbnail   *string
	PlatformTag domain.Platform
	CustomTags  []string
	Note        *string
}

// Repository defines the persistence operations the mailbox relies on.
type Repository interface {
	// ListUsers returns every user ordered by slug.
	ListUsers(ctx context.Context) ([]domain.User, error)

	// GetUserBySlug returns domain.ErrUserNotFound for unknown slugs.
	GetUserBySlug(ctx context.Context, slug string) (domain.User, error)

	// GetUser returns domain.ErrUserNotFound for unknown ids.
	GetUser(ctx context.Context, id string) (domain.User, error)

	// CreateUser stores a user with a fresh id. Slugs are unique.
	CreateUser(ctx context.Context, slug, name string) (domain.User, error)

	// CountSubmissionsSince counts links sent by senderID created at or after since.
	CountSubmissionsSince(ctx context.Context, senderID string, since time.Time) (int, error)

	// InsertLink persists a new unwatched link.
	InsertLink(ctx context.Context, link NewLink) (domain.Link, error)

	// GetLink returns domain.ErrLinkNotFound for unknown ids.
	GetLink(ctx context.Context, id string) (domain.Link, error)

	// ListInbox returns the recipient's unwatched links, newest first.
	ListInbox(ctx context.Context, recipientID string) ([]domain.LinkWithSender, error)

	// ListArchive returns the recipient's watched links, most recently watched first.
	ListArchive(ctx context.Context, recipientID string) ([]domain.LinkWithSender, error)

	// UpdateWatched marks a link watched. An already-watched link keeps its original WatchedAt.
	UpdateWatched(ctx context.Context, linkID string) error

	// Close gracefully shuts down the repository connection.
	Close() error
}
