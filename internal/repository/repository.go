// Package repository defines the storage contracts the service layer depends on.
// Implementations live in sub-packages (sqlite).
package repository

import (
	"context"

	"github.com/sakif/bookworm/internal/model"
)

// Book listing sort keys accepted by BookRepository.List.
const (
	SortNewest     = "-createdAt"
	SortOldest     = "createdAt"
	SortRatingDesc = "-rating"
	SortRatingAsc  = "rating"
)

// Book listing page sizes.
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 100

	// MaxPage keeps Offset well inside int range.
	MaxPage = 1_000_000
)

// ValidSort reports whether s is a listing sort key.
func ValidSort(s string) bool {
	switch s {
	case SortNewest, SortOldest, SortRatingDesc, SortRatingAsc:
		return true
	}
	return false
}

// ListOptions controls pagination, filtering and ordering of the book listing.
// Page is 1-based. Title is a case-insensitive substring filter.
type ListOptions struct {
	Page  int
	Limit int
	Title string
	Sort  string
}

// Normalize applies defaults and clamps out-of-range values.
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Page > MaxPage {
		o.Page = MaxPage
	}
	if o.Limit <= 0 {
		o.Limit = DefaultPageLimit
	}
	if o.Limit > MaxPageLimit {
		o.Limit = MaxPageLimit
	}
	if o.Sort == "" {
		o.Sort = SortNewest
	}
	return o
}

// Offset is the number of rows skipped before the requested page.
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// ProfileFields is the set of user columns a profile update may change.
// Nil pointers leave the column untouched.
type ProfileFields struct {
	Username     *string
	Email        *string
	ProfileImage *string
}

// Empty reports whether no column would change.
func (f ProfileFields) Empty() bool {
	return f.Username == nil && f.Email == nil && f.ProfileImage == nil
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)

	// FindConflict returns another user (id != excludeID) whose username or
	// email equals one of the non-empty arguments, or nil when none exists.
	FindConflict(ctx context.Context, excludeID, username, email string) (*model.User, error)

	// UpdateProfile applies fields in a single statement and returns the stored row.
	UpdateProfile(ctx context.Context, id string, fields ProfileFields) (*model.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	LinkGitHub(ctx context.Context, id string, githubID int64) error
}

type BookRepository interface {
	Create(ctx context.Context, book *model.Book) error
	GetByID(ctx context.Context, id string) (*model.Book, error)

	// List returns one page of books plus the number of books matching the filter.
	List(ctx context.Context, opts ListOptions) ([]model.Book, int, error)
	ListByUser(ctx context.Context, userID string) ([]model.Book, error)
	Delete(ctx context.Context, id string) error
}
