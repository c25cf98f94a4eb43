package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/ami/domain/entities"
)

// ErrNotFound is returned when a lookup or delete matches nothing
var ErrNotFound = errors.New("not found")

// ListOptions paginates history queries. Page is 1-based.
type ListOptions struct {
	Page  int
	Limit int
}

// ChatRepository persists conversation turns
type ChatRepository interface {
	Save(ctx context.Context, record *entities.ChatRecord) error
	// ListByUser returns one page of a user's turns, newest first, and the total count
	ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*entities.ChatRecord, int64, error)
	// Delete removes a turn owned by userID, ErrNotFound when none matched
	Delete(ctx context.Context, userID, id string) error
}

// ProfileRepository resolves the personalization profile of a user
type ProfileRepository interface {
	// GetProfile returns nil without error when the user has no profile
	GetProfile(ctx context.Context, userID string) (*entities.UserProfile, error)
}
