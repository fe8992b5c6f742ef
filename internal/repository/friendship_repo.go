package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/oggyb/soundmatch/internal/db"
	svcErr "github.com/oggyb/soundmatch/internal/errors"
)

// FriendshipRepository stores directed friendship edges.
type FriendshipRepository struct {
	db *gorm.DB
}

func NewFriendshipRepository(database *gorm.DB) *FriendshipRepository {
	return &FriendshipRepository{db: database}
}

// Find returns the user -> friend edge, or nil when there is none.
func (r *FriendshipRepository) Find(ctx context.Context, userID, friendID string) (*db.Friendship, error) {
	var f db.Friendship
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND friend_id = ?", userID, friendID).
		First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("find friendship", err, nil)
	}
	return &f, nil
}

func (r *FriendshipRepository) Create(ctx context.Context, f *db.Friendship) error {
	return translate("create friendship", r.db.WithContext(ctx).Create(f).Error, svcErr.ErrDuplicateFriendship)
}

func (r *FriendshipRepository) Save(ctx context.Context, f *db.Friendship) error {
	return translate("save friendship", r.db.WithContext(ctx).Save(f).Error, nil)
}

func (r *FriendshipRepository) Delete(ctx context.Context, userID, friendID string) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND friend_id = ?", userID, friendID).
		Delete(&db.Friendship{}).Error
	return translate("delete friendship", err, nil)
}

// ListByStatus returns the user's outgoing edges with the given status,
// newest first.
func (r *FriendshipRepository) ListByStatus(ctx context.Context, userID string, status db.FriendshipStatus) ([]db.Friendship, error) {
	var out []db.Friendship
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, status).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, translate("list friendships", err, nil)
}

// ListIncoming returns pending requests addressed to the user.
func (r *FriendshipRepository) ListIncoming(ctx context.Context, userID string) ([]db.Friendship, error) {
	var out []db.Friendship
	err := r.db.WithContext(ctx).
		Where("friend_id = ? AND status = ?", userID, db.FriendshipPending).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, translate("list friend requests", err, nil)
}
