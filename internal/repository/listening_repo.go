package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/soundmatch/internal/db"
)

// ListeningRepository reads listening history aggregates.
type ListeningRepository struct {
	db *gorm.DB
}

func NewListeningRepository(database *gorm.DB) *ListeningRepository {
	return &ListeningRepository{db: database}
}

// Artists returns the distinct artists a user has played, sorted.
func (r *ListeningRepository) Artists(ctx context.Context, userID string) ([]string, error) {
	return r.distinct(ctx, userID, "artist_name")
}

// Genres returns the distinct non-empty genres a user has played, sorted.
func (r *ListeningRepository) Genres(ctx context.Context, userID string) ([]string, error) {
	return r.distinct(ctx, userID, "genre")
}

func (r *ListeningRepository) distinct(ctx context.Context, userID, column string) ([]string, error) {
	var out []string
	err := r.db.WithContext(ctx).
		Model(&db.ListeningHistory{}).
		Where("user_id = ? AND "+column+" <> ''", userID).
		Distinct().
		Order(column).
		Pluck(column, &out).Error
	if err != nil {
		return nil, translate("list "+column, err, nil)
	}
	return out, nil
}

// Record appends plays to a user's history.
func (r *ListeningRepository) Record(ctx context.Context, plays ...db.ListeningHistory) error {
	if len(plays) == 0 {
		return nil
	}
	return translate("record plays", r.db.WithContext(ctx).Create(&plays).Error, nil)
}
