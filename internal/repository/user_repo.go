package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/oggyb/soundmatch/internal/db"
	svcErr "github.com/oggyb/soundmatch/internal/errors"
)

// UserRepository looks users up by id. Other repositories reference users
// only through id columns.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("user", id)
	}
	if err != nil {
		return nil, translate("find user", err, nil)
	}
	return &u, nil
}

// RequireAll returns NOT_FOUND naming the missing ids unless every id exists.
func (r *UserRepository) RequireAll(ctx context.Context, ids ...string) error {
	var found []string
	err := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error
	if err != nil {
		return translate("find users", err, nil)
	}

	have := make(map[string]bool, len(found))
	for _, id := range found {
		have[id] = true
	}
	var missing []string
	for _, id := range ids {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return svcErr.NotFound("user", strings.Join(missing, ","))
	}
	return nil
}
