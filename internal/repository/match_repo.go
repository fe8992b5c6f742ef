package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/soundmatch/internal/db"
	svcErr "github.com/oggyb/soundmatch/internal/errors"
)

// MatchRepository provides data access methods for the Match model.
// It encapsulates all queries related to match proposals and swipes.
type MatchRepository struct {
	db *gorm.DB
}

// NewMatchRepository creates a new repository bound to the given DB connection
// (or transaction).
func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// Canonical orders a pair so the lexicographically smaller id comes first.
func Canonical(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Create inserts a new match. The unique pair index turns a concurrent
// duplicate into DUPLICATE_PAIR.
func (r *MatchRepository) Create(ctx context.Context, m *db.Match) error {
	return translate("create match", r.db.WithContext(ctx).Create(m).Error, svcErr.ErrDuplicatePair)
}

// FindByID loads a match or returns NOT_FOUND.
func (r *MatchRepository) FindByID(ctx context.Context, id string) (*db.Match, error) {
	return r.find(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate loads a match holding a row lock until the surrounding
// transaction ends. SQLite ignores the lock clause.
func (r *MatchRepository) FindByIDForUpdate(ctx context.Context, id string) (*db.Match, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *MatchRepository) find(q *gorm.DB, id string) (*db.Match, error) {
	var m db.Match
	err := q.Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("match", id)
	}
	if err != nil {
		return nil, translate("find match", err, nil)
	}
	return &m, nil
}

// PairExists reports whether a match exists for the unordered pair.
func (r *MatchRepository) PairExists(ctx context.Context, a, b string) (bool, error) {
	u1, u2 := Canonical(a, b)
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("user1_id = ? AND user2_id = ?", u1, u2).
		Count(&count).Error
	if err != nil {
		return false, translate("find pair", err, nil)
	}
	return count > 0, nil
}

// SaveSwipe writes the swipe columns of m if the stored version still equals
// expected. It returns false when another writer got there first.
//
// On success m.Version is bumped to match the stored row.
func (r *MatchRepository) SaveSwipe(ctx context.Context, m *db.Match, expected int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND version = ?", m.ID, expected).
		Updates(map[string]any{
			"user1_action":    m.User1Action,
			"user2_action":    m.User2Action,
			"user1_swiped_at": m.User1SwipedAt,
			"user2_swiped_at": m.User2SwipedAt,
			"status":          m.Status,
			"matched_at":      m.MatchedAt,
			"version":         expected + 1,
		})
	if res.Error != nil {
		return false, translate("save swipe", res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	m.Version = expected + 1
	return true, nil
}

// ListForUser returns matches the user takes part in.
//
// Behavior:
//   - status == "" lists every status.
//   - Ordered by created_at DESC, id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.ListForUser(ctx, "u1", db.MatchAccepted, nil, 20) // first 20 accepted matches of u1
func (r *MatchRepository) ListForUser(
	ctx context.Context,
	userID string,
	status db.MatchStatus,
	paginationToken *string,
	limit int,
) ([]db.Match, *string, error) {
	query := r.db.WithContext(ctx).
		Table("matches m").
		Where("(m.user1_id = ? OR m.user2_id = ?)", userID, userID)
	if status != "" {
		query = query.Where("m.status = ?", status)
	}
	return r.page(query, paginationToken, limit)
}

// ListIncomingLikes returns pending matches where the other side liked
// (or super-liked) the user and the user has not swiped yet.
//
// Example:
//
//	repo.ListIncomingLikes(ctx, "u1", nil, 20) // who liked u1 and is waiting
func (r *MatchRepository) ListIncomingLikes(
	ctx context.Context,
	userID string,
	paginationToken *string,
	limit int,
) ([]db.Match, *string, error) {
	positive := []db.SwipeAction{db.ActionLiked, db.ActionSuperLiked}
	query := r.db.WithContext(ctx).
		Table("matches m").
		Where("m.status = ?", db.MatchPending).
		Where(
			r.db.Where("m.user1_id = ? AND m.user1_action = '' AND m.user2_action IN ?", userID, positive).
				Or("m.user2_id = ? AND m.user2_action = '' AND m.user1_action IN ?", userID, positive),
		)
	return r.page(query, paginationToken, limit)
}

// CountAwaitingSwipe counts pending matches where the user has not swiped.
// Used in conjunction with Redis cache (DB is fallback).
func (r *MatchRepository) CountAwaitingSwipe(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("matches m").
		Where("m.status = ?", db.MatchPending).
		Where(
			r.db.Where("m.user1_id = ? AND m.user1_action = ''", userID).
				Or("m.user2_id = ? AND m.user2_action = ''", userID),
		).
		Count(&count).Error
	if err != nil {
		return 0, translate("count pending", err, nil)
	}
	return count, nil
}

func (r *MatchRepository) page(query *gorm.DB, token *string, limit int) ([]db.Match, *string, error) {
	query, err := applyCursor(query, "m", token)
	if err != nil {
		return nil, nil, err
	}

	var matches []db.Match
	err = query.
		Order("m.created_at DESC, m.id DESC").
		Limit(limit + 1).
		Find(&matches).Error
	if err != nil {
		return nil, nil, translate("list matches", err, nil)
	}

	matches, next := nextPage(matches, limit, func(m db.Match) (string, time.Time) {
		return m.ID, m.CreatedAt
	})
	return matches, next, nil
}
