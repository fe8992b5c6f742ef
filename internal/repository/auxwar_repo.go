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

// AuxWarRepository provides data access for aux wars, their contestants,
// submissions and votes. Rows reference each other only by id.
type AuxWarRepository struct {
	db *gorm.DB
}

func NewAuxWarRepository(database *gorm.DB) *AuxWarRepository {
	return &AuxWarRepository{db: database}
}

func (r *AuxWarRepository) CreateWar(ctx context.Context, w *db.AuxWar) error {
	return translate("create aux war", r.db.WithContext(ctx).Create(w).Error, nil)
}

func (r *AuxWarRepository) FindWar(ctx context.Context, id string) (*db.AuxWar, error) {
	return r.findWar(r.db.WithContext(ctx), id)
}

// FindWarForUpdate loads a war holding a row lock for the rest of the transaction.
func (r *AuxWarRepository) FindWarForUpdate(ctx context.Context, id string) (*db.AuxWar, error) {
	return r.findWar(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *AuxWarRepository) findWar(q *gorm.DB, id string) (*db.AuxWar, error) {
	var w db.AuxWar
	err := q.Where("id = ?", id).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("aux war", id)
	}
	if err != nil {
		return nil, translate("find aux war", err, nil)
	}
	return &w, nil
}

// UpdateWar applies fields to the war row if its version still equals
// w.Version, bumping the version. It returns false when another writer won.
func (r *AuxWarRepository) UpdateWar(ctx context.Context, w *db.AuxWar, fields map[string]any) (bool, error) {
	expected := w.Version
	fields["version"] = expected + 1
	res := r.db.WithContext(ctx).
		Model(&db.AuxWar{}).
		Where("id = ? AND version = ?", w.ID, expected).
		Updates(fields)
	if res.Error != nil {
		return false, translate("update aux war", res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	w.Version = expected + 1
	return true, nil
}

// AddContestant inserts a contestant row. A second row for the same user
// becomes DUPLICATE_CONTESTANT.
func (r *AuxWarRepository) AddContestant(ctx context.Context, c *db.AuxWarContestant) error {
	return translate("add contestant", r.db.WithContext(ctx).Create(c).Error, svcErr.ErrDuplicateContestant)
}

// FindContestant returns the contestant row or nil if the user is not entered.
func (r *AuxWarRepository) FindContestant(ctx context.Context, warID, userID string) (*db.AuxWarContestant, error) {
	var c db.AuxWarContestant
	err := r.db.WithContext(ctx).
		Where("aux_war_id = ? AND user_id = ?", warID, userID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("find contestant", err, nil)
	}
	return &c, nil
}

func (r *AuxWarRepository) ConfirmContestant(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).
		Model(&db.AuxWarContestant{}).
		Where("id = ?", id).
		Update("confirmed", true).Error
	return translate("confirm contestant", err, nil)
}

// CountContestants counts contestant rows; confirmedOnly restricts to
// confirmed ones.
func (r *AuxWarRepository) CountContestants(ctx context.Context, warID string, confirmedOnly bool) (int64, error) {
	q := r.db.WithContext(ctx).Model(&db.AuxWarContestant{}).Where("aux_war_id = ?", warID)
	if confirmedOnly {
		q = q.Where("confirmed = ?", true)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, translate("count contestants", err, nil)
	}
	return n, nil
}

func (r *AuxWarRepository) ListContestants(ctx context.Context, warID string) ([]db.AuxWarContestant, error) {
	var out []db.AuxWarContestant
	err := r.db.WithContext(ctx).
		Where("aux_war_id = ?", warID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, translate("list contestants", err, nil)
}

// CreateSubmission inserts a submission. A second song from the same
// contestant in the same round becomes DUPLICATE_SUBMISSION.
func (r *AuxWarRepository) CreateSubmission(ctx context.Context, s *db.AuxWarSubmission) error {
	return translate("create submission", r.db.WithContext(ctx).Create(s).Error, svcErr.ErrDuplicateSubmission)
}

func (r *AuxWarRepository) FindSubmission(ctx context.Context, id string) (*db.AuxWarSubmission, error) {
	var s db.AuxWarSubmission
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("submission", id)
	}
	if err != nil {
		return nil, translate("find submission", err, nil)
	}
	return &s, nil
}

// ListSubmissions returns a round's submissions in submission order.
func (r *AuxWarRepository) ListSubmissions(ctx context.Context, warID string, round int) ([]db.AuxWarSubmission, error) {
	var out []db.AuxWarSubmission
	err := r.db.WithContext(ctx).
		Where("aux_war_id = ? AND round_number = ?", warID, round).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, translate("list submissions", err, nil)
}

func (r *AuxWarRepository) CountSubmissions(ctx context.Context, warID string, round int) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.AuxWarSubmission{}).
		Where("aux_war_id = ? AND round_number = ?", warID, round).
		Count(&n).Error
	if err != nil {
		return 0, translate("count submissions", err, nil)
	}
	return n, nil
}

// CreateVote inserts a vote. A second vote by the same voter in the same
// round becomes ALREADY_VOTED.
func (r *AuxWarRepository) CreateVote(ctx context.Context, v *db.AuxWarVote) error {
	return translate("create vote", r.db.WithContext(ctx).Create(v).Error, svcErr.ErrAlreadyVoted)
}

// IncrementVoteCount bumps the cached counter in SQL so concurrent voters
// never overwrite each other.
func (r *AuxWarRepository) IncrementVoteCount(ctx context.Context, submissionID string) error {
	err := r.db.WithContext(ctx).
		Model(&db.AuxWarSubmission{}).
		Where("id = ?", submissionID).
		UpdateColumn("vote_count", gorm.Expr("vote_count + ?", 1)).Error
	return translate("increment vote count", err, nil)
}

// SetVoteCount overwrites the cached counter with n.
func (r *AuxWarRepository) SetVoteCount(ctx context.Context, submissionID string, n int64) error {
	err := r.db.WithContext(ctx).
		Model(&db.AuxWarSubmission{}).
		Where("id = ?", submissionID).
		UpdateColumn("vote_count", n).Error
	return translate("set vote count", err, nil)
}

func (r *AuxWarRepository) MarkRoundWinner(ctx context.Context, submissionID string) error {
	err := r.db.WithContext(ctx).
		Model(&db.AuxWarSubmission{}).
		Where("id = ?", submissionID).
		Update("round_winner", true).Error
	return translate("mark round winner", err, nil)
}

// CountVotes counts vote rows for one submission in one round.
func (r *AuxWarRepository) CountVotes(ctx context.Context, warID string, round int, submissionID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.AuxWarVote{}).
		Where("aux_war_id = ? AND round_number = ? AND submission_id = ?", warID, round, submissionID).
		Count(&n).Error
	if err != nil {
		return 0, translate("count votes", err, nil)
	}
	return n, nil
}

// SumVotes totals vote_count over every round of a war.
func (r *AuxWarRepository) SumVotes(ctx context.Context, warID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&db.AuxWarSubmission{}).
		Where("aux_war_id = ?", warID).
		Select("COALESCE(SUM(vote_count), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, translate("sum votes", err, nil)
	}
	return total, nil
}

// ListWars returns wars in the given status, newest first. status == ""
// lists all.
func (r *AuxWarRepository) ListWars(
	ctx context.Context,
	status db.AuxWarStatus,
	paginationToken *string,
	limit int,
) ([]db.AuxWar, *string, error) {
	query := r.db.WithContext(ctx).Table("aux_wars w")
	if status != "" {
		query = query.Where("w.status = ?", status)
	}
	query, err := applyCursor(query, "w", paginationToken)
	if err != nil {
		return nil, nil, err
	}

	var wars []db.AuxWar
	err = query.Order("w.created_at DESC, w.id DESC").Limit(limit + 1).Find(&wars).Error
	if err != nil {
		return nil, nil, translate("list aux wars", err, nil)
	}
	wars, next := nextPage(wars, limit, func(w db.AuxWar) (string, time.Time) {
		return w.ID, w.CreatedAt
	})
	return wars, next, nil
}

// ListActive returns every war that is live or voting. Used to rebuild
// deadline timers after a restart.
func (r *AuxWarRepository) ListActive(ctx context.Context) ([]db.AuxWar, error) {
	var wars []db.AuxWar
	err := r.db.WithContext(ctx).
		Where("status IN ?", []db.AuxWarStatus{db.WarLive, db.WarVoting}).
		Order("created_at ASC").
		Find(&wars).Error
	if err != nil {
		return nil, translate("list active aux wars", err, nil)
	}
	return wars, nil
}
