package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	svcErr "github.com/oggyb/soundmatch/internal/errors"
	"github.com/oggyb/soundmatch/internal/utils/pagination"
)

// translate turns a gorm error into a domain or storage error.
// A unique index violation becomes dup (when given).
func translate(op string, err error, dup *svcErr.DomainError) error {
	if err == nil {
		return nil
	}
	if dup != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return svcErr.New(dup.Code, "%s", op)
	}
	return svcErr.Storage(op, err)
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// applyCursor restricts a (created_at DESC, id DESC) query to rows after token.
func applyCursor(query *gorm.DB, alias string, token *string) (*gorm.DB, error) {
	cursor, err := pagination.Decode(getString(token))
	if err != nil {
		return nil, svcErr.New(svcErr.CodeInvalidArgument, "%v", err)
	}
	if cursor.IsZero() {
		return query, nil
	}
	ts := time.Unix(0, cursor.CreatedUnixNano).UTC()
	return query.Where(
		"("+alias+".created_at < ? OR ("+alias+".created_at = ? AND "+alias+".id < ?))",
		ts, ts, cursor.ID,
	), nil
}

// nextPage trims rows to limit and builds the token for the following page.
func nextPage[T any](rows []T, limit int, key func(T) (string, time.Time)) ([]T, *string) {
	if len(rows) <= limit {
		return rows, nil
	}
	id, created := key(rows[limit-1])
	token, _ := pagination.Encode(pagination.Cursor{
		ID:              id,
		CreatedUnixNano: created.UnixNano(),
	})
	return rows[:limit], &token
}
