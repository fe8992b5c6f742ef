package errors

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Code identifies a domain rule violation.
type Code string

const (
	CodeNotFound                Code = "NOT_FOUND"
	CodeInvalidState            Code = "INVALID_STATE"
	CodeInvalidArgument         Code = "INVALID_ARGUMENT"
	CodeUnauthenticated         Code = "UNAUTHENTICATED"
	CodeDuplicatePair           Code = "DUPLICATE_PAIR"
	CodeDuplicateSubmission     Code = "DUPLICATE_SUBMISSION"
	CodeDuplicateContestant     Code = "DUPLICATE_CONTESTANT"
	CodeDuplicateFriendship     Code = "DUPLICATE_FRIENDSHIP"
	CodeAlreadyVoted            Code = "ALREADY_VOTED"
	CodeAlreadySwiped           Code = "ALREADY_SWIPED"
	CodeNotParticipant          Code = "NOT_PARTICIPANT"
	CodeSelfVote                Code = "SELF_VOTE"
	CodeRoundClosed             Code = "ROUND_CLOSED"
	CodeNoSubmissions           Code = "NO_SUBMISSIONS"
	CodeInsufficientContestants Code = "INSUFFICIENT_CONTESTANTS"
)

// DomainError is a rule violation detected before any write. It is never
// retried by the engines.
type DomainError struct {
	Code    Code
	Message string
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any DomainError with the same code, so the sentinels below
// work with errors.Is regardless of message.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

var (
	ErrNotFound                = &DomainError{Code: CodeNotFound}
	ErrInvalidState            = &DomainError{Code: CodeInvalidState}
	ErrInvalidArgument         = &DomainError{Code: CodeInvalidArgument}
	ErrUnauthenticated         = &DomainError{Code: CodeUnauthenticated}
	ErrDuplicatePair           = &DomainError{Code: CodeDuplicatePair}
	ErrDuplicateSubmission     = &DomainError{Code: CodeDuplicateSubmission}
	ErrDuplicateContestant     = &DomainError{Code: CodeDuplicateContestant}
	ErrDuplicateFriendship     = &DomainError{Code: CodeDuplicateFriendship}
	ErrAlreadyVoted            = &DomainError{Code: CodeAlreadyVoted}
	ErrAlreadySwiped           = &DomainError{Code: CodeAlreadySwiped}
	ErrNotParticipant          = &DomainError{Code: CodeNotParticipant}
	ErrSelfVote                = &DomainError{Code: CodeSelfVote}
	ErrRoundClosed             = &DomainError{Code: CodeRoundClosed}
	ErrNoSubmissions           = &DomainError{Code: CodeNoSubmissions}
	ErrInsufficientContestants = &DomainError{Code: CodeInsufficientContestants}
)

// New creates a DomainError with a formatted message.
func New(code Code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(entity, id string) *DomainError {
	return New(CodeNotFound, "%s %s not found", entity, id)
}

func InvalidState(format string, args ...any) *DomainError {
	return New(CodeInvalidState, format, args...)
}

// CodeOf returns the DomainError code in err's chain, or "".
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsDuplicate reports whether err is one of the uniqueness violations.
func IsDuplicate(err error) bool {
	switch CodeOf(err) {
	case CodeDuplicatePair, CodeDuplicateSubmission, CodeDuplicateContestant,
		CodeDuplicateFriendship, CodeAlreadyVoted, CodeAlreadySwiped:
		return true
	}
	return false
}

// IsDomain reports whether err carries a DomainError.
func IsDomain(err error) bool {
	return CodeOf(err) != ""
}

// StorageError wraps a store failure that is not a domain rule
// (connectivity, unexpected constraint, lock timeout). Safe to retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError unless it already is a domain error
// or a StorageError. A missing record becomes NOT_FOUND.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return New(CodeNotFound, "%s: record not found", op)
	}
	return &StorageError{Op: op, Err: err}
}

// IsTransient reports whether err is a StorageError.
func IsTransient(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
