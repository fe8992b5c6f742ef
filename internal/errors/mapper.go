// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// Map converts domain/repo/infra errors into gRPC-friendly status errors.
// Keeps service layer clean by centralizing error mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var de *DomainError
	if errors.As(err, &de) {
		if IsDuplicate(err) {
			return status.Error(codes.AlreadyExists, de.Error())
		}
		return status.Error(grpcCode(de.Code), de.Error())
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	case IsTransient(err):
		return status.Error(codes.Unavailable, err.Error())

	default:
		// fallback → bubble up error message for debugging
		return status.Error(codes.Internal, err.Error())
	}
}

func grpcCode(c Code) codes.Code {
	switch c {
	case CodeNotFound:
		return codes.NotFound
	case CodeInvalidArgument:
		return codes.InvalidArgument
	case CodeUnauthenticated:
		return codes.Unauthenticated
	case CodeNotParticipant, CodeSelfVote:
		return codes.PermissionDenied
	case CodeInvalidState, CodeRoundClosed, CodeNoSubmissions, CodeInsufficientContestants:
		return codes.FailedPrecondition
	default:
		return codes.Unknown
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in service layer for bad input validation.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}

// AlreadyExists creates a gRPC AlreadyExists error.
func AlreadyExists(msg string) error {
	return status.Error(codes.AlreadyExists, msg)
}
