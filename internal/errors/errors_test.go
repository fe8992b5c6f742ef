package errors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	svcErr "github.com/oggyb/soundmatch/internal/errors"
)

func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("swipe: %w", svcErr.New(svcErr.CodeAlreadySwiped, "user u1 already swiped on m1"))

	assert.ErrorIs(t, err, svcErr.ErrAlreadySwiped)
	assert.NotErrorIs(t, err, svcErr.ErrAlreadyVoted)
	assert.True(t, svcErr.IsDuplicate(err))
	assert.Equal(t, svcErr.CodeAlreadySwiped, svcErr.CodeOf(err))
}

func TestIsDuplicate_Family(t *testing.T) {
	for _, e := range []error{
		svcErr.ErrDuplicatePair, svcErr.ErrDuplicateSubmission,
		svcErr.ErrAlreadyVoted, svcErr.ErrAlreadySwiped,
	} {
		assert.True(t, svcErr.IsDuplicate(e), e.Error())
	}
	assert.False(t, svcErr.IsDuplicate(svcErr.ErrSelfVote))
	assert.False(t, svcErr.IsDuplicate(errors.New("boom")))
}

func TestStorage_Wrapping(t *testing.T) {
	assert.Nil(t, svcErr.Storage("op", nil))

	nf := svcErr.Storage("load match", gorm.ErrRecordNotFound)
	assert.ErrorIs(t, nf, svcErr.ErrNotFound)
	assert.False(t, svcErr.IsTransient(nf))

	dom := svcErr.Storage("op", svcErr.ErrSelfVote)
	assert.ErrorIs(t, dom, svcErr.ErrSelfVote)

	raw := errors.New("connection reset")
	st := svcErr.Storage("insert vote", raw)
	assert.True(t, svcErr.IsTransient(st))
	assert.ErrorIs(t, st, raw)

	// no double wrapping
	assert.Same(t, st, svcErr.Storage("outer", st))
}

func TestMap(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{svcErr.NotFound("match", "m1"), codes.NotFound},
		{svcErr.ErrAlreadyVoted, codes.AlreadyExists},
		{svcErr.ErrDuplicatePair, codes.AlreadyExists},
		{svcErr.ErrDuplicateSubmission, codes.AlreadyExists},
		{svcErr.ErrDuplicateContestant, codes.AlreadyExists},
		{svcErr.ErrDuplicateFriendship, codes.AlreadyExists},
		{svcErr.ErrAlreadySwiped, codes.AlreadyExists},
		{fmt.Errorf("wrapped: %w", svcErr.ErrAlreadyVoted), codes.AlreadyExists},
		{svcErr.ErrSelfVote, codes.PermissionDenied},
		{svcErr.ErrNotParticipant, codes.PermissionDenied},
		{svcErr.InvalidState("war is live"), codes.FailedPrecondition},
		{svcErr.ErrNoSubmissions, codes.FailedPrecondition},
		{svcErr.ErrRoundClosed, codes.FailedPrecondition},
		{svcErr.ErrInvalidArgument, codes.InvalidArgument},
		{svcErr.Storage("op", errors.New("down")), codes.Unavailable},
		{gorm.ErrRecordNotFound, codes.NotFound},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{context.Canceled, codes.Canceled},
		{errors.New("weird"), codes.Internal},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, status.Code(svcErr.Map(c.err)), c.err.Error())
	}
	assert.Nil(t, svcErr.Map(nil))
}

func TestMap_PassesStatusThrough(t *testing.T) {
	in := status.Error(codes.ResourceExhausted, "slow down")
	assert.Equal(t, in, svcErr.Map(in))
}
